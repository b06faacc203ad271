// File: affinity/affinity.go
// Author: momentics <momentics@gmail.com>
//
// Platform-neutral API for CPU affinity. Platform-specific implementations
// live in separate files guarded by build tags.

package affinity

import "errors"

// ErrNotSupported indicates CPU affinity is not supported on this
// platform.
var ErrNotSupported = errors.New("affinity: not supported on this platform")

// Pin binds the calling OS thread to a given logical CPU on supported
// platforms. The caller must have locked the goroutine to its thread
// first. On unsupported platforms returns ErrNotSupported.
func Pin(cpuID int) error {
	return pinPlatform(cpuID)
}
