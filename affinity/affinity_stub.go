//go:build !linux

// File: affinity/affinity_stub.go
// Author: momentics <momentics@gmail.com>
//
// Fallback for platforms without settable thread affinity.

package affinity

func pinPlatform(cpuID int) error {
	return ErrNotSupported
}
