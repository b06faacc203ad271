//go:build !linux && !darwin

// File: reactor/reactor_stub.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Stub for platforms without a supported polling mechanism.

package reactor

import "github.com/momentics/evsched/api"

func platformBackends() []Backend {
	return nil
}

func platformNew(b Backend) (Demultiplexer, error) {
	return nil, api.ErrBackendUnavailable
}
