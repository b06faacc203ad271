//go:build linux

// File: affinity/affinity_linux.go
// Author: momentics <momentics@gmail.com>
//
// Linux thread pinning via sched_setaffinity. Pure Go, no cgo: tid 0
// addresses the calling thread.

package affinity

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func pinPlatform(cpuID int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpuID)
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return fmt.Errorf("affinity: sched_setaffinity(cpu %d): %w", cpuID, err)
	}
	return nil
}
