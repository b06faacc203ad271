// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package scheduler implements the multi-reactor event scheduler: a fixed
// pool of event loops, each driven by its own locked OS thread, accepting
// watcher registrations for socket readiness, one-shot timers, periodic
// schedules, POSIX signals and cross-thread async wakeups. Loops are
// addressed by integer index 0..N-1; the pool is fixed at construction and
// torn down in bounded time by Shutdown.
package scheduler
