// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package api defines the public contracts of the evsched library: the Task
// capability interface consumed by the scheduler, the event kind bitmask,
// opaque watcher handles, the Scheduler contract and common error types.
package api
