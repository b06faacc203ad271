// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package control exposes runtime observability for the scheduler:
// a thread-safe metrics registry populated with per-loop dispatch
// statistics.
package control
