// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package loop implements one event loop: a watcher arena with
// generation-checked slots, a timer heap, a cross-thread inbox and the
// blocking wait/dispatch cycle, plus the worker thread that drives it.
// Exactly one thread drives a loop for its entire life; every other thread
// interacts with it only through the mutex-guarded mutation surface
// followed by a demultiplexer wakeup.
package loop
