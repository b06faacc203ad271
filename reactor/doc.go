// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor provides the readiness demultiplexer underneath each
// event loop and cross-platform implementations for epoll (Linux) and
// kqueue (Darwin). Every demultiplexer carries a built-in waker so a
// blocked wait can be forced to return from any thread.
package reactor
