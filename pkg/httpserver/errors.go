package httpserver

import "errors"

var (
	// ErrStart wraps listener startup failures, including double Run calls.
	ErrStart = errors.New("failed to start HTTP server")
	// ErrShutdown wraps graceful shutdown failures past the deadline.
	ErrShutdown = errors.New("failed to shut down HTTP server gracefully")
)
