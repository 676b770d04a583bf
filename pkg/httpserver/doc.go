// Package httpserver wraps net/http with graceful shutdown, functional
// option configuration, health-check handlers, and structured logging
// via slog. Run blocks until the context is cancelled or an
// interrupt/TERM signal arrives, then shuts down within the configured
// deadline. Errors are wrapped with the ErrStart and ErrShutdown
// sentinels for errors.Is inspection.
package httpserver
