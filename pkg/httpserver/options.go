package httpserver

import (
	"fmt"
	"log/slog"
	"time"
)

// Option configures the HTTP server.
// Options panic on invalid values so misconfiguration stops startup.
type Option func(*settings)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	if addr == "" {
		panic("httpserver: addr cannot be empty")
	}
	return func(s *settings) { s.addr = addr }
}

// WithReadTimeout bounds reading an entire request, header and body.
func WithReadTimeout(d time.Duration) Option {
	return func(s *settings) { s.readTimeout = mustPositive("read timeout", d) }
}

// WithWriteTimeout bounds writing a response.
func WithWriteTimeout(d time.Duration) Option {
	return func(s *settings) { s.writeTimeout = mustPositive("write timeout", d) }
}

// WithIdleTimeout bounds waiting for the next request on a keep-alive
// connection.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *settings) { s.idleTimeout = mustPositive("idle timeout", d) }
}

// WithShutdownTimeout bounds graceful shutdown; in-flight requests past
// the deadline are dropped.
func WithShutdownTimeout(d time.Duration) Option {
	return func(s *settings) { s.shutdownTimeout = mustPositive("shutdown timeout", d) }
}

// WithLogger supplies a structured logger for hooks. Defaults to a
// discarding logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *settings) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStartHook registers a callback invoked when the server begins
// listening.
func WithStartHook(h func(*slog.Logger)) Option {
	return func(s *settings) {
		if h != nil {
			s.startHooks = append(s.startHooks, h)
		}
	}
}

// WithStopHook registers a callback invoked after the server stops.
func WithStopHook(h func(*slog.Logger)) Option {
	return func(s *settings) {
		if h != nil {
			s.stopHooks = append(s.stopHooks, h)
		}
	}
}

func mustPositive(name string, d time.Duration) time.Duration {
	if d <= 0 {
		panic(fmt.Sprintf("httpserver: %s must be positive, got %s", name, d))
	}
	return d
}
