package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

type settings struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	log             *slog.Logger
	startHooks      []func(*slog.Logger)
	stopHooks       []func(*slog.Logger)
}

// Server runs an http.Server and shuts it down gracefully when the
// context is cancelled or the process receives SIGINT/SIGTERM.
type Server struct {
	cfg settings

	mu  sync.Mutex
	srv *http.Server
}

// New returns a configured Server. Without options it listens on :8080
// with a 5s shutdown deadline and discards logs.
func New(opts ...Option) *Server {
	cfg := settings{
		addr:            ":8080",
		shutdownTimeout: 5 * time.Second,
		log:             slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{cfg: cfg}
}

// Run starts listening and blocks until shutdown completes. A failure to
// start is wrapped with ErrStart; a failed graceful shutdown with
// ErrShutdown. A clean shutdown returns nil.
func (s *Server) Run(ctx context.Context, handler http.Handler) error {
	if handler == nil {
		handler = http.NotFoundHandler()
	}

	s.mu.Lock()
	if s.srv != nil {
		s.mu.Unlock()
		return errors.Join(ErrStart, errors.New("server already running"))
	}
	s.srv = &http.Server{
		Addr:         s.cfg.addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.readTimeout,
		WriteTimeout: s.cfg.writeTimeout,
		IdleTimeout:  s.cfg.idleTimeout,
	}
	s.mu.Unlock()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, h := range s.cfg.startHooks {
		h(s.cfg.log)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.shutdownTimeout)
		defer cancel()
		shutdownErr := s.srv.Shutdown(shutdownCtx)
		<-errCh
		s.runStopHooks()
		if shutdownErr != nil {
			return errors.Join(ErrShutdown, shutdownErr)
		}
		return nil

	case err := <-errCh:
		s.runStopHooks()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Join(ErrStart, err)
		}
		return nil
	}
}

func (s *Server) runStopHooks() {
	for _, h := range s.cfg.stopHooks {
		h(s.cfg.log)
	}
}
