package httpserver

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/draftbase/credits/pkg/logger"
)

// HealthCheckHandler returns an HTTP handler usable for both liveness
// and readiness probes. With no dependency functions it answers 200
// "ALIVE"; with dependencies it runs each probe and answers 200 "READY"
// or 500 "NOT_READY".
func HealthCheckHandler(ctx context.Context, log *slog.Logger, funcs ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(funcs) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for _, f := range funcs {
			if err := f(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
