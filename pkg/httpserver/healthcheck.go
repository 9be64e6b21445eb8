package httpserver

import (
	"context"
	"log/slog"
	"net/http"
)

// HealthCheckHandler returns an HTTP handler usable for liveness and readiness
// probes. With no dependency probes it answers 200 "ALIVE"; with probes it runs
// each one and answers 200 "READY" or 500 "NOT_READY".
func HealthCheckHandler(log *slog.Logger, probes ...func(context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if len(probes) == 0 {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ALIVE"))
			return
		}

		for _, probe := range probes {
			if err := probe(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", "error", err)
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte("NOT_READY"))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("READY"))
	}
}
