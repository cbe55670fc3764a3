package app

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/deusflow/newsdigest/internal/metrics"
	"github.com/deusflow/newsdigest/internal/ratelimit"
	"github.com/deusflow/newsdigest/internal/storage"
)

// MonitoringHandler serves /health and /metrics as JSON.
func MonitoringHandler(m *metrics.Metrics, store storage.Store, limiter *ratelimit.DomainLimiter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()

		status, code := "ok", http.StatusOK
		if healthy, _ := stats["is_healthy"].(bool); !healthy {
			status, code = "error", http.StatusServiceUnavailable
		}
		writeJSON(w, code, map[string]interface{}{
			"status":     status,
			"last_run":   stats["last_run_time"],
			"last_error": stats["last_error"],
		})
	})

	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		stats := m.GetStats()
		if limiter != nil {
			stats["rate_limiter"] = limiter.GetStats()
		}
		if store != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if s, err := store.Stats(ctx); err == nil {
				stats["store_entries"] = s.Total
				stats["subscribers"] = s.Subscribers
				stats["store_by_category"] = s.ByCategory
			}
		}
		writeJSON(w, http.StatusOK, stats)
	})

	return mux
}

// StartMonitoring serves the monitoring handler on port until ctx ends.
func StartMonitoring(ctx context.Context, port string, h http.Handler) {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.Info().Str("port", port).Msg("Starting monitoring server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Monitoring server error")
		}
	}()
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Encoding monitoring response")
	}
}
