package httpserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dmitrymomot/entitle/pkg/logger"
)

// Check probes one dependency.
type Check func(ctx context.Context) error

// Live answers 200 while the process serves requests.
func Live() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, http.StatusOK, map[string]any{"status": "alive"})
	}
}

// Ready runs every check concurrently within timeout and answers 200 when all
// pass, 503 otherwise. The body names each check's outcome.
func Ready(log *slog.Logger, timeout time.Duration, checks map[string]Check) http.HandlerFunc {
	if log == nil {
		log = logger.Discard()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		var (
			mu      sync.Mutex
			wg      sync.WaitGroup
			results = make(map[string]string, len(checks))
			healthy = true
		)
		for name, check := range checks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := check(ctx)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					healthy = false
					results[name] = "unavailable"
					log.WarnContext(ctx, "readiness check failed", slog.String("check", name), logger.Error(err))
					return
				}
				results[name] = "ok"
			}()
		}
		wg.Wait()

		if !healthy {
			writeHealth(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": results})
			return
		}
		writeHealth(w, http.StatusOK, map[string]any{"status": "ready", "checks": results})
	}
}

func writeHealth(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
