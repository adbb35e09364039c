package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"badgehub/internal/services"

	"go.uber.org/zap"
)

const healthTimeout = 5 * time.Second

// healthStatus maps an aggregate health state to the probe's HTTP status.
// A degraded collection still serves reads, so it answers 200.
var healthStatus = map[string]int{
	"healthy":   http.StatusOK,
	"degraded":  http.StatusOK,
	"unhealthy": http.StatusServiceUnavailable,
}

// HealthHandler runs the collection's dependency checks under a short
// deadline and reports them with version and uptime.
func HealthHandler(sc *services.ServiceCollection, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
		defer cancel()

		report := sc.HealthCheck(ctx)
		status, ok := healthStatus[report.Status]
		if !ok {
			status = http.StatusInternalServerError
		}
		writeProbe(w, status, report, logger)
	}
}

// LivenessHandler answers as long as the process serves HTTP.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeProbe(w, http.StatusOK, map[string]string{"status": "alive"}, zap.NewNop())
}

func writeProbe(w http.ResponseWriter, status int, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode probe response", zap.Int("status", status), zap.Error(err))
	}
}
