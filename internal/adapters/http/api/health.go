// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/shortlist/pkg/metrics"
)

// HealthHandler handles liveness and metrics requests.
type HealthHandler struct {
	stats StatsProvider
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(stats StatsProvider) *HealthHandler {
	return &HealthHandler{stats: stats}
}

// HandleHealth handles GET /healthz requests. It reports 503 until the
// service has started.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	s := h.stats.GetStats()
	status := http.StatusOK
	state := "ok"
	if started, _ := s["started"].(bool); !started {
		status = http.StatusServiceUnavailable
		state = "starting"
	}
	writeJSON(w, status, map[string]interface{}{"status": state, "service": s})
}

// MetricsHandler serves the custom metrics registry.
func (h *HealthHandler) MetricsHandler() http.Handler {
	// Use our custom metrics registry to serve metrics
	return promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})
}
