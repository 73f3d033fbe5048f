// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"net/http"

	"github.com/okian/shortlist/internal/domain/ranking"
)

// StatsProvider defines the interface for aggregate and service statistics.
type StatsProvider interface {
	Stats(roleFilter string) ranking.Stats
	RoleSummaries() []ranking.RoleSummary
	GetStats() map[string]interface{}
}

type statsResponse struct {
	Role string `json:"role"`
	ranking.Stats
	Roles int `json:"roles"`
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats?role= requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		role = ranking.AllRoles
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Role:  role,
		Stats: h.statsProvider.Stats(role),
		Roles: len(h.statsProvider.RoleSummaries()),
	})
}
