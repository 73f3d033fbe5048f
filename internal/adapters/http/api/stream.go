package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/shortlist/internal/domain/intake"
	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/internal/domain/ranking"
	"github.com/okian/shortlist/pkg/logger"
	"github.com/okian/shortlist/pkg/metrics"
)

const keepAliveInterval = 15 * time.Second

// StreamDependencies defines what the snapshot stream reads.
type StreamDependencies interface {
	Watch() (<-chan struct{}, func())
	Version() uint64
	RoleSummaries() []ranking.RoleSummary
	Candidates() []model.Candidate
	IntakeStatus() (intake.Status, error)
}

// snapshotEvent carries full collections; clients replace their state.
type snapshotEvent struct {
	Version    uint64                `json:"version"`
	Roles      []ranking.RoleSummary `json:"roles"`
	Candidates []Candidate           `json:"candidates"`
	Intake     *intakeResponse       `json:"intake,omitempty"`
}

// StreamHandler serves Server-Sent Events.
type StreamHandler struct {
	deps StreamDependencies
	log  logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(deps StreamDependencies, log logger.Logger) *StreamHandler {
	return &StreamHandler{deps: deps, log: log}
}

// HandleStream handles GET /stream requests. A snapshot event is sent on
// connect and after every change; signals that arrive while writing coalesce.
func (h *StreamHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server's write timeout.
	_ = rc.SetWriteDeadline(time.Time{})
	changes, cancel := h.deps.Watch()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	metrics.AddStreamClients(1)
	defer metrics.AddStreamClients(-1)

	ctx := r.Context()
	if err := h.send(w, rc); err != nil {
		h.log.Debug(ctx, "stream closed", logger.Error(err))
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				return
			}
			if err := h.send(w, rc); err != nil {
				h.log.Debug(ctx, "stream closed", logger.Error(err))
				return
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *StreamHandler) send(w http.ResponseWriter, rc *http.ResponseController) error {
	roles := h.deps.RoleSummaries()
	titles := make(map[string]string, len(roles))
	for _, r := range roles {
		titles[r.ID] = r.Title
	}
	cs := h.deps.Candidates()
	ev := snapshotEvent{
		Version:    h.deps.Version(),
		Roles:      roles,
		Candidates: make([]Candidate, len(cs)),
	}
	for i, c := range cs {
		title, ok := titles[c.RoleID]
		if !ok {
			title = ranking.UnknownRole
		}
		ev.Candidates[i] = toCandidate(c, title)
	}
	if st, err := h.deps.IntakeStatus(); err == nil {
		resp := toIntakeResponse(st)
		ev.Intake = &resp
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
		return err
	}
	return rc.Flush()
}
