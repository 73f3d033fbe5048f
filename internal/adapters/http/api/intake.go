package api

import (
	"net/http"

	"github.com/okian/shortlist/internal/domain/intake"
	"github.com/okian/shortlist/internal/domain/model"
)

// IntakeDependencies defines the coordinator operations used by
// IntakeHandler.
type IntakeDependencies interface {
	IntakeStatus() (intake.Status, error)
	Acknowledge() error
}

// intakeResponse is the read shape of the coordinator status.
type intakeResponse struct {
	State   string       `json:"state"`
	Error   string       `json:"error,omitempty"`
	Pending *model.Draft `json:"pending,omitempty"`
}

func toIntakeResponse(st intake.Status) intakeResponse {
	resp := intakeResponse{State: st.State.String()}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	if st.Pending != (model.Draft{}) {
		p := st.Pending
		resp.Pending = &p
	}
	return resp
}

// IntakeHandler handles intake status requests.
type IntakeHandler struct {
	deps IntakeDependencies
}

// NewIntakeHandler creates a new intake handler.
func NewIntakeHandler(deps IntakeDependencies) *IntakeHandler {
	return &IntakeHandler{deps: deps}
}

// HandleStatus handles GET /intake requests.
func (h *IntakeHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	st, err := h.deps.IntakeStatus()
	if err != nil {
		writeFailure(w, Wrap("api.intake_status", err))
		return
	}
	writeJSON(w, http.StatusOK, toIntakeResponse(st))
}

// HandleAcknowledge handles POST /intake/ack requests.
func (h *IntakeHandler) HandleAcknowledge(w http.ResponseWriter, _ *http.Request) {
	const op = "api.intake_ack"
	if err := h.deps.Acknowledge(); err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	st, err := h.deps.IntakeStatus()
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusOK, toIntakeResponse(st))
}
