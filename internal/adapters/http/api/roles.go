package api

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/okian/shortlist/internal/domain/ranking"
)

// RoleDependencies defines the role operations used by RolesHandler.
type RoleDependencies interface {
	RoleSummaries() []ranking.RoleSummary
	CreateRole(ctx context.Context, title, description string) (string, error)
}

// createRoleRequest is the body of POST /roles.
type createRoleRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=20000"`
}

// RolesHandler handles role requests.
type RolesHandler struct {
	deps     RoleDependencies
	validate *validator.Validate
}

// NewRolesHandler creates a new roles handler.
func NewRolesHandler(deps RoleDependencies, v *validator.Validate) *RolesHandler {
	return &RolesHandler{deps: deps, validate: v}
}

// HandleList handles GET /roles requests.
func (h *RolesHandler) HandleList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.deps.RoleSummaries())
}

// HandleCreate handles POST /roles requests.
func (h *RolesHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_role"
	var req createRoleRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	id, err := h.deps.CreateRole(r.Context(), req.Title, req.Description)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}
