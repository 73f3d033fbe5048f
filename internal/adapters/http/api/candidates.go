package api

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/shortlist/internal/app"
	"github.com/okian/shortlist/internal/domain/model"
)

// CandidateDependencies defines the candidate operations used by
// CandidatesHandler.
type CandidateDependencies interface {
	Submit(ctx context.Context, roleID, cvText string) (string, error)
	Ranked(roleFilter, sortKey string) []service.RankedCandidate
	Candidate(id string) (model.Candidate, bool)
}

// submitRequest is the body of POST /candidates.
type submitRequest struct {
	RoleID string `json:"roleId" validate:"required"`
	CVText string `json:"cvText" validate:"required"`
}

// CandidatesHandler handles candidate requests.
type CandidatesHandler struct {
	deps       CandidateDependencies
	validate   *validator.Validate
	maxBodyLen int64
}

// NewCandidatesHandler creates a new candidates handler. Request bodies are
// capped slightly above maxCVBytes to leave room for the JSON envelope.
func NewCandidatesHandler(deps CandidateDependencies, v *validator.Validate, maxCVBytes int) *CandidatesHandler {
	return &CandidatesHandler{
		deps:       deps,
		validate:   v,
		maxBodyLen: int64(maxCVBytes)*2 + 4096,
	}
}

// HandleList handles GET /candidates?role=&sort= requests.
func (h *CandidatesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_candidates"
	role, sortKey, err := filters(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	ranked := h.deps.Ranked(role, sortKey)
	out := make([]Candidate, len(ranked))
	for i, c := range ranked {
		out[i] = toCandidate(c.Candidate, c.RoleTitle)
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleSubmit handles POST /candidates requests. The response is written
// once analysis and the store write have both completed.
func (h *CandidatesHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_candidate"
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyLen)

	var req submitRequest
	if err := decodeBody(r, h.validate, &req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", Wrap(op, err))
			return
		}
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	id, err := h.deps.Submit(r.Context(), req.RoleID, req.CVText)
	if err != nil {
		writeFailure(w, Wrap(op, err))
		return
	}
	writeJSON(w, http.StatusCreated, createdResponse{ID: id})
}

// HandleCV handles GET /candidates/{id}/cv requests, serving the stored CV
// text verbatim as an attachment.
func (h *CandidatesHandler) HandleCV(w http.ResponseWriter, r *http.Request) {
	const op = "api.download_cv"
	c, ok := h.deps.Candidate(r.PathValue("id"))
	if !ok {
		writeFailure(w, NewKind(op, ErrNotFound))
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{
		"filename": cvFilename(c.Name),
	}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(c.CVText))
}

// cvFilename builds "<Name>_CV.txt" from letters and digits of name.
func cvFilename(name string) string {
	var b strings.Builder
	for _, field := range strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if b.Len() > 0 {
			b.WriteByte('_')
		}
		b.WriteString(field)
	}
	if b.Len() == 0 {
		b.WriteString("candidate")
	}
	return b.String() + "_CV.txt"
}
