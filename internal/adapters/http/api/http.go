// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	service "github.com/okian/shortlist/internal/app"
	"github.com/okian/shortlist/internal/adapters/repository"
	"github.com/okian/shortlist/internal/domain/analysis"
	"github.com/okian/shortlist/internal/domain/intake"
	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/internal/domain/ranking"
	"github.com/okian/shortlist/pkg/logger"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	RoleDependencies
	CandidateDependencies
	IntakeDependencies
	StreamDependencies
	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler    *HealthHandler
	statsHandler     *StatsHandler
	rolesHandler     *RolesHandler
	candidateHandler *CandidatesHandler
	intakeHandler    *IntakeHandler
	streamHandler    *StreamHandler
	exportHandler    *ExportHandler
}

// Option configures the Server.
type Option func(*serverOptions)

type serverOptions struct {
	log        logger.Logger
	maxCVBytes int
}

// WithLogger sets the logger used by handlers.
func WithLogger(l logger.Logger) Option {
	return func(o *serverOptions) {
		if l != nil {
			o.log = l
		}
	}
}

// WithMaxCVBytes bounds the request body of candidate submissions.
func WithMaxCVBytes(n int) Option {
	return func(o *serverOptions) {
		if n > 0 {
			o.maxCVBytes = n
		}
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	o := serverOptions{maxCVBytes: 200_000}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NamedOrNop("api")
	}
	v := newValidator()
	return &Server{
		healthHandler:    NewHealthHandler(deps),
		statsHandler:     NewStatsHandler(deps),
		rolesHandler:     NewRolesHandler(deps, v),
		candidateHandler: NewCandidatesHandler(deps, v, o.maxCVBytes),
		intakeHandler:    NewIntakeHandler(deps),
		streamHandler:    NewStreamHandler(deps, o.log),
		exportHandler:    NewExportHandler(deps, o.log),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("GET /metrics", s.healthHandler.MetricsHandler())
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("GET /roles", MetricsMiddleware(s.rolesHandler.HandleList, "roles"))
	mux.HandleFunc("POST /roles", MetricsMiddleware(s.rolesHandler.HandleCreate, "roles"))
	mux.HandleFunc("GET /candidates", MetricsMiddleware(s.candidateHandler.HandleList, "candidates"))
	mux.HandleFunc("POST /candidates", MetricsMiddleware(s.candidateHandler.HandleSubmit, "candidates"))
	mux.HandleFunc("GET /candidates/{id}/cv", MetricsMiddleware(s.candidateHandler.HandleCV, "candidate_cv"))
	mux.HandleFunc("GET /intake", MetricsMiddleware(s.intakeHandler.HandleStatus, "intake"))
	mux.HandleFunc("POST /intake/ack", MetricsMiddleware(s.intakeHandler.HandleAcknowledge, "intake_ack"))
	mux.HandleFunc("GET /stream", MetricsMiddleware(s.streamHandler.HandleStream, "stream"))
	mux.HandleFunc("GET /export", MetricsMiddleware(s.exportHandler.HandleExport, "export"))
}

type createdResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Candidate is the read shape of a ranked candidate. The CV text is only
// served by the download endpoint.
type Candidate struct {
	ID        string `json:"id"`
	RoleID    string `json:"roleId"`
	RoleTitle string `json:"roleTitle"`
	model.CandidateAnalysis
	CreatedAt time.Time `json:"createdAt"`
}

func toCandidate(c model.Candidate, roleTitle string) Candidate {
	return Candidate{
		ID:                c.ID,
		RoleID:            c.RoleID,
		RoleTitle:         roleTitle,
		CandidateAnalysis: c.CandidateAnalysis,
		CreatedAt:         c.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps domain errors onto status codes.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, intake.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, ErrBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, intake.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, analysis.ErrMalformedResponse):
		return http.StatusBadGateway, "malformed_response"
	case errors.Is(err, analysis.ErrTransport):
		return http.StatusBadGateway, "analysis_unavailable"
	case errors.Is(err, intake.ErrStoreWrite), errors.Is(err, repository.ErrWriteFailed):
		return http.StatusServiceUnavailable, "store_unavailable"
	case errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "not_started"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeBody(r *http.Request, v *validator.Validate, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	return v.Struct(dst)
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// filters reads the shared role and sort query parameters.
func filters(r *http.Request) (string, string, error) {
	q := r.URL.Query()
	role := q.Get("role")
	if role == "" {
		role = ranking.AllRoles
	}
	sortKey := q.Get("sort")
	if sortKey == "" {
		sortKey = ranking.SortScore
	}
	switch sortKey {
	case ranking.SortScore, ranking.SortName:
	default:
		return "", "", errors.New("sort must be score or name")
	}
	return role, sortKey, nil
}
