package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/shortlist/internal/adapters/export"
	service "github.com/okian/shortlist/internal/app"
	"github.com/okian/shortlist/internal/domain/model"
	"github.com/okian/shortlist/pkg/logger"
)

// ExportDependencies defines the read used by ExportHandler.
type ExportDependencies interface {
	Ranked(roleFilter, sortKey string) []service.RankedCandidate
}

// ExportHandler serves the ranked view as an XLSX workbook.
type ExportHandler struct {
	deps ExportDependencies
	log  logger.Logger
	now  func() time.Time
}

// NewExportHandler creates a new export handler.
func NewExportHandler(deps ExportDependencies, log logger.Logger) *ExportHandler {
	return &ExportHandler{deps: deps, log: log, now: time.Now}
}

// HandleExport handles GET /export?role=&sort= requests.
func (h *ExportHandler) HandleExport(w http.ResponseWriter, r *http.Request) {
	const op = "api.export"
	role, sortKey, err := filters(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}

	ranked := h.deps.Ranked(role, sortKey)
	cs := make([]model.Candidate, len(ranked))
	titles := make(map[string]string, len(ranked))
	for i, c := range ranked {
		cs[i] = c.Candidate
		titles[c.RoleID] = c.RoleTitle
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, cs, func(id string) string { return titles[id] }); err != nil {
		h.log.Error(r.Context(), "export failed", logger.Error(err))
		writeFailure(w, Wrap(op, err))
		return
	}

	name := fmt.Sprintf("shortlist-%s.xlsx", h.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
