package audithttp

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/platform/httpx"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// TimelineService defines the business contract for timeline data.
type TimelineService interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
	Export(ctx context.Context, filters audit.TimelineFilters) ([]audit.Record, error)
}

// Handler serves the permission audit timeline.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
}

// NewHandler creates an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

func (h *Handler) handleTimeline(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filters)
	if err != nil {
		h.logger.Error("load audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	filters, err := parseFilters(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filters)
	if err != nil {
		h.logger.Error("export audit timeline", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	csvBytes, err := audit.WriteCSV(rows)
	if err != nil {
		h.logger.Error("encode csv", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"permission-audit.csv\"")
	if _, err := w.Write(csvBytes); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

var knownEntities = map[string]bool{
	string(audit.EntityRole):      true,
	string(audit.EntityScope):     true,
	string(audit.EntityRoleScope): true,
	string(audit.EntityUserScope): true,
	string(audit.EntityProfile):   true,
}

var knownActions = map[string]bool{
	string(audit.ActionCreate): true,
	string(audit.ActionUpdate): true,
	string(audit.ActionDelete): true,
	string(audit.ActionGrant):  true,
	string(audit.ActionRevoke): true,
}

func parseFilters(r *http.Request) (audit.TimelineFilters, error) {
	q := r.URL.Query()
	filters := audit.TimelineFilters{
		EntityType: strings.TrimSpace(q.Get("entity_type")),
		EntityID:   strings.TrimSpace(q.Get("entity_id")),
		Action:     strings.TrimSpace(q.Get("action")),
	}
	if filters.EntityType != "" && !knownEntities[filters.EntityType] {
		return audit.TimelineFilters{}, fmt.Errorf("%w: unknown entity_type %q", shared.ErrValidation, filters.EntityType)
	}
	if filters.Action != "" && !knownActions[filters.Action] {
		return audit.TimelineFilters{}, fmt.Errorf("%w: unknown action %q", shared.ErrValidation, filters.Action)
	}
	if v := strings.TrimSpace(q.Get("page")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, fmt.Errorf("%w: page must be a positive integer", shared.ErrValidation)
		}
		filters.Page = parsed
	}
	if v := strings.TrimSpace(q.Get("page_size")); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			return audit.TimelineFilters{}, fmt.Errorf("%w: page_size must be a positive integer", shared.ErrValidation)
		}
		filters.PageSize = parsed
	}
	return filters, nil
}
