package rbac

import (
	"bytes"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/platform/httpx"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// Handler exposes the permission admin API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers the role, scope, matrix and override routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.ScopePermissionsRead, shared.ScopePermissionsManage))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{id}", h.getRole)
		r.Get("/scopes", h.listScopes)
		r.Get("/permissions/matrix", h.getMatrix)
		r.Get("/permissions/matrix/export", h.exportMatrix)
		r.Get("/users/{id}/scopes", h.listUserScopes)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.ScopePermissionsManage))
		r.Post("/roles", h.createRole)
		r.Patch("/roles/{id}", h.updateRole)
		r.Delete("/roles/{id}", h.deleteRole)
		r.Post("/scopes", h.createScope)
		r.Patch("/scopes/{id}", h.updateScope)
		r.Delete("/scopes/{id}", h.deleteScope)
		r.Post("/permissions/matrix/toggle", h.toggleGrant)
		r.Post("/users/{id}/scopes/{scopeID}/toggle", h.toggleOverride)
	})
	r.With(h.rbac.RequireAnyOrSelf("id", shared.ScopePermissionsRead, shared.ScopePermissionsManage)).
		Get("/users/{id}/effective-scopes", h.effectiveScopes)
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		h.fail(w, "list roles", err)
		return
	}
	httpx.JSON(w, http.StatusOK, roles)
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		h.fail(w, "get role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var in RoleInput
	if !h.decode(w, r, &in) {
		return
	}
	role, err := h.service.CreateRole(r.Context(), in)
	if err != nil {
		h.fail(w, "create role", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, role)
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	var patch RolePatch
	if !h.decode(w, r, &patch) {
		return
	}
	role, err := h.service.UpdateRole(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update role", err)
		return
	}
	httpx.JSON(w, http.StatusOK, role)
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteRole(r.Context(), id); err != nil {
		h.fail(w, "delete role", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listScopes(w http.ResponseWriter, r *http.Request) {
	scopes, err := h.service.ListScopes(r.Context())
	if err != nil {
		h.fail(w, "list scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, scopes)
}

func (h *Handler) createScope(w http.ResponseWriter, r *http.Request) {
	var in ScopeInput
	if !h.decode(w, r, &in) {
		return
	}
	scope, err := h.service.CreateScope(r.Context(), in)
	if err != nil {
		h.fail(w, "create scope", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, scope)
}

func (h *Handler) updateScope(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	var patch ScopePatch
	if !h.decode(w, r, &patch) {
		return
	}
	scope, err := h.service.UpdateScope(r.Context(), id, patch)
	if err != nil {
		h.fail(w, "update scope", err)
		return
	}
	httpx.JSON(w, http.StatusOK, scope)
}

func (h *Handler) deleteScope(w http.ResponseWriter, r *http.Request) {
	id, ok := h.int64Param(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteScope(r.Context(), id); err != nil {
		h.fail(w, "delete scope", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getMatrix(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Matrix(r.Context())
	if err != nil {
		h.fail(w, "load matrix", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

type toggleGrantRequest struct {
	RoleID  int64 `json:"role_id" validate:"required"`
	ScopeID int64 `json:"scope_id" validate:"required"`
}

type toggleGrantResponse struct {
	RoleID  int64 `json:"role_id"`
	ScopeID int64 `json:"scope_id"`
	Granted bool  `json:"granted"`
}

func (h *Handler) toggleGrant(w http.ResponseWriter, r *http.Request) {
	var req toggleGrantRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := ValidateStruct(h.service.validate, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	granted, err := h.service.ToggleGrant(r.Context(), req.RoleID, req.ScopeID)
	if err != nil {
		h.fail(w, "toggle grant", err)
		return
	}
	httpx.JSON(w, http.StatusOK, toggleGrantResponse{RoleID: req.RoleID, ScopeID: req.ScopeID, Granted: granted})
}

func (h *Handler) exportMatrix(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportMatrix(r.Context(), &buf); err != nil {
		h.fail(w, "export matrix", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename=\"permission-matrix.xlsx\"")
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write matrix export", slog.Any("error", err))
	}
}

func (h *Handler) listUserScopes(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	statuses, err := h.service.UserScopeStatuses(r.Context(), userID)
	if err != nil {
		h.fail(w, "list user scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, statuses)
}

type toggleOverrideResponse struct {
	UserID  uuid.UUID `json:"user_id"`
	ScopeID int64     `json:"scope_id"`
	Status  *string   `json:"status"`
}

func (h *Handler) toggleOverride(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	scopeID, ok := h.int64Param(w, r, "scopeID")
	if !ok {
		return
	}
	status, err := h.service.ToggleOverride(r.Context(), userID, scopeID)
	if err != nil {
		h.fail(w, "toggle override", err)
		return
	}
	resp := toggleOverrideResponse{UserID: userID, ScopeID: scopeID}
	if status != StatusNone {
		s := string(status)
		resp.Status = &s
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) effectiveScopes(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.uuidParam(w, r, "id")
	if !ok {
		return
	}
	scopes, err := h.service.Resolve(r.Context(), userID)
	if err != nil {
		h.fail(w, "resolve effective scopes", err)
		return
	}
	httpx.JSON(w, http.StatusOK, scopes)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: malformed body: %v", shared.ErrValidation, err))
		return false
	}
	return true
}

func (h *Handler) int64Param(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: %s must be a positive integer", shared.ErrValidation, name))
		return 0, false
	}
	return id, true
}

func (h *Handler) uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %s must be a UUID", shared.ErrValidation, name))
		return uuid.Nil, false
	}
	return id, true
}

// fail logs unexpected errors and writes the problem response.
func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status := httpx.StatusFor(err); status >= http.StatusInternalServerError {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
