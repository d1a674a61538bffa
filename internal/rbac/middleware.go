package rbac

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/platform/httpx"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// ScopeResolver yields the effective scope codes of a user.
type ScopeResolver interface {
	EffectiveScopeCodes(ctx context.Context, userID uuid.UUID) ([]string, error)
}

// Middleware wires scope checks for HTTP handlers. With Enforce off every
// request passes, which is how local development runs without a gateway.
type Middleware struct {
	Resolver ScopeResolver
	Logger   *slog.Logger
	Enforce  bool
}

// RequireAny ensures the acting user holds at least one of the scopes.
func (m Middleware) RequireAny(scopes ...string) func(http.Handler) http.Handler {
	return m.require(normalizeScopes(scopes), hasAnyScope, "")
}

// RequireAll ensures the acting user holds every scope.
func (m Middleware) RequireAll(scopes ...string) func(http.Handler) http.Handler {
	return m.require(normalizeScopes(scopes), hasAllScopes, "")
}

// RequireAnyOrSelf behaves like RequireAny but also admits a user acting on
// their own record, identified by the chi URL parameter param.
func (m Middleware) RequireAnyOrSelf(param string, scopes ...string) func(http.Handler) http.Handler {
	return m.require(normalizeScopes(scopes), hasAnyScope, param)
}

func (m Middleware) require(required []string, match func(granted, required []string) bool, selfParam string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.Enforce || len(required) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor := shared.ActorFromContext(r.Context())
			if actor == uuid.Nil {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing acting user")
				return
			}
			if selfParam != "" && strings.EqualFold(chi.URLParam(r, selfParam), actor.String()) {
				next.ServeHTTP(w, r)
				return
			}
			granted, err := m.Resolver.EffectiveScopeCodes(r.Context(), actor)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac resolve actor scopes", slog.String("actor", actor.String()), slog.Any("error", err))
				}
				if errors.Is(err, shared.ErrNotFound) {
					err = shared.ErrForbidden
				}
				httpx.RespondError(w, err)
				return
			}
			if match(granted, required) {
				next.ServeHTTP(w, r)
				return
			}
			httpx.RespondError(w, shared.ErrForbidden)
		})
	}
}

func normalizeScopes(scopes []string) []string {
	unique := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "" {
			continue
		}
		unique[s] = struct{}{}
	}
	normalized := make([]string, 0, len(unique))
	for s := range unique {
		normalized = append(normalized, s)
	}
	return normalized
}

func hasAnyScope(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[strings.ToLower(s)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; ok {
			return true
		}
	}
	return false
}

func hasAllScopes(granted []string, required []string) bool {
	if len(required) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		set[strings.ToLower(s)] = struct{}{}
	}
	for _, r := range required {
		if _, ok := set[r]; !ok {
			return false
		}
	}
	return true
}
