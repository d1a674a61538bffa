package rbac

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ComputeEffective resolves a user's scopes from the scope ids their role
// confers and their override rows. Revokes remove a scope whatever its
// source; grants add it tagged as override even when the role confers it.
// The result is sorted by scope code.
func ComputeEffective(roleScopeIDs []int64, overrides []UserOverride, scopes []Scope) []EffectiveScope {
	sources := make(map[int64]ScopeSource, len(roleScopeIDs)+len(overrides))
	for _, id := range roleScopeIDs {
		sources[id] = SourceRole
	}
	for _, o := range overrides {
		if o.Allow {
			sources[o.ScopeID] = SourceOverride
		} else {
			delete(sources, o.ScopeID)
		}
	}
	out := make([]EffectiveScope, 0, len(sources))
	for _, s := range scopes {
		source, ok := sources[s.ID]
		if !ok {
			continue
		}
		out = append(out, EffectiveScope{ScopeCode: s.Code, ScopeDescription: s.Description, Source: source})
	}
	slices.SortFunc(out, func(a, b EffectiveScope) int { return cmp.Compare(a.ScopeCode, b.ScopeCode) })
	return out
}

// Resolve returns the effective scopes of a user as computed by the store.
// Errors are returned as-is; no cached value is substituted.
func (s *Service) Resolve(ctx context.Context, userID uuid.UUID) ([]EffectiveScope, error) {
	if _, err := s.repo.GetProfile(ctx, userID); err != nil {
		return nil, fmt.Errorf("rbac: resolve: %w", err)
	}
	scopes, err := s.repo.EffectiveScopes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: resolve: %w", err)
	}
	if scopes == nil {
		scopes = []EffectiveScope{}
	}
	return scopes, nil
}

// EffectiveScopeCodes returns the lower-cased codes of a user's effective
// scopes.
func (s *Service) EffectiveScopeCodes(ctx context.Context, userID uuid.UUID) ([]string, error) {
	scopes, err := s.Resolve(ctx, userID)
	if err != nil {
		return nil, err
	}
	codes := make([]string, len(scopes))
	for i, sc := range scopes {
		codes[i] = strings.ToLower(sc.ScopeCode)
	}
	return codes, nil
}

// Allowed reports whether the user holds every one of the given scopes.
func (s *Service) Allowed(ctx context.Context, userID uuid.UUID, codes ...string) (bool, error) {
	granted, err := s.EffectiveScopeCodes(ctx, userID)
	if err != nil {
		return false, err
	}
	return hasAllScopes(granted, normalizeScopes(codes)), nil
}
