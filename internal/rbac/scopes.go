package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// ListScopes returns all scopes ordered by code.
func (s *Service) ListScopes(ctx context.Context) ([]Scope, error) {
	scopes, err := s.repo.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list scopes: %w", err)
	}
	if scopes == nil {
		scopes = []Scope{}
	}
	return scopes, nil
}

// CreateScope inserts a scope. The code is stored lower-cased.
func (s *Service) CreateScope(ctx context.Context, in ScopeInput) (Scope, error) {
	in.Code = NormalizeScopeCode(in.Code)
	in.Description = strings.TrimSpace(in.Description)
	if err := ValidateStruct(s.validate, in); err != nil {
		return Scope{}, err
	}
	var created Scope
	err := s.commit(ctx, "create scope", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
		var err error
		created, err = tx.InsertScope(ctx, in.Code, in.Description)
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: audit.EntityScope,
			EntityID:   audit.IntID(created.ID),
			Details:    audit.ScopeCreated{New: scopeSnapshot(created)},
		}, nil
	})
	if err != nil {
		return Scope{}, err
	}
	return created, nil
}

// UpdateScope applies patch to a scope.
func (s *Service) UpdateScope(ctx context.Context, id int64, patch ScopePatch) (Scope, error) {
	patch.Description = trimPtr(patch.Description)
	if patch.Code != nil {
		code := NormalizeScopeCode(*patch.Code)
		patch.Code = &code
	}
	if patch.Code == nil && patch.Description == nil {
		return Scope{}, fmt.Errorf("%w: nothing to update", shared.ErrValidation)
	}
	if err := ValidateStruct(s.validate, patch); err != nil {
		return Scope{}, err
	}
	var updated Scope
	err := s.commit(ctx, "update scope", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
		old, err := tx.GetScope(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		next := old
		if patch.Code != nil {
			next.Code = *patch.Code
		}
		if patch.Description != nil {
			next.Description = *patch.Description
		}
		if updated, err = tx.UpdateScope(ctx, next); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: audit.EntityScope,
			EntityID:   audit.IntID(id),
			Details:    audit.ScopeUpdated{Old: scopeSnapshot(old), New: scopeSnapshot(updated)},
		}, nil
	})
	if err != nil {
		return Scope{}, err
	}
	return updated, nil
}

// DeleteScope removes a scope together with its grants and overrides.
func (s *Service) DeleteScope(ctx context.Context, id int64) error {
	return s.commit(ctx, "delete scope", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
		old, err := tx.GetScope(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		grants, err := tx.DeleteGrantsForScope(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		overrides, err := tx.DeleteOverridesForScope(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		if err := tx.DeleteScope(ctx, id); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:     audit.ActionDelete,
			EntityType: audit.EntityScope,
			EntityID:   audit.IntID(id),
			Details:    audit.ScopeDeleted{Old: scopeSnapshot(old), GrantsRemoved: grants, OverridesRemoved: overrides},
		}, nil
	})
}

func scopeSnapshot(s Scope) audit.ScopeSnapshot {
	return audit.ScopeSnapshot{ID: s.ID, Code: s.Code, Description: s.Description}
}
