package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// overrideTransition is one row of the override state machine. A nil allow
// deletes the override row.
type overrideTransition struct {
	allow  *bool
	action audit.Action
	change audit.OverrideChangeKind
}

var (
	allowTrue  = true
	allowFalse = false
)

// Toggling never flips allow in place: an existing override is removed so
// the status falls back to whatever the role confers.
var overrideTransitions = map[OverrideStatus]overrideTransition{
	StatusInherited: {allow: &allowFalse, action: audit.ActionRevoke, change: audit.ChangeRevoke},
	StatusRevoked:   {allow: nil, action: audit.ActionUpdate, change: audit.ChangeRemoveRevocation},
	StatusGranted:   {allow: nil, action: audit.ActionUpdate, change: audit.ChangeRemoveGrant},
	StatusNone:      {allow: &allowTrue, action: audit.ActionGrant, change: audit.ChangeGrant},
}

// overrideStatus derives the status of one (user, scope) cell: an override
// row wins, otherwise the user's role decides between inherited and none.
func overrideStatus(ctx context.Context, r Reader, profile Profile, scopeID int64) (OverrideStatus, error) {
	o, ok, err := r.GetOverride(ctx, profile.ID, scopeID)
	if err != nil {
		return StatusNone, err
	}
	if ok {
		if o.Allow {
			return StatusGranted, nil
		}
		return StatusRevoked, nil
	}
	role, err := r.GetRoleByCode(ctx, profile.Role)
	if errors.Is(err, shared.ErrNotFound) {
		return StatusNone, nil
	}
	if err != nil {
		return StatusNone, err
	}
	has, err := r.HasGrant(ctx, role.ID, scopeID)
	if err != nil {
		return StatusNone, err
	}
	if has {
		return StatusInherited, nil
	}
	return StatusNone, nil
}

// UserScopeStatus returns the override status of one scope for a user.
func (s *Service) UserScopeStatus(ctx context.Context, userID uuid.UUID, scopeID int64) (OverrideStatus, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return StatusNone, fmt.Errorf("rbac: user scope status: %w", err)
	}
	if _, err := s.repo.GetScope(ctx, scopeID); err != nil {
		return StatusNone, fmt.Errorf("rbac: user scope status: %w", err)
	}
	status, err := overrideStatus(ctx, s.repo, profile, scopeID)
	if err != nil {
		return StatusNone, fmt.Errorf("rbac: user scope status: %w", err)
	}
	return status, nil
}

// UserScopeStatuses returns the status of every scope for a user, ordered
// by scope code.
func (s *Service) UserScopeStatuses(ctx context.Context, userID uuid.UUID) ([]ScopeStatus, error) {
	profile, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user scope statuses: %w", err)
	}
	scopes, err := s.repo.ListScopes(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: user scope statuses: %w", err)
	}
	overrides, err := s.repo.ListUserOverrides(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rbac: user scope statuses: %w", err)
	}
	var inherited []int64
	role, err := s.repo.GetRoleByCode(ctx, profile.Role)
	switch {
	case err == nil:
		if inherited, err = s.repo.ListRoleScopeIDs(ctx, role.ID); err != nil {
			return nil, fmt.Errorf("rbac: user scope statuses: %w", err)
		}
	case !errors.Is(err, shared.ErrNotFound):
		return nil, fmt.Errorf("rbac: user scope statuses: %w", err)
	}

	explicit := make(map[int64]bool, len(overrides))
	for _, o := range overrides {
		explicit[o.ScopeID] = o.Allow
	}
	out := make([]ScopeStatus, 0, len(scopes))
	for _, sc := range scopes {
		status := StatusNone
		if allow, ok := explicit[sc.ID]; ok {
			status = StatusRevoked
			if allow {
				status = StatusGranted
			}
		} else if slices.Contains(inherited, sc.ID) {
			status = StatusInherited
		}
		out = append(out, newScopeStatus(sc, status))
	}
	return out, nil
}

// ToggleOverride advances the user's override for scopeID one step and
// returns the resulting status.
//
//	inherited -> revoked     (insert allow=false, audit revoke)
//	revoked   -> role-derived (delete, audit update remove_revocation)
//	granted   -> role-derived (delete, audit update remove_grant)
//	none      -> granted     (insert allow=true, audit grant)
func (s *Service) ToggleOverride(ctx context.Context, userID uuid.UUID, scopeID int64) (OverrideStatus, error) {
	var next OverrideStatus
	err := s.guarded(ctx, shared.UserScopeLockKey(userID, scopeID), func() error {
		return s.commit(ctx, "toggle override", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
			profile, err := tx.GetProfile(ctx, userID)
			if err != nil {
				return audit.Entry{}, err
			}
			if _, err := tx.GetScope(ctx, scopeID); err != nil {
				return audit.Entry{}, err
			}
			current, err := overrideStatus(ctx, tx, profile, scopeID)
			if err != nil {
				return audit.Entry{}, err
			}
			t := overrideTransitions[current]
			if t.allow != nil {
				err = tx.InsertOverride(ctx, UserOverride{UserID: userID, ScopeID: scopeID, Allow: *t.allow})
			} else {
				err = tx.DeleteOverride(ctx, userID, scopeID)
			}
			if err != nil {
				return audit.Entry{}, err
			}
			if next, err = overrideStatus(ctx, tx, profile, scopeID); err != nil {
				return audit.Entry{}, err
			}
			return audit.Entry{
				Action:     t.action,
				EntityType: audit.EntityUserScope,
				EntityID:   audit.UUIDID(userID),
				Details:    audit.OverrideChange{UserID: userID, ScopeID: scopeID, Allow: t.allow, Change: t.change},
			}, nil
		})
	})
	return next, err
}
