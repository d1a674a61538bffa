package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// ListRoles returns all roles ordered by id.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	roles, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, fmt.Errorf("rbac: list roles: %w", err)
	}
	if roles == nil {
		roles = []Role{}
	}
	return roles, nil
}

// GetRole fetches a role by id.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, fmt.Errorf("rbac: get role: %w", err)
	}
	return role, nil
}

// CreateRole inserts a role. The code is stored upper-cased.
func (s *Service) CreateRole(ctx context.Context, in RoleInput) (Role, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Code = NormalizeRoleCode(in.Code)
	if err := ValidateStruct(s.validate, in); err != nil {
		return Role{}, err
	}
	var created Role
	err := s.commit(ctx, "create role", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
		var err error
		created, err = tx.InsertRole(ctx, in.Name, in.Code)
		if err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:     audit.ActionCreate,
			EntityType: audit.EntityRole,
			EntityID:   audit.IntID(created.ID),
			Details:    audit.RoleCreated{New: roleSnapshot(created)},
		}, nil
	})
	if err != nil {
		return Role{}, err
	}
	return created, nil
}

// UpdateRole applies patch to a role. A code change is carried over to every
// profile holding the old code.
func (s *Service) UpdateRole(ctx context.Context, id int64, patch RolePatch) (Role, error) {
	patch.Name = trimPtr(patch.Name)
	if patch.Code != nil {
		code := NormalizeRoleCode(*patch.Code)
		patch.Code = &code
	}
	if patch.Name == nil && patch.Code == nil {
		return Role{}, fmt.Errorf("%w: nothing to update", shared.ErrValidation)
	}
	if err := ValidateStruct(s.validate, patch); err != nil {
		return Role{}, err
	}
	var updated Role
	err := s.commit(ctx, "update role", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
		old, err := tx.GetRole(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		next := old
		if patch.Name != nil {
			next.Name = *patch.Name
		}
		if patch.Code != nil {
			next.Code = *patch.Code
		}
		updated, err = tx.UpdateRole(ctx, next)
		if err != nil {
			return audit.Entry{}, err
		}
		renamed := 0
		if updated.Code != old.Code {
			if renamed, err = tx.RenameProfileRole(ctx, old.Code, updated.Code); err != nil {
				return audit.Entry{}, err
			}
		}
		return audit.Entry{
			Action:     audit.ActionUpdate,
			EntityType: audit.EntityRole,
			EntityID:   audit.IntID(id),
			Details:    audit.RoleUpdated{Old: roleSnapshot(old), New: roleSnapshot(updated), ProfilesRenamed: renamed},
		}, nil
	})
	if err != nil {
		return Role{}, err
	}
	return updated, nil
}

// DeleteRole removes a role and its grants. Roles still held by a profile
// are rejected with ErrConflict.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	return s.commit(ctx, "delete role", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
		old, err := tx.GetRole(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		holders, err := tx.CountProfilesWithRole(ctx, old.Code)
		if err != nil {
			return audit.Entry{}, err
		}
		if holders > 0 {
			return audit.Entry{}, fmt.Errorf("%w: role %s is assigned to %d profile(s)", shared.ErrConflict, old.Code, holders)
		}
		removed, err := tx.DeleteGrantsForRole(ctx, id)
		if err != nil {
			return audit.Entry{}, err
		}
		if err := tx.DeleteRole(ctx, id); err != nil {
			return audit.Entry{}, err
		}
		return audit.Entry{
			Action:     audit.ActionDelete,
			EntityType: audit.EntityRole,
			EntityID:   audit.IntID(id),
			Details:    audit.RoleDeleted{Old: roleSnapshot(old), GrantsRemoved: removed},
		}, nil
	})
}

func roleSnapshot(r Role) audit.RoleSnapshot {
	return audit.RoleSnapshot{ID: r.ID, Name: r.Name, Code: r.Code}
}
