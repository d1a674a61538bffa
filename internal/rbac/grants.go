package rbac

import (
	"context"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// ToggleGrant flips the role×scope cell and reports whether the role holds
// the scope afterwards.
func (s *Service) ToggleGrant(ctx context.Context, roleID, scopeID int64) (bool, error) {
	var granted bool
	err := s.guarded(ctx, shared.RoleScopeLockKey(roleID, scopeID), func() error {
		return s.commit(ctx, "toggle grant", func(ctx context.Context, tx TxRepository) (audit.Entry, error) {
			if _, err := tx.GetRole(ctx, roleID); err != nil {
				return audit.Entry{}, err
			}
			if _, err := tx.GetScope(ctx, scopeID); err != nil {
				return audit.Entry{}, err
			}
			has, err := tx.HasGrant(ctx, roleID, scopeID)
			if err != nil {
				return audit.Entry{}, err
			}
			action := audit.ActionGrant
			if has {
				action = audit.ActionRevoke
				err = tx.DeleteGrant(ctx, roleID, scopeID)
			} else {
				err = tx.InsertGrant(ctx, roleID, scopeID)
			}
			if err != nil {
				return audit.Entry{}, err
			}
			granted = !has
			return audit.Entry{
				Action:     action,
				EntityType: audit.EntityRoleScope,
				Details:    audit.GrantEdge{RoleID: roleID, ScopeID: scopeID},
			}, nil
		})
	})
	return granted, err
}
