package rbac

import (
	"context"

	"github.com/google/uuid"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
)

// Reader exposes the read side of the permission store.
type Reader interface {
	ListRoles(ctx context.Context) ([]Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	GetRoleByCode(ctx context.Context, code string) (Role, error)

	ListScopes(ctx context.Context) ([]Scope, error)
	GetScope(ctx context.Context, id int64) (Scope, error)

	ListGrants(ctx context.Context) ([]RoleGrant, error)
	HasGrant(ctx context.Context, roleID, scopeID int64) (bool, error)
	ListRoleScopeIDs(ctx context.Context, roleID int64) ([]int64, error)

	ListProfiles(ctx context.Context) ([]Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (Profile, error)

	GetOverride(ctx context.Context, userID uuid.UUID, scopeID int64) (UserOverride, bool, error)
	ListUserOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error)

	// EffectiveScopes runs the store's authoritative resolver.
	EffectiveScopes(ctx context.Context, userID uuid.UUID) ([]EffectiveScope, error)
}

// Repository is the permission store.
type Repository interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository is the transactional write side. Every mutation appends its
// audit entry through the embedded Recorder on the same transaction.
type TxRepository interface {
	Reader
	audit.Recorder

	InsertRole(ctx context.Context, name, code string) (Role, error)
	UpdateRole(ctx context.Context, role Role) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	CountProfilesWithRole(ctx context.Context, code string) (int, error)
	RenameProfileRole(ctx context.Context, oldCode, newCode string) (int, error)
	DeleteGrantsForRole(ctx context.Context, roleID int64) (int, error)

	InsertScope(ctx context.Context, code, description string) (Scope, error)
	UpdateScope(ctx context.Context, scope Scope) (Scope, error)
	DeleteScope(ctx context.Context, id int64) error
	DeleteGrantsForScope(ctx context.Context, scopeID int64) (int, error)
	DeleteOverridesForScope(ctx context.Context, scopeID int64) (int, error)

	InsertGrant(ctx context.Context, roleID, scopeID int64) error
	DeleteGrant(ctx context.Context, roleID, scopeID int64) error

	UpdateProfileRole(ctx context.Context, userID uuid.UUID, code string) error

	InsertOverride(ctx context.Context, o UserOverride) error
	DeleteOverride(ctx context.Context, userID uuid.UUID, scopeID int64) error
}
