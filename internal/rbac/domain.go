package rbac

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role groups scopes under a short upper-case code that profiles reference.
type Role struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// Scope is an atomic capability such as "leads:read".
type Scope struct {
	ID          int64     `json:"id"`
	Code        string    `json:"code"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleGrant ties a scope to a role.
type RoleGrant struct {
	RoleID  int64 `json:"role_id"`
	ScopeID int64 `json:"scope_id"`
}

// UserOverride is an explicit per-user decision that supersedes the role
// default for one scope. Allow=false revokes, Allow=true grants.
type UserOverride struct {
	UserID  uuid.UUID `json:"user_id"`
	ScopeID int64     `json:"scope_id"`
	Allow   bool      `json:"allow"`
}

// Profile is a dashboard user. Role holds a role code, not an id.
type Profile struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}

// ScopeSource tells where an effective scope came from.
type ScopeSource string

// Effective scope sources.
const (
	SourceRole     ScopeSource = "role"
	SourceOverride ScopeSource = "override"
)

// EffectiveScope is one resolved scope of a user.
type EffectiveScope struct {
	ScopeCode        string      `json:"scope_code"`
	ScopeDescription string      `json:"scope_description"`
	Source           ScopeSource `json:"source"`
}

// OverrideStatus is the per-scope status shown in the exceptions view.
// StatusNone means the user has no access and no override.
type OverrideStatus string

// Override statuses.
const (
	StatusGranted   OverrideStatus = "granted"
	StatusRevoked   OverrideStatus = "revoked"
	StatusInherited OverrideStatus = "inherited"
	StatusNone      OverrideStatus = ""
)

// String renders StatusNone as "null".
func (s OverrideStatus) String() string {
	if s == StatusNone {
		return "null"
	}
	return string(s)
}

// ScopeStatus pairs a scope with the user's override status for it.
type ScopeStatus struct {
	Scope  Scope   `json:"scope"`
	Status *string `json:"status"`
}

func newScopeStatus(scope Scope, status OverrideStatus) ScopeStatus {
	out := ScopeStatus{Scope: scope}
	if status != StatusNone {
		s := string(status)
		out.Status = &s
	}
	return out
}

// RoleInput carries the fields of a new role.
type RoleInput struct {
	Name string `json:"name" validate:"required"`
	Code string `json:"code" validate:"required"`
}

// RolePatch carries a partial role update. Nil fields are left unchanged.
type RolePatch struct {
	Name *string `json:"name" validate:"omitnil,min=1"`
	Code *string `json:"code" validate:"omitnil,min=1"`
}

// ScopeInput carries the fields of a new scope.
type ScopeInput struct {
	Code        string `json:"code" validate:"required"`
	Description string `json:"description" validate:"required"`
}

// ScopePatch carries a partial scope update.
type ScopePatch struct {
	Code        *string `json:"code" validate:"omitnil,min=1"`
	Description *string `json:"description" validate:"omitnil,min=1"`
}

// NormalizeRoleCode trims and upper-cases a role code. Casers are not safe
// for concurrent use, so one is built per call.
func NormalizeRoleCode(code string) string {
	return cases.Upper(language.Und).String(strings.TrimSpace(code))
}

// NormalizeScopeCode trims and lower-cases a scope code.
func NormalizeScopeCode(code string) string {
	return cases.Lower(language.Und).String(strings.TrimSpace(code))
}
