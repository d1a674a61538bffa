package users

import "github.com/leonardojasson-oss/jasson-leads-control/internal/rbac"

// Profile is a dashboard user as stored in profiles.
type Profile = rbac.Profile

// ChangeRoleRequest carries a new base role code for a profile.
type ChangeRoleRequest struct {
	Role string `json:"role" validate:"required"`
}
