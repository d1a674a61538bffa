package shared

import (
	"fmt"

	"github.com/google/uuid"
)

// RoleScopeLockKey builds the redis key guarding a role×scope matrix cell.
func RoleScopeLockKey(roleID, scopeID int64) string {
	return fmt.Sprintf("perm:toggle:role:%d:%d", roleID, scopeID)
}

// UserScopeLockKey builds the redis key guarding a user override cell.
func UserScopeLockKey(userID uuid.UUID, scopeID int64) string {
	return fmt.Sprintf("perm:toggle:user:%s:%d", userID, scopeID)
}
