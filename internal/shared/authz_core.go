package shared

// Dashboard scopes. Codes are stored lower-case in the scopes table.
const (
	ScopeLeadsRead  = "leads:read"
	ScopeLeadsWrite = "leads:write"

	ScopeSalesRead  = "sales:read"
	ScopeSalesWrite = "sales:write"

	ScopeAnalyticsRead = "analytics:read"

	ScopeUsersRead = "users:read"

	ScopePermissionsRead   = "permissions:read"
	ScopePermissionsManage = "permissions:manage"

	ScopeAuditRead = "audit:read"
)

// CoreScopes lists the scopes the dashboard expects to exist.
func CoreScopes() []string {
	return []string{
		ScopeLeadsRead,
		ScopeLeadsWrite,
		ScopeSalesRead,
		ScopeSalesWrite,
		ScopeAnalyticsRead,
		ScopeUsersRead,
		ScopePermissionsRead,
		ScopePermissionsManage,
		ScopeAuditRead,
	}
}
