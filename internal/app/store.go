package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/platform/db"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/rbac"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// Store bundles the permission store and the audit reader over one backend.
type Store struct {
	Permissions rbac.Repository
	Audit       audit.Repository
	Pool        *pgxpool.Pool
	// AdminID is the seeded administrator in memory mode.
	AdminID uuid.UUID
}

// OpenStore opens the backend named by STORE_DRIVER.
func OpenStore(ctx context.Context, cfg *Config, logger *slog.Logger) (*Store, error) {
	if cfg.StoreDriver == StoreDriverMemory {
		adminID := uuid.New()
		if cfg.BootstrapAdminID != "" {
			adminID = uuid.MustParse(cfg.BootstrapAdminID)
		}
		repo := rbac.NewMemoryRepository()
		SeedMemory(repo, adminID)
		logger.Warn("using in-memory permission store",
			slog.String("admin_id", adminID.String()))
		return &Store{Permissions: repo, Audit: repo, AdminID: adminID}, nil
	}
	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	return &Store{
		Permissions: rbac.NewPostgresRepository(pool),
		Audit:       audit.NewRepository(pool),
		Pool:        pool,
	}, nil
}

// Close releases backend resources.
func (s *Store) Close() {
	if s != nil && s.Pool != nil {
		s.Pool.Close()
	}
}

var coreScopeDescriptions = map[string]string{
	shared.ScopeLeadsRead:         "View leads",
	shared.ScopeLeadsWrite:        "Create and edit leads",
	shared.ScopeSalesRead:         "View sales",
	shared.ScopeSalesWrite:        "Register sales",
	shared.ScopeAnalyticsRead:     "View dashboards and reports",
	shared.ScopeUsersRead:         "View users",
	shared.ScopePermissionsRead:   "View roles, scopes and the permission matrix",
	shared.ScopePermissionsManage: "Manage roles, scopes and permissions",
	shared.ScopeAuditRead:         "View the permission audit log",
}

// SeedMemory loads the core scopes, an ADMIN role holding all of them and
// one administrator profile.
func SeedMemory(repo *rbac.MemoryRepository, adminID uuid.UUID) {
	admin := repo.PutRole(rbac.Role{ID: 1, Name: "Administrador", Code: "ADMIN"})
	for i, code := range shared.CoreScopes() {
		scope := repo.PutScope(rbac.Scope{ID: int64(i + 1), Code: code, Description: coreScopeDescriptions[code]})
		repo.PutGrant(admin.ID, scope.ID)
	}
	repo.PutProfile(rbac.Profile{ID: adminID, Name: "Admin", Email: "admin@localhost", Role: admin.Code})
}
