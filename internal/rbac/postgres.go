package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/audit"
	"github.com/leonardojasson-oss/jasson-leads-control/internal/platform/db"
)

type dbtx interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is the pgx backed permission store.
type PostgresRepository struct {
	pool *pgxpool.Pool
	queries
}

// NewPostgresRepository constructs a repository over pool.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, queries: queries{db: pool}}
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{queries: queries{db: tx}, Writer: audit.NewWriter(tx)})
	})
}

type pgTx struct {
	queries
	*audit.Writer
}

type queries struct {
	db dbtx
}

const roleColumns = `id, name, code, created_at`

func scanRole(row pgx.Row) (Role, error) {
	var r Role
	if err := row.Scan(&r.ID, &r.Name, &r.Code, &r.CreatedAt); err != nil {
		return Role{}, db.MapError(err)
	}
	return r, nil
}

func (q queries) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := q.db.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, scanRole)
}

func (q queries) GetRole(ctx context.Context, id int64) (Role, error) {
	return scanRole(q.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`, id))
}

func (q queries) GetRoleByCode(ctx context.Context, code string) (Role, error) {
	return scanRole(q.db.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE code = $1`, code))
}

func (q queries) InsertRole(ctx context.Context, name, code string) (Role, error) {
	return scanRole(q.db.QueryRow(ctx,
		`INSERT INTO roles (name, code) VALUES ($1, $2) RETURNING `+roleColumns, name, code))
}

func (q queries) UpdateRole(ctx context.Context, role Role) (Role, error) {
	return scanRole(q.db.QueryRow(ctx,
		`UPDATE roles SET name = $2, code = $3 WHERE id = $1 RETURNING `+roleColumns, role.ID, role.Name, role.Code))
}

func (q queries) DeleteRole(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM roles WHERE id = $1`, id)
}

func (q queries) CountProfilesWithRole(ctx context.Context, code string) (int, error) {
	var n int
	if err := q.db.QueryRow(ctx, `SELECT count(*) FROM profiles WHERE role = $1`, code).Scan(&n); err != nil {
		return 0, db.MapError(err)
	}
	return n, nil
}

func (q queries) RenameProfileRole(ctx context.Context, oldCode, newCode string) (int, error) {
	return q.execCount(ctx, `UPDATE profiles SET role = $2 WHERE role = $1`, oldCode, newCode)
}

func (q queries) DeleteGrantsForRole(ctx context.Context, roleID int64) (int, error) {
	return q.execCount(ctx, `DELETE FROM role_scopes WHERE role_id = $1`, roleID)
}

const scopeColumns = `id, code, description, created_at`

func scanScope(row pgx.Row) (Scope, error) {
	var s Scope
	if err := row.Scan(&s.ID, &s.Code, &s.Description, &s.CreatedAt); err != nil {
		return Scope{}, db.MapError(err)
	}
	return s, nil
}

func (q queries) ListScopes(ctx context.Context) ([]Scope, error) {
	rows, err := q.db.Query(ctx, `SELECT `+scopeColumns+` FROM scopes ORDER BY code`)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, scanScope)
}

func (q queries) GetScope(ctx context.Context, id int64) (Scope, error) {
	return scanScope(q.db.QueryRow(ctx, `SELECT `+scopeColumns+` FROM scopes WHERE id = $1`, id))
}

func (q queries) InsertScope(ctx context.Context, code, description string) (Scope, error) {
	return scanScope(q.db.QueryRow(ctx,
		`INSERT INTO scopes (code, description) VALUES ($1, $2) RETURNING `+scopeColumns, code, description))
}

func (q queries) UpdateScope(ctx context.Context, scope Scope) (Scope, error) {
	return scanScope(q.db.QueryRow(ctx,
		`UPDATE scopes SET code = $2, description = $3 WHERE id = $1 RETURNING `+scopeColumns,
		scope.ID, scope.Code, scope.Description))
}

func (q queries) DeleteScope(ctx context.Context, id int64) error {
	return q.execOne(ctx, `DELETE FROM scopes WHERE id = $1`, id)
}

func (q queries) DeleteGrantsForScope(ctx context.Context, scopeID int64) (int, error) {
	return q.execCount(ctx, `DELETE FROM role_scopes WHERE scope_id = $1`, scopeID)
}

func (q queries) DeleteOverridesForScope(ctx context.Context, scopeID int64) (int, error) {
	return q.execCount(ctx, `DELETE FROM user_scopes WHERE scope_id = $1`, scopeID)
}

func (q queries) ListGrants(ctx context.Context) ([]RoleGrant, error) {
	rows, err := q.db.Query(ctx, `SELECT role_id, scope_id FROM role_scopes ORDER BY role_id, scope_id`)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, func(row pgx.Row) (RoleGrant, error) {
		var g RoleGrant
		return g, row.Scan(&g.RoleID, &g.ScopeID)
	})
}

func (q queries) HasGrant(ctx context.Context, roleID, scopeID int64) (bool, error) {
	var ok bool
	err := q.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_scopes WHERE role_id = $1 AND scope_id = $2)`, roleID, scopeID).Scan(&ok)
	return ok, db.MapError(err)
}

func (q queries) ListRoleScopeIDs(ctx context.Context, roleID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT scope_id FROM role_scopes WHERE role_id = $1`, roleID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, func(row pgx.Row) (int64, error) {
		var id int64
		return id, row.Scan(&id)
	})
}

func (q queries) InsertGrant(ctx context.Context, roleID, scopeID int64) error {
	_, err := q.db.Exec(ctx, `INSERT INTO role_scopes (role_id, scope_id) VALUES ($1, $2)`, roleID, scopeID)
	return db.MapError(err)
}

func (q queries) DeleteGrant(ctx context.Context, roleID, scopeID int64) error {
	return q.execOne(ctx, `DELETE FROM role_scopes WHERE role_id = $1 AND scope_id = $2`, roleID, scopeID)
}

const profileColumns = `id, name, email, role, COALESCE(phone, ''), created_at`

func scanProfile(row pgx.Row) (Profile, error) {
	var p Profile
	if err := row.Scan(&p.ID, &p.Name, &p.Email, &p.Role, &p.Phone, &p.CreatedAt); err != nil {
		return Profile{}, db.MapError(err)
	}
	return p, nil
}

func (q queries) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := q.db.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY name, id`)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, scanProfile)
}

func (q queries) GetProfile(ctx context.Context, id uuid.UUID) (Profile, error) {
	return scanProfile(q.db.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = $1`, id))
}

func (q queries) UpdateProfileRole(ctx context.Context, userID uuid.UUID, code string) error {
	return q.execOne(ctx, `UPDATE profiles SET role = $2 WHERE id = $1`, userID, code)
}

func (q queries) GetOverride(ctx context.Context, userID uuid.UUID, scopeID int64) (UserOverride, bool, error) {
	o := UserOverride{UserID: userID, ScopeID: scopeID}
	err := q.db.QueryRow(ctx,
		`SELECT allow FROM user_scopes WHERE user_id = $1 AND scope_id = $2`, userID, scopeID).Scan(&o.Allow)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserOverride{}, false, nil
	}
	if err != nil {
		return UserOverride{}, false, db.MapError(err)
	}
	return o, true, nil
}

func (q queries) ListUserOverrides(ctx context.Context, userID uuid.UUID) ([]UserOverride, error) {
	rows, err := q.db.Query(ctx,
		`SELECT user_id, scope_id, allow FROM user_scopes WHERE user_id = $1 ORDER BY scope_id`, userID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, func(row pgx.Row) (UserOverride, error) {
		var o UserOverride
		return o, row.Scan(&o.UserID, &o.ScopeID, &o.Allow)
	})
}

func (q queries) InsertOverride(ctx context.Context, o UserOverride) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO user_scopes (user_id, scope_id, allow) VALUES ($1, $2, $3)`, o.UserID, o.ScopeID, o.Allow)
	return db.MapError(err)
}

func (q queries) DeleteOverride(ctx context.Context, userID uuid.UUID, scopeID int64) error {
	return q.execOne(ctx, `DELETE FROM user_scopes WHERE user_id = $1 AND scope_id = $2`, userID, scopeID)
}

func (q queries) EffectiveScopes(ctx context.Context, userID uuid.UUID) ([]EffectiveScope, error) {
	rows, err := q.db.Query(ctx,
		`SELECT scope_code, scope_description, source FROM get_user_effective_scopes($1) ORDER BY scope_code`, userID)
	if err != nil {
		return nil, db.MapError(err)
	}
	return collect(rows, func(row pgx.Row) (EffectiveScope, error) {
		var (
			e      EffectiveScope
			source string
		)
		err := row.Scan(&e.ScopeCode, &e.ScopeDescription, &source)
		e.Source = ScopeSource(source)
		return e, err
	})
}

func (q queries) execOne(ctx context.Context, sql string, args ...any) error {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return db.MapError(err)
	}
	if tag.RowsAffected() == 0 {
		return db.MapError(pgx.ErrNoRows)
	}
	return nil
}

func (q queries) execCount(ctx context.Context, sql string, args ...any) (int, error) {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return 0, db.MapError(err)
	}
	return int(tag.RowsAffected()), nil
}

func collect[T any](rows pgx.Rows, scan func(pgx.Row) (T, error)) ([]T, error) {
	defer rows.Close()
	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, db.MapError(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, db.MapError(err)
	}
	return out, nil
}
