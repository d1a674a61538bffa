package audit

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository reads permission_audit_logs.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// ListEntries returns records matching q, newest first. A zero Limit returns
// every match.
func (r *PostgresRepository) ListEntries(ctx context.Context, q Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		where = append(where, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if q.EntityType != "" {
		add("entity_type = ?", q.EntityType)
	}
	if q.EntityID != "" {
		add("entity_id = ?", q.EntityID)
	}
	if q.Action != "" {
		add("action = ?", q.Action)
	}

	query := `SELECT id, created_at, actor_id, action, entity_type, entity_id, details FROM permission_audit_logs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"
	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
		args = append(args, q.Offset)
		query += " OFFSET $" + strconv.Itoa(len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			rec     Record
			actor   *uuid.UUID
			action  string
			entity  string
			details []byte
		)
		if err := rows.Scan(&rec.ID, &rec.At, &actor, &action, &entity, &rec.EntityID, &details); err != nil {
			return nil, err
		}
		rec.ActorID = actor
		rec.Action = Action(action)
		rec.EntityType = EntityType(entity)
		rec.Details = details
		records = append(records, rec)
	}
	return records, rows.Err()
}
