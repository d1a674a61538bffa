package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/leonardojasson-oss/jasson-leads-control/internal/shared"
)

// Recorder appends entries to the audit log.
type Recorder interface {
	Append(ctx context.Context, e Entry) error
}

// Execer is satisfied by pgx.Tx, *pgxpool.Pool and *pgx.Conn.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

// Writer appends entries through the log_permission_action database function.
// Use it on the transaction carrying the mutation so both commit together.
type Writer struct {
	db Execer
}

// NewWriter returns a Writer bound to db.
func NewWriter(db Execer) *Writer {
	return &Writer{db: db}
}

// Append validates and persists the entry. The actor from ctx is exposed to
// the database function through the transaction-local app.actor_id setting.
func (w *Writer) Append(ctx context.Context, e Entry) error {
	if w == nil || w.db == nil {
		return errors.New("audit writer not initialised")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("audit: marshal details: %w", err)
	}
	if actor := shared.ActorFromContext(ctx); actor != uuid.Nil {
		if _, err := w.db.Exec(ctx, `SELECT set_config('app.actor_id', $1, true)`, actor.String()); err != nil {
			return fmt.Errorf("audit: set actor: %w", err)
		}
	}
	if _, err := w.db.Exec(ctx, `SELECT log_permission_action($1, $2, $3, $4::jsonb)`,
		string(e.Action), string(e.EntityType), e.EntityID, string(details)); err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}
