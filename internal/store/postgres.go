package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voxhive/callbridge/internal/call"
)

// Postgres persists call records in the platform's calls table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store over an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// UpdateCall applies the non-nil fields of upd to the call record in one
// statement.
func (p *Postgres) UpdateCall(ctx context.Context, callID string, upd call.Update) error {
	set, args := setClauses(upd)
	if len(set) == 0 {
		return nil
	}

	args = append(args, callID)
	query := fmt.Sprintf("UPDATE calls SET %s, updated_at = now() WHERE id = $%d",
		strings.Join(set, ", "), len(args))

	tag, err := p.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating call %s: %w", callID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("call %s: %w", callID, ErrNotFound)
	}
	return nil
}

// setClauses builds positional SET clauses for the non-nil fields of upd.
func setClauses(upd call.Update) ([]string, []any) {
	var (
		set  []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.SwitchUUID != nil {
		add("freeswitch_uuid", *upd.SwitchUUID)
	}
	if upd.AnsweredAt != nil {
		add("answered_at", *upd.AnsweredAt)
	}
	if upd.EndedAt != nil {
		add("ended_at", *upd.EndedAt)
	}
	if upd.DurationSeconds != nil {
		add("duration_seconds", *upd.DurationSeconds)
	}
	if upd.HangupCause != nil {
		add("hangup_cause", *upd.HangupCause)
	}
	if upd.ErrorMessage != nil {
		add("error_message", *upd.ErrorMessage)
	}
	return set, args
}
