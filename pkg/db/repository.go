package db

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morezero/agent-command-receiver/pkg/events"
)

const repoLogPrefix = "db:repository"

const defaultListLimit = 100

// Repository reads and writes the command audit log. It satisfies events.EventStore.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository on the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertHandledEvent stores one command-handled event.
func (r *Repository) InsertHandledEvent(ctx context.Context, event *events.CommandHandledEvent) error {
	slog.Debug(fmt.Sprintf("%s - InsertHandledEvent id=%s request=%d outcome=%s", repoLogPrefix, event.ID, event.RequestID, event.Outcome))

	handledAt := time.Now().UTC()
	if event.Timestamp != "" {
		if ts, err := time.Parse(time.RFC3339, event.Timestamp); err == nil {
			handledAt = ts
		}
	}

	var errText *string
	if event.Error != "" {
		errText = &event.Error
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO command_events (id, agent_id, request_id, command_type, command_name, outcome, duration_ms, error, handled_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO NOTHING`,
		event.ID, event.AgentID, event.RequestID, int32(event.CommandType), event.CommandName,
		string(event.Outcome), event.DurationMs, errText, handledAt)
	if err != nil {
		return fmt.Errorf("%s - insert command event %s: %w", repoLogPrefix, event.ID, err)
	}
	return nil
}

// ListCommandEvents returns audit rows, newest first.
func (r *Repository) ListCommandEvents(ctx context.Context, params ListCommandEventsParams) ([]CommandEvent, error) {
	limit := params.Limit
	if limit < 1 {
		limit = defaultListLimit
	}

	query, args := buildListQuery(params, limit)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s - list command events: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []CommandEvent
	for rows.Next() {
		e, err := scanCommandEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s - list command events: %w", repoLogPrefix, err)
	}
	return out, nil
}

func buildListQuery(params ListCommandEventsParams, limit int) (string, []any) {
	query := `SELECT id, agent_id, request_id, command_type, command_name, outcome, duration_ms, error, handled_at, created
		 FROM command_events`

	var where []string
	var args []any
	if params.AgentID != "" {
		args = append(args, params.AgentID)
		where = append(where, fmt.Sprintf("agent_id = $%d", len(args)))
	}
	if params.Outcome != "" {
		args = append(args, params.Outcome)
		where = append(where, fmt.Sprintf("outcome = $%d", len(args)))
	}
	if !params.Since.IsZero() {
		args = append(args, params.Since)
		where = append(where, fmt.Sprintf("handled_at >= $%d", len(args)))
	}
	if len(where) > 0 {
		query += "\n\t\t WHERE " + strings.Join(where, " AND ")
	}

	args = append(args, limit)
	query += fmt.Sprintf("\n\t\t ORDER BY handled_at DESC LIMIT $%d", len(args))
	return query, args
}

// CountByOutcome returns how many requests an agent finished with each outcome.
func (r *Repository) CountByOutcome(ctx context.Context, agentID string) ([]OutcomeCount, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT outcome, COUNT(*)
		 FROM command_events
		 WHERE agent_id = $1
		 GROUP BY outcome
		 ORDER BY outcome`, agentID)
	if err != nil {
		return nil, fmt.Errorf("%s - count by outcome: %w", repoLogPrefix, err)
	}
	defer rows.Close()

	var out []OutcomeCount
	for rows.Next() {
		var c OutcomeCount
		if err := rows.Scan(&c.Outcome, &c.Count); err != nil {
			return nil, fmt.Errorf("%s - scan outcome count: %w", repoLogPrefix, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Ping reports whether the database is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func scanCommandEvent(row pgx.Row) (*CommandEvent, error) {
	var e CommandEvent
	err := row.Scan(&e.ID, &e.AgentID, &e.RequestID, &e.CommandType, &e.CommandName,
		&e.Outcome, &e.DurationMs, &e.Error, &e.HandledAt, &e.Created)
	if err != nil {
		return nil, fmt.Errorf("%s - scan command event: %w", repoLogPrefix, err)
	}
	return &e, nil
}
