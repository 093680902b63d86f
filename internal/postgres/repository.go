// Package postgres archives cycle runs and task state for reporting.
// The archive is an audit trail: Redis remains the authoritative store
// for live workspace state.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
)

// CycleRecord summarizes one automation cycle run.
type CycleRecord struct {
	Workspace  string
	RanAt      time.Time
	Candidates int
	Tasks      int
}

// Archive abstracts the audit database.
type Archive interface {
	RecordCycle(ctx context.Context, rec *CycleRecord) error
	SaveTasks(ctx context.Context, workspace string, tasks []domain.Task) error
	ListTasks(ctx context.Context, workspace string, limit int) ([]domain.Task, error)
}

type archive struct {
	pool *pgxpool.Pool
}

// NewArchive wraps a pgxpool with the Archive interface.
func NewArchive(pool *pgxpool.Pool) Archive {
	return &archive{pool: pool}
}

// NewPool creates a pgxpool and verifies connectivity.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func (a *archive) RecordCycle(ctx context.Context, rec *CycleRecord) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO cycle_runs (workspace, ran_at, candidate_count, task_count)
		VALUES ($1, $2, $3, $4)
	`, rec.Workspace, rec.RanAt, rec.Candidates, rec.Tasks)
	if err != nil {
		return fmt.Errorf("record cycle for %s: %w", rec.Workspace, err)
	}
	return nil
}

// SaveTasks upserts the workspace's task rows by (workspace, id).
func (a *archive) SaveTasks(ctx context.Context, workspace string, tasks []domain.Task) error {
	batch := &pgx.Batch{}
	for i := range tasks {
		t := &tasks[i]
		batch.Queue(`
			INSERT INTO tasks
				(workspace, id, rule_id, title, detail, action, priority, category,
				 estimate_minutes, due_at, zone, status, snoozed_until, completed_at,
				 created_at, updated_at)
			VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (workspace, id) DO UPDATE SET
				title = EXCLUDED.title,
				detail = EXCLUDED.detail,
				action = EXCLUDED.action,
				priority = EXCLUDED.priority,
				category = EXCLUDED.category,
				estimate_minutes = EXCLUDED.estimate_minutes,
				due_at = EXCLUDED.due_at,
				zone = EXCLUDED.zone,
				status = EXCLUDED.status,
				snoozed_until = EXCLUDED.snoozed_until,
				completed_at = EXCLUDED.completed_at,
				updated_at = EXCLUDED.updated_at
		`,
			workspace, t.ID, t.RuleID, t.Title, t.Detail, string(t.Action),
			string(t.Priority), string(t.Category), t.EstimateMinutes, t.DueAt,
			t.Zone, string(t.Status), t.SnoozedUntil, t.CompletedAt,
			t.CreatedAt, t.UpdatedAt,
		)
	}

	results := a.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range tasks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert tasks for %s: %w", workspace, err)
		}
	}
	return nil
}

func (a *archive) ListTasks(ctx context.Context, workspace string, limit int) ([]domain.Task, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT id, rule_id, title, detail, action, priority, category,
		       estimate_minutes, due_at, zone, status, snoozed_until,
		       completed_at, created_at, updated_at
		FROM tasks
		WHERE workspace = $1
		ORDER BY updated_at DESC
		LIMIT $2
	`, workspace, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks for %s: %w", workspace, err)
	}
	defer rows.Close()

	var out []domain.Task
	for rows.Next() {
		var t domain.Task
		var action, priority, category, status string
		if err := rows.Scan(
			&t.ID, &t.RuleID, &t.Title, &t.Detail, &action, &priority, &category,
			&t.EstimateMinutes, &t.DueAt, &t.Zone, &status, &t.SnoozedUntil,
			&t.CompletedAt, &t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Action = domain.Action(action)
		t.Priority = domain.Priority(priority)
		t.Category = domain.Category(category)
		t.Status = domain.Status(status)
		out = append(out, t)
	}
	return out, rows.Err()
}
