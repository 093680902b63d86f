//go:build integration

package postgres

import (
	"context"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/postgres/migrations"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()

	ctr, err := tcPostgres.Run(ctx, "postgres:15-alpine",
		tcPostgres.WithDatabase("autopilot"),
		tcPostgres.WithUsername("autopilot"),
		tcPostgres.WithPassword("autopilot"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	defer ctr.Terminate(ctx) //nolint:errcheck

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		log.Fatalf("postgres connection string: %v", err)
	}

	pool, err := NewPool(ctx, dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer pool.Close()
	testPool = pool

	files := []string{"001_create_tasks.sql", "002_create_cycle_runs.sql"}
	for _, f := range files {
		sql, err := migrations.FS.ReadFile(f)
		if err != nil {
			log.Fatalf("read migration %s: %v", f, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			log.Fatalf("exec migration %s: %v", f, err)
		}
	}

	return m.Run()
}

func newTestArchive(t *testing.T) Archive {
	t.Helper()
	t.Cleanup(func() {
		ctx := context.Background()
		testPool.Exec(ctx, "TRUNCATE tasks")      //nolint:errcheck
		testPool.Exec(ctx, "TRUNCATE cycle_runs") //nolint:errcheck
	})
	return NewArchive(testPool)
}

func sampleTask(id string, at time.Time) domain.Task {
	return domain.Task{
		ID:              id,
		RuleID:          "shrink-watch",
		Title:           "Review stockout risks",
		Detail:          "2 items at stockout risk",
		Action:          domain.ActionOpenExceptionFeed,
		Priority:        domain.PriorityHigh,
		Category:        domain.CategoryShrink,
		EstimateMinutes: 10,
		DueAt:           at.Add(4 * time.Hour),
		Status:          domain.StatusOpen,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func TestArchive_RecordCycle(t *testing.T) {
	arch := newTestArchive(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)
	require.NoError(t, arch.RecordCycle(ctx, &CycleRecord{
		Workspace:  "ws1",
		RanAt:      now,
		Candidates: 4,
		Tasks:      4,
	}))

	var count int
	require.NoError(t, testPool.QueryRow(ctx,
		"SELECT COUNT(*) FROM cycle_runs WHERE workspace = $1", "ws1",
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestArchive_SaveAndListTasks(t *testing.T) {
	arch := newTestArchive(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)
	tasks := []domain.Task{
		sampleTask("20260114-shrink-watch", now),
		sampleTask("20260114-data-hygiene", now.Add(time.Minute)),
	}
	require.NoError(t, arch.SaveTasks(ctx, "ws1", tasks))

	got, err := arch.ListTasks(ctx, "ws1", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Most recently updated first.
	assert.Equal(t, "20260114-data-hygiene", got[0].ID)
	assert.Equal(t, domain.PriorityHigh, got[1].Priority)
	assert.Equal(t, domain.ActionOpenExceptionFeed, got[1].Action)
}

func TestArchive_SaveTasksUpserts(t *testing.T) {
	arch := newTestArchive(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)
	task := sampleTask("20260114-shrink-watch", now)
	require.NoError(t, arch.SaveTasks(ctx, "ws1", []domain.Task{task}))

	done := now.Add(time.Hour)
	task.Status = domain.StatusDone
	task.CompletedAt = &done
	task.UpdatedAt = done
	require.NoError(t, arch.SaveTasks(ctx, "ws1", []domain.Task{task}))

	got, err := arch.ListTasks(ctx, "ws1", 10)
	require.NoError(t, err)
	require.Len(t, got, 1, "second save must update, not duplicate")
	assert.Equal(t, domain.StatusDone, got[0].Status)
	require.NotNil(t, got[0].CompletedAt)
}

func TestArchive_ListTasksScopedByWorkspace(t *testing.T) {
	arch := newTestArchive(t)
	ctx := context.Background()

	now := time.Date(2026, 1, 14, 8, 0, 0, 0, time.UTC)
	require.NoError(t, arch.SaveTasks(ctx, "ws1", []domain.Task{sampleTask("20260114-shrink-watch", now)}))
	require.NoError(t, arch.SaveTasks(ctx, "ws2", []domain.Task{sampleTask("20260114-shrink-watch", now)}))

	got, err := arch.ListTasks(ctx, "ws1", 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
