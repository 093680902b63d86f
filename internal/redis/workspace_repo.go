// Package redis holds the Redis-backed persistence collaborators: the
// per-workspace state repository and a sliding-window rate limiter.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
)

func workspaceKey(key string) string { return "workspace:state:" + key }

// WorkspaceRepository loads and saves one opaque state blob per workspace.
type WorkspaceRepository interface {
	// Load returns the workspace state. Missing or corrupt blobs decode
	// to the default state; only transport failures surface as errors.
	Load(ctx context.Context, key string) (domain.WorkspaceState, error)
	Save(ctx context.Context, key string, state domain.WorkspaceState) error
}

type workspaceRepository struct {
	client *redis.Client
	logger *slog.Logger
}

// NewWorkspaceRepository creates a Redis-backed WorkspaceRepository.
func NewWorkspaceRepository(client *redis.Client, logger *slog.Logger) WorkspaceRepository {
	return &workspaceRepository{client: client, logger: logger}
}

// NewClient creates a Redis client with the connection knobs this service
// uses everywhere.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

func (r *workspaceRepository) Load(ctx context.Context, key string) (domain.WorkspaceState, error) {
	data, err := r.client.Get(ctx, workspaceKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.DefaultWorkspaceState(), nil
		}
		return domain.DefaultWorkspaceState(), fmt.Errorf("redis load workspace %s: %w", key, err)
	}

	var state domain.WorkspaceState
	if err := json.Unmarshal(data, &state); err != nil {
		// A corrupt blob degrades to a fresh workspace rather than an error.
		r.logger.Error("corrupt workspace blob, starting fresh",
			slog.String("workspace", key),
			slog.String("error", err.Error()),
		)
		return domain.DefaultWorkspaceState(), nil
	}
	if !state.ReminderWindow.Valid() {
		state.ReminderWindow = domain.WindowAllDay
	}
	return state, nil
}

func (r *workspaceRepository) Save(ctx context.Context, key string, state domain.WorkspaceState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal workspace %s: %w", key, err)
	}
	if err := r.client.Set(ctx, workspaceKey(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis save workspace %s: %w", key, err)
	}
	return nil
}
