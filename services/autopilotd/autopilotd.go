// Package autopilotd wires the automation engine to its inputs: the
// signals topic that drives cycle runs and the periodic notification
// resync schedule.
package autopilotd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/domain"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/engine"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/kafka"
	redisstore "github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/redis"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/pkg/telemetry"
)

// SnapshotMessage is the wire envelope on the signals topic. The message
// key carries the workspace as well; the body wins when both are set.
type SnapshotMessage struct {
	Workspace string         `json:"workspace"`
	Signals   domain.Signals `json:"signals"`
	Force     bool           `json:"force,omitempty"`
}

// Service consumes signal snapshots and feeds them to the engine.
type Service struct {
	consumer kafka.Consumer
	engine   *engine.Engine
	limiter  redisstore.RateLimiter // nil = unthrottled
	logger   *slog.Logger
	cron     *cron.Cron
}

// Option configures a Service.
type Option func(*Service)

func WithLimiter(l redisstore.RateLimiter) Option { return func(s *Service) { s.limiter = l } }
func WithLogger(l *slog.Logger) Option            { return func(s *Service) { s.logger = l } }

// NewService constructs the snapshot consumer around an engine.
func NewService(consumer kafka.Consumer, eng *engine.Engine, opts ...Option) *Service {
	s := &Service{
		consumer: consumer,
		engine:   eng,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run consumes the signals topic until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	return s.consumer.Subscribe(ctx, s.handleSnapshot)
}

// StartResync begins the periodic forced notification resync on the
// given cron expression. Call StopResync during shutdown.
func (s *Service) StartResync(expr string) error {
	c := cron.New()
	if _, err := c.AddFunc(expr, s.engine.ResyncNotifications); err != nil {
		return fmt.Errorf("resync schedule %q: %w", expr, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// StopResync stops the resync schedule and waits for a running job.
func (s *Service) StopResync() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// handleSnapshot is the Kafka HandlerFunc. It always returns nil so the
// offset is committed: snapshots are superseded by the next one, never
// worth replaying.
func (s *Service) handleSnapshot(consumerCtx context.Context, msg kafka.Message) error {
	var env SnapshotMessage
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		s.logger.Error("malformed snapshot message, discarding",
			slog.String("error", err.Error()),
			slog.String("raw", string(msg.Value)),
		)
		telemetry.SignalsConsumedTotal.WithLabelValues("malformed").Inc()
		return nil
	}
	if env.Workspace == "" {
		env.Workspace = string(msg.Key)
	}
	if env.Workspace == "" {
		s.logger.Error("snapshot without workspace, discarding")
		telemetry.SignalsConsumedTotal.WithLabelValues("malformed").Inc()
		return nil
	}

	ctx, span := otel.Tracer("autopilotd").Start(consumerCtx, "autopilotd.handle_snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("workspace", env.Workspace),
		attribute.Bool("force", env.Force),
	)

	log := s.logger.With(slog.String("workspace", env.Workspace))

	if s.limiter != nil {
		allowed, err := s.limiter.Allow(ctx, "signals:"+env.Workspace)
		if err != nil {
			// Fail open: the engine has its own per-cycle cooldown.
			log.Warn("snapshot rate limiter unavailable", slog.String("error", err.Error()))
		} else if !allowed {
			telemetry.SignalsConsumedTotal.WithLabelValues("throttled").Inc()
			return nil
		}
	}

	if err := s.engine.ActivateWorkspace(ctx, env.Workspace); err != nil {
		log.Error("activate workspace failed", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "activation failed")
		telemetry.SignalsConsumedTotal.WithLabelValues("error").Inc()
		return nil
	}

	if err := s.engine.RunCycle(ctx, env.Signals, env.Force); err != nil {
		log.Error("cycle run failed", slog.String("error", err.Error()))
		span.RecordError(err)
		span.SetStatus(codes.Error, "cycle failed")
		telemetry.SignalsConsumedTotal.WithLabelValues("error").Inc()
		return nil
	}

	telemetry.SignalsConsumedTotal.WithLabelValues("processed").Inc()
	return nil
}
