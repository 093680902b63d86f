package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/internal/kafka"
	"github.com/reginaldwlsnnn87-max/inventory-app-sub003/pkg/retry"
)

const (
	pendingSetKey    = "notify:pending"
	requestKeyPrefix = "notify:request:"

	// requestTTL bounds how long an orphaned request body can linger if
	// its pending-set entry was removed out of band.
	requestTTL = 48 * time.Hour
)

// DeliveryOp is the message published to the delivery daemon's topic for
// every schedule and cancel mutation.
type DeliveryOp struct {
	Op          string   `json:"op"` // "schedule" | "cancel"
	Identifiers []string `json:"identifiers,omitempty"`
	Request     *Request `json:"request,omitempty"`
}

// Outbox is the production Service implementation. The pending request
// set lives in Redis (sorted by fire time); every mutation is also
// published to Kafka for the out-of-process delivery daemon.
//
// Authorization state is owned by the delivery daemon, which records the
// OS-level permission outcome under authorizationKey.
type Outbox struct {
	client   *redis.Client
	producer kafka.Producer
	topic    string
	logger   *slog.Logger
}

const authorizationKey = "notify:authorized"

// NewOutbox creates an Outbox publishing delivery ops to the given topic.
func NewOutbox(client *redis.Client, producer kafka.Producer, topic string, logger *slog.Logger) *Outbox {
	return &Outbox{client: client, producer: producer, topic: topic, logger: logger}
}

// RequestAuthorization reads the permission flag maintained by the
// delivery daemon. Absent means not granted.
func (o *Outbox) RequestAuthorization(ctx context.Context) (bool, error) {
	val, err := o.client.Get(ctx, authorizationKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, fmt.Errorf("read notification authorization: %w", err)
	}
	return val == "1", nil
}

// Pending lists every not-yet-fired request identifier, soonest first.
func (o *Outbox) Pending(ctx context.Context) ([]string, error) {
	ids, err := o.client.ZRange(ctx, pendingSetKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list pending notifications: %w", err)
	}
	return ids, nil
}

// Cancel removes the given requests and tells the delivery daemon to
// drop them.
func (o *Outbox) Cancel(ctx context.Context, identifiers []string) error {
	if len(identifiers) == 0 {
		return nil
	}

	members := make([]interface{}, len(identifiers))
	keys := make([]string, len(identifiers))
	for i, id := range identifiers {
		members[i] = id
		keys[i] = requestKeyPrefix + id
	}

	pipe := o.client.TxPipeline()
	pipe.ZRem(ctx, pendingSetKey, members...)
	pipe.Del(ctx, keys...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cancel %d notifications: %w", len(identifiers), err)
	}

	o.publish(ctx, "", DeliveryOp{Op: "cancel", Identifiers: identifiers})
	return nil
}

// Schedule records the request in the pending set and forwards it to the
// delivery daemon.
func (o *Outbox) Schedule(ctx context.Context, req Request) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal notification request: %w", err)
	}

	pipe := o.client.TxPipeline()
	pipe.Set(ctx, requestKeyPrefix+req.Identifier, body, requestTTL)
	pipe.ZAdd(ctx, pendingSetKey, redis.Z{
		Score:  float64(req.FireAt.Unix()),
		Member: req.Identifier,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store notification %s: %w", req.Identifier, err)
	}

	o.publish(ctx, req.WorkspaceKey, DeliveryOp{Op: "schedule", Request: &req})
	return nil
}

// publish forwards a delivery op to Kafka, best effort with a short
// retry. A lost op is recoverable: the next full sync republishes the
// whole plan.
func (o *Outbox) publish(ctx context.Context, key string, op DeliveryOp) {
	payload, err := json.Marshal(op)
	if err != nil {
		o.logger.Error("marshal delivery op", slog.String("error", err.Error()))
		return
	}

	err = retry.Do(ctx, retry.Config{
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    time.Second,
	}, func() error {
		return o.producer.Publish(ctx, o.topic, key, payload)
	})
	if err != nil {
		o.logger.Error("publish delivery op failed",
			slog.String("op", op.Op),
			slog.String("error", err.Error()),
		)
	}
}
