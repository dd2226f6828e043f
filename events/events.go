// Package events publishes tenant lifecycle events to Redis pub/sub so
// external consumers (and the websocket stream) can observe hosting activity
// without polling the orchestrator.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Topic is the pub/sub channel lifecycle events are published on.
const Topic = "hoster:lifecycle"

// Event types.
const (
	TypeHosted          = "hosted"
	TypeStopped         = "stopped"
	TypeEvicted         = "evicted"
	TypeProvisionFailed = "provision_failed"
)

// Event is one tenant lifecycle transition.
type Event struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UserID      int64     `json:"user_id"`
	BotUsername string    `json:"bot_username,omitempty"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher emits lifecycle events. A nil Publisher (or one without Redis
// configured) silently drops events so callers never need to branch.
type Publisher struct {
	redis *redis.Client
	log   *slog.Logger
}

func NewPublisher(redisClient *redis.Client) *Publisher {
	return &Publisher{
		redis: redisClient,
		log:   slog.Default().With("component", "events"),
	}
}

// Publish fills in the event's ID and timestamp and emits it. Publish
// failures are logged, never propagated: event delivery is best-effort and
// must not fail a hosting operation.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	if p == nil || p.redis == nil {
		return
	}

	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("marshal lifecycle event", "type", event.Type, "err", err)
		return
	}

	if err := p.redis.Publish(ctx, Topic, payload).Err(); err != nil {
		p.log.Error("publish lifecycle event", "type", event.Type, "err", err)
	}
}

// Subscribe returns a receive channel of decoded lifecycle events along with
// a close function. Used by the websocket stream route.
func (p *Publisher) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	if p == nil || p.redis == nil {
		return nil, nil, fmt.Errorf("redis is not configured")
	}

	pubsub := p.redis.Subscribe(ctx, Topic)
	out := make(chan Event)

	go func() {
		defer close(out)
		for {
			message, err := pubsub.ReceiveMessage(ctx)
			if err != nil {
				return
			}
			var event Event
			if err := json.Unmarshal([]byte(message.Payload), &event); err != nil {
				p.log.Error("decode lifecycle event", "err", err)
				continue
			}
			select {
			case out <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }, nil
}
