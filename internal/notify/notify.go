// Package notify fans delivery updates out over Redis pub/sub.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"meal-subscription/internal/subscription"
)

// DeliveryUpdate is the message published for every delivery change.
type DeliveryUpdate struct {
	UserID        string                      `json:"userId"`
	OrderID       string                      `json:"orderId"`
	Status        subscription.DeliveryStatus `json:"status"`
	EstimatedTime string                      `json:"estimatedTime"`
}

// Publisher publishes delivery updates on a Redis channel.
type Publisher struct {
	rdb     redis.UniversalClient
	channel string
	logger  *slog.Logger
	timeout time.Duration
}

// NewPublisher creates a Publisher.
func NewPublisher(rdb redis.UniversalClient, channel string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{rdb: rdb, channel: channel, logger: logger, timeout: 2 * time.Second}
}

// Publish sends one update.
func (p *Publisher) Publish(ctx context.Context, userID string, d subscription.DeliveryTracking) error {
	data, err := json.Marshal(DeliveryUpdate{
		UserID:        userID,
		OrderID:       d.OrderID,
		Status:        d.Status,
		EstimatedTime: d.EstimatedTime,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal delivery update: %w", err)
	}
	if err := p.rdb.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish delivery update: %w", err)
	}
	return nil
}

// Listener adapts the publisher to subscription.Registry.OnDelivery.
// Failures are logged; delivery simulation never waits on Redis for long.
func (p *Publisher) Listener() func(userID string, d subscription.DeliveryTracking) {
	return func(userID string, d subscription.DeliveryTracking) {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		if err := p.Publish(ctx, userID, d); err != nil {
			p.logger.Warn("delivery update not published",
				"user_id", userID, "order_id", d.OrderID, "status", d.Status, "error", err)
		}
	}
}

// Subscribe calls handle for every update on channel until ctx is done.
// Undecodable messages are logged and skipped.
func Subscribe(ctx context.Context, rdb redis.UniversalClient, channel string, logger *slog.Logger, handle func(DeliveryUpdate)) error {
	if logger == nil {
		logger = slog.Default()
	}
	pubsub := rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so no early message is lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}
	logger.Info("subscribed to delivery updates", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var u DeliveryUpdate
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				logger.Warn("invalid delivery update payload", "error", err)
				continue
			}
			handle(u)
		case <-ctx.Done():
			return nil
		}
	}
}

// Tracking converts the update back into the store's delivery type. Courier
// and location details are not carried on the channel.
func (u DeliveryUpdate) Tracking() subscription.DeliveryTracking {
	return subscription.DeliveryTracking{
		OrderID:       u.OrderID,
		Status:        u.Status,
		EstimatedTime: u.EstimatedTime,
	}
}
