// Package notify announces committed sales to interested listeners.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"pharmatrack/m/domain"
)

const DefaultChannel = "pharmatrack:sales"

type Publisher interface {
	PublishSaleCommitted(ctx context.Context, ev domain.SaleCommitted) error
}

// RedisPublisher sends each event as JSON on a pub/sub channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) PublishSaleCommitted(ctx context.Context, ev domain.SaleCommitted) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode sale event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish sale %d: %w", ev.SaleID, err)
	}
	return nil
}

// LogPublisher writes events to the log when no broker is configured.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishSaleCommitted(_ context.Context, ev domain.SaleCommitted) error {
	p.log.Info("sale committed",
		zap.String("event_id", ev.EventID),
		zap.Int64("sale_id", ev.SaleID),
		zap.Int64("clerk_id", ev.ClerkID),
		zap.String("total", ev.TotalAmount.StringFixed(2)),
		zap.Int("items", ev.ItemCount),
	)
	return nil
}
