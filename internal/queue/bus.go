package queue

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// Bus fans jobs out on per-symbol channels.
type Bus struct {
	client *redis.Client
	prefix string
}

// NewBus creates a notification bus.
func NewBus(client *redis.Client, cfg Config) *Bus {
	return &Bus{client: client, prefix: cfg.WithDefaults().ChannelPrefix}
}

// Channel returns the channel name for symbol.
func (b *Bus) Channel(symbol string) string {
	return b.prefix + symbol
}

// Publish sends job on the symbol's channel and returns the receiver count.
func (b *Bus) Publish(ctx context.Context, symbol string, job *domain.PendingJob) (int64, error) {
	data, err := Encode(job)
	if err != nil {
		return 0, err
	}

	n, err := b.client.Publish(ctx, b.Channel(symbol), data).Result()
	if err != nil {
		return 0, fmt.Errorf("publish %s on %s: %w", job.URLHash, b.Channel(symbol), err)
	}
	return n, nil
}

// Subscription receives jobs published for one symbol.
type Subscription struct {
	pubsub *redis.PubSub
}

// Subscribe listens on the symbol's channel. The subscription is confirmed
// before Subscribe returns.
func (b *Bus) Subscribe(ctx context.Context, symbol string) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, b.Channel(symbol))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", b.Channel(symbol), err)
	}
	return &Subscription{pubsub: pubsub}, nil
}

// Next blocks for the next job or until ctx is done.
func (s *Subscription) Next(ctx context.Context) (*domain.PendingJob, error) {
	msg, err := s.pubsub.ReceiveMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("receive notification: %w", err)
	}
	return Decode([]byte(msg.Payload))
}

// Close ends the subscription.
func (s *Subscription) Close() error {
	return s.pubsub.Close()
}
