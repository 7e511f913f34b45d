package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// Default key names and timeouts.
const (
	DefaultPendingKey    = "pending"
	DefaultHandoffKey    = "nlp"
	DefaultChannelPrefix = "news_"
	DefaultPopTimeout    = 50 * time.Second
)

// ErrTimeout is returned by Pop when no job arrived within the pop timeout.
var ErrTimeout = errors.New("queue pop timed out")

// Config names the Redis keys used by the queue.
type Config struct {
	PendingKey    string        `mapstructure:"pending_key"`
	HandoffKey    string        `mapstructure:"handoff_key"`
	ChannelPrefix string        `mapstructure:"channel_prefix"`
	PopTimeout    time.Duration `mapstructure:"pop_timeout"`
}

// WithDefaults returns a copy with zero fields replaced by defaults.
func (c Config) WithDefaults() Config {
	if c.PendingKey == "" {
		c.PendingKey = DefaultPendingKey
	}
	if c.HandoffKey == "" {
		c.HandoffKey = DefaultHandoffKey
	}
	if c.ChannelPrefix == "" {
		c.ChannelPrefix = DefaultChannelPrefix
	}
	if c.PopTimeout <= 0 {
		c.PopTimeout = DefaultPopTimeout
	}
	return c
}

// Producer pushes jobs onto the pending list.
type Producer struct {
	client redis.Cmdable
	key    string
}

// NewProducer creates a producer.
func NewProducer(client redis.Cmdable, cfg Config) *Producer {
	return &Producer{client: client, key: cfg.WithDefaults().PendingKey}
}

// Push enqueues job at the head of the list.
func (p *Producer) Push(ctx context.Context, job *domain.PendingJob) error {
	data, err := Encode(job)
	if err != nil {
		return err
	}
	if pushErr := p.client.LPush(ctx, p.key, data).Err(); pushErr != nil {
		return fmt.Errorf("push job %s: %w", job.URLHash, pushErr)
	}
	return nil
}

// Consumer pops jobs from the tail of the pending list.
type Consumer struct {
	client  redis.Cmdable
	key     string
	timeout time.Duration
}

// NewConsumer creates a consumer.
func NewConsumer(client redis.Cmdable, cfg Config) *Consumer {
	cfg = cfg.WithDefaults()
	return &Consumer{client: client, key: cfg.PendingKey, timeout: cfg.PopTimeout}
}

// Pop blocks up to the pop timeout for the next job. It returns ErrTimeout
// when the list stayed empty and ErrMalformedJob for undecodable payloads,
// which are consumed and not retried.
func (c *Consumer) Pop(ctx context.Context) (*domain.PendingJob, error) {
	result, err := c.client.BRPop(ctx, c.timeout, c.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTimeout
	}
	if err != nil {
		return nil, fmt.Errorf("pop job: %w", err)
	}

	// BRPOP replies with [key, value].
	return Decode([]byte(result[1]))
}

// Len returns the number of queued jobs.
func (c *Consumer) Len(ctx context.Context) (int64, error) {
	n, err := c.client.LLen(ctx, c.key).Result()
	if err != nil {
		return 0, fmt.Errorf("queue length: %w", err)
	}
	return n, nil
}

// Handoff pushes stored document ids to the NLP consumer.
type Handoff struct {
	client redis.Cmdable
	key    string
}

// NewHandoff creates a handoff producer.
func NewHandoff(client redis.Cmdable, cfg Config) *Handoff {
	return &Handoff{client: client, key: cfg.WithDefaults().HandoffKey}
}

// Push enqueues a document id.
func (h *Handoff) Push(ctx context.Context, docID string) error {
	if err := h.client.LPush(ctx, h.key, docID).Err(); err != nil {
		return fmt.Errorf("handoff %s: %w", docID, err)
	}
	return nil
}
