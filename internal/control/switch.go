// Package control implements the shared start/stop switches that gate the
// polling and fetching loops.
package control

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Switch keys.
const (
	FeedKey    = "feed_updater"
	ArticleKey = "article_spider"
)

// Switch values.
const (
	ValueStart = "start"
	ValueStop  = "stop"
)

// State is the loop state derived from a switch value.
type State string

const (
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateStopped State = "stopped"
)

// ErrInvalidValue is returned when setting a switch to anything but start or stop.
var ErrInvalidValue = errors.New("control value must be start or stop")

// ErrUnknownChannel is returned for channel names other than feed or article.
var ErrUnknownChannel = errors.New("unknown control channel")

// ParseState maps a raw switch value to a state. Anything other than start
// or stop, including an empty value, is a wait state.
func ParseState(value string) State {
	switch value {
	case ValueStart:
		return StateRunning
	case ValueStop:
		return StateStopped
	default:
		return StatePaused
	}
}

// KeyForChannel maps the short channel names used by the CLI and admin API
// to switch keys.
func KeyForChannel(channel string) (string, error) {
	switch channel {
	case "feed", FeedKey:
		return FeedKey, nil
	case "article", ArticleKey:
		return ArticleKey, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
	}
}

// Reader reports the current state of a switch.
type Reader interface {
	State(ctx context.Context) (State, error)
}

// Switch is one Redis string key holding start or stop.
type Switch struct {
	client redis.Cmdable
	key    string
}

// NewSwitch creates a switch on key.
func NewSwitch(client redis.Cmdable, key string) *Switch {
	return &Switch{client: client, key: key}
}

// Key returns the switch key.
func (s *Switch) Key() string {
	return s.key
}

// Value returns the raw switch value; a missing key reads as empty.
func (s *Switch) Value(ctx context.Context) (string, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read control %s: %w", s.key, err)
	}
	return val, nil
}

// State returns the parsed state. A read failure yields StatePaused with the error.
func (s *Switch) State(ctx context.Context) (State, error) {
	val, err := s.Value(ctx)
	if err != nil {
		return StatePaused, err
	}
	return ParseState(val), nil
}

// Set writes start or stop.
func (s *Switch) Set(ctx context.Context, value string) error {
	if value != ValueStart && value != ValueStop {
		return fmt.Errorf("%w: %q", ErrInvalidValue, value)
	}
	if err := s.client.Set(ctx, s.key, value, 0).Err(); err != nil {
		return fmt.Errorf("write control %s: %w", s.key, err)
	}
	return nil
}
