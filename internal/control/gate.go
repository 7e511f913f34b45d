package control

import (
	"context"
	"time"

	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// DefaultPauseInterval is how often a paused loop re-reads its switch.
const DefaultPauseInterval = time.Second

// StepFunc runs one unit of work. A returned error ends the loop.
type StepFunc func(ctx context.Context) error

// Gate drives a loop from a switch: steps run while the switch reads
// running, the loop idles while paused and returns once stopped.
type Gate struct {
	reader        Reader
	interval      time.Duration
	pauseInterval time.Duration
	log           logger.Logger
}

// NewGate creates a gate. interval is slept between steps; zero disables
// the sleep. A non-positive pauseInterval uses DefaultPauseInterval.
func NewGate(reader Reader, interval, pauseInterval time.Duration, log logger.Logger) *Gate {
	if pauseInterval <= 0 {
		pauseInterval = DefaultPauseInterval
	}
	return &Gate{
		reader:        reader,
		interval:      interval,
		pauseInterval: pauseInterval,
		log:           log,
	}
}

// Run loops until the switch reads stop, ctx is cancelled or step fails.
// Stop and cancellation are observed between steps, never during one.
func (g *Gate) Run(ctx context.Context, step StepFunc) error {
	prev := StatePaused

	for {
		if ctx.Err() != nil {
			g.log.Info("Control loop cancelled")
			return nil
		}

		state, err := g.reader.State(ctx)
		if err != nil {
			g.log.Warn("Control switch unreadable, waiting", logger.Error(err))
		}

		if state != prev {
			g.log.Info("Control state changed",
				logger.String("from", string(prev)),
				logger.String("to", string(state)),
			)
			prev = state
		}

		switch state {
		case StateStopped:
			return nil
		case StatePaused:
			if !sleep(ctx, g.pauseInterval) {
				return nil
			}
			continue
		case StateRunning:
		}

		if stepErr := step(ctx); stepErr != nil {
			return stepErr
		}

		if g.interval > 0 && !sleep(ctx, g.interval) {
			return nil
		}
	}
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
