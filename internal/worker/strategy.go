// Package worker dispatches feed polling tasks under one of two strategies:
// a dedicated gated loop per task, or one gated loop that fans every task out
// to a bounded pool.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/rssnews/internal/control"
	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// Modes accepted by New.
const (
	ModeEach = "each"
	ModeAll  = "all"
)

// DefaultPoolSize is the shared pool size when none is configured.
const DefaultPoolSize = 8

// ErrUnknownMode is returned by New for an unrecognized mode.
var ErrUnknownMode = errors.New("unknown worker mode")

// TaskFunc handles one task. Errors are logged and the task is retried on
// the next cycle.
type TaskFunc func(ctx context.Context, task *domain.FeedSource) error

// Strategy runs tasks until the control gate stops or ctx is cancelled.
type Strategy interface {
	Run(ctx context.Context, tasks []*domain.FeedSource, fn TaskFunc) error
}

// New returns the strategy for mode.
func New(mode string, poolSize int, gate *control.Gate, log logger.Logger) (Strategy, error) {
	switch mode {
	case ModeEach:
		return NewPerTask(gate, log), nil
	case ModeAll:
		return NewSharedPool(poolSize, gate, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
}

// PerTask runs one dedicated loop per task.
type PerTask struct {
	gate *control.Gate
	log  logger.Logger
}

// NewPerTask creates the per-task strategy.
func NewPerTask(gate *control.Gate, log logger.Logger) *PerTask {
	return &PerTask{gate: gate, log: log}
}

// Run starts a loop for every task and waits for all of them to end.
func (p *PerTask) Run(ctx context.Context, tasks []*domain.FeedSource, fn TaskFunc) error {
	p.log.Info("Starting per-task workers", logger.Int("tasks", len(tasks)))

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)

	for _, task := range tasks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := p.gate.Run(ctx, func(ctx context.Context) error {
				runTask(ctx, task, fn, p.log)
				return nil
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	return errors.Join(errs...)
}

// SharedPool runs one loop whose every cycle pushes all tasks through a
// bounded pool.
type SharedPool struct {
	size int
	gate *control.Gate
	log  logger.Logger
}

// NewSharedPool creates the shared pool strategy. A non-positive size uses
// DefaultPoolSize.
func NewSharedPool(size int, gate *control.Gate, log logger.Logger) *SharedPool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &SharedPool{size: size, gate: gate, log: log}
}

// Run loops over all tasks with at most size running at once.
func (s *SharedPool) Run(ctx context.Context, tasks []*domain.FeedSource, fn TaskFunc) error {
	s.log.Info("Starting shared pool",
		logger.Int("tasks", len(tasks)),
		logger.Int("pool_size", s.size),
	)

	return s.gate.Run(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(s.size)

		for _, task := range tasks {
			g.Go(func() error {
				runTask(gctx, task, fn, s.log)
				return nil
			})
		}

		return g.Wait()
	})
}

func runTask(ctx context.Context, task *domain.FeedSource, fn TaskFunc, log logger.Logger) {
	if err := fn(ctx, task); err != nil {
		log.Error("Task failed",
			logger.String("symbol", task.Symbol),
			logger.String("feed_url", task.FeedURL),
			logger.Error(err),
		)
	}
}
