package dedup

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/rssnews/internal/coordination"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// DefaultLockWait bounds how long Observe waits for a hash lock.
const DefaultLockWait = 5 * time.Second

// Outcome is the result of observing a hash for a symbol.
type Outcome int

const (
	// Known means the symbol was already recorded against the hash.
	Known Outcome = iota
	// FirstSeen means this observation created the record.
	FirstSeen
	// SymbolAdded means the hash existed and the symbol was appended.
	SymbolAdded
)

// String returns the outcome name used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case FirstSeen:
		return "first_seen"
	case SymbolAdded:
		return "symbol_added"
	default:
		return "known"
	}
}

// IsNew reports whether the observation changed the record.
func (o Outcome) IsNew() bool {
	return o != Known
}

// SymbolAppender appends a symbol to an already stored article, if any.
type SymbolAppender interface {
	AddSymbol(ctx context.Context, hash, symbol string) error
}

// Guard runs the locked check-and-insert protocol over a Filter.
type Guard struct {
	filter *Filter
	locks  coordination.Factory
	store  SymbolAppender
	wait   time.Duration
	log    logger.Logger
}

// NewGuard creates a guard. A non-positive wait uses DefaultLockWait.
func NewGuard(
	filter *Filter,
	locks coordination.Factory,
	store SymbolAppender,
	wait time.Duration,
	log logger.Logger,
) *Guard {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &Guard{
		filter: filter,
		locks:  locks,
		store:  store,
		wait:   wait,
		log:    log,
	}
}

// Filter returns the underlying filter.
func (g *Guard) Filter() *Filter {
	return g.filter
}

// Observe records that symbol referenced hash. A lock timeout is returned as
// coordination.ErrLockNotAcquired and leaves the record untouched.
func (g *Guard) Observe(ctx context.Context, hash, symbol string) (Outcome, error) {
	has, err := g.filter.HasSymbol(ctx, hash, symbol)
	if err != nil {
		return Known, err
	}
	if has {
		return Known, nil
	}

	lock := g.locks.ForKey(hash)
	token, err := lock.Acquire(ctx, g.wait)
	if err != nil {
		return Known, fmt.Errorf("observe %s: %w", hash, err)
	}

	outcome, err := g.observeLocked(ctx, hash, symbol)

	if releaseErr := lock.Release(ctx, token); releaseErr != nil {
		g.log.Warn("Failed to release dedup lock",
			logger.String("url_hash", hash),
			logger.Error(releaseErr),
		)
	}

	return outcome, err
}

// Rollback undoes a first-seen decision whose job never reached the queue.
// The whole record is dropped: symbols appended meanwhile by other pollers
// are recorded again when their feeds next reference the hash.
func (g *Guard) Rollback(ctx context.Context, hash string) error {
	lock := g.locks.ForKey(hash)
	token, err := lock.Acquire(ctx, g.wait)
	if err != nil {
		return fmt.Errorf("rollback %s: %w", hash, err)
	}

	err = g.filter.Forget(ctx, hash)

	if releaseErr := lock.Release(ctx, token); releaseErr != nil {
		g.log.Warn("Failed to release dedup lock",
			logger.String("url_hash", hash),
			logger.Error(releaseErr),
		)
	}

	return err
}

func (g *Guard) observeLocked(ctx context.Context, hash, symbol string) (Outcome, error) {
	seen, err := g.filter.Seen(ctx, hash)
	if err != nil {
		return Known, err
	}

	if !seen {
		if recordErr := g.filter.RecordFirstSeen(ctx, hash, symbol); recordErr != nil {
			return Known, recordErr
		}
		return FirstSeen, nil
	}

	has, err := g.filter.HasSymbol(ctx, hash, symbol)
	if err != nil {
		return Known, err
	}
	if has {
		return Known, nil
	}

	if addErr := g.filter.AddSymbol(ctx, hash, symbol); addErr != nil {
		return Known, addErr
	}

	if storeErr := g.store.AddSymbol(ctx, hash, symbol); storeErr != nil {
		// The persister reconciles stored symbols from the filter.
		g.log.Warn("Failed to append symbol to stored article",
			logger.String("url_hash", hash),
			logger.String("symbol", symbol),
			logger.Error(storeErr),
		)
	}

	return SymbolAdded, nil
}
