package dedup

import (
	"context"
	"fmt"

	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

// DocumentSource iterates the hash and symbols of every persisted article.
type DocumentSource interface {
	ForEachSymbols(ctx context.Context, fn func(hash string, symbols []string) error) error
}

// Warm seeds the filter from persisted articles so a restart does not
// re-enqueue them. Hashes that already have a record are left alone.
func Warm(ctx context.Context, filter *Filter, source DocumentSource, log logger.Logger) (int, error) {
	scanned, seeded := 0, 0

	err := source.ForEachSymbols(ctx, func(hash string, symbols []string) error {
		scanned++
		ok, seedErr := filter.seed(ctx, hash, symbols)
		if seedErr != nil {
			return seedErr
		}
		if ok {
			seeded++
		}
		return nil
	})
	if err != nil {
		return seeded, fmt.Errorf("warm dedup filter: %w", err)
	}

	log.Info("Dedup filter warmed",
		logger.Int("scanned", scanned),
		logger.Int("seeded", seeded),
	)

	return seeded, nil
}
