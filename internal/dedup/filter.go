// Package dedup records which symbols have observed each URL hash and
// serializes first-seen decisions across concurrent pollers.
package dedup

import (
	"context"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces dedup records in Redis.
const DefaultKeyPrefix = "dedup:"

// Filter maps URL hashes to the set of symbols that referenced them. Each
// record is a Redis set. Records only grow, except when an enqueue fails and
// the first-seen decision is rolled back.
type Filter struct {
	client redis.Cmdable
	prefix string
}

// NewFilter creates a filter. An empty prefix uses DefaultKeyPrefix.
func NewFilter(client redis.Cmdable, prefix string) *Filter {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &Filter{client: client, prefix: prefix}
}

// Seen reports whether hash has a non-empty record.
func (f *Filter) Seen(ctx context.Context, hash string) (bool, error) {
	n, err := f.client.SCard(ctx, f.key(hash)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup seen %s: %w", hash, err)
	}
	return n > 0, nil
}

// HasSymbol reports whether symbol is recorded against hash.
func (f *Filter) HasSymbol(ctx context.Context, hash, symbol string) (bool, error) {
	ok, err := f.client.SIsMember(ctx, f.key(hash), symbol).Result()
	if err != nil {
		return false, fmt.Errorf("dedup has symbol %s/%s: %w", hash, symbol, err)
	}
	return ok, nil
}

// RecordFirstSeen creates the record for hash. Callers hold the hash lock and
// have confirmed the hash is unseen.
func (f *Filter) RecordFirstSeen(ctx context.Context, hash, symbol string) error {
	if err := f.client.SAdd(ctx, f.key(hash), symbol).Err(); err != nil {
		return fmt.Errorf("dedup record %s/%s: %w", hash, symbol, err)
	}
	return nil
}

// AddSymbol appends symbol to an existing record. Callers hold the hash lock.
func (f *Filter) AddSymbol(ctx context.Context, hash, symbol string) error {
	if err := f.client.SAdd(ctx, f.key(hash), symbol).Err(); err != nil {
		return fmt.Errorf("dedup add symbol %s/%s: %w", hash, symbol, err)
	}
	return nil
}

// Forget deletes the record for hash so the next observation is first-seen
// again. Callers hold the hash lock.
func (f *Filter) Forget(ctx context.Context, hash string) error {
	if err := f.client.Del(ctx, f.key(hash)).Err(); err != nil {
		return fmt.Errorf("dedup forget %s: %w", hash, err)
	}
	return nil
}

// Symbols returns the sorted symbols recorded against hash.
func (f *Filter) Symbols(ctx context.Context, hash string) ([]string, error) {
	members, err := f.client.SMembers(ctx, f.key(hash)).Result()
	if err != nil {
		return nil, fmt.Errorf("dedup symbols %s: %w", hash, err)
	}
	slices.Sort(members)
	return members, nil
}

// seed writes a full record for hash unless one exists. It is used only when
// warming from persisted documents.
func (f *Filter) seed(ctx context.Context, hash string, symbols []string) (bool, error) {
	seen, err := f.Seen(ctx, hash)
	if err != nil || seen || len(symbols) == 0 {
		return false, err
	}

	members := make([]any, len(symbols))
	for i, s := range symbols {
		members[i] = s
	}

	if addErr := f.client.SAdd(ctx, f.key(hash), members...).Err(); addErr != nil {
		return false, fmt.Errorf("dedup seed %s: %w", hash, addErr)
	}
	return true, nil
}

func (f *Filter) key(hash string) string {
	return f.prefix + hash
}
