package dedup_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/rssnews/internal/coordination"
	"github.com/jonesrussell/north-cloud/rssnews/internal/dedup"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
)

type recordingStore struct {
	mu    sync.Mutex
	calls map[string][]string
	err   error
}

func newRecordingStore() *recordingStore {
	return &recordingStore{calls: make(map[string][]string)}
}

func (s *recordingStore) AddSymbol(_ context.Context, hash, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[hash] = append(s.calls[hash], symbol)
	return s.err
}

func setup(t *testing.T) (*miniredis.Miniredis, *redis.Client, *dedup.Filter) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, client, dedup.NewFilter(client, "")
}

func newGuard(client *redis.Client, filter *dedup.Filter, store dedup.SymbolAppender) *dedup.Guard {
	locks := coordination.NewLeaseFactory(client, coordination.LockConfig{RetryDelay: time.Millisecond})
	return dedup.NewGuard(filter, locks, store, 5*time.Second, logger.NewNop())
}

func TestFilter_Operations(t *testing.T) {
	t.Parallel()

	_, _, f := setup(t)
	ctx := context.Background()

	seen, err := f.Seen(ctx, "h")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, f.RecordFirstSeen(ctx, "h", "ACME"))
	require.NoError(t, f.AddSymbol(ctx, "h", "BETA"))
	require.NoError(t, f.AddSymbol(ctx, "h", "ACME"))

	seen, err = f.Seen(ctx, "h")
	require.NoError(t, err)
	assert.True(t, seen)

	has, err := f.HasSymbol(ctx, "h", "BETA")
	require.NoError(t, err)
	assert.True(t, has)

	syms, err := f.Symbols(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, []string{"ACME", "BETA"}, syms)
}

func TestGuard_Observe_Sequence(t *testing.T) {
	t.Parallel()

	mr, client, f := setup(t)
	store := newRecordingStore()
	g := newGuard(client, f, store)
	ctx := context.Background()

	outcome, err := g.Observe(ctx, "h1", "ACME")
	require.NoError(t, err)
	assert.Equal(t, dedup.FirstSeen, outcome)

	outcome, err = g.Observe(ctx, "h1", "ACME")
	require.NoError(t, err)
	assert.Equal(t, dedup.Known, outcome)
	assert.False(t, outcome.IsNew())

	outcome, err = g.Observe(ctx, "h1", "BETA")
	require.NoError(t, err)
	assert.Equal(t, dedup.SymbolAdded, outcome)
	assert.Equal(t, []string{"BETA"}, store.calls["h1"])

	assert.False(t, mr.Exists("lock:h1"), "lock must be released")
}

func TestGuard_Observe_OrderIndependent(t *testing.T) {
	t.Parallel()

	orders := [][]string{{"A", "B"}, {"B", "A"}}
	for _, order := range orders {
		_, client, f := setup(t)
		g := newGuard(client, f, newRecordingStore())

		for _, sym := range order {
			_, err := g.Observe(context.Background(), "h", sym)
			require.NoError(t, err)
		}

		syms, err := f.Symbols(context.Background(), "h")
		require.NoError(t, err)
		assert.Equal(t, []string{"A", "B"}, syms)
	}
}

func TestGuard_Observe_ConcurrentFirstSeen(t *testing.T) {
	t.Parallel()

	_, client, f := setup(t)
	g := newGuard(client, f, newRecordingStore())

	const workers = 16
	outcomes := make([]dedup.Outcome, workers)

	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := g.Observe(context.Background(), "shared", "SYM"+string(rune('A'+i)))
			assert.NoError(t, err)
			outcomes[i] = out
		}(i)
	}
	wg.Wait()

	firstSeen := 0
	for _, out := range outcomes {
		if out == dedup.FirstSeen {
			firstSeen++
		} else {
			assert.Equal(t, dedup.SymbolAdded, out)
		}
	}
	assert.Equal(t, 1, firstSeen)

	syms, err := f.Symbols(context.Background(), "shared")
	require.NoError(t, err)
	assert.Len(t, syms, workers)
}

func TestGuard_Observe_LockTimeoutSkips(t *testing.T) {
	t.Parallel()

	mr, client, f := setup(t)
	locks := coordination.NewLeaseFactory(client, coordination.LockConfig{RetryDelay: time.Millisecond})
	g := dedup.NewGuard(f, locks, newRecordingStore(), 10*time.Millisecond, logger.NewNop())

	require.NoError(t, mr.Set("lock:busy", "other"))

	_, err := g.Observe(context.Background(), "busy", "ACME")
	require.ErrorIs(t, err, coordination.ErrLockNotAcquired)

	seen, err := f.Seen(context.Background(), "busy")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestGuard_Observe_StoreFailureStillRecords(t *testing.T) {
	t.Parallel()

	_, client, f := setup(t)
	store := newRecordingStore()
	store.err = errors.New("store down")
	g := newGuard(client, f, store)
	ctx := context.Background()

	_, err := g.Observe(ctx, "h", "A")
	require.NoError(t, err)

	outcome, err := g.Observe(ctx, "h", "B")
	require.NoError(t, err)
	assert.Equal(t, dedup.SymbolAdded, outcome)

	has, err := f.HasSymbol(ctx, "h", "B")
	require.NoError(t, err)
	assert.True(t, has)
}

type docSource map[string][]string

func (d docSource) ForEachSymbols(_ context.Context, fn func(string, []string) error) error {
	for h, syms := range d {
		if err := fn(h, syms); err != nil {
			return err
		}
	}
	return nil
}

func TestWarm_OnlySeedsMissingHashes(t *testing.T) {
	t.Parallel()

	_, _, f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.RecordFirstSeen(ctx, "existing", "LIVE"))

	seeded, err := dedup.Warm(ctx, f, docSource{
		"existing": {"OLD"},
		"stored":   {"A", "B"},
	}, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 1, seeded)

	syms, err := f.Symbols(ctx, "existing")
	require.NoError(t, err)
	assert.Equal(t, []string{"LIVE"}, syms)

	syms, err = f.Symbols(ctx, "stored")
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, syms)
}

func TestGuard_Rollback_MakesHashFirstSeenAgain(t *testing.T) {
	t.Parallel()

	mr, client, f := setup(t)
	g := newGuard(client, f, newRecordingStore())
	ctx := context.Background()

	outcome, err := g.Observe(ctx, "h", "ACME")
	require.NoError(t, err)
	require.Equal(t, dedup.FirstSeen, outcome)
	_, err = g.Observe(ctx, "h", "BETA")
	require.NoError(t, err)

	require.NoError(t, g.Rollback(ctx, "h"))

	seen, err := f.Seen(ctx, "h")
	require.NoError(t, err)
	assert.False(t, seen)
	assert.False(t, mr.Exists("lock:h"), "lock must be released")

	outcome, err = g.Observe(ctx, "h", "BETA")
	require.NoError(t, err)
	assert.Equal(t, dedup.FirstSeen, outcome)
}

func TestGuard_Rollback_LockBusy(t *testing.T) {
	t.Parallel()

	mr, client, f := setup(t)
	locks := coordination.NewLeaseFactory(client, coordination.LockConfig{RetryDelay: time.Millisecond})
	g := dedup.NewGuard(f, locks, newRecordingStore(), 20*time.Millisecond, logger.NewNop())
	ctx := context.Background()

	require.NoError(t, f.RecordFirstSeen(ctx, "h", "ACME"))
	require.NoError(t, mr.Set("lock:h", "someone"))

	err := g.Rollback(ctx, "h")
	require.ErrorIs(t, err, coordination.ErrLockNotAcquired)

	seen, err := f.Seen(ctx, "h")
	require.NoError(t, err)
	assert.True(t, seen)
}
