package articles_test

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

	"github.com/jonesrussell/north-cloud/rssnews/internal/articles"
	"github.com/jonesrussell/north-cloud/rssnews/internal/dedup"
	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
)

type memStore struct {
	mu      sync.Mutex
	docs    map[string]*domain.ArticleDocument
	added   []string
	onWrite func()
}

func newMemStore() *memStore {
	return &memStore{docs: make(map[string]*domain.ArticleDocument)}
}

func (s *memStore) Insert(_ context.Context, doc *domain.ArticleDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[doc.URLHash]; ok {
		return storage.ErrDuplicateDocument
	}
	stored := *doc
	stored.Symbols = append([]string(nil), doc.Symbols...)
	s.docs[doc.URLHash] = &stored
	if s.onWrite != nil {
		s.onWrite()
	}
	return nil
}

func (s *memStore) AddSymbol(_ context.Context, hash, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.added = append(s.added, symbol)
	if doc, ok := s.docs[hash]; ok {
		doc.Symbols = domain.MergeSymbols(doc.Symbols, []string{symbol})
	}
	return nil
}

func (s *memStore) ForEachSymbols(_ context.Context, fn func(string, []string) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash, doc := range s.docs {
		if err := fn(hash, doc.Symbols); err != nil {
			return err
		}
	}
	return nil
}

type failingArchiver struct{ calls int }

func (a *failingArchiver) Archive(context.Context, *domain.ArticleDocument) error {
	a.calls++
	return errors.New("bucket unavailable")
}

type fixture struct {
	client  *redis.Client
	filter  *dedup.Filter
	store   *memStore
}

func newFixture(t *testing.T) (*fixture, *articles.Persister) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := &fixture{
		client: client,
		filter: dedup.NewFilter(client, ""),
		store:  newMemStore(),
	}

	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	p := articles.NewPersister(
		f.store,
		f.filter,
		queue.NewHandoff(client, queue.Config{}),
		logger.NewNop(),
		articles.WithClock(func() time.Time { return fixed }),
	)

	return f, p
}

func job() *domain.PendingJob {
	return &domain.PendingJob{
		URLHash:      "1a2b3c4d",
		Title:        "Earnings beat",
		Link:         "http://feeds.example/r/1",
		CanonicalURL: "http://news.example/a",
		Symbols:      []string{"AAPL"},
	}
}

func TestPersist_StoresAndHandsOff(t *testing.T) {
	t.Parallel()

	f, p := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.filter.RecordFirstSeen(ctx, "1a2b3c4d", "AAPL"))
	require.NoError(t, f.filter.AddSymbol(ctx, "1a2b3c4d", "MSFT"))

	content := "body text\n"
	doc, err := p.Persist(ctx, job(), []byte("<html>body text</html>"), &content)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, doc.Symbols)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), doc.ParsedAt)
	require.NotNil(t, doc.Content)

	raw, err := storage.Decompress(doc.RawMarkup)
	require.NoError(t, err)
	assert.Equal(t, "<html>body text</html>", string(raw))

	ids, err := f.client.LRange(ctx, queue.DefaultHandoffKey, 0, -1).Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"1a2b3c4d"}, ids)
}

func TestPersist_NoContentSkipsHandoff(t *testing.T) {
	t.Parallel()

	f, p := newFixture(t)
	ctx := context.Background()

	doc, err := p.Persist(ctx, job(), []byte("<html></html>"), nil)
	require.NoError(t, err)
	assert.False(t, doc.HasContent())
	assert.Contains(t, f.store.docs, "1a2b3c4d")

	n, err := f.client.LLen(ctx, queue.DefaultHandoffKey).Result()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestPersist_DuplicateIsReturned(t *testing.T) {
	t.Parallel()

	_, p := newFixture(t)
	ctx := context.Background()

	_, err := p.Persist(ctx, job(), []byte("<p>x</p>"), nil)
	require.NoError(t, err)

	_, err = p.Persist(ctx, job(), []byte("<p>x</p>"), nil)
	require.ErrorIs(t, err, storage.ErrDuplicateDocument)
}

func TestPersist_AppendsSymbolsRecordedDuringInsert(t *testing.T) {
	t.Parallel()

	f, p := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.filter.RecordFirstSeen(ctx, "1a2b3c4d", "AAPL"))

	// A poller observes a second symbol after the document was built.
	f.store.onWrite = func() {
		_ = f.filter.AddSymbol(ctx, "1a2b3c4d", "GOOG")
	}

	doc, err := p.Persist(ctx, job(), []byte("<p>x</p>"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"GOOG"}, f.store.added)
	assert.Equal(t, []string{"AAPL", "GOOG"}, f.store.docs["1a2b3c4d"].Symbols)
	assert.Equal(t, []string{"AAPL", "GOOG"}, doc.Symbols)
}

func TestPersist_ArchiveFailureIsNotFatal(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	archiver := &failingArchiver{}
	p := articles.NewPersister(
		newMemStore(),
		dedup.NewFilter(client, ""),
		queue.NewHandoff(client, queue.Config{}),
		logger.NewNop(),
		articles.WithArchiver(archiver),
	)

	content := "text\n"
	_, err := p.Persist(context.Background(), job(), []byte("<p>text</p>"), &content)
	require.NoError(t, err)
	assert.Equal(t, 1, archiver.calls)
}
