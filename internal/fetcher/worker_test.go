package fetcher_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/rssnews/internal/control"
	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
	"github.com/jonesrussell/north-cloud/rssnews/internal/extract"
	"github.com/jonesrussell/north-cloud/rssnews/internal/fetcher"
	"github.com/jonesrussell/north-cloud/rssnews/internal/frontier"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
)

const articlePage = `<html><body><div><p>Shares rose sharply after the quarterly report.</p></div></body></html>`

func redirectTo(target string) string {
	return fmt.Sprintf(`<script src="/r.js"></script><script>location.replace(URL='%s');</script>`, target)
}

// siteFetcher serves canned responses by URL; unknown URLs fail at the transport.
type siteFetcher struct {
	pages map[string]*engine.Response
	calls []string
}

func (s *siteFetcher) Fetch(_ context.Context, rawURL string) (*engine.Response, error) {
	s.calls = append(s.calls, rawURL)
	resp, ok := s.pages[rawURL]
	if !ok {
		return nil, errors.New("connection refused")
	}
	return resp, nil
}

func page(body string) *engine.Response {
	return &engine.Response{StatusCode: http.StatusOK, Body: []byte(body)}
}

func status(code int) *engine.Response {
	return &engine.Response{StatusCode: code}
}

type recordingPersister struct {
	jobs     []*domain.PendingJob
	contents []*string
	err      error
}

func (p *recordingPersister) Persist(
	_ context.Context,
	job *domain.PendingJob,
	_ []byte,
	content *string,
) (*domain.ArticleDocument, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.jobs = append(p.jobs, job)
	p.contents = append(p.contents, content)
	return &domain.ArticleDocument{URLHash: job.URLHash, CanonicalURL: job.CanonicalURL, Content: content}, nil
}

type recordingQueue struct {
	pushed []*domain.PendingJob
}

func (q *recordingQueue) Push(_ context.Context, job *domain.PendingJob) error {
	copied := *job
	q.pushed = append(q.pushed, &copied)
	return nil
}

type scriptedSource struct {
	results []func() (*domain.PendingJob, error)
}

func (s *scriptedSource) Pop(context.Context) (*domain.PendingJob, error) {
	if len(s.results) == 0 {
		return nil, queue.ErrTimeout
	}
	next := s.results[0]
	s.results = s.results[1:]
	return next()
}

type stopAfter struct {
	remaining atomic.Int32
}

func (s *stopAfter) State(context.Context) (control.State, error) {
	if s.remaining.Add(-1) >= 0 {
		return control.StateRunning, nil
	}
	return control.StateStopped, nil
}

func newWorker(site *siteFetcher, persister *recordingPersister, requeue *recordingQueue, source fetcher.JobSource) *fetcher.Worker {
	return fetcher.NewWorker(fetcher.Deps{
		Source:        source,
		Requeue:       requeue,
		Fetcher:       site,
		Canonicalizer: frontier.NewCanonicalizer(nil, nil),
		Extractor:     extract.New(),
		Persister:     persister,
		Logger:        logger.NewNop(),
	}, fetcher.Config{})
}

func pendingJob(url string) *domain.PendingJob {
	return &domain.PendingJob{
		URLHash:      frontier.URLHash(url),
		Title:        "Quarterly report",
		Link:         url,
		CanonicalURL: url,
		Symbols:      []string{"AAPL"},
	}
}

func TestProcessJob_FollowsRedirectDocuments(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{
		"http://gw.example/1":       page(redirectTo("http://gw.example/2")),
		"http://gw.example/2":       page(redirectTo("http://news.example/final")),
		"http://news.example/final": page(articlePage),
	}}
	persister := &recordingPersister{}
	w := newWorker(site, persister, &recordingQueue{}, nil)

	job := pendingJob("http://gw.example/1")
	require.NoError(t, w.ProcessJob(context.Background(), job))

	require.Len(t, persister.jobs, 1)
	stored := persister.jobs[0]
	assert.Equal(t, "http://news.example/final", stored.CanonicalURL)
	assert.Equal(t, "http://news.example/final", stored.Link)
	assert.Equal(t, frontier.URLHash("http://gw.example/1"), stored.URLHash)

	require.NotNil(t, persister.contents[0])
	assert.True(t, strings.HasPrefix(*persister.contents[0], "Shares rose sharply"))
	assert.Equal(t, []string{"http://gw.example/1", "http://gw.example/2", "http://news.example/final"}, site.calls)
}

func TestProcessJob_RedirectCycleIsDropped(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{
		"http://a.example/x": page(redirectTo("http://b.example/y")),
		"http://b.example/y": page(redirectTo("http://a.example/x")),
	}}
	persister := &recordingPersister{}
	requeue := &recordingQueue{}
	w := newWorker(site, persister, requeue, nil)

	require.NoError(t, w.ProcessJob(context.Background(), pendingJob("http://a.example/x")))

	assert.Empty(t, persister.jobs)
	assert.Empty(t, requeue.pushed)
	// Initial fetch plus five followed hops.
	assert.Len(t, site.calls, 6)
}

func TestProcessJob_NoContentIsStillPersisted(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{
		"http://news.example/empty": page("<html><body><div>no tags</div></body></html>"),
	}}
	persister := &recordingPersister{}
	w := newWorker(site, persister, &recordingQueue{}, nil)

	require.NoError(t, w.ProcessJob(context.Background(), pendingJob("http://news.example/empty")))

	require.Len(t, persister.jobs, 1)
	assert.Nil(t, persister.contents[0])
}

func TestProcessJob_FailureHandling(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		response    *engine.Response
		attempts    int
		wantRequeue bool
	}{
		{"server error is retried", status(http.StatusServiceUnavailable), 0, true},
		{"rate limit is retried", status(http.StatusTooManyRequests), 1, true},
		{"network error is retried", nil, 2, true},
		{"retries exhausted", status(http.StatusBadGateway), 3, false},
		{"not found is dropped", status(http.StatusNotFound), 0, false},
		{"forbidden is dropped", status(http.StatusForbidden), 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			pages := map[string]*engine.Response{}
			if tt.response != nil {
				pages["http://news.example/a"] = tt.response
			}
			requeue := &recordingQueue{}
			persister := &recordingPersister{}
			w := newWorker(&siteFetcher{pages: pages}, persister, requeue, nil)

			job := pendingJob("http://news.example/a")
			job.Attempts = tt.attempts
			require.NoError(t, w.ProcessJob(context.Background(), job))

			assert.Empty(t, persister.jobs)
			if !tt.wantRequeue {
				assert.Empty(t, requeue.pushed)
				return
			}
			require.Len(t, requeue.pushed, 1)
			assert.Equal(t, tt.attempts+1, requeue.pushed[0].Attempts)
		})
	}
}

func TestProcessJob_StorageFailureIsRetried(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{"http://news.example/a": page(articlePage)}}
	requeue := &recordingQueue{}
	w := newWorker(site, &recordingPersister{err: errors.New("mongo unavailable")}, requeue, nil)

	require.NoError(t, w.ProcessJob(context.Background(), pendingJob("http://news.example/a")))
	require.Len(t, requeue.pushed, 1)
	assert.Equal(t, 1, requeue.pushed[0].Attempts)
}

func TestProcessJob_DuplicateIsFatal(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{"http://news.example/a": page(articlePage)}}
	requeue := &recordingQueue{}
	w := newWorker(site, &recordingPersister{err: storage.ErrDuplicateDocument}, requeue, nil)

	err := w.ProcessJob(context.Background(), pendingJob("http://news.example/a"))
	require.ErrorIs(t, err, storage.ErrDuplicateDocument)
	assert.Empty(t, requeue.pushed)
}

func TestRun_ProcessesUntilStopped(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{"http://news.example/a": page(articlePage)}}
	source := &scriptedSource{results: []func() (*domain.PendingJob, error){
		func() (*domain.PendingJob, error) { return nil, queue.ErrTimeout },
		func() (*domain.PendingJob, error) { return nil, fmt.Errorf("decode: %w", queue.ErrMalformedJob) },
		func() (*domain.PendingJob, error) { return pendingJob("http://news.example/a"), nil },
	}}
	persister := &recordingPersister{}
	w := newWorker(site, persister, &recordingQueue{}, source)

	reader := &stopAfter{}
	reader.remaining.Store(3)
	gate := control.NewGate(reader, 0, 0, logger.NewNop())

	require.NoError(t, w.Run(context.Background(), gate))
	assert.Len(t, persister.jobs, 1)
}

func TestRun_DuplicateStopsLoop(t *testing.T) {
	t.Parallel()

	site := &siteFetcher{pages: map[string]*engine.Response{"http://news.example/a": page(articlePage)}}
	source := &scriptedSource{results: []func() (*domain.PendingJob, error){
		func() (*domain.PendingJob, error) { return pendingJob("http://news.example/a"), nil },
	}}
	w := newWorker(site, &recordingPersister{err: storage.ErrDuplicateDocument}, &recordingQueue{}, source)

	reader := &stopAfter{}
	reader.remaining.Store(100)
	gate := control.NewGate(reader, 0, 0, logger.NewNop())

	err := w.Run(context.Background(), gate)
	require.ErrorIs(t, err, storage.ErrDuplicateDocument)
}
