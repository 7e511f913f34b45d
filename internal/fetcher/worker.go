// Package fetcher consumes pending jobs, fetches each article through any
// redirect documents, extracts its content and persists it.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/rssnews/internal/control"
	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
	"github.com/jonesrussell/north-cloud/rssnews/internal/frontier"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/metrics"
	"github.com/jonesrussell/north-cloud/rssnews/internal/queue"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
)

// Fetch results recorded in metrics.
const (
	resultStored    = "stored"
	resultRequeued  = "requeued"
	resultDropped   = "dropped"
	resultDuplicate = "duplicate"
)

// ErrTooManyRedirects is returned when a job keeps resolving to redirect
// documents past the hop limit.
var ErrTooManyRedirects = errors.New("too many redirect documents")

// JobSource pops pending jobs.
type JobSource interface {
	Pop(ctx context.Context) (*domain.PendingJob, error)
}

// JobPusher re-queues jobs.
type JobPusher interface {
	Push(ctx context.Context, job *domain.PendingJob) error
}

// ContentExtractor returns the main text of a page, or nil when none was found.
type ContentExtractor interface {
	Extract(markup []byte) (*string, error)
}

// ArticlePersister stores fetched articles.
type ArticlePersister interface {
	Persist(ctx context.Context, job *domain.PendingJob, markup []byte, content *string) (*domain.ArticleDocument, error)
}

// statusError is a non-200 article response.
type statusError struct {
	url    string
	status int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("fetch %s: http status %d", e.url, e.status)
}

// Deps holds the worker's collaborators.
type Deps struct {
	Source        JobSource
	Requeue       JobPusher
	Fetcher       engine.Fetcher
	Canonicalizer *frontier.Canonicalizer
	Extractor     ContentExtractor
	Persister     ArticlePersister
	Metrics       *metrics.Metrics
	Logger        logger.Logger
}

// Worker processes pending jobs one at a time.
type Worker struct {
	source    JobSource
	requeue   JobPusher
	fetcher   engine.Fetcher
	canon     *frontier.Canonicalizer
	extractor ContentExtractor
	persister ArticlePersister
	metrics   *metrics.Metrics
	log       logger.Logger
	cfg       Config
}

// NewWorker creates a fetch worker.
func NewWorker(deps Deps, cfg Config) *Worker {
	return &Worker{
		source:    deps.Source,
		requeue:   deps.Requeue,
		fetcher:   deps.Fetcher,
		canon:     deps.Canonicalizer,
		extractor: deps.Extractor,
		persister: deps.Persister,
		metrics:   deps.Metrics,
		log:       deps.Logger,
		cfg:       cfg.WithDefaults(),
	}
}

// Run processes jobs while gate reads running. It returns an error only for
// a duplicate article document.
func (w *Worker) Run(ctx context.Context, gate *control.Gate) error {
	w.log.Info("Article fetcher started",
		logger.Int("max_hops", w.cfg.MaxHops),
		logger.Int("max_retries", w.cfg.MaxRetries),
	)

	err := gate.Run(ctx, w.Step)

	w.log.Info("Article fetcher stopped")
	return err
}

// Step pops and processes at most one job.
func (w *Worker) Step(ctx context.Context) error {
	job, err := w.source.Pop(ctx)
	switch {
	case err == nil:
		return w.ProcessJob(ctx, job)
	case errors.Is(err, queue.ErrTimeout):
		return nil
	case errors.Is(err, queue.ErrMalformedJob):
		w.log.Warn("Dropping malformed job", logger.Error(err))
		return nil
	case ctx.Err() != nil:
		return nil
	default:
		w.log.Error("Failed to pop job", logger.Error(err))
		w.backoff(ctx)
		return nil
	}
}

// ProcessJob fetches, extracts and persists one job. Transient failures
// re-queue the job; the only returned error is storage.ErrDuplicateDocument.
func (w *Worker) ProcessJob(ctx context.Context, job *domain.PendingJob) error {
	body, finalURL, err := w.fetchFollowing(ctx, job.CanonicalURL)
	if err != nil {
		w.handleFailure(ctx, job, err)
		return nil
	}

	job.CanonicalURL = finalURL
	job.Link = finalURL

	content, err := w.extractor.Extract(body)
	if err != nil {
		w.log.Warn("Extraction failed",
			logger.String("url_hash", job.URLHash),
			logger.String("url", finalURL),
			logger.Error(err),
		)
		content = nil
	}

	doc, err := w.persister.Persist(ctx, job, body, content)
	if errors.Is(err, storage.ErrDuplicateDocument) {
		w.metrics.RecordFetch(resultDuplicate)
		w.log.Error("Article document already exists",
			logger.String("url_hash", job.URLHash),
			logger.String("url", finalURL),
		)
		return fmt.Errorf("persist %s: %w", job.URLHash, err)
	}
	if err != nil {
		w.handleFailure(ctx, job, err)
		return nil
	}

	w.metrics.RecordFetch(resultStored)
	w.log.Info("Article stored",
		logger.String("url_hash", doc.URLHash),
		logger.String("url", doc.CanonicalURL),
		logger.Strings("symbols", doc.Symbols),
		logger.Bool("has_content", doc.HasContent()),
	)

	return nil
}

// fetchFollowing fetches rawURL and follows redirect documents up to the hop
// limit. It returns the final body and the URL it was served from.
func (w *Worker) fetchFollowing(ctx context.Context, rawURL string) ([]byte, string, error) {
	current := rawURL

	for hops := 0; ; hops++ {
		resp, err := w.fetcher.Fetch(ctx, current)
		if err != nil {
			return nil, "", err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, "", &statusError{url: current, status: resp.StatusCode}
		}

		served := current
		if resp.URL != "" {
			served = resp.URL
		}

		if !frontier.IsRedirectDocument(resp.Body) {
			return resp.Body, served, nil
		}

		if hops >= w.cfg.MaxHops {
			return nil, "", fmt.Errorf("fetch %s: %w", rawURL, ErrTooManyRedirects)
		}

		target, _ := frontier.RedirectTarget(resp.Body)
		if canonical, _, canonErr := w.canon.Canonicalize(target); canonErr == nil {
			target = canonical
		}

		w.metrics.RecordRedirectHop()
		w.log.Debug("Following redirect document",
			logger.String("from", served),
			logger.String("to", target),
			logger.Int("hop", hops+1),
		)
		current = target
	}
}

func (w *Worker) handleFailure(ctx context.Context, job *domain.PendingJob, err error) {
	if !isTransient(err) {
		w.metrics.RecordFetch(resultDropped)
		w.log.Warn("Dropping job after permanent failure",
			logger.String("url_hash", job.URLHash),
			logger.String("url", job.CanonicalURL),
			logger.Error(err),
		)
		return
	}

	if job.Attempts+1 > w.cfg.MaxRetries {
		w.metrics.RecordFetch(resultDropped)
		w.log.Error("Dropping job after retries exhausted",
			logger.String("url_hash", job.URLHash),
			logger.String("url", job.CanonicalURL),
			logger.Int("attempts", job.Attempts+1),
			logger.Error(err),
		)
		return
	}

	job.Attempts++
	if pushErr := w.requeue.Push(ctx, job); pushErr != nil {
		w.metrics.RecordFetch(resultDropped)
		w.log.Error("Failed to re-queue job",
			logger.String("url_hash", job.URLHash),
			logger.Error(pushErr),
		)
		return
	}

	w.metrics.RecordFetch(resultRequeued)
	w.log.Info("Job re-queued",
		logger.String("url_hash", job.URLHash),
		logger.Int("attempts", job.Attempts),
		logger.Error(err),
	)
}

// isTransient reports whether a failed job is worth retrying. Redirect
// loops and 4xx responses other than 429 are permanent.
func isTransient(err error) bool {
	if errors.Is(err, ErrTooManyRedirects) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.status == http.StatusTooManyRequests || se.status >= http.StatusInternalServerError
	}

	return true
}

func (w *Worker) backoff(ctx context.Context) {
	timer := time.NewTimer(w.cfg.ErrorBackoff)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
