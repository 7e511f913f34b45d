package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/rssnews/internal/coordination"
	"github.com/jonesrussell/north-cloud/rssnews/internal/dedup"
	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
	"github.com/jonesrussell/north-cloud/rssnews/internal/frontier"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/metrics"
)

// rollbackTimeout bounds the dedup rollback after a failed enqueue. It runs
// detached from the poll context, which may be what failed the push.
const rollbackTimeout = 5 * time.Second

// Observer runs the dedup protocol for one hash and symbol. Rollback undoes a
// first-seen decision so the next cycle re-evaluates the hash.
type Observer interface {
	Observe(ctx context.Context, hash, symbol string) (dedup.Outcome, error)
	Rollback(ctx context.Context, hash string) error
}

// GatewayResolver resolves gateway links. The returned URL is always usable;
// a non-nil error means it is the original link.
type GatewayResolver interface {
	Resolve(ctx context.Context, link string) (string, error)
}

// JobPusher enqueues pending jobs.
type JobPusher interface {
	Push(ctx context.Context, job *domain.PendingJob) error
}

// Publisher fans a job out on a symbol's channel.
type Publisher interface {
	Publish(ctx context.Context, symbol string, job *domain.PendingJob) (int64, error)
}

// Registry records feed freshness.
type Registry interface {
	RecordUpdate(ctx context.Context, src *domain.FeedSource, updated time.Time) error
}

// Deps holds the poller's collaborators.
type Deps struct {
	Fetcher       engine.Fetcher
	Canonicalizer *frontier.Canonicalizer
	Resolver      GatewayResolver
	Observer      Observer
	Queue         JobPusher
	Bus           Publisher
	Registry      Registry
	Metrics       *metrics.Metrics
	Logger        logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Poller polls one feed source per call.
type Poller struct {
	fetcher  engine.Fetcher
	canon    *frontier.Canonicalizer
	resolver GatewayResolver
	observer Observer
	queue    JobPusher
	bus      Publisher
	registry Registry
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time
}

// NewPoller creates a poller.
func NewPoller(deps Deps) *Poller {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	return &Poller{
		fetcher:  deps.Fetcher,
		canon:    deps.Canonicalizer,
		resolver: deps.Resolver,
		observer: deps.Observer,
		queue:    deps.Queue,
		bus:      deps.Bus,
		registry: deps.Registry,
		metrics:  deps.Metrics,
		log:      deps.Logger,
		now:      now,
	}
}

// Poll runs one cycle for src and returns how many entries were new to the
// filter (first seen or newly associated with the symbol). Fetch and parse
// failures are returned as *PollError.
func (p *Poller) Poll(ctx context.Context, src *domain.FeedSource) (int, error) {
	resp, err := p.fetcher.Fetch(ctx, src.FeedURL)
	if err != nil {
		return 0, ClassifyNetworkError(err, src.FeedURL)
	}

	if resp.StatusCode != http.StatusOK {
		return 0, ClassifyHTTPStatus(resp.StatusCode, src.FeedURL)
	}

	parsed, err := ParseFeed(ctx, resp.Body)
	if err != nil {
		return 0, ClassifyParseError(err, src.FeedURL)
	}

	newItems := 0
	for i := range parsed.Entries {
		outcome, entryErr := p.processEntry(ctx, src, &parsed.Entries[i])
		if entryErr != nil {
			p.logEntryError(src, &parsed.Entries[i], entryErr)
			continue
		}

		p.metrics.RecordEntry(outcome.String())
		if outcome.IsNew() {
			newItems++
		}
	}

	if newItems > 0 {
		if updateErr := p.recordFreshness(ctx, src, parsed.Updated); updateErr != nil {
			return newItems, updateErr
		}
	}

	p.log.Info("Feed polled",
		logger.String("symbol", src.Symbol),
		logger.String("feed_url", src.FeedURL),
		logger.Int("entries", len(parsed.Entries)),
		logger.Int("new_items", newItems),
	)

	return newItems, nil
}

// RunTask adapts Poll to the worker contract. Classified poll failures are
// logged here and retried on the next cycle.
func (p *Poller) RunTask(ctx context.Context, src *domain.FeedSource) error {
	_, err := p.Poll(ctx, src)

	var pollErr *PollError
	if errors.As(err, &pollErr) {
		p.metrics.RecordPoll(string(pollErr.Type))
		fields := []logger.Field{
			logger.String("symbol", src.Symbol),
			logger.String("error_type", string(pollErr.Type)),
			logger.Error(pollErr),
		}
		if pollErr.Level == LevelError {
			p.log.Error("Feed poll failed", fields...)
		} else {
			p.log.Warn("Feed poll failed", fields...)
		}
		return nil
	}

	if err != nil {
		p.metrics.RecordPoll("error")
		return err
	}

	p.metrics.RecordPoll("ok")
	return nil
}

func (p *Poller) processEntry(ctx context.Context, src *domain.FeedSource, entry *domain.FeedEntry) (dedup.Outcome, error) {
	canonical, needsFetch, err := p.canon.Canonicalize(entry.Link)
	if err != nil {
		return dedup.Known, err
	}
	if needsFetch {
		resolved, resolveErr := p.resolver.Resolve(ctx, canonical)
		if resolveErr != nil {
			p.logGatewayFallback(src, ClassifyGatewayError(resolveErr, canonical))
		}
		canonical = resolved
	}

	hash := frontier.URLHash(canonical)

	outcome, err := p.observer.Observe(ctx, hash, src.Symbol)
	if err != nil {
		return dedup.Known, err
	}

	if outcome != dedup.FirstSeen {
		return outcome, nil
	}

	job := &domain.PendingJob{
		URLHash:      hash,
		Title:        entry.Title,
		Link:         entry.Link,
		CanonicalURL: canonical,
		PublishedAt:  entry.PublishedAt,
		Symbols:      []string{src.Symbol},
	}

	if pushErr := p.queue.Push(ctx, job); pushErr != nil {
		p.rollback(ctx, src, hash)
		return outcome, fmt.Errorf("enqueue %s: %w", hash, pushErr)
	}

	if _, pubErr := p.bus.Publish(ctx, src.Symbol, job); pubErr != nil {
		p.log.Warn("Failed to publish notification",
			logger.String("symbol", src.Symbol),
			logger.String("url_hash", hash),
			logger.Error(pubErr),
		)
	} else {
		p.metrics.RecordNotification()
	}

	return outcome, nil
}

func (p *Poller) rollback(ctx context.Context, src *domain.FeedSource, hash string) {
	rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	if err := p.observer.Rollback(rbCtx, hash); err != nil {
		p.log.Error("Failed to roll back dedup record, article will not be retried",
			logger.String("symbol", src.Symbol),
			logger.String("url_hash", hash),
			logger.Error(err),
		)
	}
}

func (p *Poller) recordFreshness(ctx context.Context, src *domain.FeedSource, feedUpdated *time.Time) error {
	updated := p.now().UTC()
	if feedUpdated != nil {
		updated = feedUpdated.UTC()
	}

	if err := p.registry.RecordUpdate(ctx, src, updated); err != nil {
		return fmt.Errorf("record update for %s: %w", src.Symbol, err)
	}

	src.LastUpdated = &updated
	src.UpdateHistory = append(src.UpdateHistory, updated)
	p.metrics.RecordRegistryUpdate()

	return nil
}

func (p *Poller) logGatewayFallback(src *domain.FeedSource, gwErr *PollError) {
	p.log.Warn("Gateway unresolved, keying entry by gateway link",
		logger.String("symbol", src.Symbol),
		logger.String("link", gwErr.URL),
		logger.String("error_type", string(gwErr.Type)),
		logger.Error(gwErr),
	)
}

func (p *Poller) logEntryError(src *domain.FeedSource, entry *domain.FeedEntry, err error) {
	if errors.Is(err, coordination.ErrLockNotAcquired) {
		p.metrics.RecordLockTimeout()
		p.log.Warn("Dedup lock busy, entry deferred to next poll",
			logger.String("symbol", src.Symbol),
			logger.String("link", entry.Link),
		)
		return
	}

	p.log.Error("Failed to process feed entry",
		logger.String("symbol", src.Symbol),
		logger.String("link", entry.Link),
		logger.Error(err),
	)
}
