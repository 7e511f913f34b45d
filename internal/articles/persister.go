// Package articles builds article documents from fetched pages, persists them
// and hands extracted articles to the NLP consumer.
package articles

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
	"github.com/jonesrussell/north-cloud/rssnews/internal/logger"
	"github.com/jonesrussell/north-cloud/rssnews/internal/metrics"
	"github.com/jonesrussell/north-cloud/rssnews/internal/storage"
)

// SymbolSource reads the symbols recorded for a hash.
type SymbolSource interface {
	Symbols(ctx context.Context, hash string) ([]string, error)
}

// HandoffPusher enqueues a document id for NLP processing.
type HandoffPusher interface {
	Push(ctx context.Context, docID string) error
}

// RawArchiver stores a copy of the compressed markup.
type RawArchiver interface {
	Archive(ctx context.Context, doc *domain.ArticleDocument) error
}

// Persister stores article documents.
type Persister struct {
	store    storage.ArticleStore
	symbols  SymbolSource
	handoff  HandoffPusher
	archiver RawArchiver
	metrics  *metrics.Metrics
	log      logger.Logger
	now      func() time.Time
}

// Option configures a Persister.
type Option func(*Persister)

// WithArchiver archives raw markup after each insert.
func WithArchiver(a RawArchiver) Option {
	return func(p *Persister) { p.archiver = a }
}

// WithMetrics records persistence metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Persister) { p.metrics = m }
}

// WithClock overrides time.Now for parsedAt.
func WithClock(now func() time.Time) Option {
	return func(p *Persister) { p.now = now }
}

// NewPersister creates a persister.
func NewPersister(
	store storage.ArticleStore,
	symbols SymbolSource,
	handoff HandoffPusher,
	log logger.Logger,
	opts ...Option,
) *Persister {
	p := &Persister{
		store:   store,
		symbols: symbols,
		handoff: handoff,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Persist inserts the document for job. content is nil when extraction found
// nothing; such documents are stored but not handed off. A second insert for
// the same hash fails with storage.ErrDuplicateDocument.
func (p *Persister) Persist(
	ctx context.Context,
	job *domain.PendingJob,
	markup []byte,
	content *string,
) (*domain.ArticleDocument, error) {
	compressed, err := storage.Compress(markup)
	if err != nil {
		return nil, err
	}

	recorded, err := p.symbols.Symbols(ctx, job.URLHash)
	if err != nil {
		return nil, fmt.Errorf("persist %s: %w", job.URLHash, err)
	}

	doc := &domain.ArticleDocument{
		URLHash:      job.URLHash,
		Title:        job.Title,
		Link:         job.Link,
		CanonicalURL: job.CanonicalURL,
		Content:      content,
		RawMarkup:    compressed,
		PublishedAt:  job.PublishedAt,
		ParsedAt:     p.now().UTC(),
		Symbols:      domain.MergeSymbols(job.Symbols, recorded),
	}

	if insertErr := p.store.Insert(ctx, doc); insertErr != nil {
		return nil, insertErr
	}

	p.reconcileSymbols(ctx, doc)
	p.archive(ctx, doc)

	if !doc.HasContent() {
		p.metrics.RecordExtractionFailure()
		p.log.Warn("No content extracted, article stored without handoff",
			logger.String("url_hash", doc.URLHash),
			logger.String("url", doc.CanonicalURL),
		)
		return doc, nil
	}

	// The document exists from here on, so a failed handoff must not make
	// the caller retry the job.
	if pushErr := p.handoff.Push(ctx, doc.URLHash); pushErr != nil {
		p.log.Error("Failed to hand off article",
			logger.String("url_hash", doc.URLHash),
			logger.Error(pushErr),
		)
		return doc, nil
	}
	p.metrics.RecordHandoff()

	return doc, nil
}

// reconcileSymbols appends symbols that pollers recorded while the article
// was being fetched and inserted.
func (p *Persister) reconcileSymbols(ctx context.Context, doc *domain.ArticleDocument) {
	latest, err := p.symbols.Symbols(ctx, doc.URLHash)
	if err != nil {
		p.log.Warn("Failed to re-read symbols after insert",
			logger.String("url_hash", doc.URLHash),
			logger.Error(err),
		)
		return
	}

	for _, sym := range domain.MissingSymbols(doc.Symbols, latest) {
		if addErr := p.store.AddSymbol(ctx, doc.URLHash, sym); addErr != nil {
			p.log.Warn("Failed to append late symbol",
				logger.String("url_hash", doc.URLHash),
				logger.String("symbol", sym),
				logger.Error(addErr),
			)
			continue
		}
		doc.Symbols = domain.MergeSymbols(doc.Symbols, []string{sym})
	}
}

func (p *Persister) archive(ctx context.Context, doc *domain.ArticleDocument) {
	if p.archiver == nil {
		return
	}
	if err := p.archiver.Archive(ctx, doc); err != nil {
		p.log.Warn("Failed to archive raw markup",
			logger.String("url_hash", doc.URLHash),
			logger.Error(err),
		)
	}
}
