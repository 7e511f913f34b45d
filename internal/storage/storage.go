// Package storage persists feed sources and article documents. MongoDB is the
// default backend for both; Postgres can hold the registry and Elasticsearch
// the articles.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// Backend names accepted by configuration.
const (
	BackendMongo         = "mongo"
	BackendPostgres      = "postgres"
	BackendElasticsearch = "elasticsearch"
)

var (
	// ErrDuplicateDocument is returned when an article with the same hash already exists.
	ErrDuplicateDocument = errors.New("article document already exists")

	// ErrSourceNotFound is returned when updating a feed source that is not registered.
	ErrSourceNotFound = errors.New("feed source not found")
)

// ArticleStore persists article documents keyed by URL hash.
type ArticleStore interface {
	// Insert creates the document. It never overwrites and returns
	// ErrDuplicateDocument when the hash is already stored.
	Insert(ctx context.Context, doc *domain.ArticleDocument) error
	// AddSymbol appends symbol to the stored document's symbol set. A
	// missing document is not an error.
	AddSymbol(ctx context.Context, hash, symbol string) error
	// ForEachSymbols calls fn with the hash and symbols of every document.
	ForEachSymbols(ctx context.Context, fn func(hash string, symbols []string) error) error
}

// Registry holds the tracked feed sources.
type Registry interface {
	List(ctx context.Context) ([]*domain.FeedSource, error)
	// Register inserts or replaces the source with the same symbol.
	Register(ctx context.Context, src *domain.FeedSource) error
	// RecordUpdate appends updated to the source's history and sets lastUpdated.
	RecordUpdate(ctx context.Context, src *domain.FeedSource, updated time.Time) error
	// DropAll removes every source.
	DropAll(ctx context.Context) error
}
