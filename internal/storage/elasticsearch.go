package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// Elasticsearch defaults
const (
	DefaultArticleIndex = "rssnews-articles"
	scrollKeepAlive     = time.Minute
	scrollPageSize      = 500
)

// addSymbolScript appends a symbol unless present, leaving the document untouched otherwise.
const addSymbolScript = `if (ctx._source.symbols == null) { ctx._source.symbols = [params.symbol] } ` +
	`else if (ctx._source.symbols.contains(params.symbol)) { ctx.op = 'none' } ` +
	`else { ctx._source.symbols.add(params.symbol) }`

// ElasticsearchConfig holds Elasticsearch connection settings.
type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	Index     string   `mapstructure:"index"`
}

// NewElasticsearchClient creates a client for cfg.
func NewElasticsearchClient(cfg ElasticsearchConfig) (*es.Client, error) {
	client, err := es.NewClient(es.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return client, nil
}

// ElasticsearchArticleStore keeps articles in one index with document id = URL hash.
type ElasticsearchArticleStore struct {
	client *es.Client
	index  string
}

// NewElasticsearchArticleStore creates an article store on cfg.Index.
func NewElasticsearchArticleStore(client *es.Client, cfg ElasticsearchConfig) *ElasticsearchArticleStore {
	index := cfg.Index
	if index == "" {
		index = DefaultArticleIndex
	}
	return &ElasticsearchArticleStore{client: client, index: index}
}

// Insert creates the document with op_type=create.
func (s *ElasticsearchArticleStore) Insert(ctx context.Context, doc *domain.ArticleDocument) error {
	if doc.Symbols == nil {
		doc.Symbols = []string{}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal article %s: %w", doc.URLHash, err)
	}

	res, err := s.client.Create(
		s.index,
		doc.URLHash,
		bytes.NewReader(body),
		s.client.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create article %s: %w", doc.URLHash, err)
	}
	defer closeResponse(res)

	if res.StatusCode == http.StatusConflict {
		return fmt.Errorf("%w: %s", ErrDuplicateDocument, doc.URLHash)
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch error creating %s: %s", doc.URLHash, res.String())
	}

	return nil
}

// AddSymbol appends symbol with a scripted update. A missing document is ignored.
func (s *ElasticsearchArticleStore) AddSymbol(ctx context.Context, hash, symbol string) error {
	body, err := json.Marshal(map[string]any{
		"script": map[string]any{
			"source": addSymbolScript,
			"lang":   "painless",
			"params": map[string]string{"symbol": symbol},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal symbol update: %w", err)
	}

	res, err := s.client.Update(
		s.index,
		hash,
		bytes.NewReader(body),
		s.client.Update.WithContext(ctx),
		s.client.Update.WithRetryOnConflict(3),
	)
	if err != nil {
		return fmt.Errorf("failed to add symbol %s to %s: %w", symbol, hash, err)
	}
	defer closeResponse(res)

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	if res.IsError() {
		return fmt.Errorf("elasticsearch error updating %s: %s", hash, res.String())
	}

	return nil
}

// scrollPage is the subset of a search response needed to walk symbols.
type scrollPage struct {
	ScrollID string `json:"_scroll_id"`
	Hits     struct {
		Hits []struct {
			ID     string `json:"_id"`
			Source struct {
				Symbols []string `json:"symbols"`
			} `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// ForEachSymbols scrolls the whole index.
func (s *ElasticsearchArticleStore) ForEachSymbols(ctx context.Context, fn func(string, []string) error) error {
	res, err := s.client.Search(
		s.client.Search.WithContext(ctx),
		s.client.Search.WithIndex(s.index),
		s.client.Search.WithSize(scrollPageSize),
		s.client.Search.WithScroll(scrollKeepAlive),
		s.client.Search.WithSourceIncludes("symbols"),
		s.client.Search.WithBody(strings.NewReader(`{"query":{"match_all":{}}}`)),
	)
	if err != nil {
		return fmt.Errorf("failed to search articles: %w", err)
	}

	page, err := decodePage(res)
	if err != nil {
		return err
	}

	scrollID := page.ScrollID
	defer func() { s.clearScroll(scrollID) }()

	for len(page.Hits.Hits) > 0 {
		for _, hit := range page.Hits.Hits {
			if fnErr := fn(hit.ID, hit.Source.Symbols); fnErr != nil {
				return fnErr
			}
		}

		res, err = s.client.Scroll(
			s.client.Scroll.WithContext(ctx),
			s.client.Scroll.WithScrollID(scrollID),
			s.client.Scroll.WithScroll(scrollKeepAlive),
		)
		if err != nil {
			return fmt.Errorf("failed to scroll articles: %w", err)
		}

		page, err = decodePage(res)
		if err != nil {
			return err
		}
		if page.ScrollID != "" {
			scrollID = page.ScrollID
		}
	}

	return nil
}

func (s *ElasticsearchArticleStore) clearScroll(scrollID string) {
	if scrollID == "" {
		return
	}
	res, err := s.client.ClearScroll(s.client.ClearScroll.WithScrollID(scrollID))
	if err == nil {
		closeResponse(res)
	}
}

func decodePage(res *esapi.Response) (*scrollPage, error) {
	defer closeResponse(res)

	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch error scanning articles: %s", res.String())
	}

	var page scrollPage
	if err := json.NewDecoder(res.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	return &page, nil
}

func closeResponse(res *esapi.Response) {
	if res != nil && res.Body != nil {
		_, _ = io.Copy(io.Discard, res.Body)
		_ = res.Body.Close()
	}
}
