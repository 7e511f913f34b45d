// Package engine adapts the colly crawling engine to the single-request
// fetch contract used by the feed poller and the article fetcher.
package engine

import (
	"context"
	"fmt"
	"net/http"
	"time"

	colly "github.com/gocolly/colly/v2"
)

// Engine defaults
const (
	defaultUserAgent      = "Mozilla/5.0 (compatible; rssnews/1.0)"
	defaultRequestTimeout = 30 * time.Second
	defaultMaxBodySize    = 10 * 1024 * 1024
)

// Response is the engine's view of a completed request.
type Response struct {
	// URL is the request URL after any HTTP-level redirects.
	URL        string
	StatusCode int
	Body       []byte
	Headers    http.Header
}

// Fetcher performs a single GET request through the crawling engine.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Response, error)
}

// Config configures the colly collector built for each request.
type Config struct {
	UserAgent        string        `mapstructure:"user_agent"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	MaxBodySize      int           `mapstructure:"max_body_size"`
	RespectRobotsTxt bool          `mapstructure:"respect_robots_txt"`
}

// WithDefaults returns a copy of the config with defaults applied for zero-value fields.
func (c Config) WithDefaults() Config {
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaultRequestTimeout
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = defaultMaxBodySize
	}
	return c
}

// Collector implements Fetcher with a fresh synchronous colly collector per
// request, so concurrent workers never share visited-URL state.
type Collector struct {
	cfg Config
}

// NewCollector creates a colly-backed fetcher.
func NewCollector(cfg Config) *Collector {
	return &Collector{cfg: cfg.WithDefaults()}
}

// Fetch visits rawURL and returns the response. Non-2xx statuses are
// returned as responses, not errors; only transport failures are errors.
func (c *Collector) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	collector := colly.NewCollector(c.buildOptions(ctx)...)
	collector.IgnoreRobotsTxt = !c.cfg.RespectRobotsTxt
	collector.SetRequestTimeout(c.cfg.RequestTimeout)

	var result *Response

	collector.OnResponse(func(r *colly.Response) {
		result = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
		if r.Headers != nil {
			result.Headers = *r.Headers
		}
	})

	if err := collector.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("engine fetch %s: %w", rawURL, err)
	}

	if result == nil {
		return nil, fmt.Errorf("engine fetch %s: no response", rawURL)
	}

	return result, nil
}

func (c *Collector) buildOptions(ctx context.Context) []colly.CollectorOption {
	return []colly.CollectorOption{
		colly.StdlibContext(ctx),
		colly.UserAgent(c.cfg.UserAgent),
		colly.MaxBodySize(c.cfg.MaxBodySize),
		colly.ParseHTTPErrorResponse(),
		colly.AllowURLRevisit(),
	}
}
