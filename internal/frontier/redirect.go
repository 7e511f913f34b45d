package frontier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jonesrussell/north-cloud/rssnews/internal/engine"
)

var (
	scriptRedirectPrefix = []byte("<script src=")
	redirectTargetMarker = []byte("URL='")
	metaRefreshPattern   = regexp.MustCompile(`(?i)<meta[^>]+http-equiv\s*=\s*["']?refresh`)
)

// IsRedirectDocument reports whether body is a gateway page that carries its
// destination in a URL='...' assignment instead of article content.
func IsRedirectDocument(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if !bytes.HasPrefix(trimmed, scriptRedirectPrefix) && !metaRefreshPattern.Match(trimmed) {
		return false
	}

	_, ok := RedirectTarget(trimmed)
	return ok
}

// RedirectTarget returns the quoted target of the last URL='...' assignment in body.
func RedirectTarget(body []byte) (string, bool) {
	idx := bytes.LastIndex(body, redirectTargetMarker)
	if idx < 0 {
		return "", false
	}

	rest := body[idx+len(redirectTargetMarker):]
	end := bytes.IndexByte(rest, '\'')
	if end <= 0 {
		return "", false
	}

	return string(rest[:end]), true
}

// ErrGatewayUnresolved wraps every reason a gateway link kept its original form.
var ErrGatewayUnresolved = errors.New("gateway unresolved")

// GatewayResolver turns gateway links into article URLs by fetching the
// gateway page and reading its redirect document.
type GatewayResolver struct {
	fetcher engine.Fetcher
	canon   *Canonicalizer
}

// NewGatewayResolver creates a resolver that fetches through the given engine.
func NewGatewayResolver(fetcher engine.Fetcher, canon *Canonicalizer) *GatewayResolver {
	return &GatewayResolver{fetcher: fetcher, canon: canon}
}

// Resolve returns the canonical URL behind a gateway link. The returned URL is
// always usable: on failure it is the original link and the error wraps
// ErrGatewayUnresolved.
func (r *GatewayResolver) Resolve(ctx context.Context, link string) (string, error) {
	resp, err := r.fetcher.Fetch(ctx, link)
	if err != nil {
		return link, fmt.Errorf("%w: %w", ErrGatewayUnresolved, err)
	}

	if !IsRedirectDocument(resp.Body) {
		return link, fmt.Errorf("%w: HTTP %d without redirect document", ErrGatewayUnresolved, resp.StatusCode)
	}

	target, _ := RedirectTarget(resp.Body)

	canonical, _, err := r.canon.Canonicalize(target)
	if err != nil {
		return link, fmt.Errorf("%w: target %q: %w", ErrGatewayUnresolved, target, err)
	}

	return canonical, nil
}
