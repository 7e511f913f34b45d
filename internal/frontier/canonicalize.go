// Package frontier canonicalizes feed links into article URLs and derives the
// URL hash used as the deduplication and document identity.
package frontier

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// wrapperMarker separates a tracking wrapper from the embedded article URL,
// e.g. http://us.rd.example.com/SIG=1/*http://real.example/a.
const wrapperMarker = "*http"

// DefaultGatewayPrefixes are link prefixes whose target is only known after
// fetching the gateway page.
var DefaultGatewayPrefixes = []string{"http://finance.yahoo.com/r/"}

// DefaultTailKeys are query keys appended by link wrappers. A URL that still
// carries one of them after unwrapping is reduced to scheme, host and path.
var DefaultTailKeys = []string{".tsrc"}

var (
	errEmptyInput          = errors.New("canonicalize: empty link")
	errMissingSchemeOrHost = errors.New("canonicalize: missing scheme or host")
)

// Canonicalizer applies the wrapper and gateway rules to feed links.
type Canonicalizer struct {
	gatewayPrefixes []string
	tailKeys        map[string]struct{}
}

// NewCanonicalizer creates a canonicalizer. Nil slices fall back to the defaults.
func NewCanonicalizer(gatewayPrefixes, tailKeys []string) *Canonicalizer {
	if gatewayPrefixes == nil {
		gatewayPrefixes = DefaultGatewayPrefixes
	}
	if tailKeys == nil {
		tailKeys = DefaultTailKeys
	}

	keys := make(map[string]struct{}, len(tailKeys))
	for _, k := range tailKeys {
		keys[k] = struct{}{}
	}

	return &Canonicalizer{
		gatewayPrefixes: gatewayPrefixes,
		tailKeys:        keys,
	}
}

// Canonicalize returns the canonical URL for a feed link. When the link points
// at a gateway the returned URL is the gateway link itself and needsFetch is
// true; the caller resolves it with a GatewayResolver.
func (c *Canonicalizer) Canonicalize(link string) (canonical string, needsFetch bool, err error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return "", false, errEmptyInput
	}

	if idx := strings.LastIndex(link, wrapperMarker); idx >= 0 {
		link = "http" + link[idx+len(wrapperMarker):]
	} else if c.IsGateway(link) {
		if _, parseErr := parseAbsolute(link); parseErr != nil {
			return "", false, parseErr
		}
		return link, true, nil
	}

	normalized, err := c.Normalize(link)
	if err != nil {
		return "", false, err
	}

	return normalized, false, nil
}

// IsGateway reports whether link points at a known gateway endpoint.
func (c *Canonicalizer) IsGateway(link string) bool {
	for _, prefix := range c.gatewayPrefixes {
		if strings.HasPrefix(link, prefix) {
			return true
		}
	}

	return false
}

// Normalize drops query and fragment only when the URL still carries a
// wrapper query tail; otherwise the URL is returned untouched.
func (c *Canonicalizer) Normalize(rawURL string) (string, error) {
	parsed, err := parseAbsolute(rawURL)
	if err != nil {
		return "", err
	}

	if !c.hasWrapperTail(parsed) {
		return rawURL, nil
	}

	trimmed := url.URL{
		Scheme:  parsed.Scheme,
		Host:    parsed.Host,
		Path:    parsed.Path,
		RawPath: parsed.RawPath,
	}

	return trimmed.String(), nil
}

func (c *Canonicalizer) hasWrapperTail(u *url.URL) bool {
	if strings.Contains(u.RawQuery, "*") {
		return true
	}

	for key := range u.Query() {
		if _, ok := c.tailKeys[key]; ok {
			return true
		}
	}

	return false
}

func parseAbsolute(rawURL string) (*url.URL, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, errMissingSchemeOrHost
	}

	return parsed, nil
}
