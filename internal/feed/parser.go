// Package feed polls registered RSS and Atom feeds and turns their entries
// into deduplicated pending article jobs.
package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// httpPrefix is the scheme prefix used to determine if a GUID is a valid URL.
const httpPrefix = "http"

// ParseFeed parses an RSS or Atom body. Entries without a usable link are skipped.
func ParseFeed(ctx context.Context, body []byte) (*domain.ParsedFeed, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	out := &domain.ParsedFeed{
		Updated: parsed.UpdatedParsed,
		Entries: make([]domain.FeedEntry, 0, len(parsed.Items)),
	}

	for _, item := range parsed.Items {
		link := extractLink(item)
		if link == "" {
			continue
		}

		published := item.PublishedParsed
		if published == nil {
			published = item.UpdatedParsed
		}

		out.Entries = append(out.Entries, domain.FeedEntry{
			Title:       strings.TrimSpace(item.Title),
			Link:        link,
			PublishedAt: published,
		})
	}

	return out, nil
}

// extractLink prefers the entry link and falls back to a URL-shaped GUID.
func extractLink(item *gofeed.Item) string {
	if link := strings.TrimSpace(item.Link); link != "" {
		return link
	}

	if strings.HasPrefix(item.GUID, httpPrefix) {
		return item.GUID
	}

	return ""
}
