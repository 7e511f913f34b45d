package feed

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// HeadlineFeedURL is the per-symbol headline feed template.
const HeadlineFeedURL = "http://finance.yahoo.com/rss/headline?s="

// ParseSourceList reads symbol<TAB>company lines into feed sources. Blank
// lines are skipped; a line without a tab is an error.
func ParseSourceList(r io.Reader) ([]*domain.FeedSource, error) {
	var sources []*domain.FeedSource

	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		symbol, company, ok := strings.Cut(text, "\t")
		symbol = strings.TrimSpace(symbol)
		if !ok || symbol == "" {
			return nil, fmt.Errorf("source list line %d: want symbol<TAB>company, got %q", line, text)
		}

		sources = append(sources, &domain.FeedSource{
			ID:      symbol,
			Symbol:  symbol,
			Company: strings.TrimSpace(company),
			FeedURL: HeadlineFeedURL + url.QueryEscape(symbol),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read source list: %w", err)
	}

	return sources, nil
}
