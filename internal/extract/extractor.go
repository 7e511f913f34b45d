// Package extract pulls the main text out of an article page by picking the
// container whose text-bearing children carry the most words.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// noiseSelector matches elements removed before any text is collected.
const noiseSelector = "script, style, img, iframe, select, head, footer, #footer, .footer"

// textTags are the elements whose text is attributed to their parent container.
var textTags = map[string]struct{}{
	"p":    {},
	"span": {},
	"ul":   {},
	"td":   {},
	"li":   {},
}

// Extractor implements the max-word-count container heuristic.
type Extractor struct{}

// New creates an extractor.
func New() *Extractor {
	return &Extractor{}
}

// container accumulates the text attributed to one parent element.
type container struct {
	text  strings.Builder
	words int
}

// Extract returns the text of the dominant container, or nil when the page
// has no text-bearing elements. Only unparseable markup is an error.
func (e *Extractor) Extract(markup []byte) (*string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc.Find(noiseSelector).Remove()

	if len(doc.Nodes) == 0 {
		return nil, nil
	}

	a := buildArena(doc.Nodes[0])
	a.pruneEmpty()

	containers := make(map[int]*container)
	var order []int

	a.walk(func(idx int) {
		n := a.nodes[idx].html
		if n.Type != html.ElementNode {
			return
		}
		if _, ok := textTags[n.Data]; !ok {
			return
		}

		parent := a.nodes[idx].parent
		c, ok := containers[parent]
		if !ok {
			c = &container{}
			containers[parent] = c
			order = append(order, parent)
		}

		texts := a.texts(idx)
		c.text.WriteString(joinStripped(texts))
		c.text.WriteByte('\n')
		c.words += len(strings.Fields(strings.Join(texts, "")))
	})

	if len(order) == 0 {
		return nil, nil
	}

	best := order[0]
	for _, idx := range order[1:] {
		if containers[idx].words > containers[best].words {
			best = idx
		}
	}

	text := containers[best].text.String()
	return &text, nil
}

// joinStripped collapses whitespace in each text node, drops empty ones and
// joins the rest with single spaces.
func joinStripped(texts []string) string {
	parts := make([]string, 0, len(texts))
	for _, t := range texts {
		if s := strings.Join(strings.Fields(t), " "); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}
