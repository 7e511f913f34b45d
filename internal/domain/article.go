package domain

import "time"

// PendingJob is one newly discovered article awaiting fetch.
type PendingJob struct {
	URLHash      string
	Title        string
	Link         string
	CanonicalURL string
	PublishedAt  *time.Time
	Symbols      []string
	// Attempts counts fetch attempts that ended in a retryable failure.
	Attempts int
}

// ArticleDocument is the persisted result of fetching and extracting one article.
// Content is nil when extraction found no text-bearing container.
type ArticleDocument struct {
	URLHash      string     `bson:"_id"                   json:"url_hash"`
	Title        string     `bson:"title"                 json:"title"`
	Link         string     `bson:"link"                  json:"link"`
	CanonicalURL string     `bson:"url"                   json:"url"`
	Content      *string    `bson:"content"               json:"content"`
	RawMarkup    []byte     `bson:"compressed_html"       json:"compressed_html"`
	PublishedAt  *time.Time `bson:"published_dt,omitempty" json:"published_at,omitempty"`
	ParsedAt     time.Time  `bson:"parsed_dt"             json:"parsed_at"`
	Symbols      []string   `bson:"symbols"               json:"symbols"`
}

// HasContent reports whether extraction produced any text.
func (d *ArticleDocument) HasContent() bool {
	return d.Content != nil
}
