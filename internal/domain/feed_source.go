// Package domain holds the records that flow through the feed-to-article pipeline.
package domain

import "time"

// FeedSource is a tracked feed for one ticker symbol. Stores key sources by symbol.
type FeedSource struct {
	ID            string      `bson:"_id,omitempty"               db:"id"`
	Symbol        string      `bson:"symbol"                      db:"symbol"`
	Company       string      `bson:"company,omitempty"           db:"company"`
	FeedURL       string      `bson:"url"                         db:"feed_url"`
	LastUpdated   *time.Time  `bson:"updated,omitempty"           db:"last_updated"`
	UpdateHistory []time.Time `bson:"updated_timestamps,omitempty" db:"-"`
}

// FeedEntry is a single item parsed out of a feed document. It is discarded
// once its link has been canonicalized.
type FeedEntry struct {
	Title       string
	Link        string
	PublishedAt *time.Time
}

// ParsedFeed is the result of parsing one feed document.
type ParsedFeed struct {
	// Updated is the feed-level last-modified timestamp, when the feed carries one.
	Updated *time.Time
	Entries []FeedEntry
}
