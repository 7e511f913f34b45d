// Package queue carries pending article jobs over Redis: a FIFO work list,
// per-symbol notification channels and the NLP handoff list.
package queue

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/jonesrussell/north-cloud/rssnews/internal/domain"
)

// ErrMalformedJob is returned when a payload cannot be decoded into a job.
var ErrMalformedJob = errors.New("malformed job payload")

// wireJob is the msgpack map shared with every producer and consumer.
type wireJob struct {
	URLHash   string   `msgpack:"urlHash"`
	Title     string   `msgpack:"title"`
	Link      string   `msgpack:"link"`
	URL       string   `msgpack:"url"`
	Published any      `msgpack:"published"`
	Symbols   []string `msgpack:"symbols"`
	Attempts  int      `msgpack:"attempts,omitempty"`
}

// Encode serializes a job to its wire form.
func Encode(job *domain.PendingJob) ([]byte, error) {
	w := wireJob{
		URLHash:  job.URLHash,
		Title:    job.Title,
		Link:     job.Link,
		URL:      job.CanonicalURL,
		Symbols:  job.Symbols,
		Attempts: job.Attempts,
	}
	if w.Symbols == nil {
		w.Symbols = []string{}
	}
	if job.PublishedAt != nil {
		w.Published = toEpoch(*job.PublishedAt)
	}

	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("encode job %s: %w", job.URLHash, err)
	}
	return data, nil
}

// Decode parses a wire payload into a job.
func Decode(data []byte) (*domain.PendingJob, error) {
	var w wireJob
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedJob, err)
	}
	if w.URLHash == "" || w.URL == "" {
		return nil, fmt.Errorf("%w: missing urlHash or url", ErrMalformedJob)
	}

	job := &domain.PendingJob{
		URLHash:      w.URLHash,
		Title:        w.Title,
		Link:         w.Link,
		CanonicalURL: w.URL,
		Symbols:      w.Symbols,
		Attempts:     w.Attempts,
	}

	if w.Published != nil {
		secs, ok := asFloat(w.Published)
		if !ok {
			return nil, fmt.Errorf("%w: published is %T", ErrMalformedJob, w.Published)
		}
		t := fromEpoch(secs)
		job.PublishedAt = &t
	}

	return job, nil
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(secs float64) time.Time {
	whole, frac := math.Modf(secs)
	return time.Unix(int64(whole), int64(frac*float64(time.Second))).UTC()
}

// asFloat accepts any numeric msgpack scalar, since other producers may
// write whole-second timestamps as integers.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
