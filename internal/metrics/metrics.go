// Package metrics provides Prometheus metrics for the poller and fetcher.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the namespace for all rssnews metrics.
	Namespace = "rssnews"

	subsystemPoller  = "poller"
	subsystemFetcher = "fetcher"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Poller metrics
	PollsTotal         *prometheus.CounterVec
	EntriesTotal       *prometheus.CounterVec
	LockTimeoutsTotal  prometheus.Counter
	RegistryUpdates    prometheus.Counter
	NotificationsTotal prometheus.Counter

	// Fetcher metrics
	FetchesTotal       *prometheus.CounterVec
	RedirectHopsTotal  prometheus.Counter
	ExtractionFailures prometheus.Counter
	HandoffsTotal      prometheus.Counter
}

// New creates and registers all metrics on reg. A nil reg uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)
	m := &Metrics{}

	m.initPollerMetrics(factory)
	m.initFetcherMetrics(factory)

	return m
}

func (m *Metrics) initPollerMetrics(factory promauto.Factory) {
	m.PollsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemPoller,
			Name:      "polls_total",
			Help:      "Feed polls by result",
		},
		[]string{"result"},
	)

	m.EntriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemPoller,
			Name:      "entries_total",
			Help:      "Feed entries by dedup outcome",
		},
		[]string{"outcome"},
	)

	m.LockTimeoutsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemPoller,
		Name:      "lock_timeouts_total",
		Help:      "Entries skipped because the dedup lock was busy",
	})

	m.RegistryUpdates = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemPoller,
		Name:      "registry_updates_total",
		Help:      "Feed source freshness updates",
	})

	m.NotificationsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemPoller,
		Name:      "notifications_total",
		Help:      "Jobs published on symbol channels",
	})
}

func (m *Metrics) initFetcherMetrics(factory promauto.Factory) {
	m.FetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: subsystemFetcher,
			Name:      "jobs_total",
			Help:      "Fetch jobs by result",
		},
		[]string{"result"},
	)

	m.RedirectHopsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemFetcher,
		Name:      "redirect_hops_total",
		Help:      "Redirect documents followed",
	})

	m.ExtractionFailures = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemFetcher,
		Name:      "extraction_failures_total",
		Help:      "Articles stored without extracted content",
	})

	m.HandoffsTotal = factory.NewCounter(prometheus.CounterOpts{
		Namespace: Namespace,
		Subsystem: subsystemFetcher,
		Name:      "handoffs_total",
		Help:      "Document ids pushed to the NLP queue",
	})
}

// RecordPoll counts a poll with the given result.
func (m *Metrics) RecordPoll(result string) {
	if m == nil {
		return
	}
	m.PollsTotal.WithLabelValues(result).Inc()
}

// RecordEntry counts an entry dedup outcome.
func (m *Metrics) RecordEntry(outcome string) {
	if m == nil {
		return
	}
	m.EntriesTotal.WithLabelValues(outcome).Inc()
}

// RecordLockTimeout counts a skipped entry.
func (m *Metrics) RecordLockTimeout() {
	if m == nil {
		return
	}
	m.LockTimeoutsTotal.Inc()
}

// RecordRegistryUpdate counts a freshness update.
func (m *Metrics) RecordRegistryUpdate() {
	if m == nil {
		return
	}
	m.RegistryUpdates.Inc()
}

// RecordNotification counts a publish.
func (m *Metrics) RecordNotification() {
	if m == nil {
		return
	}
	m.NotificationsTotal.Inc()
}

// RecordFetch counts a fetch job result.
func (m *Metrics) RecordFetch(result string) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
}

// RecordRedirectHop counts a followed redirect document.
func (m *Metrics) RecordRedirectHop() {
	if m == nil {
		return
	}
	m.RedirectHopsTotal.Inc()
}

// RecordExtractionFailure counts an article stored with null content.
func (m *Metrics) RecordExtractionFailure() {
	if m == nil {
		return
	}
	m.ExtractionFailures.Inc()
}

// RecordHandoff counts an NLP handoff.
func (m *Metrics) RecordHandoff() {
	if m == nil {
		return
	}
	m.HandoffsTotal.Inc()
}
