// Package metrics exposes Prometheus collectors for the research crawler.
package metrics

import (
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchesTotal           *prometheus.CounterVec
	documentsStoredTotal   prometheus.Counter
	snippetsStoredTotal    prometheus.Counter
	questionsDoneTotal     prometheus.Counter
	searchesTotal          *prometheus.CounterVec
	rateLimitDelaySeconds  *prometheus.HistogramVec
	fetchDurationSeconds   prometheus.Histogram
	phasesTotal            *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. It is safe to call multiple
// times; every Observe helper calls it, so explicit initialization is only
// needed when collectors must exist before the first observation.
func Init() {
	once.Do(func() {
		fetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delver_fetches_total",
				Help: "Total fetch attempts, labeled by site and outcome.",
			},
			[]string{"site", "outcome"},
		)

		documentsStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "delver_documents_stored_total",
				Help: "Total documents stored (newly added, duplicates excluded).",
			},
		)

		snippetsStoredTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "delver_snippets_stored_total",
				Help: "Total snippets extracted and stored.",
			},
		)

		questionsDoneTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "delver_questions_done_total",
				Help: "Total research questions marked done.",
			},
		)

		searchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delver_searches_total",
				Help: "Total search queries issued, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "delver_rate_limit_delay_seconds",
				Help:    "Histogram of rate limiter wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"site"},
		)

		fetchDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "delver_fetch_duration_seconds",
				Help:    "Histogram of fetch latencies.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
		)

		phasesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "delver_phases_total",
				Help: "Total research phases run, labeled by phase.",
			},
			[]string{"phase"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from a URL for use as a label.
// It returns "unknown" when the URL cannot be parsed.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records a fetch attempt with its outcome
// ("stored", "thin", "blocked", "error", ...).
func ObserveFetch(site, outcome string, duration time.Duration) {
	Init()
	fetchesTotal.WithLabelValues(SanitizeSite(site), outcome).Inc()
	if duration > 0 {
		fetchDurationSeconds.Observe(duration.Seconds())
	}
}

// ObserveDocumentStored increments the stored-document counter.
func ObserveDocumentStored() {
	Init()
	documentsStoredTotal.Inc()
}

// ObserveSnippetsStored adds n to the stored-snippet counter.
func ObserveSnippetsStored(n int) {
	Init()
	if n > 0 {
		snippetsStoredTotal.Add(float64(n))
	}
}

// ObserveQuestionDone increments the completed-question counter.
func ObserveQuestionDone() {
	Init()
	questionsDoneTotal.Inc()
}

// ObserveSearch records a search query outcome ("ok" or "empty").
func ObserveSearch(outcome string) {
	Init()
	searchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limiter wait.
func ObserveRateLimitDelay(site string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(SanitizeSite(site)).Observe(duration.Seconds())
}

// ObservePhase records a completed phase ("initial" or "deep").
func ObservePhase(phase string) {
	Init()
	phasesTotal.WithLabelValues(phase).Inc()
}
