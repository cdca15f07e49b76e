package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of the snowball engine, grouped
// by subsystem: providers, iterations, papers, scoring, LLM and HTTP.
// All methods are safe on a nil receiver.
type Metrics struct {
	// ProviderRequests counts provider calls by provider, operation and outcome
	// (success, not_found, transient, permanent).
	ProviderRequests *prometheus.CounterVec

	// ProviderRetries counts retried provider calls by provider and operation.
	ProviderRetries *prometheus.CounterVec

	// ProviderFallbacks counts lookups that moved on to the next provider.
	ProviderFallbacks *prometheus.CounterVec

	// ProviderRequestDuration observes provider call duration in seconds.
	ProviderRequestDuration *prometheus.HistogramVec

	// LookupFailures counts lookups that failed on every provider.
	LookupFailures *prometheus.CounterVec

	// IterationsCompleted counts iterations committed to storage.
	IterationsCompleted prometheus.Counter

	// IterationsCancelled counts iterations abandoned through cancellation.
	IterationsCancelled prometheus.Counter

	// IterationsFailed counts iterations that failed to commit.
	IterationsFailed prometheus.Counter

	// IterationDuration observes the wall time of RunIteration in seconds.
	IterationDuration prometheus.Histogram

	// PapersDiscovered counts new papers by direction (backward, forward).
	PapersDiscovered *prometheus.CounterVec

	// PapersMerged counts provider records merged into existing papers.
	PapersMerged prometheus.Counter

	// PapersAutoExcluded counts automated exclusions by rule.
	PapersAutoExcluded *prometheus.CounterVec

	// IdentityConflicts counts near-duplicate title pairs kept apart.
	IdentityConflicts prometheus.Counter

	// ScoringDuration observes scoring passes by method.
	ScoringDuration *prometheus.HistogramVec

	// LLMRequests counts LLM calls by provider, model and outcome.
	LLMRequests *prometheus.CounterVec

	// LLMTokensUsed counts tokens by provider, model and token type.
	LLMTokensUsed *prometheus.CounterVec

	// HTTPRequestDuration observes review API requests by method, route and status.
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates metrics registered with the default Prometheus registry.
// Registering the same namespace twice panics.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith creates metrics registered with reg.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ProviderRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Provider calls by provider, operation and outcome",
		}, []string{"provider", "operation", "outcome"}),
		ProviderRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "retries_total",
			Help:      "Provider calls retried after a transient failure",
		}, []string{"provider", "operation"}),
		ProviderFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "fallbacks_total",
			Help:      "Lookups that fell through to the next provider",
		}, []string{"provider", "operation"}),
		ProviderRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "request_duration_seconds",
			Help:      "Provider call duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"provider", "operation"}),
		LookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "lookup_failures_total",
			Help:      "Lookups that failed on every configured provider",
		}, []string{"operation"}),

		IterationsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_completed_total",
			Help:      "Snowball iterations committed",
		}),
		IterationsCancelled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_cancelled_total",
			Help:      "Snowball iterations abandoned through cancellation",
		}),
		IterationsFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "iterations_failed_total",
			Help:      "Snowball iterations that failed to commit",
		}),
		IterationDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "iteration_duration_seconds",
			Help:      "Wall time of one snowball iteration in seconds",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),

		PapersDiscovered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "papers",
			Name:      "discovered_total",
			Help:      "New papers discovered by direction",
		}, []string{"direction"}),
		PapersMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "papers",
			Name:      "merged_total",
			Help:      "Provider records merged into existing papers",
		}),
		PapersAutoExcluded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "papers",
			Name:      "auto_excluded_total",
			Help:      "Papers excluded by the filter engine, by rule",
		}, []string{"rule"}),
		IdentityConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_conflicts_total",
			Help:      "Near-duplicate records kept as distinct papers",
		}),

		ScoringDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "duration_seconds",
			Help:      "Relevance scoring pass duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "requests_total",
			Help:      "LLM API requests by provider, model and outcome",
		}, []string{"provider", "model", "outcome"}),
		LLMTokensUsed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "LLM tokens consumed by provider, model and token type",
		}, []string{"provider", "model", "type"}),

		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Review API request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// RecordProviderRequest records the outcome and duration of one provider call.
func (m *Metrics) RecordProviderRequest(provider, operation, outcome string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ProviderRequests.WithLabelValues(provider, operation, outcome).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, operation).Observe(durationSeconds)
}

// RecordProviderRetry records a retried provider call.
func (m *Metrics) RecordProviderRetry(provider, operation string) {
	if m == nil {
		return
	}
	m.ProviderRetries.WithLabelValues(provider, operation).Inc()
}

// RecordProviderFallback records a lookup leaving provider for the next one.
func (m *Metrics) RecordProviderFallback(provider, operation string) {
	if m == nil {
		return
	}
	m.ProviderFallbacks.WithLabelValues(provider, operation).Inc()
}

// RecordLookupFailure records a lookup that no provider could serve.
func (m *Metrics) RecordLookupFailure(operation string) {
	if m == nil {
		return
	}
	m.LookupFailures.WithLabelValues(operation).Inc()
}

// RecordIterationCompleted records a committed iteration.
func (m *Metrics) RecordIterationCompleted(durationSeconds float64) {
	if m == nil {
		return
	}
	m.IterationsCompleted.Inc()
	m.IterationDuration.Observe(durationSeconds)
}

// RecordIterationCancelled records a cancelled iteration.
func (m *Metrics) RecordIterationCancelled() {
	if m == nil {
		return
	}
	m.IterationsCancelled.Inc()
}

// RecordIterationFailed records an iteration that failed to commit.
func (m *Metrics) RecordIterationFailed() {
	if m == nil {
		return
	}
	m.IterationsFailed.Inc()
}

// RecordPapersDiscovered adds count new papers for a direction.
func (m *Metrics) RecordPapersDiscovered(direction string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.PapersDiscovered.WithLabelValues(direction).Add(float64(count))
}

// RecordPaperMerged records a duplicate merged into an existing paper.
func (m *Metrics) RecordPaperMerged() {
	if m == nil {
		return
	}
	m.PapersMerged.Inc()
}

// RecordAutoExcluded records an automated exclusion by rule.
func (m *Metrics) RecordAutoExcluded(rule string) {
	if m == nil {
		return
	}
	m.PapersAutoExcluded.WithLabelValues(rule).Inc()
}

// RecordIdentityConflict records a near-duplicate kept apart.
func (m *Metrics) RecordIdentityConflict() {
	if m == nil {
		return
	}
	m.IdentityConflicts.Inc()
}

// RecordScoring records a scoring pass.
func (m *Metrics) RecordScoring(method string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ScoringDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordLLMRequest records an LLM call and its token usage.
func (m *Metrics) RecordLLMRequest(provider, model, outcome string, inputTokens, outputTokens int) {
	if m == nil {
		return
	}
	m.LLMRequests.WithLabelValues(provider, model, outcome).Inc()
	if inputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "input").Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "output").Add(float64(outputTokens))
	}
}

// RecordHTTPRequest records a review API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestDuration.WithLabelValues(method, route, status).Observe(durationSeconds)
}
