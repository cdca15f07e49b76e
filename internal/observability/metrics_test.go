package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetricsWith(reg, "test"), reg
}

func TestNewMetricsWith(t *testing.T) {
	m, reg := newTestMetrics(t)

	assert.NotNil(t, m.ProviderRequests)
	assert.NotNil(t, m.IterationDuration)
	assert.NotNil(t, m.HTTPRequestDuration)

	// Vectors only appear once a label set is used.
	m.RecordIterationCompleted(1)
	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewMetricsWith_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetricsWith(reg, "dup")

	assert.Panics(t, func() { NewMetricsWith(reg, "dup") })
}

func TestRecordProviderRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordProviderRequest("openalex", "resolve", "success", 0.2)
	m.RecordProviderRequest("openalex", "resolve", "success", 0.4)
	m.RecordProviderRequest("openalex", "resolve", "not_found", 0.1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ProviderRequests.WithLabelValues("openalex", "resolve", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderRequests.WithLabelValues("openalex", "resolve", "not_found")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ProviderRequestDuration))
}

func TestRecordProviderRetryAndFallback(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordProviderRetry("semantic_scholar", "references")
	m.RecordProviderFallback("semantic_scholar", "references")
	m.RecordLookupFailure("citations")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderRetries.WithLabelValues("semantic_scholar", "references")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProviderFallbacks.WithLabelValues("semantic_scholar", "references")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LookupFailures.WithLabelValues("citations")))
}

func TestRecordIterations(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordIterationCompleted(12)
	m.RecordIterationCancelled()
	m.RecordIterationFailed()
	m.RecordIterationFailed()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.IterationsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IterationsCancelled))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.IterationsFailed))
}

func TestRecordPapers(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordPapersDiscovered("backward", 7)
	m.RecordPapersDiscovered("forward", 0)
	m.RecordPaperMerged()
	m.RecordAutoExcluded("year")
	m.RecordAutoExcluded("year")
	m.RecordIdentityConflict()

	assert.Equal(t, float64(7), testutil.ToFloat64(m.PapersDiscovered.WithLabelValues("backward")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.PapersDiscovered))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PapersMerged))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.PapersAutoExcluded.WithLabelValues("year")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.IdentityConflicts))
}

func TestRecordLLMRequest(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordLLMRequest("openai", "gpt-4o-mini", "success", 100, 50)
	m.RecordLLMRequest("openai", "gpt-4o-mini", "error", 0, 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequests.WithLabelValues("openai", "gpt-4o-mini", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.LLMRequests.WithLabelValues("openai", "gpt-4o-mini", "error")))
	assert.Equal(t, float64(100), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "input")))
	assert.Equal(t, float64(50), testutil.ToFloat64(m.LLMTokensUsed.WithLabelValues("openai", "gpt-4o-mini", "output")))
}

func TestRecordScoringAndHTTP(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.RecordScoring("tfidf", 0.01)
	m.RecordHTTPRequest("GET", "/projects/{name}", "200", 0.003)

	assert.Equal(t, 1, testutil.CollectAndCount(m.ScoringDuration))
	assert.Equal(t, 1, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordProviderRequest("p", "resolve", "success", 1)
		m.RecordProviderRetry("p", "resolve")
		m.RecordProviderFallback("p", "resolve")
		m.RecordLookupFailure("resolve")
		m.RecordIterationCompleted(1)
		m.RecordIterationCancelled()
		m.RecordIterationFailed()
		m.RecordPapersDiscovered("forward", 1)
		m.RecordPaperMerged()
		m.RecordAutoExcluded("year")
		m.RecordIdentityConflict()
		m.RecordScoring("tfidf", 1)
		m.RecordLLMRequest("openai", "m", "success", 1, 1)
		m.RecordHTTPRequest("GET", "/", "200", 1)
	})
}
