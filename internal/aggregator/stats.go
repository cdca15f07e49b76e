package aggregator

import (
	"maps"
	"sync"
)

// ProviderStats tallies calls to one provider.
type ProviderStats struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
	NotFound  int `json:"not_found"`
	Retries   int `json:"retries"`
	Fallbacks int `json:"fallbacks"`
}

// Stats is a snapshot of the aggregator's counters since creation or the
// last ResetStats.
type Stats struct {
	Providers map[string]ProviderStats `json:"providers"`
	// FailedLookups counts lookups that failed on every provider.
	FailedLookups int `json:"failed_lookups"`
}

type statsRecorder struct {
	mu        sync.Mutex
	providers map[string]ProviderStats
	failed    int
}

func newStatsRecorder() *statsRecorder {
	return &statsRecorder{providers: map[string]ProviderStats{}}
}

func (s *statsRecorder) update(name string, fn func(*ProviderStats)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ps := s.providers[name]
	fn(&ps)
	s.providers[name] = ps
}

func (s *statsRecorder) attempt(name string)  { s.update(name, func(ps *ProviderStats) { ps.Attempts++ }) }
func (s *statsRecorder) success(name string)  { s.update(name, func(ps *ProviderStats) { ps.Successes++ }) }
func (s *statsRecorder) notFound(name string) { s.update(name, func(ps *ProviderStats) { ps.NotFound++ }) }
func (s *statsRecorder) retry(name string)    { s.update(name, func(ps *ProviderStats) { ps.Retries++ }) }
func (s *statsRecorder) fallback(name string) { s.update(name, func(ps *ProviderStats) { ps.Fallbacks++ }) }

func (s *statsRecorder) failure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed++
}

func (s *statsRecorder) snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Providers: maps.Clone(s.providers), FailedLookups: s.failed}
}

func (s *statsRecorder) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers = map[string]ProviderStats{}
	s.failed = 0
}

// Stats returns a snapshot of the call counters.
func (a *Aggregator) Stats() Stats {
	return a.stats.snapshot()
}

// ResetStats clears the call counters.
func (a *Aggregator) ResetStats() {
	a.stats.reset()
}
