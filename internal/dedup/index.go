package dedup

import (
	"slices"

	"github.com/helixir/snowball-review/internal/domain"
)

// Index is an in-memory identity index over a project's papers. It is not
// safe for concurrent use; the engine drives it from a single goroutine.
type Index struct {
	resolver *Resolver

	byID       map[string]*domain.Paper
	byDOI      map[string]*domain.Paper
	byArxiv    map[string]*domain.Paper
	byProvider map[string]*domain.Paper
	byTitle    map[CanonicalKey][]*domain.Paper
	byYear     map[int][]*domain.Paper
}

// NewIndex builds an index over the given papers.
func NewIndex(resolver *Resolver, papers []*domain.Paper) *Index {
	idx := &Index{
		resolver:   resolver,
		byID:       make(map[string]*domain.Paper, len(papers)),
		byDOI:      make(map[string]*domain.Paper, len(papers)),
		byArxiv:    make(map[string]*domain.Paper),
		byProvider: make(map[string]*domain.Paper),
		byTitle:    make(map[CanonicalKey][]*domain.Paper, len(papers)),
		byYear:     make(map[int][]*domain.Paper),
	}
	for _, p := range papers {
		idx.Add(p)
	}
	return idx
}

// Len returns the number of indexed papers.
func (i *Index) Len() int {
	return len(i.byID)
}

// Get returns the indexed paper with the given id.
func (i *Index) Get(id string) *domain.Paper {
	return i.byID[id]
}

// Add indexes a paper, or re-indexes it after a merge filled new identifiers.
func (i *Index) Add(p *domain.Paper) {
	i.byID[p.ID] = p

	if doi := NormalizeDOI(p.DOI); doi != "" {
		if _, ok := i.byDOI[doi]; !ok {
			i.byDOI[doi] = p
		}
	}
	if arxiv := NormalizeArxivID(p.ArxivID); arxiv != "" {
		if _, ok := i.byArxiv[arxiv]; !ok {
			i.byArxiv[arxiv] = p
		}
	}
	for _, key := range providerKeys(p) {
		if _, ok := i.byProvider[key]; !ok {
			i.byProvider[key] = p
		}
	}
	if key := titleKey(p); !key.IsZero() && !slices.Contains(i.byTitle[key], p) {
		i.byTitle[key] = append(i.byTitle[key], p)
	}
	if p.Year != nil && !slices.Contains(i.byYear[*p.Year], p) {
		i.byYear[*p.Year] = append(i.byYear[*p.Year], p)
	}
}

// Find returns the indexed paper the record duplicates, if any. When no
// duplicate exists the returned match may carry an identity conflict for the
// closest fuzzy candidate.
func (i *Index) Find(record *domain.Paper) (*domain.Paper, Match) {
	var candidates []*domain.Paper
	if doi := NormalizeDOI(record.DOI); doi != "" {
		candidates = appendCandidate(candidates, i.byDOI[doi])
	}
	if arxiv := NormalizeArxivID(record.ArxivID); arxiv != "" {
		candidates = appendCandidate(candidates, i.byArxiv[arxiv])
	}
	for _, key := range providerKeys(record) {
		candidates = appendCandidate(candidates, i.byProvider[key])
	}
	if key := titleKey(record); !key.IsZero() {
		for _, p := range i.byTitle[key] {
			candidates = appendCandidate(candidates, p)
		}
	}

	for _, p := range candidates {
		if match := i.resolver.Compare(p, record); match.Duplicate {
			return p, match
		}
	}

	if record.Year == nil {
		return nil, Match{}
	}

	var closest Match
	for _, p := range i.byYear[*record.Year] {
		match := i.resolver.Compare(p, record)
		if match.Duplicate {
			return p, match
		}
		if match.Conflict != nil && (closest.Conflict == nil || match.Similarity > closest.Similarity) {
			closest = match
		}
	}
	return nil, closest
}

func providerKeys(p *domain.Paper) []string {
	var keys []string
	if p.S2ID != "" {
		keys = append(keys, "s2:"+p.S2ID)
	}
	if p.OpenAlexID != "" {
		keys = append(keys, "openalex:"+p.OpenAlexID)
	}
	if p.PMID != "" {
		keys = append(keys, "pmid:"+p.PMID)
	}
	return keys
}

func appendCandidate(candidates []*domain.Paper, p *domain.Paper) []*domain.Paper {
	if p == nil || slices.Contains(candidates, p) {
		return candidates
	}
	return append(candidates, p)
}
