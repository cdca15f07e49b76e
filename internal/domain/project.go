package domain

import (
	"maps"
	"slices"
	"strings"
	"time"
)

// FilterCriteria holds the researcher-defined exclusion criteria. Numeric
// bounds are inclusive and optional.
type FilterCriteria struct {
	MinYear                 *int     `json:"min_year,omitempty"`
	MaxYear                 *int     `json:"max_year,omitempty"`
	MinCitations            *int     `json:"min_citations,omitempty"`
	MaxCitations            *int     `json:"max_citations,omitempty"`
	MinInfluentialCitations *int     `json:"min_influential_citations,omitempty"`
	Keywords                []string `json:"keywords"`
	ExcludedKeywords        []string `json:"excluded_keywords"`
}

// Validate checks that bounds are ordered.
func (c FilterCriteria) Validate() error {
	if c.MinYear != nil && c.MaxYear != nil && *c.MinYear > *c.MaxYear {
		return NewValidationError("filter_criteria.min_year", "must not exceed max_year")
	}
	if c.MinCitations != nil && c.MaxCitations != nil && *c.MinCitations > *c.MaxCitations {
		return NewValidationError("filter_criteria.min_citations", "must not exceed max_citations")
	}
	for _, bound := range []*int{c.MinCitations, c.MaxCitations, c.MinInfluentialCitations} {
		if bound != nil && *bound < 0 {
			return NewValidationError("filter_criteria", "citation bounds must not be negative")
		}
	}
	return nil
}

// IterationStats records the outcome of one snowball iteration.
type IterationStats struct {
	Iteration      int       `json:"iteration"`
	Discovered     int       `json:"discovered"`
	Backward       int       `json:"backward"`
	Forward        int       `json:"forward"`
	AutoExcluded   int       `json:"auto_excluded"`
	ForReview      int       `json:"for_review"`
	ManualIncluded int       `json:"manual_included"`
	ManualExcluded int       `json:"manual_excluded"`
	ManualMaybe    int       `json:"manual_maybe"`
	Reviewed       int       `json:"reviewed"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	Timestamp      time.Time `json:"timestamp"`
}

// ReviewProject is the top-level state of one systematic review.
type ReviewProject struct {
	Name             string         `json:"name"`
	Description      string         `json:"description"`
	ResearchQuestion string         `json:"research_question,omitempty"`
	ScoringMethod    string         `json:"scoring_method,omitempty"`
	MaxIterations    int            `json:"max_iterations"`
	CurrentIteration int            `json:"current_iteration"`
	FilterCriteria   FilterCriteria `json:"filter_criteria"`
	SeedPaperIDs     []string       `json:"seed_paper_ids"`

	// IterationStats is keyed by iteration number; JSON encodes the keys as strings.
	IterationStats map[int]IterationStats `json:"iteration_stats"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewReviewProject creates a project with defaults applied.
func NewReviewProject(name, description string, maxIterations int) *ReviewProject {
	if maxIterations <= 0 {
		maxIterations = 1
	}
	now := time.Now().UTC()
	return &ReviewProject{
		Name:           strings.TrimSpace(name),
		Description:    description,
		MaxIterations:  maxIterations,
		FilterCriteria: FilterCriteria{Keywords: []string{}, ExcludedKeywords: []string{}},
		SeedPaperIDs:   []string{},
		IterationStats: map[int]IterationStats{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Normalize fills defaults on a project loaded from storage.
func (p *ReviewProject) Normalize() {
	if p.SeedPaperIDs == nil {
		p.SeedPaperIDs = []string{}
	}
	p.SeedPaperIDs = sortedSet(p.SeedPaperIDs)
	if p.IterationStats == nil {
		p.IterationStats = map[int]IterationStats{}
	}
	if p.FilterCriteria.Keywords == nil {
		p.FilterCriteria.Keywords = []string{}
	}
	if p.FilterCriteria.ExcludedKeywords == nil {
		p.FilterCriteria.ExcludedKeywords = []string{}
	}
}

// Validate checks the project's invariants.
func (p *ReviewProject) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewValidationError("name", "is required")
	}
	if p.MaxIterations < 1 {
		return NewValidationError("max_iterations", "must be at least 1")
	}
	if p.CurrentIteration < 0 {
		return NewValidationError("current_iteration", "must not be negative")
	}
	return p.FilterCriteria.Validate()
}

// Clone returns a deep copy of the project.
func (p *ReviewProject) Clone() *ReviewProject {
	c := *p
	c.FilterCriteria.MinYear = cloneInt(p.FilterCriteria.MinYear)
	c.FilterCriteria.MaxYear = cloneInt(p.FilterCriteria.MaxYear)
	c.FilterCriteria.MinCitations = cloneInt(p.FilterCriteria.MinCitations)
	c.FilterCriteria.MaxCitations = cloneInt(p.FilterCriteria.MaxCitations)
	c.FilterCriteria.MinInfluentialCitations = cloneInt(p.FilterCriteria.MinInfluentialCitations)
	c.FilterCriteria.Keywords = slices.Clone(p.FilterCriteria.Keywords)
	c.FilterCriteria.ExcludedKeywords = slices.Clone(p.FilterCriteria.ExcludedKeywords)
	c.SeedPaperIDs = slices.Clone(p.SeedPaperIDs)
	c.IterationStats = maps.Clone(p.IterationStats)
	if c.IterationStats == nil {
		c.IterationStats = map[int]IterationStats{}
	}
	return &c
}

// IsSeed reports whether the paper id is one of the project's seeds.
func (p *ReviewProject) IsSeed(id string) bool {
	_, found := slices.BinarySearch(p.SeedPaperIDs, id)
	return found
}

// AddSeed records a seed paper id.
func (p *ReviewProject) AddSeed(id string) bool {
	var added bool
	p.SeedPaperIDs, added = addToSet(p.SeedPaperIDs, id)
	return added
}

// PreviousStats returns the stats of the most recently completed iteration.
func (p *ReviewProject) PreviousStats() (IterationStats, bool) {
	if p.CurrentIteration == 0 {
		return IterationStats{}, false
	}
	stats, ok := p.IterationStats[p.CurrentIteration]
	return stats, ok
}

// Query returns the text used as the relevance scoring query.
func (p *ReviewProject) Query() string {
	if q := strings.TrimSpace(p.ResearchQuestion); q != "" {
		return q
	}
	if d := strings.TrimSpace(p.Description); d != "" {
		return d
	}
	return p.Name
}

// SortedIterations returns the recorded iteration numbers in ascending order.
func (p *ReviewProject) SortedIterations() []int {
	return slices.Sorted(maps.Keys(p.IterationStats))
}
