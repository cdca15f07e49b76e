package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
)

func newProjectPaper(record *domain.Paper) *domain.Paper {
	return domain.NewPaper(record, domain.PaperSourceBackward, 1)
}

func TestIndex_Find(t *testing.T) {
	t.Parallel()

	byDOI := newProjectPaper(&domain.Paper{DOI: "10.1/x", Title: "Seed paper", Year: domain.IntPtr(2022)})
	byArxiv := newProjectPaper(&domain.Paper{ArxivID: "2101.00001", Title: "Preprint", Year: domain.IntPtr(2021)})
	byTitle := newProjectPaper(&domain.Paper{Title: "Attention is all you need", Year: domain.IntPtr(2017)})
	byOpenAlex := newProjectPaper(&domain.Paper{OpenAlexID: "W123", Title: "An OpenAlex work"})

	idx := NewIndex(NewResolver(DefaultConfig()), []*domain.Paper{byDOI, byArxiv, byTitle, byOpenAlex})
	require.Equal(t, 4, idx.Len())
	assert.Same(t, byDOI, idx.Get(byDOI.ID))

	tests := []struct {
		name   string
		record *domain.Paper
		want   *domain.Paper
		reason MatchReason
	}{
		{name: "doi url variant", record: &domain.Paper{DOI: "https://doi.org/10.1/X"}, want: byDOI, reason: MatchDOI},
		{name: "arxiv version", record: &domain.Paper{ArxivID: "2101.00001v2"}, want: byArxiv, reason: MatchArXiv},
		{name: "openalex id", record: &domain.Paper{OpenAlexID: "W123"}, want: byOpenAlex, reason: MatchProviderID},
		{name: "exact title", record: &domain.Paper{Title: "Attention Is All You Need!", Year: domain.IntPtr(2017)}, want: byTitle, reason: MatchTitle},
		{name: "fuzzy title", record: &domain.Paper{Title: "Attention is all you needs", Year: domain.IntPtr(2017)}, want: byTitle, reason: MatchFuzzyTitle},
		{name: "new paper", record: &domain.Paper{DOI: "10.9/new", Title: "Something else", Year: domain.IntPtr(2017)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, match := idx.Find(tt.record)
			if tt.want == nil {
				assert.Nil(t, found)
				assert.False(t, match.Duplicate)
				return
			}
			assert.Same(t, tt.want, found)
			assert.Equal(t, tt.reason, match.Reason)
		})
	}
}

func TestIndex_FindReportsConflict(t *testing.T) {
	t.Parallel()

	existing := newProjectPaper(&domain.Paper{DOI: "10.1/a", Title: "Introduction", Year: domain.IntPtr(2020)})
	idx := NewIndex(NewResolver(DefaultConfig()), []*domain.Paper{existing})

	found, match := idx.Find(&domain.Paper{DOI: "10.1/b", Title: "Introduction", Year: domain.IntPtr(2020)})

	assert.Nil(t, found)
	require.NotNil(t, match.Conflict)
	assert.Equal(t, existing.ID, match.Conflict.ExistingID)
}

func TestIndex_AddReindexesAfterMerge(t *testing.T) {
	t.Parallel()

	p := newProjectPaper(&domain.Paper{Title: "Untitled draft"})
	idx := NewIndex(NewResolver(DefaultConfig()), []*domain.Paper{p})

	found, _ := idx.Find(&domain.Paper{DOI: "10.5/z"})
	assert.Nil(t, found)

	Merge(p, &domain.Paper{DOI: "10.5/z", Year: domain.IntPtr(2019)})
	idx.Add(p)

	found, match := idx.Find(&domain.Paper{DOI: "10.5/Z"})
	assert.Same(t, p, found)
	assert.Equal(t, MatchDOI, match.Reason)
	assert.Equal(t, 1, idx.Len())
}

func TestIndex_NoDuplicatesAfterSequentialAdds(t *testing.T) {
	t.Parallel()

	idx := NewIndex(NewResolver(DefaultConfig()), nil)
	records := []*domain.Paper{
		{DOI: "10.1/a"},
		{DOI: "https://doi.org/10.1/A", Title: "A"},
		{ArxivID: "2101.1"},
		{ArxivID: "arXiv:2101.1v2", DOI: "10.1/b"},
		{DOI: "10.1/B"},
		{Title: "Same Title", Year: domain.IntPtr(2000)},
		{Title: "same title", Year: domain.IntPtr(2000)},
	}

	for _, r := range records {
		if existing, match := idx.Find(r); match.Duplicate {
			Merge(existing, r)
			idx.Add(existing)
			continue
		}
		idx.Add(newProjectPaper(r))
	}

	assert.Equal(t, 3, idx.Len())
}
