package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/snowball-review/internal/domain"
)

func TestNormalizeDOI(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "bare", input: "10.1/x", expected: "10.1/x"},
		{name: "upper case", input: "10.1038/NATURE12373", expected: "10.1038/nature12373"},
		{name: "https url", input: "https://doi.org/10.1038/Nature12373", expected: "10.1038/nature12373"},
		{name: "dx url", input: "http://dx.doi.org/10.1/X", expected: "10.1/x"},
		{name: "doi scheme", input: "doi:10.1/x", expected: "10.1/x"},
		{name: "whitespace and trailing dot", input: "  10.1/x.  ", expected: "10.1/x"},
		{name: "not a doi", input: "arXiv:2101.00001", expected: ""},
		{name: "empty", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizeDOI(tt.input))
		})
	}
}

func TestNormalizeArxivID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"2101.00001", "2101.00001"},
		{"2101.00001v3", "2101.00001"},
		{"arXiv:2101.00001v1", "2101.00001"},
		{"https://arxiv.org/abs/2101.00001v2", "2101.00001"},
		{"https://arxiv.org/pdf/2101.00001.pdf", "2101.00001"},
		{"hep-th/9901001", "hep-th/9901001"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizeArxivID(tt.input))
		})
	}
}

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "deep learning a survey", NormalizeTitle("  Deep Learning:  A Survey. "))
	assert.Equal(t, "covid 19 outcomes", NormalizeTitle("COVID-19 outcomes"))
	assert.Equal(t, "müller cells", NormalizeTitle("Müller   cells"))
	assert.Equal(t, "", NormalizeTitle(" -- "))
}

func TestCanonicalize(t *testing.T) {
	t.Parallel()

	t.Run("doi variants share a key", func(t *testing.T) {
		t.Parallel()
		a := Canonicalize(&domain.Paper{DOI: "10.1/X"})
		b := Canonicalize(&domain.Paper{DOI: "https://doi.org/10.1/x"})
		c := Canonicalize(&domain.Paper{DOI: "doi:10.1/x"})

		assert.Equal(t, CanonicalKey("doi:10.1/x"), a)
		assert.Equal(t, a, b)
		assert.Equal(t, a, c)
		assert.Equal(t, KeyKindDOI, a.Kind())
	})

	t.Run("doi beats arxiv beats title", func(t *testing.T) {
		t.Parallel()
		p := &domain.Paper{DOI: "10.1/x", ArxivID: "2101.00001", Title: "T", Year: domain.IntPtr(2020)}
		assert.Equal(t, KeyKindDOI, Canonicalize(p).Kind())

		p.DOI = ""
		assert.Equal(t, CanonicalKey("arxiv:2101.00001"), Canonicalize(p))

		p.ArxivID = ""
		assert.Equal(t, CanonicalKey("title:t|2020"), Canonicalize(p))
		assert.Equal(t, KeyKindTitle, Canonicalize(p).Kind())
	})

	t.Run("invalid doi falls through", func(t *testing.T) {
		t.Parallel()
		p := &domain.Paper{DOI: "n/a", Title: "Graph Methods"}
		assert.Equal(t, CanonicalKey("title:graph methods|"), Canonicalize(p))
	})

	t.Run("no identity", func(t *testing.T) {
		t.Parallel()
		key := Canonicalize(&domain.Paper{})
		assert.True(t, key.IsZero())
		assert.Equal(t, KeyKindNone, key.Kind())
	})
}
