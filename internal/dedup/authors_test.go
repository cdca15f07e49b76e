package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/helixir/snowball-review/internal/domain"
)

func TestNormalizeName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "simple lowercase", input: "John Smith", expected: "john smith"},
		{name: "extra whitespace", input: "  John   Smith  ", expected: "john smith"},
		{name: "last comma first format", input: "SMITH, John", expected: "john smith"},
		{name: "comma without first name", input: "Smith,", expected: "smith"},
		{name: "apostrophe removed", input: "O'Brien", expected: "obrien"},
		{name: "periods removed", input: "J. K. Rowling", expected: "j k rowling"},
		{name: "hyphens removed", input: "Mary-Jane Watson", expected: "maryjane watson"},
		{name: "unicode letters kept", input: "José Müller", expected: "josé müller"},
		{name: "empty string", input: "", expected: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, NormalizeName(tt.input))
		})
	}
}

func TestNameSimilarity(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{name: "exact", a: "john smith", b: "john smith", expected: 1.0},
		{name: "initial", a: "j smith", b: "john smith", expected: 0.9},
		{name: "surname only", a: "smith", b: "john smith", expected: 0.7},
		{name: "different given names", a: "jane smith", b: "john smith", expected: 0.3},
		{name: "different surnames", a: "john smith", b: "john doe", expected: 0.0},
		{name: "empty", a: "", b: "john smith", expected: 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tt.expected, nameSimilarity(tt.a, tt.b), 1e-9)
			assert.InDelta(t, tt.expected, nameSimilarity(tt.b, tt.a), 1e-9)
		})
	}
}

func TestAuthorOverlap(t *testing.T) {
	t.Parallel()

	authors := func(names ...string) []domain.Author {
		out := make([]domain.Author, len(names))
		for i, n := range names {
			out[i] = domain.Author{Name: n}
		}
		return out
	}

	t.Run("identical lists", func(t *testing.T) {
		t.Parallel()
		a := authors("John Smith", "Jane Doe")
		assert.InDelta(t, 1.0, AuthorOverlap(a, a), 1e-9)
	})

	t.Run("empty list", func(t *testing.T) {
		t.Parallel()
		assert.InDelta(t, 0.0, AuthorOverlap(nil, authors("John Smith")), 1e-9)
	})

	t.Run("partial overlap", func(t *testing.T) {
		t.Parallel()
		// One exact pair plus one non-matching pair over a union of three.
		score := AuthorOverlap(authors("John Smith", "Ada Lovelace"), authors("John Smith", "Alan Turing"))
		assert.InDelta(t, 1.0/3.0, score, 1e-9)
	})

	t.Run("symmetric", func(t *testing.T) {
		t.Parallel()
		a := authors("J. Smith", "Jane Doe", "Bob Lee")
		b := authors("John Smith", "Doe, Jane")
		assert.InDelta(t, AuthorOverlap(a, b), AuthorOverlap(b, a), 1e-9)
	})
}

func TestSharesAuthor(t *testing.T) {
	t.Parallel()

	assert.True(t, SharesAuthor(
		[]domain.Author{{Name: "Smith, John"}},
		[]domain.Author{{Name: "Ada Lovelace"}, {Name: "J. Smith"}},
	))
	assert.False(t, SharesAuthor(
		[]domain.Author{{Name: "Jane Smith"}},
		[]domain.Author{{Name: "John Smith"}},
	))
	assert.False(t, SharesAuthor(nil, []domain.Author{{Name: "John Smith"}}))
}
