package dedup

import (
	"strings"
	"unicode"

	"github.com/helixir/snowball-review/internal/domain"
)

// sameAuthorScore is the minimum name similarity at which two author
// entries are taken to be the same person.
const sameAuthorScore = 0.7

// SharesAuthor reports whether at least one author appears in both lists.
func SharesAuthor(a, b []domain.Author) bool {
	normB := normalizeAuthors(b)
	for _, author := range a {
		nameA := NormalizeName(author.Name)
		for _, nameB := range normB {
			if nameSimilarity(nameA, nameB) >= sameAuthorScore {
				return true
			}
		}
	}
	return false
}

// AuthorOverlap computes a Jaccard-style fuzzy overlap between two author
// lists: each author of the shorter list is greedily paired with its most
// similar unpaired author in the longer list and the summed pair scores are
// divided by the size of the union. The score is 0.0 when either list is
// empty and 1.0 for identical lists.
func AuthorOverlap(a, b []domain.Author) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	short, long := normalizeAuthors(a), normalizeAuthors(b)
	if len(short) > len(long) {
		short, long = long, short
	}

	paired := make([]bool, len(long))
	pairs := 0
	total := 0.0
	for _, name := range short {
		best, bestIdx := 0.0, -1
		for j, candidate := range long {
			if paired[j] {
				continue
			}
			if score := nameSimilarity(name, candidate); score > best {
				best, bestIdx = score, j
			}
		}
		if bestIdx >= 0 {
			paired[bestIdx] = true
			pairs++
			total += best
		}
	}

	union := len(short) + len(long) - pairs
	return total / float64(union)
}

// NormalizeName lower-cases an author name, turns "Last, First" into
// "First Last", drops everything but letters and collapses whitespace.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if last, first, found := strings.Cut(name, ","); found {
		last, first = strings.TrimSpace(last), strings.TrimSpace(first)
		name = last
		if first != "" {
			name = first + " " + last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		switch {
		case unicode.IsLetter(r):
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(sb.String()), " ")
}

// nameSimilarity scores two normalised names:
// identical given names 1.0, matching initial 0.9, surname only 0.7,
// different given names 0.3, different surnames 0.0.
func nameSimilarity(a, b string) float64 {
	partsA, partsB := strings.Fields(a), strings.Fields(b)
	if len(partsA) == 0 || len(partsB) == 0 {
		return 0.0
	}

	lastA, lastB := partsA[len(partsA)-1], partsB[len(partsB)-1]
	if lastA != lastB {
		return 0.0
	}

	givenA, givenB := partsA[:len(partsA)-1], partsB[:len(partsB)-1]
	switch {
	case len(givenA) == 0 || len(givenB) == 0:
		return 0.7
	case strings.Join(givenA, " ") == strings.Join(givenB, " "):
		return 1.0
	case isInitialMatch(givenA[0], givenB[0]):
		return 0.9
	default:
		return 0.3
	}
}

// isInitialMatch reports whether one token is the initial of the other.
func isInitialMatch(a, b string) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	return len(a) == 1 && len(b) > 1 && a[0] == b[0]
}

func normalizeAuthors(authors []domain.Author) []string {
	names := make([]string, len(authors))
	for i, author := range authors {
		names[i] = NormalizeName(author.Name)
	}
	return names
}
