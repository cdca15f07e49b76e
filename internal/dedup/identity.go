// Package dedup resolves the identity of paper records arriving from
// heterogeneous providers: it derives canonical keys, decides whether two
// records denote the same work and merges duplicates into the project's
// existing paper.
package dedup

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/helixir/snowball-review/internal/domain"
)

// KeyKind identifies which identifier a canonical key was derived from.
type KeyKind string

const (
	KeyKindNone  KeyKind = ""
	KeyKindDOI   KeyKind = "doi"
	KeyKindArXiv KeyKind = "arxiv"
	KeyKindTitle KeyKind = "title"
)

// CanonicalKey is the dedup key for a record. Keys of different kinds never
// compare equal because the kind is part of the string form.
type CanonicalKey string

// Kind returns the identifier kind the key was derived from.
func (k CanonicalKey) Kind() KeyKind {
	kind, _, found := strings.Cut(string(k), ":")
	if !found {
		return KeyKindNone
	}
	return KeyKind(kind)
}

// IsZero returns true for the empty key of a record with no identity.
func (k CanonicalKey) IsZero() bool {
	return k == ""
}

var (
	doiPrefixes = []string{
		"https://doi.org/",
		"http://doi.org/",
		"https://dx.doi.org/",
		"http://dx.doi.org/",
		"doi.org/",
		"dx.doi.org/",
		"doi:",
	}

	arxivPrefixes = []string{
		"https://arxiv.org/abs/",
		"http://arxiv.org/abs/",
		"https://arxiv.org/pdf/",
		"http://arxiv.org/pdf/",
		"arxiv.org/abs/",
		"arxiv:",
	}

	arxivVersionRegex = regexp.MustCompile(`v\d+$`)
)

// NormalizeDOI lower-cases a DOI and strips URL and scheme prefixes.
// It returns an empty string if the input does not look like a DOI.
func NormalizeDOI(doi string) string {
	doi = strings.ToLower(strings.TrimSpace(doi))
	for _, prefix := range doiPrefixes {
		if strings.HasPrefix(doi, prefix) {
			doi = strings.TrimSpace(doi[len(prefix):])
			break
		}
	}
	doi = strings.TrimRight(doi, ".;, ")
	if !strings.HasPrefix(doi, "10.") || !strings.Contains(doi, "/") {
		return ""
	}
	return doi
}

// NormalizeArxivID strips URL prefixes, a trailing ".pdf" and the version
// suffix from an arXiv identifier.
func NormalizeArxivID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, prefix := range arxivPrefixes {
		if strings.HasPrefix(id, prefix) {
			id = id[len(prefix):]
			break
		}
	}
	id = strings.TrimSuffix(id, ".pdf")
	id = arxivVersionRegex.ReplaceAllString(id, "")
	return strings.TrimSpace(id)
}

// NormalizeTitle lower-cases a title, drops punctuation and collapses
// whitespace so that cosmetic differences do not split identities.
func NormalizeTitle(title string) string {
	var sb strings.Builder
	sb.Grow(len(title))
	pendingSpace := false

	for _, r := range strings.ToLower(title) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSpace && sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			pendingSpace = false
			sb.WriteRune(r)
		default:
			pendingSpace = true
		}
	}
	return sb.String()
}

// Canonicalize derives the record's canonical key. Priority is the
// normalised DOI, then the normalised arXiv id, then the normalised title
// combined with the year.
func Canonicalize(p *domain.Paper) CanonicalKey {
	if doi := NormalizeDOI(p.DOI); doi != "" {
		return CanonicalKey("doi:" + doi)
	}
	if arxiv := NormalizeArxivID(p.ArxivID); arxiv != "" {
		return CanonicalKey("arxiv:" + arxiv)
	}
	return titleKey(p)
}

// titleKey returns the title+year key, or an empty key for untitled records.
func titleKey(p *domain.Paper) CanonicalKey {
	title := NormalizeTitle(p.Title)
	if title == "" {
		return ""
	}
	year := ""
	if p.Year != nil {
		year = strconv.Itoa(*p.Year)
	}
	return CanonicalKey("title:" + title + "|" + year)
}
