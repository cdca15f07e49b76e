package dedup

import (
	"time"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"

	"github.com/helixir/snowball-review/internal/domain"
)

// Config holds the tunable parameters of the identity resolver.
type Config struct {
	// TitleThreshold is the minimum normalised title similarity (0.0-1.0)
	// at which two records with the same year may be merged.
	TitleThreshold float64

	// ConflictThreshold is the similarity above which a non-merge is
	// reported as an identity conflict.
	ConflictThreshold float64

	// RequireAuthorOverlap requires at least one shared author for fuzzy
	// merges when both records list authors.
	RequireAuthorOverlap bool
}

// DefaultConfig returns the resolver defaults.
func DefaultConfig() Config {
	return Config{
		TitleThreshold:       0.9,
		ConflictThreshold:    0.75,
		RequireAuthorOverlap: true,
	}
}

// MatchReason explains why two records were judged to be the same work.
type MatchReason string

const (
	MatchNone       MatchReason = ""
	MatchDOI        MatchReason = "doi"
	MatchArXiv      MatchReason = "arxiv"
	MatchProviderID MatchReason = "provider_id"
	MatchTitle      MatchReason = "title"
	MatchFuzzyTitle MatchReason = "fuzzy_title"
)

// Match is the outcome of comparing two records.
type Match struct {
	Duplicate  bool
	Reason     MatchReason
	Similarity float64
	// AuthorOverlap is the fuzzy author overlap score, computed for title matches.
	AuthorOverlap float64
	// Conflict is set when the records were similar but kept distinct.
	Conflict *domain.IdentityConflict
}

// Resolver decides duplicate-vs-new and merges duplicates.
type Resolver struct {
	cfg Config
}

// NewResolver creates a resolver. Zero thresholds fall back to the defaults.
func NewResolver(cfg Config) *Resolver {
	defaults := DefaultConfig()
	if cfg.TitleThreshold <= 0 || cfg.TitleThreshold > 1 {
		cfg.TitleThreshold = defaults.TitleThreshold
	}
	if cfg.ConflictThreshold <= 0 || cfg.ConflictThreshold > cfg.TitleThreshold {
		cfg.ConflictThreshold = min(defaults.ConflictThreshold, cfg.TitleThreshold)
	}
	return &Resolver{cfg: cfg}
}

// Config returns the effective configuration.
func (r *Resolver) Config() Config {
	return r.cfg
}

// IsDuplicate reports whether a and b denote the same work.
func (r *Resolver) IsDuplicate(a, b *domain.Paper) bool {
	return r.Compare(a, b).Duplicate
}

// Compare matches two records. Shared identifiers decide first; titles are
// only consulted when the records do not carry conflicting DOIs or arXiv ids.
// Anything ambiguous is reported as distinct.
func (r *Resolver) Compare(a, b *domain.Paper) Match {
	doiA, doiB := NormalizeDOI(a.DOI), NormalizeDOI(b.DOI)
	if doiA != "" && doiA == doiB {
		return Match{Duplicate: true, Reason: MatchDOI, Similarity: 1}
	}
	arxivA, arxivB := NormalizeArxivID(a.ArxivID), NormalizeArxivID(b.ArxivID)
	if arxivA != "" && arxivA == arxivB {
		return Match{Duplicate: true, Reason: MatchArXiv, Similarity: 1}
	}
	if sharesProviderID(a, b) {
		return Match{Duplicate: true, Reason: MatchProviderID, Similarity: 1}
	}
	if key := Canonicalize(a); !key.IsZero() && key.Kind() == KeyKindTitle && key == Canonicalize(b) {
		return Match{Duplicate: true, Reason: MatchTitle, Similarity: 1}
	}

	conflictingIDs := (doiA != "" && doiB != "") || (arxivA != "" && arxivB != "")

	titleA, titleB := NormalizeTitle(a.Title), NormalizeTitle(b.Title)
	if titleA == "" || titleB == "" {
		return Match{}
	}

	similarity := TitleSimilarity(titleA, titleB)
	overlap := AuthorOverlap(a.Authors, b.Authors)
	match := Match{Similarity: similarity, AuthorOverlap: overlap}
	if similarity < r.cfg.ConflictThreshold {
		return match
	}

	sameYear := a.Year != nil && b.Year != nil && *a.Year == *b.Year
	authorsAgree := !r.cfg.RequireAuthorOverlap || len(a.Authors) == 0 || len(b.Authors) == 0 ||
		SharesAuthor(a.Authors, b.Authors)

	if !conflictingIDs && sameYear && authorsAgree {
		if titleA == titleB {
			match.Duplicate = true
			match.Reason = MatchTitle
			return match
		}
		if similarity >= r.cfg.TitleThreshold {
			match.Duplicate = true
			match.Reason = MatchFuzzyTitle
			return match
		}
	}

	// Identity is not established and the titles are close enough that a
	// reviewer may want to know both records were kept.
	match.Conflict = &domain.IdentityConflict{
		ExistingID: a.ID,
		Title:      b.Title,
		Similarity: similarity,
		Threshold:  r.cfg.TitleThreshold,
	}
	if a.ID == "" {
		match.Conflict.ExistingID = b.ID
		match.Conflict.Title = a.Title
	}
	return match
}

// TitleSimilarity returns the normalised Levenshtein similarity
// 1 - distance/max(len) of two normalised titles.
func TitleSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	distance := levenshtein.ComputeDistance(a, b)
	return 1 - float64(distance)/float64(longest)
}

func sharesProviderID(a, b *domain.Paper) bool {
	return (a.S2ID != "" && a.S2ID == b.S2ID) ||
		(a.OpenAlexID != "" && a.OpenAlexID == b.OpenAlexID) ||
		(a.PMID != "" && a.PMID == b.PMID)
}

// Merge folds an incoming record into an existing project paper. Only empty
// fields are filled, citation counts never decrease, and reviewer-curated
// fields, source and iteration are left alone. It reports whether the
// existing paper changed.
func Merge(existing, incoming *domain.Paper) bool {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fillInt := func(dst **int, src *int) {
		if *dst == nil && src != nil {
			v := *src
			*dst = &v
			changed = true
		}
	}
	maxInt := func(dst **int, src *int) {
		if src == nil {
			return
		}
		if *dst == nil || *src > **dst {
			v := *src
			*dst = &v
			changed = true
		}
	}

	if existing.DOI == "" {
		if doi := NormalizeDOI(incoming.DOI); doi != "" {
			existing.DOI = doi
			changed = true
		}
	}
	fill(&existing.ArxivID, incoming.ArxivID)
	fill(&existing.PMID, incoming.PMID)
	fill(&existing.S2ID, incoming.S2ID)
	fill(&existing.OpenAlexID, incoming.OpenAlexID)
	fill(&existing.Title, incoming.Title)
	fill(&existing.Abstract, incoming.Abstract)
	fill(&existing.URL, incoming.URL)
	fill(&existing.PDFURL, incoming.PDFURL)
	fillInt(&existing.Year, incoming.Year)

	if len(existing.Authors) == 0 && len(incoming.Authors) > 0 {
		existing.Authors = incoming.Clone().Authors
		changed = true
	}

	fill(&existing.Venue.Name, incoming.Venue.Name)
	fill(&existing.Venue.Type, incoming.Venue.Type)
	fill(&existing.Venue.Volume, incoming.Venue.Volume)
	fill(&existing.Venue.Issue, incoming.Venue.Issue)
	fill(&existing.Venue.Pages, incoming.Venue.Pages)
	fillInt(&existing.Venue.Year, incoming.Venue.Year)

	maxInt(&existing.CitationCount, incoming.CitationCount)
	maxInt(&existing.InfluentialCitationCount, incoming.InfluentialCitationCount)

	for _, id := range incoming.References {
		if existing.ID != id && existing.AddReference(id) {
			changed = true
		}
	}
	for _, id := range incoming.Citations {
		if existing.ID != id && existing.AddCitation(id) {
			changed = true
		}
	}

	for k, v := range incoming.RawData {
		if existing.RawData == nil {
			existing.RawData = map[string]any{}
		}
		if _, ok := existing.RawData[k]; !ok {
			existing.RawData[k] = v
			changed = true
		}
	}

	if changed {
		existing.UpdatedAt = time.Now().UTC()
	}
	return changed
}
