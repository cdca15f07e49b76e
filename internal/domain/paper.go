package domain

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Author represents a paper author with optional affiliations.
type Author struct {
	Name         string   `json:"name"`
	Affiliations []string `json:"affiliations,omitempty"`
	ORCID        string   `json:"orcid,omitempty"`
}

// String returns a formatted string representation of the author.
func (a Author) String() string {
	var sb strings.Builder
	sb.WriteString(a.Name)

	if len(a.Affiliations) > 0 {
		sb.WriteString(" (")
		sb.WriteString(strings.Join(a.Affiliations, "; "))
		sb.WriteString(")")
	}

	if a.ORCID != "" {
		sb.WriteString(" [")
		sb.WriteString(a.ORCID)
		sb.WriteString("]")
	}

	return sb.String()
}

// Venue describes where a paper was published. All fields are optional.
type Venue struct {
	Name   string `json:"name,omitempty"`
	Type   string `json:"type,omitempty"`
	Year   *int   `json:"year,omitempty"`
	Volume string `json:"volume,omitempty"`
	Issue  string `json:"issue,omitempty"`
	Pages  string `json:"pages,omitempty"`
}

// IsZero returns true if no venue field is set.
func (v Venue) IsZero() bool {
	return v.Name == "" && v.Type == "" && v.Year == nil && v.Volume == "" && v.Issue == "" && v.Pages == ""
}

// Paper is the normalised record every provider adapter produces and the
// unit the project stores. Provider records carry an empty ID until the
// engine admits them into a project.
type Paper struct {
	ID         string `json:"id"`
	DOI        string `json:"doi,omitempty"`
	ArxivID    string `json:"arxiv_id,omitempty"`
	PMID       string `json:"pmid,omitempty"`
	S2ID       string `json:"s2_id,omitempty"`
	OpenAlexID string `json:"openalex_id,omitempty"`

	Title                    string   `json:"title"`
	Authors                  []Author `json:"authors"`
	Venue                    Venue    `json:"venue"`
	Year                     *int     `json:"year,omitempty"`
	CitationCount            *int     `json:"citation_count,omitempty"`
	InfluentialCitationCount *int     `json:"influential_citation_count,omitempty"`
	Abstract                 string   `json:"abstract,omitempty"`
	URL                      string   `json:"url,omitempty"`
	PDFURL                   string   `json:"pdf_url,omitempty"`

	// Reviewer-curated fields. Merges never touch these.
	Notes         string        `json:"notes"`
	Tags          []string      `json:"tags"`
	Status        PaperStatus   `json:"status"`
	ExclusionType ExclusionType `json:"exclusion_type"`
	ReviewedAt    *time.Time    `json:"reviewed_at,omitempty"`

	// Immutable after creation.
	Source            PaperSource `json:"source"`
	SnowballIteration int         `json:"snowball_iteration"`

	References []string `json:"references"`
	Citations  []string `json:"citations"`

	RelevanceScore *float64       `json:"relevance_score,omitempty"`
	RawData        map[string]any `json:"raw_data"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewPaper admits a provider record into a project, assigning a fresh id and
// the immutable source and iteration. The record is copied.
func NewPaper(record *Paper, source PaperSource, iteration int) *Paper {
	p := record.Clone()
	now := time.Now().UTC()

	p.ID = uuid.NewString()
	p.Source = source
	p.SnowballIteration = iteration
	p.Status = PaperStatusPending
	p.ExclusionType = ExclusionTypeNone
	p.ReviewedAt = nil
	p.Notes = ""
	p.Tags = []string{}
	p.References = []string{}
	p.Citations = []string{}
	p.CreatedAt = now
	p.UpdatedAt = now
	p.ensureCollections()
	return p
}

// ensureCollections replaces nil collections with empty ones so snapshots
// always serialise lists and maps.
func (p *Paper) ensureCollections() {
	if p.Authors == nil {
		p.Authors = []Author{}
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	if p.References == nil {
		p.References = []string{}
	}
	if p.Citations == nil {
		p.Citations = []string{}
	}
	if p.RawData == nil {
		p.RawData = map[string]any{}
	}
	if p.ExclusionType == "" {
		p.ExclusionType = ExclusionTypeNone
	}
	if p.Status == "" {
		p.Status = PaperStatusPending
	}
}

// Normalize fills defaults on a paper loaded from storage and restores the
// sorted form of its sets.
func (p *Paper) Normalize() {
	p.ensureCollections()
	p.Tags = sortedSet(p.Tags)
	p.References = sortedSet(p.References)
	p.Citations = sortedSet(p.Citations)
}

// Clone returns a deep copy of the paper.
func (p *Paper) Clone() *Paper {
	if p == nil {
		return nil
	}
	c := *p
	c.Authors = make([]Author, len(p.Authors))
	for i, a := range p.Authors {
		a.Affiliations = slices.Clone(a.Affiliations)
		c.Authors[i] = a
	}
	c.Venue.Year = cloneInt(p.Venue.Year)
	c.Year = cloneInt(p.Year)
	c.CitationCount = cloneInt(p.CitationCount)
	c.InfluentialCitationCount = cloneInt(p.InfluentialCitationCount)
	if p.RelevanceScore != nil {
		score := *p.RelevanceScore
		c.RelevanceScore = &score
	}
	if p.ReviewedAt != nil {
		at := *p.ReviewedAt
		c.ReviewedAt = &at
	}
	c.Tags = slices.Clone(p.Tags)
	c.References = slices.Clone(p.References)
	c.Citations = slices.Clone(p.Citations)
	if p.RawData != nil {
		c.RawData = make(map[string]any, len(p.RawData))
		for k, v := range p.RawData {
			c.RawData[k] = v
		}
	}
	return &c
}

// HasLookupID returns true if a provider can look the paper up directly.
func (p *Paper) HasLookupID() bool {
	return p.DOI != "" || p.ArxivID != "" || p.S2ID != "" || p.OpenAlexID != "" || p.PMID != ""
}

// AddReference records that this paper cites the paper with the given id.
// It returns false if the edge already existed.
func (p *Paper) AddReference(id string) bool {
	var added bool
	p.References, added = addToSet(p.References, id)
	return added
}

// AddCitation records that the paper with the given id cites this paper.
// It returns false if the edge already existed.
func (p *Paper) AddCitation(id string) bool {
	var added bool
	p.Citations, added = addToSet(p.Citations, id)
	return added
}

// AddTag adds a tag. Tags are a set; duplicates are ignored.
func (p *Paper) AddTag(tag string) bool {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return false
	}
	var added bool
	p.Tags, added = addToSet(p.Tags, tag)
	return added
}

// HasTag reports whether the paper carries the tag.
func (p *Paper) HasTag(tag string) bool {
	_, found := slices.BinarySearch(p.Tags, tag)
	return found
}

// ApplyAutoExclusion marks the paper excluded by automation. It is a no-op
// for any paper a human has already dispositioned, and reports whether the
// paper changed.
func (p *Paper) ApplyAutoExclusion(reason string) bool {
	if p.Status != PaperStatusPending || p.ExclusionType == ExclusionTypeManual {
		return false
	}
	p.Status = PaperStatusExcluded
	p.ExclusionType = ExclusionTypeAuto
	if reason != "" {
		if p.RawData == nil {
			p.RawData = map[string]any{}
		}
		p.RawData["exclusion_reason"] = reason
	}
	p.UpdatedAt = time.Now().UTC()
	return true
}

// ReviewUpdate carries a human review decision.
type ReviewUpdate struct {
	Status PaperStatus
	// Notes replaces the paper's notes when non-nil.
	Notes *string
	// Tags are added to the paper's tag set.
	Tags []string
}

// SetReview applies a human decision. Excluding a paper marks the exclusion
// as manual; any other status clears the exclusion type.
func (p *Paper) SetReview(update ReviewUpdate) error {
	if !update.Status.IsValid() {
		return NewValidationError("status", "unknown status "+string(update.Status))
	}

	now := time.Now().UTC()
	p.Status = update.Status
	if update.Status == PaperStatusExcluded {
		p.ExclusionType = ExclusionTypeManual
	} else {
		p.ExclusionType = ExclusionTypeNone
	}
	if update.Notes != nil {
		p.Notes = *update.Notes
	}
	for _, tag := range update.Tags {
		p.AddTag(tag)
	}
	if update.Status.IsReviewed() {
		p.ReviewedAt = &now
	} else {
		p.ReviewedAt = nil
	}
	p.UpdatedAt = now
	return nil
}

// Validate checks the paper's internal invariants.
func (p *Paper) Validate() error {
	if p.ID == "" {
		return NewValidationError("id", "is required")
	}
	if !p.Status.IsValid() {
		return NewValidationError("status", "unknown status "+string(p.Status))
	}
	if !p.Source.IsValid() {
		return NewValidationError("source", "unknown source "+string(p.Source))
	}
	if !p.ExclusionType.IsValid() {
		return NewValidationError("exclusion_type", "unknown exclusion type "+string(p.ExclusionType))
	}
	excluded := p.Status == PaperStatusExcluded
	if excluded != (p.ExclusionType != ExclusionTypeNone) {
		return NewValidationError("exclusion_type", "must be set if and only if status is excluded")
	}
	if p.SnowballIteration < 0 {
		return NewValidationError("snowball_iteration", "must not be negative")
	}
	return nil
}

// FirstAuthor returns the first author's name, or an empty string.
func (p *Paper) FirstAuthor() string {
	if len(p.Authors) == 0 {
		return ""
	}
	return p.Authors[0].Name
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int {
	return &v
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	out := *v
	return &out
}

func sortedSet(s []string) []string {
	slices.Sort(s)
	return slices.Compact(s)
}

// addToSet inserts v into the sorted slice s if absent.
func addToSet(s []string, v string) ([]string, bool) {
	if v == "" {
		return s, false
	}
	i, found := slices.BinarySearch(s, v)
	if found {
		return s, false
	}
	return slices.Insert(s, i, v), true
}
