// Package domain provides the data model and error types for the snowball review engine.
package domain

// PaperStatus represents the review disposition of a paper within a project.
// Automation only ever moves a paper from pending to excluded; every other
// transition is a human decision.
type PaperStatus string

const (
	PaperStatusPending  PaperStatus = "pending"
	PaperStatusIncluded PaperStatus = "included"
	PaperStatusExcluded PaperStatus = "excluded"
	PaperStatusMaybe    PaperStatus = "maybe"
)

// AllPaperStatuses lists every status in display order.
var AllPaperStatuses = []PaperStatus{
	PaperStatusPending,
	PaperStatusIncluded,
	PaperStatusExcluded,
	PaperStatusMaybe,
}

// IsValid returns true if the status is one of the known values.
func (s PaperStatus) IsValid() bool {
	switch s {
	case PaperStatusPending, PaperStatusIncluded, PaperStatusExcluded, PaperStatusMaybe:
		return true
	default:
		return false
	}
}

// IsReviewed returns true if the status represents a disposition other than pending.
func (s PaperStatus) IsReviewed() bool {
	switch s {
	case PaperStatusIncluded, PaperStatusExcluded, PaperStatusMaybe:
		return true
	default:
		return false
	}
}

// ParsePaperStatus converts a string into a PaperStatus.
func ParsePaperStatus(s string) (PaperStatus, error) {
	status := PaperStatus(s)
	if !status.IsValid() {
		return "", NewValidationError("status", "must be one of pending, included, excluded, maybe")
	}
	return status, nil
}

// PaperSource records how a paper entered the project. It never changes after creation.
type PaperSource string

const (
	PaperSourceSeed     PaperSource = "seed"
	PaperSourceBackward PaperSource = "backward"
	PaperSourceForward  PaperSource = "forward"
)

// AllPaperSources lists every source in display order.
var AllPaperSources = []PaperSource{
	PaperSourceSeed,
	PaperSourceBackward,
	PaperSourceForward,
}

// IsValid returns true if the source is one of the known values.
func (s PaperSource) IsValid() bool {
	switch s {
	case PaperSourceSeed, PaperSourceBackward, PaperSourceForward:
		return true
	default:
		return false
	}
}

// ExclusionType records who excluded a paper.
type ExclusionType string

const (
	ExclusionTypeNone   ExclusionType = "none"
	ExclusionTypeAuto   ExclusionType = "auto"
	ExclusionTypeManual ExclusionType = "manual"
)

// IsValid returns true if the exclusion type is one of the known values.
func (e ExclusionType) IsValid() bool {
	switch e {
	case ExclusionTypeNone, ExclusionTypeAuto, ExclusionTypeManual:
		return true
	default:
		return false
	}
}

// Direction identifies which side of the citation graph a lookup walks.
type Direction string

const (
	// DirectionBackward follows a paper's references.
	DirectionBackward Direction = "backward"
	// DirectionForward follows the papers citing a paper.
	DirectionForward Direction = "forward"
)

// Source returns the PaperSource assigned to papers discovered in this direction.
func (d Direction) Source() PaperSource {
	switch d {
	case DirectionBackward:
		return PaperSourceBackward
	case DirectionForward:
		return PaperSourceForward
	default:
		return ""
	}
}

// SourceType identifies the external bibliographic provider that produced a record.
type SourceType string

const (
	SourceTypeSemanticScholar SourceType = "semantic_scholar"
	SourceTypeOpenAlex        SourceType = "openalex"
	SourceTypePubMed          SourceType = "pubmed"
	SourceTypeArXiv           SourceType = "arxiv"
	SourceTypePDF             SourceType = "pdf"
)
