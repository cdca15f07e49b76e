// Package semanticscholar provides a client for the Semantic Scholar Graph API.
//
// The client resolves papers by DOI, arXiv id or title and walks the
// citation graph through the references and citations endpoints.
//
// API Documentation: https://api.semanticscholar.org/api-docs/graph
package semanticscholar

// PaperResult represents a single paper in the Semantic Scholar API response.
type PaperResult struct {
	// PaperID is the Semantic Scholar unique identifier for the paper.
	PaperID string `json:"paperId"`

	Title    string `json:"title"`
	Abstract string `json:"abstract"`

	// Year is the publication year; absent for some records.
	Year *int `json:"year"`

	// Venue is the publication venue (conference, journal name, etc.).
	Venue string `json:"venue"`

	// PublicationVenue carries the typed venue when Semantic Scholar knows it.
	PublicationVenue *PublicationVenue `json:"publicationVenue,omitempty"`

	// Journal contains journal-specific information if published in a journal.
	Journal *Journal `json:"journal,omitempty"`

	Authors []Author `json:"authors"`

	CitationCount            *int `json:"citationCount"`
	InfluentialCitationCount *int `json:"influentialCitationCount"`
	ReferenceCount           *int `json:"referenceCount"`

	URL string `json:"url"`

	// OpenAccessPDF contains information about the open access PDF if available.
	OpenAccessPDF *OpenAccessPDF `json:"openAccessPdf,omitempty"`

	// ExternalIDs contains external identifiers for the paper (DOI, ArXiv, etc.).
	ExternalIDs *ExternalIDs `json:"externalIds,omitempty"`
}

// ExternalIDs contains external identifiers for a paper.
type ExternalIDs struct {
	DOI    string `json:"DOI,omitempty"`
	ArXiv  string `json:"ArXiv,omitempty"`
	PubMed string `json:"PubMed,omitempty"`
}

// PublicationVenue is the typed venue record.
type PublicationVenue struct {
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

// Journal contains journal-specific information.
type Journal struct {
	Name   string `json:"name,omitempty"`
	Volume string `json:"volume,omitempty"`
	Pages  string `json:"pages,omitempty"`
}

// Author represents a paper author in the Semantic Scholar API.
type Author struct {
	AuthorID string `json:"authorId,omitempty"`
	Name     string `json:"name"`
}

// OpenAccessPDF contains information about an open access PDF.
type OpenAccessPDF struct {
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

// MatchResponse is returned by the title match endpoint.
type MatchResponse struct {
	Data []PaperResult `json:"data"`
}

// EdgePage is one page of the references or citations endpoints.
type EdgePage struct {
	Offset int    `json:"offset"`
	Next   *int   `json:"next,omitempty"`
	Data   []Edge `json:"data"`
}

// Edge wraps the paper on the other end of a citation. References populate
// CitedPaper; citations populate CitingPaper.
type Edge struct {
	CitedPaper  *PaperResult `json:"citedPaper,omitempty"`
	CitingPaper *PaperResult `json:"citingPaper,omitempty"`
}
