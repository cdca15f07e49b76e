package semanticscholar

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

const (
	// DefaultBaseURL is the default base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultRateLimit is the sustained request rate, matching the 1 req/s
	// granted to API keys.
	DefaultRateLimit = 1.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultPageSize is the page size for the references and citations
	// endpoints; 1000 is the API maximum.
	DefaultPageSize = 1000

	// DefaultMaxEdges caps how many edges are collected for a single paper.
	DefaultMaxEdges = 2000

	apiKeyHeader = "x-api-key"

	paperFields = "paperId,externalIds,url,title,abstract,year,venue,publicationVenue,journal,authors," +
		"citationCount,influentialCitationCount,referenceCount,openAccessPdf"

	sourceName = "Semantic Scholar"
)

// Config contains configuration options for the Semantic Scholar client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the optional API key sent in the x-api-key header.
	APIKey string

	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	// PageSize defaults to DefaultPageSize.
	PageSize int

	// MaxEdges defaults to DefaultMaxEdges.
	MaxEdges int

	Enabled bool
}

// Client implements papersources.GraphProvider for Semantic Scholar.
type Client struct {
	httpClient *papersources.HTTPClient
	config     Config
}

var _ papersources.GraphProvider = (*Client)(nil)

// NewClient creates a new Semantic Scholar client with the given configuration.
// If httpClient is nil, a new one will be created with the configuration settings.
func NewClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.BurstSize == 0 {
		cfg.BurstSize = DefaultBurstSize
	}
	if cfg.PageSize <= 0 || cfg.PageSize > DefaultPageSize {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxEdges <= 0 {
		cfg.MaxEdges = DefaultMaxEdges
	}

	if httpClient == nil {
		httpClient = papersources.NewHTTPClient(papersources.HTTPClientConfig{
			Source:       string(domain.SourceTypeSemanticScholar),
			Timeout:      cfg.Timeout,
			RateLimit:    cfg.RateLimit,
			BurstSize:    cfg.BurstSize,
			APIKey:       cfg.APIKey,
			APIKeyHeader: apiKeyHeader,
		})
	}

	return &Client{
		httpClient: httpClient,
		config:     cfg,
	}
}

// Resolve looks a paper up by DOI, arXiv id or best title match.
func (c *Client) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	switch q.Kind {
	case papersources.QueryDOI:
		return c.getPaper(ctx, "DOI:"+q.Value)
	case papersources.QueryArXiv:
		return c.getPaper(ctx, "ARXIV:"+q.Value)
	case papersources.QueryTitle:
		return c.matchTitle(ctx, q.Value)
	default:
		return nil, domain.NewValidationError("query", fmt.Sprintf("unsupported query kind %q", q.Kind))
	}
}

// References returns the papers cited by p.
func (c *Client) References(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	return c.edges(ctx, p, "references", func(e Edge) *PaperResult { return e.CitedPaper })
}

// Citations returns the papers citing p.
func (c *Client) Citations(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	return c.edges(ctx, p, "citations", func(e Edge) *PaperResult { return e.CitingPaper })
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeSemanticScholar
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) getPaper(ctx context.Context, id string) (*domain.Paper, error) {
	u := fmt.Sprintf("%s/paper/%s?fields=%s", c.config.BaseURL, escapeID(id), paperFields)

	var result PaperResult
	if err := c.httpClient.GetJSON(ctx, u, &result); err != nil {
		return nil, err
	}
	if result.PaperID == "" {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return convertToPaper(result), nil
}

func (c *Client) matchTitle(ctx context.Context, title string) (*domain.Paper, error) {
	q := url.Values{}
	q.Set("query", title)
	q.Set("fields", paperFields)
	u := c.config.BaseURL + "/paper/search/match?" + q.Encode()

	var resp MatchResponse
	if err := c.httpClient.GetJSON(ctx, u, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 || resp.Data[0].PaperID == "" {
		return nil, domain.NewNotFoundError("paper", title)
	}
	return convertToPaper(resp.Data[0]), nil
}

// edges pages through an edge endpoint until the API reports no next page
// or MaxEdges records have been collected.
func (c *Client) edges(ctx context.Context, p *domain.Paper, endpoint string, pick func(Edge) *PaperResult) ([]*domain.Paper, error) {
	id, ok := paperID(p)
	if !ok {
		return nil, domain.ErrNoIdentifier
	}

	var papers []*domain.Paper
	offset := 0
	for len(papers) < c.config.MaxEdges {
		q := url.Values{}
		q.Set("fields", paperFields)
		q.Set("offset", strconv.Itoa(offset))
		q.Set("limit", strconv.Itoa(min(c.config.PageSize, c.config.MaxEdges-len(papers))))
		u := fmt.Sprintf("%s/paper/%s/%s?%s", c.config.BaseURL, escapeID(id), endpoint, q.Encode())

		var page EdgePage
		if err := c.httpClient.GetJSON(ctx, u, &page); err != nil {
			return nil, err
		}

		for _, e := range page.Data {
			r := pick(e)
			// Unresolved edges come back with a null paperId.
			if r == nil || r.PaperID == "" {
				continue
			}
			papers = append(papers, convertToPaper(*r))
		}

		if page.Next == nil || *page.Next <= offset || len(page.Data) == 0 {
			break
		}
		offset = *page.Next
	}

	if len(papers) > c.config.MaxEdges {
		papers = papers[:c.config.MaxEdges]
	}
	return papers, nil
}

// paperID picks the identifier Semantic Scholar accepts for p.
func paperID(p *domain.Paper) (string, bool) {
	switch {
	case p.S2ID != "":
		return p.S2ID, true
	case dedup.NormalizeDOI(p.DOI) != "":
		return "DOI:" + dedup.NormalizeDOI(p.DOI), true
	case dedup.NormalizeArxivID(p.ArxivID) != "":
		return "ARXIV:" + dedup.NormalizeArxivID(p.ArxivID), true
	case p.PMID != "":
		return "PMID:" + p.PMID, true
	default:
		return "", false
	}
}

// convertToPaper converts an API paper result to a provider record.
func convertToPaper(result PaperResult) *domain.Paper {
	paper := &domain.Paper{
		S2ID:                     result.PaperID,
		Title:                    result.Title,
		Abstract:                 result.Abstract,
		Year:                     positive(result.Year),
		CitationCount:            result.CitationCount,
		InfluentialCitationCount: result.InfluentialCitationCount,
		URL:                      result.URL,
		RawData: map[string]any{
			"semantic_scholar_id": result.PaperID,
			"source":              sourceName,
		},
	}
	if result.ReferenceCount != nil {
		paper.RawData["reference_count"] = *result.ReferenceCount
	}

	if result.ExternalIDs != nil {
		paper.DOI = dedup.NormalizeDOI(result.ExternalIDs.DOI)
		paper.ArxivID = dedup.NormalizeArxivID(result.ExternalIDs.ArXiv)
		paper.PMID = result.ExternalIDs.PubMed
	}

	paper.Venue.Name = result.Venue
	if result.PublicationVenue != nil {
		if paper.Venue.Name == "" {
			paper.Venue.Name = result.PublicationVenue.Name
		}
		paper.Venue.Type = result.PublicationVenue.Type
	}
	if result.Journal != nil {
		if paper.Venue.Name == "" {
			paper.Venue.Name = result.Journal.Name
		}
		paper.Venue.Volume = result.Journal.Volume
		paper.Venue.Pages = result.Journal.Pages
	}
	if paper.Year != nil && !paper.Venue.IsZero() {
		paper.Venue.Year = domain.IntPtr(*paper.Year)
	}

	if result.OpenAccessPDF != nil {
		paper.PDFURL = result.OpenAccessPDF.URL
	}

	paper.Authors = make([]domain.Author, 0, len(result.Authors))
	for _, a := range result.Authors {
		if a.Name == "" {
			continue
		}
		paper.Authors = append(paper.Authors, domain.Author{Name: a.Name})
	}

	return paper
}

// escapeID escapes an identifier for the path while keeping DOI slashes,
// which the API expects verbatim.
func escapeID(id string) string {
	return strings.ReplaceAll(url.PathEscape(id), "%2F", "/")
}

func positive(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return domain.IntPtr(*v)
}
