package openalex

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

const (
	// DefaultBaseURL is the default OpenAlex API base URL.
	DefaultBaseURL = "https://api.openalex.org"

	// DefaultRateLimit is the default rate limit for requests per second.
	DefaultRateLimit = 10.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 10

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxEdges caps how many edges are collected for a single work.
	DefaultMaxEdges = 2000

	// perPage is the page size for list requests; 200 is the API maximum.
	perPage = 200

	// idBatchSize bounds the number of ids in one openalex_id filter.
	idBatchSize = 50

	doiPrefix        = "https://doi.org/"
	openAlexIDPrefix = "https://openalex.org/"

	// arxivDOIPrefix is the DataCite prefix arXiv registers its DOIs under.
	arxivDOIPrefix = "10.48550/arxiv."

	sourceName = "OpenAlex"
)

// Config holds configuration for the OpenAlex client.
type Config struct {
	// BaseURL defaults to https://api.openalex.org
	BaseURL string

	// Email is the contact email for the polite pool.
	// See: https://docs.openalex.org/how-to-use-the-api/rate-limits-and-authentication
	Email string

	Timeout   time.Duration
	RateLimit float64
	BurstSize int

	// MaxEdges defaults to DefaultMaxEdges.
	MaxEdges int

	Enabled bool
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RateLimit == 0 {
		c.RateLimit = DefaultRateLimit
	}
	if c.BurstSize == 0 {
		c.BurstSize = DefaultBurstSize
	}
	if c.MaxEdges <= 0 {
		c.MaxEdges = DefaultMaxEdges
	}
}

// Client implements papersources.GraphProvider for OpenAlex.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.GraphProvider = (*Client)(nil)

// New creates a new OpenAlex client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	userAgent := "snowball-review/1.0"
	if cfg.Email != "" {
		userAgent += " (mailto:" + cfg.Email + ")"
	}

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeOpenAlex),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
		UserAgent: userAgent,
	}))
}

// NewWithHTTPClient creates a new OpenAlex client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()

	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Resolve looks a work up by DOI, arXiv id (through its DataCite DOI) or
// the top title search hit.
func (c *Client) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	switch q.Kind {
	case papersources.QueryDOI:
		work, err := c.getWork(ctx, doiPrefix+q.Value)
		if err != nil {
			return nil, err
		}
		return workToPaper(work), nil
	case papersources.QueryArXiv:
		work, err := c.getWork(ctx, doiPrefix+arxivDOIPrefix+q.Value)
		if err != nil {
			return nil, err
		}
		p := workToPaper(work)
		if p.ArxivID == "" {
			p.ArxivID = q.Value
		}
		return p, nil
	case papersources.QueryTitle:
		return c.searchTitle(ctx, q.Value)
	default:
		return nil, domain.NewValidationError("query", fmt.Sprintf("unsupported query kind %q", q.Kind))
	}
}

// References returns the works listed in p's referenced_works.
func (c *Client) References(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	id, ok := workID(p)
	if !ok {
		return nil, domain.ErrNoIdentifier
	}

	work, err := c.getWork(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(work.ReferencedWorks))
	for _, ref := range work.ReferencedWorks {
		if short := normalizeOpenAlexID(ref); short != "" {
			ids = append(ids, short)
		}
	}
	if len(ids) > c.config.MaxEdges {
		ids = ids[:c.config.MaxEdges]
	}

	papers := make([]*domain.Paper, 0, len(ids))
	for batch := range slices.Chunk(ids, idBatchSize) {
		params := url.Values{}
		params.Set("filter", "openalex_id:"+strings.Join(batch, "|"))
		params.Set("per-page", strconv.Itoa(len(batch)))

		var resp ListResponse
		if err := c.httpClient.GetJSON(ctx, c.worksURL("", params), &resp); err != nil {
			return nil, err
		}
		for i := range resp.Results {
			papers = append(papers, workToPaper(&resp.Results[i]))
		}
	}
	return papers, nil
}

// Citations returns the works citing p, following cursor pagination until
// MaxEdges works have been collected.
func (c *Client) Citations(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	id, ok := workID(p)
	if !ok {
		return nil, domain.ErrNoIdentifier
	}

	// The cites: filter needs the OpenAlex id.
	if !strings.HasPrefix(id, "W") {
		work, err := c.getWork(ctx, id)
		if err != nil {
			return nil, err
		}
		id = normalizeOpenAlexID(work.ID)
	}

	var papers []*domain.Paper
	cursor := "*"
	for cursor != "" && len(papers) < c.config.MaxEdges {
		params := url.Values{}
		params.Set("filter", "cites:"+id)
		params.Set("per-page", strconv.Itoa(min(perPage, c.config.MaxEdges-len(papers))))
		params.Set("cursor", cursor)

		var resp ListResponse
		if err := c.httpClient.GetJSON(ctx, c.worksURL("", params), &resp); err != nil {
			return nil, err
		}
		for i := range resp.Results {
			papers = append(papers, workToPaper(&resp.Results[i]))
		}
		if len(resp.Results) == 0 {
			break
		}
		cursor = resp.Meta.NextCursor
	}

	if len(papers) > c.config.MaxEdges {
		papers = papers[:c.config.MaxEdges]
	}
	return papers, nil
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeOpenAlex
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) getWork(ctx context.Context, id string) (*Work, error) {
	var work Work
	if err := c.httpClient.GetJSON(ctx, c.worksURL(id, nil), &work); err != nil {
		return nil, err
	}
	if work.ID == "" {
		return nil, domain.NewNotFoundError("work", id)
	}
	return &work, nil
}

func (c *Client) searchTitle(ctx context.Context, title string) (*domain.Paper, error) {
	params := url.Values{}
	params.Set("search", title)
	params.Set("per-page", "1")

	var resp ListResponse
	if err := c.httpClient.GetJSON(ctx, c.worksURL("", params), &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) == 0 {
		return nil, domain.NewNotFoundError("work", title)
	}
	return workToPaper(&resp.Results[0]), nil
}

// worksURL builds /works or /works/{id}. OpenAlex expects DOI URLs verbatim
// in the path.
func (c *Client) worksURL(id string, params url.Values) string {
	u := strings.TrimRight(c.config.BaseURL, "/") + "/works"
	if id != "" {
		u += "/" + id
	}
	if c.config.Email != "" {
		if params == nil {
			params = url.Values{}
		}
		params.Set("mailto", c.config.Email)
	}
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// workID picks the identifier OpenAlex accepts for p.
func workID(p *domain.Paper) (string, bool) {
	switch {
	case p.OpenAlexID != "":
		return normalizeOpenAlexID(p.OpenAlexID), true
	case dedup.NormalizeDOI(p.DOI) != "":
		return doiPrefix + dedup.NormalizeDOI(p.DOI), true
	case p.PMID != "":
		return "pmid:" + p.PMID, true
	case dedup.NormalizeArxivID(p.ArxivID) != "":
		return doiPrefix + arxivDOIPrefix + dedup.NormalizeArxivID(p.ArxivID), true
	default:
		return "", false
	}
}

// workToPaper converts an OpenAlex Work to a provider record.
func workToPaper(work *Work) *domain.Paper {
	doi := dedup.NormalizeDOI(work.DOI)
	if doi == "" {
		doi = dedup.NormalizeDOI(work.IDs.DOI)
	}

	openAlexID := normalizeOpenAlexID(work.ID)
	if openAlexID == "" {
		openAlexID = normalizeOpenAlexID(work.IDs.OpenAlex)
	}

	title := work.DisplayName
	if title == "" {
		title = work.Title
	}

	paper := &domain.Paper{
		DOI:           doi,
		OpenAlexID:    openAlexID,
		PMID:          normalizePMID(work.IDs.PMID),
		Title:         title,
		Abstract:      reconstructAbstract(work.AbstractInvertedIndex),
		CitationCount: work.CitedByCount,
		RawData: map[string]any{
			"openalex_id":     openAlexID,
			"type":            work.Type,
			"reference_count": len(work.ReferencedWorks),
			"source":          sourceName,
		},
	}
	if strings.HasPrefix(doi, arxivDOIPrefix) {
		paper.ArxivID = dedup.NormalizeArxivID(strings.TrimPrefix(doi, arxivDOIPrefix))
	}
	if work.PublicationYear > 0 {
		paper.Year = domain.IntPtr(work.PublicationYear)
	}

	paper.Authors = make([]domain.Author, 0, len(work.Authorships))
	for _, authorship := range work.Authorships {
		if authorship.Author.DisplayName == "" {
			continue
		}
		author := domain.Author{
			Name:  authorship.Author.DisplayName,
			ORCID: normalizeORCID(authorship.Author.Orcid),
		}
		for _, inst := range authorship.Institutions {
			if inst.DisplayName != "" {
				author.Affiliations = append(author.Affiliations, inst.DisplayName)
			}
		}
		paper.Authors = append(paper.Authors, author)
	}

	if loc := work.PrimaryLocation; loc != nil {
		if loc.Source != nil {
			paper.Venue.Name = loc.Source.DisplayName
			paper.Venue.Type = loc.Source.Type
		}
		paper.URL = loc.LandingPageURL
		paper.PDFURL = loc.PDFURL
	}
	if paper.PDFURL == "" && work.OpenAccess != nil {
		paper.PDFURL = work.OpenAccess.OAURL
	}
	if b := work.Biblio; b != nil {
		paper.Venue.Volume = b.Volume
		paper.Venue.Issue = b.Issue
		paper.Venue.Pages = pageRange(b.FirstPage, b.LastPage)
	}
	if paper.Year != nil && !paper.Venue.IsZero() {
		paper.Venue.Year = domain.IntPtr(*paper.Year)
	}
	if paper.URL == "" && doi != "" {
		paper.URL = doiPrefix + doi
	}

	return paper
}

func pageRange(first, last string) string {
	switch {
	case first == "":
		return ""
	case last == "" || last == first:
		return first
	default:
		return first + "-" + last
	}
}

// normalizeOpenAlexID extracts the short ID from full OpenAlex URLs.
func normalizeOpenAlexID(id string) string {
	id = strings.TrimSpace(id)
	return strings.TrimPrefix(id, openAlexIDPrefix)
}

// normalizePMID strips any URL prefixes from PubMed IDs.
func normalizePMID(pmid string) string {
	pmid = strings.TrimSpace(pmid)
	pmid = strings.TrimPrefix(pmid, "https://pubmed.ncbi.nlm.nih.gov/")
	return strings.TrimSuffix(pmid, "/")
}

// normalizeORCID strips any URL prefixes from ORCID identifiers.
func normalizeORCID(orcid string) string {
	orcid = strings.TrimSpace(orcid)
	return strings.TrimPrefix(orcid, "https://orcid.org/")
}

// reconstructAbstract rebuilds the abstract text from OpenAlex's inverted
// index format.
func reconstructAbstract(invertedIndex map[string][]int) string {
	if len(invertedIndex) == 0 {
		return ""
	}

	type posWord struct {
		pos  int
		word string
	}
	const maxAbstractWords = 100_000
	totalPairs := 0
	for _, positions := range invertedIndex {
		totalPairs += len(positions)
	}
	if totalPairs > maxAbstractWords {
		return ""
	}

	pairs := make([]posWord, 0, totalPairs)
	for word, positions := range invertedIndex {
		for _, pos := range positions {
			pairs = append(pairs, posWord{pos: pos, word: word})
		}
	}
	slices.SortFunc(pairs, func(a, b posWord) int { return a.pos - b.pos })

	words := make([]string, len(pairs))
	for i, pair := range pairs {
		words[i] = pair.word
	}
	return strings.Join(words, " ")
}
