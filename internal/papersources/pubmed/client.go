package pubmed

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
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
	// DefaultBaseURL is the base URL for NCBI E-utilities API.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

	// DefaultRateLimit is the rate limit without an API key (3 requests/second).
	// With an API key, the limit increases to 10 requests/second.
	DefaultRateLimit = 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 3

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxEdges caps how many linked articles are fetched per paper.
	DefaultMaxEdges = 2000

	// fetchBatchSize bounds the number of PMIDs in one efetch request.
	fetchBatchSize = 200

	linkRefs    = "pubmed_pubmed_refs"
	linkCitedIn = "pubmed_pubmed_citedin"

	sourceName = "PubMed"
)

// Config holds the configuration for the PubMed client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL if empty.
	BaseURL string

	// APIKey is the NCBI API key for higher rate limits.
	APIKey string

	// Email is sent as the E-utilities email parameter.
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

// Client implements papersources.GraphProvider for PubMed.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.GraphProvider = (*Client)(nil)

// New creates a new PubMed client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypePubMed),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}))
}

// NewWithHTTPClient creates a new PubMed client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Resolve searches PubMed by DOI or title and fetches the first hit.
// arXiv queries return domain.ErrNoIdentifier: PubMed does not index them.
func (c *Client) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	var term string
	switch q.Kind {
	case papersources.QueryDOI:
		term = q.Value + "[doi]"
	case papersources.QueryTitle:
		term = q.Value + "[title]"
	case papersources.QueryArXiv:
		return nil, domain.ErrNoIdentifier
	default:
		return nil, domain.NewValidationError("query", fmt.Sprintf("unsupported query kind %q", q.Kind))
	}

	pmids, err := c.esearch(ctx, term, 1)
	if err != nil {
		return nil, err
	}
	if len(pmids) == 0 {
		return nil, domain.NewNotFoundError("paper", q.Value)
	}

	papers, err := c.efetch(ctx, pmids[:1])
	if err != nil {
		return nil, err
	}
	if len(papers) == 0 {
		return nil, domain.NewNotFoundError("paper", pmids[0])
	}
	return papers[0], nil
}

// References returns the PubMed articles p cites.
func (c *Client) References(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	return c.linked(ctx, p, linkRefs)
}

// Citations returns the PubMed articles citing p.
func (c *Client) Citations(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error) {
	return c.linked(ctx, p, linkCitedIn)
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypePubMed
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

func (c *Client) linked(ctx context.Context, p *domain.Paper, linkName string) ([]*domain.Paper, error) {
	pmid, err := c.pmidFor(ctx, p)
	if err != nil {
		return nil, err
	}

	params := c.params()
	params.Set("dbfrom", "pubmed")
	params.Set("db", "pubmed")
	params.Set("linkname", linkName)
	params.Set("id", pmid)
	params.Set("retmode", "json")

	var result ELinkResult
	if err := c.httpClient.GetJSON(ctx, c.config.BaseURL+"/elink.fcgi?"+params.Encode(), &result); err != nil {
		return nil, err
	}

	var ids []string
	for _, set := range result.LinkSets {
		for _, db := range set.LinkSetDBs {
			if db.LinkName == linkName {
				ids = append(ids, db.Links...)
			}
		}
	}
	ids = slices.Compact(ids)
	if len(ids) > c.config.MaxEdges {
		ids = ids[:c.config.MaxEdges]
	}

	papers := make([]*domain.Paper, 0, len(ids))
	for batch := range slices.Chunk(ids, fetchBatchSize) {
		fetched, err := c.efetch(ctx, batch)
		if err != nil {
			return nil, err
		}
		papers = append(papers, fetched...)
	}
	return papers, nil
}

// pmidFor returns p's PMID, looking it up by DOI when missing.
func (c *Client) pmidFor(ctx context.Context, p *domain.Paper) (string, error) {
	if p.PMID != "" {
		return p.PMID, nil
	}
	doi := dedup.NormalizeDOI(p.DOI)
	if doi == "" {
		return "", domain.ErrNoIdentifier
	}
	pmids, err := c.esearch(ctx, doi+"[doi]", 1)
	if err != nil {
		return "", err
	}
	if len(pmids) == 0 {
		return "", domain.NewNotFoundError("paper", doi)
	}
	return pmids[0], nil
}

func (c *Client) params() url.Values {
	q := url.Values{}
	if c.config.APIKey != "" {
		q.Set("api_key", c.config.APIKey)
	}
	if c.config.Email != "" {
		q.Set("email", c.config.Email)
	}
	return q
}

func (c *Client) esearch(ctx context.Context, term string, retmax int) ([]string, error) {
	q := c.params()
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "xml")
	q.Set("retmax", strconv.Itoa(retmax))

	body, err := c.httpClient.Get(ctx, c.config.BaseURL+"/esearch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var result ESearchResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return nil, domain.NewExternalAPIError(sourceName, http.StatusOK, "failed to parse esearch response",
			fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}
	return result.IDList.IDs, nil
}

func (c *Client) efetch(ctx context.Context, pmids []string) ([]*domain.Paper, error) {
	if len(pmids) == 0 {
		return nil, nil
	}

	q := c.params()
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "xml")
	q.Set("rettype", "abstract")

	body, err := c.httpClient.Get(ctx, c.config.BaseURL+"/efetch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var set PubmedArticleSet
	if err := xml.Unmarshal(body, &set); err != nil {
		return nil, domain.NewExternalAPIError(sourceName, http.StatusOK, "failed to parse efetch response",
			fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}

	papers := make([]*domain.Paper, 0, len(set.Articles))
	for _, article := range set.Articles {
		papers = append(papers, articleToPaper(article))
	}
	return papers, nil
}

// articleToPaper converts a PubmedArticle to a provider record.
func articleToPaper(article PubmedArticle) *domain.Paper {
	citation := article.MedlineCitation
	ids := articleIDs(article)

	paper := &domain.Paper{
		PMID:     strings.TrimSpace(citation.PMID),
		DOI:      dedup.NormalizeDOI(extractDOI(citation.Article, ids)),
		ArxivID:  dedup.NormalizeArxivID(ids["arxiv"]),
		Title:    strings.TrimSpace(citation.Article.ArticleTitle),
		Abstract: extractAbstract(citation.Article.Abstract),
		Authors:  extractAuthors(citation.Article.AuthorList),
		Year:     extractYear(citation.Article),
		RawData: map[string]any{
			"pmid":   strings.TrimSpace(citation.PMID),
			"source": sourceName,
		},
	}
	if paper.PMID != "" {
		paper.URL = "https://pubmed.ncbi.nlm.nih.gov/" + paper.PMID + "/"
	}
	if pmc := ids["pmc"]; pmc != "" {
		paper.RawData["pmcid"] = pmc
	}

	journal := citation.Article.Journal
	paper.Venue = domain.Venue{
		Name:   journal.Title,
		Volume: journal.JournalIssue.Volume,
		Issue:  journal.JournalIssue.Issue,
		Pages:  extractPages(citation.Article.Pagination),
	}
	if paper.Venue.Name == "" {
		paper.Venue.Name = journal.ISOAbbreviation
	}
	if !paper.Venue.IsZero() {
		paper.Venue.Type = "journal"
		if paper.Year != nil {
			paper.Venue.Year = domain.IntPtr(*paper.Year)
		}
	}

	if citation.MeshHeadingList != nil {
		terms := make([]string, 0, len(citation.MeshHeadingList.MeshHeadings))
		for _, mh := range citation.MeshHeadingList.MeshHeadings {
			terms = append(terms, mh.DescriptorName)
		}
		paper.RawData["mesh_terms"] = terms
	}
	if citation.KeywordList != nil {
		paper.RawData["keywords"] = citation.KeywordList.Keywords
	}

	return paper
}

func articleIDs(article PubmedArticle) map[string]string {
	ids := make(map[string]string, len(article.PubmedData.ArticleIdList.ArticleIds))
	for _, aid := range article.PubmedData.ArticleIdList.ArticleIds {
		if _, ok := ids[aid.IdType]; !ok {
			ids[aid.IdType] = strings.TrimSpace(aid.Value)
		}
	}
	return ids
}

// extractDOI prefers a valid ELocationID over the ArticleIdList entry.
func extractDOI(article Article, ids map[string]string) string {
	for _, eloc := range article.ELocationID {
		if eloc.EIdType == "doi" && (eloc.Valid == "" || eloc.Valid == "Y") {
			return eloc.Value
		}
	}
	return ids["doi"]
}

// extractYear uses the electronic publication date when present, then the
// journal issue date, then the leading year of a MedlineDate such as
// "2020 Jan-Feb".
func extractYear(article Article) *int {
	for _, ad := range article.ArticleDate {
		if y, err := strconv.Atoi(ad.Year); err == nil && y > 0 {
			return domain.IntPtr(y)
		}
	}

	pubDate := article.Journal.JournalIssue.PubDate
	if y, err := strconv.Atoi(pubDate.Year); err == nil && y > 0 {
		return domain.IntPtr(y)
	}
	if fields := strings.Fields(pubDate.MedlineDate); len(fields) > 0 {
		if y, err := strconv.Atoi(strings.Split(fields[0], "-")[0]); err == nil && y > 0 {
			return domain.IntPtr(y)
		}
	}
	return nil
}

// extractAbstract concatenates multiple abstract sections into a single string.
func extractAbstract(abstract *Abstract) string {
	if abstract == nil || len(abstract.AbstractTexts) == 0 {
		return ""
	}

	var parts []string
	for _, at := range abstract.AbstractTexts {
		text := strings.TrimSpace(at.Value)
		if text == "" {
			continue
		}
		if at.Label != "" {
			text = at.Label + ": " + text
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, " ")
}

// extractAuthors converts PubMed authors to domain authors.
func extractAuthors(authorList *AuthorList) []domain.Author {
	if authorList == nil {
		return []domain.Author{}
	}

	authors := make([]domain.Author, 0, len(authorList.Authors))
	for _, a := range authorList.Authors {
		if a.ValidYN == "N" {
			continue
		}

		name := a.CollectiveName
		if name == "" {
			name = strings.TrimSpace(a.ForeName + " " + a.LastName)
		}
		if name == "" {
			continue
		}

		author := domain.Author{Name: name}
		for _, id := range a.Identifiers {
			if strings.EqualFold(id.Source, "ORCID") {
				author.ORCID = strings.TrimPrefix(strings.TrimSpace(id.Value), "https://orcid.org/")
				break
			}
		}
		for _, aff := range a.AffiliationInfo {
			if aff.Affiliation != "" {
				author.Affiliations = append(author.Affiliations, aff.Affiliation)
			}
		}
		authors = append(authors, author)
	}
	return authors
}

// extractPages formats the page information.
func extractPages(pagination *Pagination) string {
	switch {
	case pagination == nil:
		return ""
	case pagination.MedlinePgn != "":
		return pagination.MedlinePgn
	case pagination.EndPage != "" && pagination.EndPage != pagination.StartPage:
		return pagination.StartPage + "-" + pagination.EndPage
	default:
		return pagination.StartPage
	}
}
