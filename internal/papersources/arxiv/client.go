package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

const (
	// DefaultBaseURL is the default arXiv API base URL.
	DefaultBaseURL = "https://export.arxiv.org/api"

	// DefaultRateLimit follows arXiv's request for one call every three seconds.
	DefaultRateLimit = 1.0 / 3.0

	// DefaultBurstSize is the default burst size for rate limiting.
	DefaultBurstSize = 1

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 30 * time.Second

	// arxivDOIPrefix is the DataCite prefix arXiv registers its DOIs under.
	arxivDOIPrefix = "10.48550/arxiv."

	sourceName = "arXiv"
)

// Config holds configuration for the arXiv client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RateLimit float64
	BurstSize int
	Enabled   bool
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
}

// Client implements papersources.Provider for arXiv.
type Client struct {
	config     Config
	httpClient *papersources.HTTPClient
}

var _ papersources.Provider = (*Client)(nil)

// New creates a new arXiv client with the given configuration.
func New(cfg Config) *Client {
	cfg.applyDefaults()

	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    string(domain.SourceTypeArXiv),
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		BurstSize: cfg.BurstSize,
	}))
}

// NewWithHTTPClient creates a new arXiv client with a custom HTTP client.
func NewWithHTTPClient(cfg Config, httpClient *papersources.HTTPClient) *Client {
	cfg.applyDefaults()
	return &Client{
		config:     cfg,
		httpClient: httpClient,
	}
}

// Resolve looks a preprint up by arXiv id or title. DOI queries are only
// answered for arXiv's own DataCite DOIs; other DOIs return
// domain.ErrNoIdentifier.
func (c *Client) Resolve(ctx context.Context, q papersources.Query) (*domain.Paper, error) {
	params := url.Values{}
	switch q.Kind {
	case papersources.QueryArXiv:
		params.Set("id_list", q.Value)
	case papersources.QueryDOI:
		if !strings.HasPrefix(q.Value, arxivDOIPrefix) {
			return nil, domain.ErrNoIdentifier
		}
		params.Set("id_list", dedup.NormalizeArxivID(strings.TrimPrefix(q.Value, arxivDOIPrefix)))
	case papersources.QueryTitle:
		params.Set("search_query", `ti:"`+strings.ReplaceAll(q.Value, `"`, "")+`"`)
	default:
		return nil, domain.NewValidationError("query", fmt.Sprintf("unsupported query kind %q", q.Kind))
	}
	params.Set("max_results", "1")

	body, err := c.httpClient.Get(ctx, strings.TrimRight(c.config.BaseURL, "/")+"/query?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	var feed Feed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, domain.NewExternalAPIError(sourceName, http.StatusOK, "failed to parse feed",
			fmt.Errorf("%w: %w", domain.ErrInvalidInput, err))
	}

	for i := range feed.Entries {
		if paper := entryToPaper(&feed.Entries[i]); paper != nil {
			return paper, nil
		}
	}
	return nil, domain.NewNotFoundError("paper", q.Value)
}

// SourceType returns the source type identifier.
func (c *Client) SourceType() domain.SourceType {
	return domain.SourceTypeArXiv
}

// Name returns the human-readable name for this source.
func (c *Client) Name() string {
	return sourceName
}

// IsEnabled returns whether this source is currently enabled.
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// entryToPaper converts a feed entry to a provider record. It returns nil for
// the error entries arXiv emits for unknown ids.
func entryToPaper(entry *Entry) *domain.Paper {
	if !strings.Contains(entry.ID, "arxiv.org/abs/") {
		return nil
	}
	arxivID := dedup.NormalizeArxivID(entry.ID)
	if arxivID == "" {
		return nil
	}

	paper := &domain.Paper{
		ArxivID:  arxivID,
		DOI:      dedup.NormalizeDOI(entry.DOI),
		Title:    normalizeWhitespace(entry.Title),
		Abstract: normalizeWhitespace(entry.Summary),
		URL:      "https://arxiv.org/abs/" + arxivID,
		Venue:    domain.Venue{Name: "arXiv", Type: "preprint"},
		RawData: map[string]any{
			"arxiv_id": arxivID,
			"source":   sourceName,
		},
	}

	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		paper.Year = domain.IntPtr(t.Year())
		paper.Venue.Year = domain.IntPtr(t.Year())
	}

	paper.Authors = make([]domain.Author, 0, len(entry.Authors))
	for _, a := range entry.Authors {
		name := strings.TrimSpace(a.Name)
		if name == "" {
			continue
		}
		author := domain.Author{Name: name}
		if aff := strings.TrimSpace(a.Affiliation); aff != "" {
			author.Affiliations = []string{aff}
		}
		paper.Authors = append(paper.Authors, author)
	}

	for _, link := range entry.Links {
		if link.Title == "pdf" || link.Type == "application/pdf" {
			paper.PDFURL = link.Href
			break
		}
	}
	if paper.PDFURL == "" {
		paper.PDFURL = "https://arxiv.org/pdf/" + arxivID
	}

	categories := make([]string, 0, len(entry.Categories))
	for _, cat := range entry.Categories {
		if cat.Term != "" {
			categories = append(categories, cat.Term)
		}
	}
	paper.RawData["categories"] = categories
	if ref := strings.TrimSpace(entry.JournalRef); ref != "" {
		paper.RawData["journal_ref"] = ref
	}
	if entry.PrimaryCategory.Term != "" {
		paper.RawData["primary_category"] = entry.PrimaryCategory.Term
	}

	return paper
}

// normalizeWhitespace trims and collapses runs of whitespace.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
