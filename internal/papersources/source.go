// Package papersources provides the provider contract and the shared
// plumbing (rate limiting, HTTP access, registration) used by the
// bibliographic provider adapters.
//
// Each external database (Semantic Scholar, OpenAlex, PubMed, arXiv)
// implements Provider and, when it exposes a citation graph, GraphProvider.
// Every adapter converts its payloads into the normalised domain.Paper record
// so that the aggregator and the identity resolver never see provider
// specific shapes.
//
// Example usage:
//
//	client := semanticscholar.NewClient(semanticscholar.Config{APIKey: key, Enabled: true}, nil)
//	paper, err := client.Resolve(ctx, papersources.ParseQuery("10.1038/nature12373"))
//	refs, err := client.References(ctx, paper)
package papersources

import (
	"context"
	"regexp"
	"strings"

	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
)

// QueryKind identifies what a lookup query carries.
type QueryKind string

const (
	QueryDOI   QueryKind = "doi"
	QueryArXiv QueryKind = "arxiv"
	QueryTitle QueryKind = "title"
)

// Query is a parsed resolve request.
type Query struct {
	Kind  QueryKind
	Value string
}

var arxivQueryRegex = regexp.MustCompile(`^(?i:arxiv:)?(\d{4}\.\d{4,5}(v\d+)?|[a-z\-]+(\.[a-z]{2})?/\d{7}(v\d+)?)$`)

// ParseQuery classifies a free-form DOI, arXiv id or title.
func ParseQuery(s string) Query {
	s = strings.TrimSpace(s)
	if doi := dedup.NormalizeDOI(s); doi != "" {
		return Query{Kind: QueryDOI, Value: doi}
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "arxiv.org/") || arxivQueryRegex.MatchString(s) {
		if id := dedup.NormalizeArxivID(s); id != "" {
			return Query{Kind: QueryArXiv, Value: id}
		}
	}
	return Query{Kind: QueryTitle, Value: s}
}

// QueryFor returns the most specific query for an existing paper record.
func QueryFor(p *domain.Paper) (Query, bool) {
	if doi := dedup.NormalizeDOI(p.DOI); doi != "" {
		return Query{Kind: QueryDOI, Value: doi}, true
	}
	if id := dedup.NormalizeArxivID(p.ArxivID); id != "" {
		return Query{Kind: QueryArXiv, Value: id}, true
	}
	if title := strings.TrimSpace(p.Title); title != "" {
		return Query{Kind: QueryTitle, Value: title}, true
	}
	return Query{}, false
}

// Provider is implemented by every bibliographic provider adapter.
type Provider interface {
	// Resolve looks up a single paper. It returns domain.ErrNotFound
	// (usually as *domain.NotFoundError) when the provider has no match,
	// which callers treat as a definitive negative.
	Resolve(ctx context.Context, q Query) (*domain.Paper, error)

	// SourceType returns the type identifier for this provider.
	SourceType() domain.SourceType

	// Name returns a human-readable name for logs and metrics.
	Name() string

	// IsEnabled returns whether this provider is configured for use.
	IsEnabled() bool
}

// GraphProvider is implemented by providers that expose citation edges.
// Results are provider records: they carry no project id until merged.
//
// Both methods return domain.ErrNoIdentifier when the paper carries no id
// the provider understands, and domain.ErrNotFound when the provider does
// not know the paper.
type GraphProvider interface {
	Provider

	// References returns the papers cited by p (backward snowballing).
	References(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error)

	// Citations returns the papers citing p (forward snowballing).
	Citations(ctx context.Context, p *domain.Paper) ([]*domain.Paper, error)
}
