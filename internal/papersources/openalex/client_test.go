package openalex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg.BaseURL = server.URL
	cfg.Enabled = true
	return NewWithHTTPClient(cfg, papersources.NewHTTPClient(papersources.HTTPClientConfig{
		Source:    "openalex",
		RateLimit: 1000,
		BurstSize: 100,
	}))
}

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func intp(v int) *int { return &v }

func sampleWork() Work {
	return Work{
		ID:              "https://openalex.org/W100",
		DOI:             "https://doi.org/10.1000/P0",
		DisplayName:     "Snowballing Literature",
		PublicationYear: 2021,
		Type:            "article",
		CitedByCount:    intp(42),
		Authorships: []Authorship{
			{
				Author:       AuthorInfo{DisplayName: "Jane Doe", Orcid: "https://orcid.org/0000-0001-2345-6789"},
				Institutions: []Institution{{DisplayName: "MIT"}, {DisplayName: ""}},
			},
		},
		PrimaryLocation: &Location{
			Source:         &Source{DisplayName: "Journal of Reviews", Type: "journal"},
			LandingPageURL: "https://example.org/p0",
		},
		OpenAccess:      &OpenAccess{IsOA: true, OAURL: "https://example.org/p0.pdf"},
		Biblio:          &Biblio{Volume: "3", Issue: "2", FirstPage: "10", LastPage: "20"},
		IDs:             IDs{PMID: "https://pubmed.ncbi.nlm.nih.gov/555"},
		ReferencedWorks: []string{"https://openalex.org/W1", "https://openalex.org/W2"},
		AbstractInvertedIndex: map[string][]int{
			"Snowballing": {0},
			"works":       {1, 3},
			"well":        {2},
		},
	}
}

func TestNewClient(t *testing.T) {
	client := New(Config{Email: "me@example.org"})

	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.Equal(t, DefaultTimeout, client.config.Timeout)
	assert.Equal(t, DefaultRateLimit, client.config.RateLimit)
	assert.Equal(t, DefaultBurstSize, client.config.BurstSize)
	assert.Equal(t, DefaultMaxEdges, client.config.MaxEdges)
	assert.Equal(t, domain.SourceTypeOpenAlex, client.SourceType())
	assert.Equal(t, "OpenAlex", client.Name())
	assert.False(t, client.IsEnabled())
}

func TestClient_Resolve(t *testing.T) {
	t.Run("by DOI", func(t *testing.T) {
		var gotPath, gotMailto string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			gotMailto = r.URL.Query().Get("mailto")
			writeJSON(t, w, sampleWork())
		}, Config{Email: "me@example.org"})

		paper, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryDOI, Value: "10.1000/p0"})
		require.NoError(t, err)

		assert.Equal(t, "/works/https://doi.org/10.1000/p0", gotPath)
		assert.Equal(t, "me@example.org", gotMailto)
		assert.Equal(t, "10.1000/p0", paper.DOI)
		assert.Equal(t, "W100", paper.OpenAlexID)
		assert.Equal(t, "555", paper.PMID)
		assert.Equal(t, "Snowballing Literature", paper.Title)
		assert.Equal(t, "Snowballing works well works", paper.Abstract)
		assert.Equal(t, 2021, *paper.Year)
		assert.Equal(t, 42, *paper.CitationCount)
		assert.Nil(t, paper.InfluentialCitationCount)
		require.Len(t, paper.Authors, 1)
		assert.Equal(t, "0000-0001-2345-6789", paper.Authors[0].ORCID)
		assert.Equal(t, []string{"MIT"}, paper.Authors[0].Affiliations)
		assert.Equal(t, domain.Venue{Name: "Journal of Reviews", Type: "journal", Year: intp(2021), Volume: "3", Issue: "2", Pages: "10-20"}, paper.Venue)
		assert.Equal(t, "https://example.org/p0", paper.URL)
		assert.Equal(t, "https://example.org/p0.pdf", paper.PDFURL)
		assert.Equal(t, 2, paper.RawData["reference_count"])
	})

	t.Run("by arXiv id through DataCite DOI", func(t *testing.T) {
		var gotPath string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			gotPath = r.URL.Path
			work := sampleWork()
			work.DOI = "https://doi.org/10.48550/arXiv.2101.00001"
			writeJSON(t, w, work)
		}, Config{})

		paper, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryArXiv, Value: "2101.00001"})
		require.NoError(t, err)
		assert.Equal(t, "/works/https://doi.org/10.48550/arxiv.2101.00001", gotPath)
		assert.Equal(t, "2101.00001", paper.ArxivID)
	})

	t.Run("by title takes top hit", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/works", r.URL.Path)
			assert.Equal(t, "snowball literature", r.URL.Query().Get("search"))
			assert.Equal(t, "1", r.URL.Query().Get("per-page"))
			writeJSON(t, w, ListResponse{Results: []Work{sampleWork()}})
		}, Config{})

		paper, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryTitle, Value: "snowball literature"})
		require.NoError(t, err)
		assert.Equal(t, "W100", paper.OpenAlexID)
	})

	t.Run("no title hit is not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(t, w, ListResponse{})
		}, Config{})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryTitle, Value: "none"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("404 is not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}, Config{})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryDOI, Value: "10.1/none"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":`))
		}, Config{})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryDOI, Value: "10.1/x"})
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestClient_References(t *testing.T) {
	var filters []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/works/W100":
			writeJSON(t, w, sampleWork())
		case "/works":
			filters = append(filters, r.URL.Query().Get("filter"))
			writeJSON(t, w, ListResponse{Results: []Work{
				{ID: "https://openalex.org/W1", DisplayName: "R1", PublicationYear: 2015},
				{ID: "https://openalex.org/W2", DisplayName: "R2"},
			}})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}, Config{})

	refs, err := client.References(context.Background(), &domain.Paper{OpenAlexID: "W100"})
	require.NoError(t, err)

	require.Len(t, refs, 2)
	assert.Equal(t, "W1", refs[0].OpenAlexID)
	assert.Equal(t, 2015, *refs[0].Year)
	assert.Nil(t, refs[1].Year)
	assert.Equal(t, []string{"openalex_id:W1|W2"}, filters)
}

func TestClient_References_NoIdentifier(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL)
	}, Config{})

	_, err := client.References(context.Background(), &domain.Paper{Title: "title only"})
	assert.ErrorIs(t, err, domain.ErrNoIdentifier)
}

func TestClient_Citations(t *testing.T) {
	t.Run("follows cursor", func(t *testing.T) {
		var cursors []string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "cites:W100", r.URL.Query().Get("filter"))
			cursor := r.URL.Query().Get("cursor")
			cursors = append(cursors, cursor)
			if cursor == "*" {
				writeJSON(t, w, ListResponse{
					Meta:    Meta{NextCursor: "abc"},
					Results: []Work{{ID: "https://openalex.org/W7", DisplayName: "C1"}},
				})
				return
			}
			writeJSON(t, w, ListResponse{Results: []Work{{ID: "https://openalex.org/W8", DisplayName: "C2"}}})
		}, Config{})

		cites, err := client.Citations(context.Background(), &domain.Paper{OpenAlexID: "https://openalex.org/W100"})
		require.NoError(t, err)

		require.Len(t, cites, 2)
		assert.Equal(t, "W8", cites[1].OpenAlexID)
		assert.Equal(t, []string{"*", "abc"}, cursors)
	})

	t.Run("looks up work id from DOI", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/works/") {
				writeJSON(t, w, sampleWork())
				return
			}
			assert.Equal(t, "cites:W100", r.URL.Query().Get("filter"))
			writeJSON(t, w, ListResponse{})
		}, Config{})

		cites, err := client.Citations(context.Background(), &domain.Paper{DOI: "10.1000/p0"})
		require.NoError(t, err)
		assert.Empty(t, cites)
	})
}

func TestReconstructAbstract(t *testing.T) {
	assert.Empty(t, reconstructAbstract(nil))
	assert.Equal(t, "a b c", reconstructAbstract(map[string][]int{"c": {2}, "a": {0}, "b": {1}}))
}

func TestNormalizers(t *testing.T) {
	assert.Equal(t, "W1", normalizeOpenAlexID(" https://openalex.org/W1 "))
	assert.Equal(t, "12", normalizePMID("https://pubmed.ncbi.nlm.nih.gov/12/"))
	assert.Equal(t, "0000-0001", normalizeORCID("https://orcid.org/0000-0001"))
	assert.Equal(t, "5-9", pageRange("5", "9"))
	assert.Equal(t, "5", pageRange("5", "5"))
	assert.Empty(t, pageRange("", "9"))
}
