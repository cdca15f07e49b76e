package arxiv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/papersources"
)

const feedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:arxiv="http://arxiv.org/schemas/atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <published>2017-06-12T17:57:34Z</published>
    <title>Attention Is All
      You Need</title>
    <summary>  The dominant sequence transduction models...  </summary>
    <author><name>Ashish Vaswani</name></author>
    <author><name>Noam Shazeer</name><arxiv:affiliation>Google</arxiv:affiliation></author>
    <arxiv:doi>10.48550/arXiv.1706.03762</arxiv:doi>
    <link href="http://arxiv.org/abs/1706.03762v7" rel="alternate" type="text/html"/>
    <link title="pdf" href="http://arxiv.org/pdf/1706.03762v7" rel="related" type="application/pdf"/>
    <arxiv:primary_category term="cs.CL"/>
    <category term="cs.CL"/>
    <category term="cs.LG"/>
  </entry>
</feed>`

const errorFeedXML = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/api/errors#incorrect_id_format_for_bad</id>
    <title>Error</title>
  </entry>
</feed>`

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewWithHTTPClient(Config{BaseURL: server.URL, Enabled: true},
		papersources.NewHTTPClient(papersources.HTTPClientConfig{Source: "arxiv", RateLimit: 1000, BurstSize: 100}))
}

func TestNew(t *testing.T) {
	client := New(Config{})

	assert.Equal(t, DefaultBaseURL, client.config.BaseURL)
	assert.InDelta(t, DefaultRateLimit, client.config.RateLimit, 1e-9)
	assert.Equal(t, domain.SourceTypeArXiv, client.SourceType())
	assert.Equal(t, "arXiv", client.Name())
	assert.False(t, client.IsEnabled())
}

func TestClient_Resolve(t *testing.T) {
	t.Run("by arXiv id", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/query", r.URL.Path)
			assert.Equal(t, "1706.03762", r.URL.Query().Get("id_list"))
			w.Write([]byte(feedXML))
		})

		paper, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryArXiv, Value: "1706.03762"})
		require.NoError(t, err)

		assert.Equal(t, "1706.03762", paper.ArxivID)
		assert.Equal(t, "10.48550/arxiv.1706.03762", paper.DOI)
		assert.Equal(t, "Attention Is All You Need", paper.Title)
		assert.Equal(t, "The dominant sequence transduction models...", paper.Abstract)
		assert.Equal(t, 2017, *paper.Year)
		assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", paper.PDFURL)
		assert.Equal(t, "https://arxiv.org/abs/1706.03762", paper.URL)
		assert.Equal(t, "preprint", paper.Venue.Type)
		require.Len(t, paper.Authors, 2)
		assert.Equal(t, []string{"Google"}, paper.Authors[1].Affiliations)
		assert.Equal(t, []string{"cs.CL", "cs.LG"}, paper.RawData["categories"])
		assert.Equal(t, "cs.CL", paper.RawData["primary_category"])
	})

	t.Run("by title", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, `ti:"Attention Is All You Need"`, r.URL.Query().Get("search_query"))
			assert.Equal(t, "1", r.URL.Query().Get("max_results"))
			w.Write([]byte(feedXML))
		})

		paper, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryTitle, Value: `Attention Is "All" You Need`})
		require.NoError(t, err)
		assert.Equal(t, "1706.03762", paper.ArxivID)
	})

	t.Run("arXiv DataCite DOI", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "1706.03762", r.URL.Query().Get("id_list"))
			w.Write([]byte(feedXML))
		})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryDOI, Value: "10.48550/arxiv.1706.03762"})
		require.NoError(t, err)
	})

	t.Run("other DOI has no identifier", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Errorf("unexpected request %s", r.URL)
		})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryDOI, Value: "10.1000/xyz"})
		assert.ErrorIs(t, err, domain.ErrNoIdentifier)
	})

	t.Run("error entry is not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(errorFeedXML))
		})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryArXiv, Value: "bad"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("empty feed is not found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<feed xmlns="http://www.w3.org/2005/Atom"></feed>`))
		})

		_, err := client.Resolve(context.Background(), papersources.Query{Kind: papersources.QueryTitle, Value: "unknown"})
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a\n\tb   c "))
	assert.Empty(t, normalizeWhitespace("   "))
}
