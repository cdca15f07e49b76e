package pdf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/snowball-review/internal/domain"
)

var samplePDFContent = []byte("%PDF-1.4 sample content for testing")

func writeContent(w http.ResponseWriter, content []byte) {
	_, _ = w.Write(content)
}

func testDownloader(cfg Config) *Downloader {
	cfg.AllowPrivateNetworks = true
	return NewDownloader(cfg)
}

func TestNewDownloader_Defaults(t *testing.T) {
	t.Run("applies default values", func(t *testing.T) {
		d := NewDownloader(Config{})

		require.NotNil(t, d)
		assert.Equal(t, int64(DefaultMaxSize), d.maxSize)
		assert.Equal(t, "snowball-review/1.0", d.userAgent)
		assert.Equal(t, 60*time.Second, d.client.Timeout)
		assert.False(t, d.allowPrivateNetworks)
	})

	t.Run("uses custom config values", func(t *testing.T) {
		d := NewDownloader(Config{
			Timeout:   30 * time.Second,
			MaxSize:   1 << 20,
			UserAgent: "CustomAgent/2.0",
		})

		assert.Equal(t, int64(1<<20), d.maxSize)
		assert.Equal(t, "CustomAgent/2.0", d.userAgent)
		assert.Equal(t, 30*time.Second, d.client.Timeout)
	})
}

func TestDownload_Success(t *testing.T) {
	var gotUA, gotAccept string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotAccept = r.Header.Get("Accept")
		w.Header().Set("Content-Type", "application/pdf; charset=binary")
		writeContent(w, samplePDFContent)
	}))
	defer server.Close()

	result, err := testDownloader(Config{}).Download(context.Background(), server.URL)
	require.NoError(t, err)

	sum := sha256.Sum256(samplePDFContent)
	assert.Equal(t, samplePDFContent, result.Content)
	assert.Equal(t, hex.EncodeToString(sum[:]), result.ContentHash)
	assert.Equal(t, int64(len(samplePDFContent)), result.SizeBytes)
	assert.Equal(t, "application/pdf; charset=binary", result.ContentType)
	assert.Equal(t, "snowball-review/1.0", gotUA)
	assert.Contains(t, gotAccept, "application/pdf")
}

func TestDownload_ContentType(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		wantErr     error
	}{
		{name: "octet-stream with pdf header", contentType: "application/octet-stream", body: samplePDFContent},
		{name: "binary octet-stream with pdf header", contentType: "binary/octet-stream", body: samplePDFContent},
		{name: "octet-stream without pdf header", contentType: "application/octet-stream", body: []byte("PK\x03\x04zip"), wantErr: ErrNotPDF},
		{name: "html page", contentType: "text/html", body: []byte("<html></html>"), wantErr: ErrNotPDF},
		{name: "json", contentType: "application/json", body: []byte("{}"), wantErr: ErrNotPDF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tt.contentType)
				writeContent(w, tt.body)
			}))
			defer server.Close()

			result, err := testDownloader(Config{}).Download(context.Background(), server.URL)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, result)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.body, result.Content)
		})
	}
}

func TestDownload_HTTPStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusForbidden, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
			}))
			defer server.Close()

			_, err := testDownloader(Config{}).Download(context.Background(), server.URL)
			require.ErrorIs(t, err, ErrDownloadFailed)
			assert.Contains(t, err.Error(), "HTTP")
		})
	}
}

func TestDownload_HTTPStatusMapsToDomainErrors(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, domain.ErrNotFound},
		{http.StatusGone, domain.ErrNotFound},
		{http.StatusTooManyRequests, domain.ErrRateLimited},
		{http.StatusForbidden, domain.ErrUnauthorized},
		{http.StatusBadGateway, domain.ErrServiceUnavailable},
		{http.StatusBadRequest, domain.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := testDownloader(Config{}).Download(context.Background(), server.URL)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDownload_TooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		writeContent(w, samplePDFContent)
	}))
	defer server.Close()

	_, err := testDownloader(Config{MaxSize: 10}).Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrTooLarge)

	result, err := testDownloader(Config{MaxSize: int64(len(samplePDFContent))}).Download(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, result.Content, len(samplePDFContent))
}

func TestDownload_FollowsRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/paper", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/files/paper.pdf", http.StatusFound)
	})
	mux.HandleFunc("/files/paper.pdf", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		writeContent(w, samplePDFContent)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	result, err := testDownloader(Config{}).Download(context.Background(), server.URL+"/paper")
	require.NoError(t, err)
	assert.Equal(t, samplePDFContent, result.Content)
	assert.Equal(t, server.URL+"/files/paper.pdf", result.FinalURL)
}

func TestDownload_TooManyRedirects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, r.URL.Path+"x", http.StatusFound)
	}))
	defer server.Close()

	_, err := testDownloader(Config{}).Download(context.Background(), server.URL+"/a")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestDownload_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		writeContent(w, samplePDFContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testDownloader(Config{}).Download(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDownload_RejectsPrivateNetworks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach a loopback server")
	}))
	defer server.Close()

	_, err := NewDownloader(Config{}).Download(context.Background(), server.URL)
	assert.ErrorIs(t, err, ErrSSRF)
}

func TestDownload_RejectsPrivateNetworksAfterResolution(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not reach a loopback server")
	}))
	defer server.Close()

	u, err := url.Parse(server.URL)
	require.NoError(t, err)
	u.Host = "localhost:" + u.Port()

	_, err = NewDownloader(Config{}).Download(context.Background(), u.String())
	assert.ErrorIs(t, err, ErrSSRF)
}

func TestValidateURLNotPrivate_Scheme(t *testing.T) {
	for _, raw := range []string{"file:///etc/passwd", "gopher://example.com", "ftp://example.com/a.pdf"} {
		err := validateURLNotPrivate(raw)
		assert.ErrorIs(t, err, ErrSSRF, raw)
	}
}

func TestIsPrivateIP(t *testing.T) {
	tests := []struct {
		ip      string
		private bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.31.255.255", true},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"::1", true},
		{"fd00::1", true},
		{"fe80::1", true},
		{"0.0.0.0", true},
		{"8.8.8.8", false},
		{"172.32.0.1", false},
		{"2001:4860:4860::8888", false},
	}
	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			assert.Equal(t, tt.private, isPrivateIP(net.ParseIP(tt.ip)))
		})
	}
}
