// Package pdf reads seed papers from PDF files. A Parser extracts a
// best-effort DOI, arXiv id, title and abstract from the first pages of a
// local or downloaded document; the snowball engine then resolves the
// record against the bibliographic providers.
package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"syscall"
	"time"

	"github.com/helixir/snowball-review/internal/domain"
)

var (
	ErrNotPDF         = errors.New("pdf: response is not a PDF")
	ErrTooLarge       = errors.New("pdf: file exceeds maximum size")
	ErrDownloadFailed = errors.New("pdf: download failed")
	// ErrSSRF is returned when a URL, or a redirect it leads to, points at
	// a private or loopback address.
	ErrSSRF = errors.New("pdf: request to private network denied")
)

// DefaultMaxSize caps downloads when Config.MaxSize is unset.
const DefaultMaxSize = 50 << 20

const maxRedirects = 10

var pdfMagic = []byte("%PDF-")

// DownloadResult is a fetched PDF.
type DownloadResult struct {
	Content     []byte
	ContentHash string // SHA-256, hex
	SizeBytes   int64
	ContentType string
	// FinalURL is the address the body was served from after redirects.
	FinalURL string
}

// Config holds downloader configuration.
type Config struct {
	// Timeout bounds the whole download. Default: 60 seconds.
	Timeout time.Duration
	// MaxSize is the maximum file size in bytes. Default: DefaultMaxSize.
	MaxSize int64
	// UserAgent defaults to "snowball-review/1.0".
	UserAgent string
	// AllowPrivateNetworks disables the private address checks. Only tests
	// and trusted local deployments should set it.
	AllowPrivateNetworks bool
}

// Downloader fetches seed PDFs over http(s). Unless private networks are
// allowed, every connection is checked at dial time so that neither the
// initial host nor a redirect target can reach an internal address.
type Downloader struct {
	client               *http.Client
	maxSize              int64
	userAgent            string
	allowPrivateNetworks bool
}

// NewDownloader creates a Downloader.
func NewDownloader(cfg Config) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxSize == 0 {
		cfg.MaxSize = DefaultMaxSize
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "snowball-review/1.0"
	}

	d := &Downloader{
		maxSize:              cfg.MaxSize,
		userAgent:            cfg.UserAgent,
		allowPrivateNetworks: cfg.AllowPrivateNetworks,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.AllowPrivateNetworks {
		dialer := &net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
			Control:   rejectPrivateDial,
		}
		transport.DialContext = dialer.DialContext
	}

	d.client = &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return checkScheme(req.URL)
		},
	}

	return d
}

// rejectPrivateDial runs after DNS resolution, so address is the IP that
// is about to be connected to.
func rejectPrivateDial(_, address string, _ syscall.RawConn) error {
	addrPort, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrSSRF, address)
	}
	if isPrivateIP(net.IP(addrPort.Addr().Unmap().AsSlice())) {
		return fmt.Errorf("%w: %s", ErrSSRF, addrPort.Addr())
	}
	return nil
}

// isPrivateIP reports whether ip is loopback, private, link-local or
// unspecified, in IPv4 or IPv6.
func isPrivateIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}

func checkScheme(u *url.URL) error {
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return nil
	default:
		return fmt.Errorf("%w: scheme %q is not allowed", ErrSSRF, u.Scheme)
	}
}

// validateURLNotPrivate rejects non-http(s) URLs and hosts given as
// private IP literals. Hostnames are checked again when dialled.
func validateURLNotPrivate(rawURL string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSSRF, err)
	}
	if err := checkScheme(parsed); err != nil {
		return err
	}
	if ip := net.ParseIP(parsed.Hostname()); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("%w: %s", ErrSSRF, ip)
	}
	return nil
}

// Download fetches a PDF. The body must be served as application/pdf, or
// as a generic binary type starting with the PDF header. Failures wrap
// ErrNotPDF, ErrTooLarge, ErrSSRF or ErrDownloadFailed; HTTP failures also
// wrap the matching domain error so callers can tell a missing document
// from an unavailable host.
func (d *Downloader) Download(ctx context.Context, rawURL string) (*DownloadResult, error) {
	if !d.allowPrivateNetworks {
		if err := validateURLNotPrivate(rawURL); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %w", ErrDownloadFailed, err)
	}
	req.Header.Set("User-Agent", d.userAgent)
	req.Header.Set("Accept", "application/pdf, */*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDownloadFailed, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d: %w", ErrDownloadFailed, resp.StatusCode, statusError(resp.StatusCode))
	}

	contentType := resp.Header.Get("Content-Type")
	sniff, err := acceptContentType(contentType)
	if err != nil {
		return nil, err
	}

	// One extra byte tells an exact fit from an oversized body.
	content, err := io.ReadAll(io.LimitReader(resp.Body, d.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrDownloadFailed, err)
	}
	if int64(len(content)) > d.maxSize {
		return nil, fmt.Errorf("%w: exceeded %d bytes", ErrTooLarge, d.maxSize)
	}
	if sniff && !bytes.HasPrefix(content, pdfMagic) {
		return nil, fmt.Errorf("%w: Content-Type is %q and body has no PDF header", ErrNotPDF, contentType)
	}

	hash := sha256.Sum256(content)
	return &DownloadResult{
		Content:     content,
		ContentHash: hex.EncodeToString(hash[:]),
		SizeBytes:   int64(len(content)),
		ContentType: contentType,
		FinalURL:    resp.Request.URL.String(),
	}, nil
}

// acceptContentType reports whether the body must be sniffed for the PDF
// header.
func acceptContentType(contentType string) (bool, error) {
	lower := strings.ToLower(contentType)
	switch {
	case strings.Contains(lower, "application/pdf"):
		return false, nil
	case strings.Contains(lower, "application/octet-stream"), strings.Contains(lower, "binary/octet-stream"):
		return true, nil
	default:
		return false, fmt.Errorf("%w: Content-Type is %q", ErrNotPDF, contentType)
	}
}

func statusError(code int) error {
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return domain.ErrNotFound
	case code == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return domain.ErrUnauthorized
	case code >= 500:
		return domain.ErrServiceUnavailable
	default:
		return domain.ErrInvalidInput
	}
}
