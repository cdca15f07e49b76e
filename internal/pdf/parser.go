package pdf

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/dedup"
	"github.com/helixir/snowball-review/internal/domain"
)

// ErrInvalidPDF is returned when a document cannot be read as a PDF.
var ErrInvalidPDF = errors.New("pdf: invalid document")

const (
	defaultMaxPages   = 2
	maxAbstractRunes  = 2000
	titleSearchLines  = 15
	minTitleRunes     = 20
	maxTitleRunes     = 300
	rawKeySource      = "pdf_source"
	rawKeyContentHash = "pdf_sha256"
)

var (
	// 10.XXXX/... where XXXX is 4 to 9 digits.
	doiPattern   = regexp.MustCompile(`10\.\d{4,9}/[^\s<>"{}|\\^~\[\]` + "`" + `]+`)
	arxivPattern = regexp.MustCompile(`(?i)arXiv:\s*(\d{4}\.\d{4,5}(?:v\d+)?)`)
	abstractHead = regexp.MustCompile(`(?i)\babstract\b[\s.:\-]*`)
	abstractEnd  = regexp.MustCompile(`(?i)(\b(?:keywords|index terms|key words)\b|\n\s*(?:1\.?|I\.)?\s*introduction\b)`)
	spaceRun     = regexp.MustCompile(`\s+`)
)

// Parser extracts seed metadata from PDFs. It is safe for concurrent use.
type Parser struct {
	downloader *Downloader
	maxPages   int
	logger     zerolog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithDownloader sets the downloader used for http(s) sources.
func WithDownloader(d *Downloader) ParserOption {
	return func(p *Parser) {
		if d != nil {
			p.downloader = d
		}
	}
}

// WithMaxPages sets how many leading pages are read.
func WithMaxPages(n int) ParserOption {
	return func(p *Parser) {
		if n > 0 {
			p.maxPages = n
		}
	}
}

// WithLogger sets the parser's logger.
func WithLogger(logger zerolog.Logger) ParserOption {
	return func(p *Parser) { p.logger = logger }
}

// NewParser creates a parser with a default downloader.
func NewParser(opts ...ParserOption) *Parser {
	p := &Parser{
		downloader: NewDownloader(Config{}),
		maxPages:   defaultMaxPages,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse reads a local path or an http(s) URL and returns a provider-style
// record (empty ID) carrying whatever identifiers and text were found.
// Finding nothing is not an error; callers decide what an empty record means.
func (p *Parser) Parse(ctx context.Context, source string) (*domain.Paper, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, domain.NewValidationError("pdf", "source is required")
	}

	var content []byte
	lower := strings.ToLower(source)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		result, err := p.downloader.Download(ctx, source)
		if err != nil {
			return nil, err
		}
		content = result.Content
	} else {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := os.ReadFile(source)
		if err != nil {
			return nil, fmt.Errorf("read pdf: %w", err)
		}
		content = data
	}

	return p.ParseBytes(content, source)
}

// ParseBytes extracts metadata from an in-memory PDF.
func (p *Parser) ParseBytes(content []byte, source string) (*domain.Paper, error) {
	text, info, err := extractText(content, p.maxPages)
	if err != nil {
		return nil, err
	}

	meta := ExtractMetadata(text)
	if t := cleanLine(info); utf8.RuneCountInString(t) >= 8 && !looksLikeFileName(t) {
		meta.Title = t
	}

	sum := sha256.Sum256(content)
	paper := &domain.Paper{
		DOI:      meta.DOI,
		ArxivID:  meta.ArxivID,
		Title:    meta.Title,
		Abstract: meta.Abstract,
		RawData: map[string]any{
			rawKeySource:      source,
			rawKeyContentHash: hex.EncodeToString(sum[:]),
		},
	}

	p.logger.Debug().
		Str("source", source).
		Str("doi", meta.DOI).
		Str("arxiv_id", meta.ArxivID).
		Bool("title", meta.Title != "").
		Bool("abstract", meta.Abstract != "").
		Msg("parsed seed pdf")
	return paper, nil
}

// Metadata is what ExtractMetadata finds in document text.
type Metadata struct {
	DOI      string
	ArxivID  string
	Title    string
	Abstract string
}

// ExtractMetadata applies the text heuristics: the first DOI-looking token,
// an arXiv identifier, the first substantial line that is not a running
// header, and the text between an "Abstract" heading and the keywords or
// introduction.
func ExtractMetadata(text string) Metadata {
	var m Metadata
	m.DOI = findDOI(text)
	if match := arxivPattern.FindStringSubmatch(text); match != nil {
		m.ArxivID = dedup.NormalizeArxivID(match[1])
	}
	m.Title = findTitle(text)
	m.Abstract = findAbstract(text)
	return m
}

func findDOI(text string) string {
	for _, match := range doiPattern.FindAllString(text, -1) {
		match = strings.TrimRight(match, ".,;:)")
		if doi := dedup.NormalizeDOI(match); doi != "" {
			return doi
		}
	}
	return ""
}

func findTitle(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > titleSearchLines {
		lines = lines[:titleSearchLines]
	}
	for _, line := range lines {
		line = cleanLine(line)
		n := utf8.RuneCountInString(line)
		if n < minTitleRunes || n > maxTitleRunes || isHeaderLine(line) {
			continue
		}
		return line
	}
	return ""
}

func findAbstract(text string) string {
	loc := abstractHead.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	rest := text[loc[1]:]
	if end := abstractEnd.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	rest = cleanLine(rest)
	if utf8.RuneCountInString(rest) > maxAbstractRunes {
		rest = string([]rune(rest)[:maxAbstractRunes])
	}
	return rest
}

// isHeaderLine reports running headers, licence lines and identifier lines.
func isHeaderLine(line string) bool {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "journal"),
		strings.Contains(lower, "copyright"),
		strings.Contains(lower, "©"),
		strings.Contains(lower, "doi"),
		strings.Contains(lower, "http://"),
		strings.Contains(lower, "https://"),
		strings.Contains(lower, "arxiv:"),
		strings.Contains(lower, "preprint"),
		strings.Contains(lower, "volume") && strings.Contains(lower, "issue"),
		strings.Contains(lower, "article") && strings.Contains(lower, "published"):
		return true
	}
	return strings.HasPrefix(lower, "abstract")
}

func looksLikeFileName(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasSuffix(lower, ".pdf") || strings.HasSuffix(lower, ".doc") ||
		strings.HasSuffix(lower, ".docx") || strings.HasSuffix(lower, ".dvi") || strings.HasSuffix(lower, ".tex")
}

func cleanLine(s string) string {
	return strings.TrimSpace(spaceRun.ReplaceAllString(s, " "))
}

// extractText returns the plain text of the first maxPages pages and the
// document information title, if any. The reader panics on some malformed
// inputs, so it is guarded.
func extractText(content []byte, maxPages int) (text, infoTitle string, err error) {
	if !bytes.HasPrefix(bytes.TrimLeft(content, "\x00\t\r\n "), pdfMagic) {
		return "", "", fmt.Errorf("%w: missing PDF header", ErrInvalidPDF)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidPDF, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", "", fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}

	pages := reader.NumPage()
	if maxPages <= 0 || maxPages > pages {
		maxPages = pages
	}

	var sb strings.Builder
	for i := 1; i <= maxPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(pageText)
		sb.WriteString("\n")
	}

	infoTitle = reader.Trailer().Key("Info").Key("Title").Text()
	return sb.String(), infoTitle, nil
}
