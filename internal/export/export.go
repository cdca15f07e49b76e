// Package export renders project papers as BibTeX and CSV.
package export

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/helixir/snowball-review/internal/domain"
)

// Format names an export format.
type Format string

const (
	FormatBibTeX Format = "bibtex"
	FormatCSV    Format = "csv"
	FormatAll    Format = "all"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatBibTeX, FormatCSV, FormatAll:
		return f, nil
	default:
		return "", domain.NewValidationError("format", fmt.Sprintf("unknown export format %q (want bibtex, csv or all)", s))
	}
}

// Options controls which papers are exported.
type Options struct {
	// IncludedOnly keeps only papers whose status is included.
	IncludedOnly bool
}

// Select filters and orders papers for export: by iteration, then title,
// then id. The input is not modified.
func Select(papers []*domain.Paper, opts Options) []*domain.Paper {
	out := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p == nil {
			continue
		}
		if opts.IncludedOnly && p.Status != domain.PaperStatusIncluded {
			continue
		}
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b *domain.Paper) int {
		return cmp.Or(
			cmp.Compare(a.SnowballIteration, b.SnowballIteration),
			cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)),
			cmp.Compare(a.ID, b.ID),
		)
	})
	return out
}

// FileName returns the conventional output file name for a format.
func FileName(f Format, opts Options) string {
	prefix := "all_papers"
	if opts.IncludedOnly {
		prefix = "included_papers"
	}
	switch f {
	case FormatCSV:
		return prefix + ".csv"
	default:
		return prefix + ".bib"
	}
}

// WriteFiles writes the requested formats into dir and returns the paths
// written.
func WriteFiles(dir string, papers []*domain.Paper, f Format, opts Options) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	selected := Select(papers, opts)
	var formats []Format
	switch f {
	case FormatAll:
		formats = []Format{FormatBibTeX, FormatCSV}
	case FormatBibTeX, FormatCSV:
		formats = []Format{f}
	default:
		return nil, domain.NewValidationError("format", fmt.Sprintf("unknown export format %q", f))
	}

	paths := make([]string, 0, len(formats))
	for _, format := range formats {
		path := filepath.Join(dir, FileName(format, opts))
		file, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("create %s: %w", path, err)
		}

		switch format {
		case FormatBibTeX:
			err = WriteBibTeX(file, selected)
		case FormatCSV:
			err = WriteCSV(file, selected)
		}
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return paths, fmt.Errorf("write %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}
