package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/helixir/snowball-review/internal/domain"
)

// Columns is the CSV header row.
var Columns = []string{
	"id", "title", "authors", "year", "doi", "arxiv_id", "venue", "citations",
	"status", "source", "iteration", "exclusion_type", "relevance_score", "notes", "tags",
}

// WriteCSV writes a header row and one row per paper in the given order.
// Missing optional numbers are written as empty cells.
func WriteCSV(w io.Writer, papers []*domain.Paper) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return err
	}
	for _, p := range papers {
		if err := writer.Write(csvRecord(p)); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func csvRecord(p *domain.Paper) []string {
	authors := make([]string, 0, len(p.Authors))
	for _, a := range p.Authors {
		authors = append(authors, a.Name)
	}

	year := ""
	if y := paperYear(p); y > 0 {
		year = strconv.Itoa(y)
	}
	score := ""
	if p.RelevanceScore != nil {
		score = strconv.FormatFloat(*p.RelevanceScore, 'f', 4, 64)
	}

	return []string{
		p.ID,
		p.Title,
		strings.Join(authors, "; "),
		year,
		p.DOI,
		p.ArxivID,
		p.Venue.Name,
		optionalInt(p.CitationCount),
		string(p.Status),
		string(p.Source),
		strconv.Itoa(p.SnowballIteration),
		string(p.ExclusionType),
		score,
		p.Notes,
		strings.Join(p.Tags, "; "),
	}
}

func optionalInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}
