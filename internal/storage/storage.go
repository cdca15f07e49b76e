// Package storage defines the persistence contract of a review project and
// helpers shared by the backends.
//
// A project is stored as a whole snapshot: one ReviewProject and the set of
// its papers. Backends live in the subpackages filestore (JSON files),
// s3store (JSON objects in a bucket), postgres and memstore.
package storage

import (
	"context"
	"slices"
	"strings"

	"github.com/helixir/snowball-review/internal/domain"
)

// Storage persists one review project and its papers. Implementations
// assume a single writer per project.
type Storage interface {
	// LoadProject returns the project, or domain.ErrNotFound if none exists.
	LoadProject(ctx context.Context) (*domain.ReviewProject, error)

	// SaveProject writes the project.
	SaveProject(ctx context.Context, project *domain.ReviewProject) error

	// LoadAllPapers returns every paper of the project.
	LoadAllPapers(ctx context.Context) ([]*domain.Paper, error)

	// LoadPaper returns one paper, or domain.ErrNotFound if it is absent.
	LoadPaper(ctx context.Context, id string) (*domain.Paper, error)

	// SavePaper upserts one paper by id.
	SavePaper(ctx context.Context, paper *domain.Paper) error

	// SavePapers upserts papers by id.
	SavePapers(ctx context.Context, papers []*domain.Paper) error

	// Commit upserts papers and writes the project as one atomic change.
	// On error neither the papers nor the project are changed.
	Commit(ctx context.Context, project *domain.ReviewProject, papers []*domain.Paper) error

	// Statistics counts the project's papers.
	Statistics(ctx context.Context) (Statistics, error)
}

// Statistics summarises a project's papers.
type Statistics struct {
	Total    int                        `json:"total"`
	ByStatus map[domain.PaperStatus]int `json:"by_status"`
	BySource map[domain.PaperSource]int `json:"by_source"`
}

// ComputeStatistics counts papers by status and source. Every known status
// and source is present in the maps, with zero counts where applicable.
func ComputeStatistics(papers []*domain.Paper) Statistics {
	stats := Statistics{
		Total:    len(papers),
		ByStatus: make(map[domain.PaperStatus]int, len(domain.AllPaperStatuses)),
		BySource: make(map[domain.PaperSource]int, len(domain.AllPaperSources)),
	}
	for _, s := range domain.AllPaperStatuses {
		stats.ByStatus[s] = 0
	}
	for _, s := range domain.AllPaperSources {
		stats.BySource[s] = 0
	}
	for _, p := range papers {
		stats.ByStatus[p.Status]++
		stats.BySource[p.Source]++
	}
	return stats
}

// MergeSnapshot upserts changed papers into a snapshot by id and returns
// the result ordered by creation time, then id. The inputs are not modified.
func MergeSnapshot(existing, changed []*domain.Paper) []*domain.Paper {
	byID := make(map[string]int, len(existing)+len(changed))
	out := make([]*domain.Paper, 0, len(existing)+len(changed))
	for _, p := range existing {
		byID[p.ID] = len(out)
		out = append(out, p)
	}
	for _, p := range changed {
		if i, ok := byID[p.ID]; ok {
			out[i] = p
			continue
		}
		byID[p.ID] = len(out)
		out = append(out, p)
	}
	SortPapers(out)
	return out
}

// SortPapers orders papers by creation time, then id.
func SortPapers(papers []*domain.Paper) {
	slices.SortStableFunc(papers, func(a, b *domain.Paper) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ValidatePapers checks every paper before a write.
func ValidatePapers(papers []*domain.Paper) error {
	for _, p := range papers {
		if p == nil {
			return domain.NewValidationError("paper", "is nil")
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}
