package storage

import (
	"encoding/json"
	"fmt"

	"github.com/helixir/snowball-review/internal/domain"
)

// Snapshot document names shared by the file and object store backends.
const (
	ProjectDocument = "project.json"
	PapersDocument  = "papers.json"
)

// EncodeProject renders the project document.
func EncodeProject(project *domain.ReviewProject) ([]byte, error) {
	data, err := json.MarshalIndent(project, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodeProject parses a project document and fills defaults.
func DecodeProject(data []byte) (*domain.ReviewProject, error) {
	var project domain.ReviewProject
	if err := json.Unmarshal(data, &project); err != nil {
		return nil, fmt.Errorf("decode project: %w", err)
	}
	project.Normalize()
	return &project, nil
}

// EncodePapers renders the papers document ordered by creation time, then id.
func EncodePapers(papers []*domain.Paper) ([]byte, error) {
	ordered := make([]*domain.Paper, len(papers))
	copy(ordered, papers)
	SortPapers(ordered)

	data, err := json.MarshalIndent(ordered, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode papers: %w", err)
	}
	return append(data, '\n'), nil
}

// DecodePapers parses a papers document. When an id appears more than once
// the last record wins.
func DecodePapers(data []byte) ([]*domain.Paper, error) {
	var papers []*domain.Paper
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("decode papers: %w", err)
	}
	out := make([]*domain.Paper, 0, len(papers))
	for _, p := range papers {
		if p == nil {
			continue
		}
		p.Normalize()
		out = append(out, p)
	}
	return MergeSnapshot(nil, out), nil
}
