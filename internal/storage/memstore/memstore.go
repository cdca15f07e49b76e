// Package memstore keeps a review project in process memory. It backs the
// engine and API tests and short-lived embedded use; nothing survives the
// process.
package memstore

import (
	"context"
	"sync"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

// Store is an in-memory storage.Storage. Values are copied on the way in
// and out, so callers never share state with the store.
type Store struct {
	mu      sync.RWMutex
	project *domain.ReviewProject
	papers  map[string]*domain.Paper
}

var _ storage.Storage = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{papers: map[string]*domain.Paper{}}
}

// LoadProject returns a copy of the stored project.
func (s *Store) LoadProject(_ context.Context) (*domain.ReviewProject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.project == nil {
		return nil, domain.NewNotFoundError("project", "")
	}
	return s.project.Clone(), nil
}

// SaveProject stores a copy of the project.
func (s *Store) SaveProject(_ context.Context, project *domain.ReviewProject) error {
	if err := project.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.project = project.Clone()
	return nil
}

// LoadAllPapers returns copies of all papers ordered by creation time.
func (s *Store) LoadAllPapers(_ context.Context) ([]*domain.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Paper, 0, len(s.papers))
	for _, p := range s.papers {
		out = append(out, p.Clone())
	}
	storage.SortPapers(out)
	return out, nil
}

// LoadPaper returns a copy of one paper.
func (s *Store) LoadPaper(_ context.Context, id string) (*domain.Paper, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.papers[id]
	if !ok {
		return nil, domain.NewNotFoundError("paper", id)
	}
	return p.Clone(), nil
}

// SavePaper upserts a copy of one paper.
func (s *Store) SavePaper(ctx context.Context, paper *domain.Paper) error {
	return s.SavePapers(ctx, []*domain.Paper{paper})
}

// SavePapers upserts copies of papers.
func (s *Store) SavePapers(_ context.Context, papers []*domain.Paper) error {
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(papers)
	return nil
}

// Commit upserts papers and stores the project under one lock.
func (s *Store) Commit(_ context.Context, project *domain.ReviewProject, papers []*domain.Paper) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.putLocked(papers)
	s.project = project.Clone()
	return nil
}

// Statistics counts the stored papers.
func (s *Store) Statistics(ctx context.Context) (storage.Statistics, error) {
	papers, err := s.LoadAllPapers(ctx)
	if err != nil {
		return storage.Statistics{}, err
	}
	return storage.ComputeStatistics(papers), nil
}

func (s *Store) putLocked(papers []*domain.Paper) {
	for _, p := range papers {
		s.papers[p.ID] = p.Clone()
	}
}
