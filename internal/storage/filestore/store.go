// Package filestore keeps a review project as two JSON documents in a
// directory: project.json and papers.json. Every write replaces a whole
// document through a temporary file and a rename, so readers never observe
// a partially written file.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

// BackupSuffix names the copy of the previous papers document kept by Commit.
const BackupSuffix = ".bak"

// Store is a directory backed storage.Storage. The mutex serialises writers
// within one process; separate processes must not share a directory.
type Store struct {
	dir    string
	logger zerolog.Logger
	mu     sync.Mutex
}

var _ storage.Storage = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New opens the project directory, creating it if needed.
func New(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, domain.NewConfigurationError("storage.dir", "is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.NewPersistenceError("create project directory", err)
	}
	s := &Store{dir: dir, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Dir returns the project directory.
func (s *Store) Dir() string {
	return s.dir
}

func (s *Store) projectPath() string { return filepath.Join(s.dir, storage.ProjectDocument) }
func (s *Store) papersPath() string  { return filepath.Join(s.dir, storage.PapersDocument) }

// LoadProject reads project.json.
func (s *Store) LoadProject(ctx context.Context) (*domain.ReviewProject, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.projectPath())
	if errors.Is(err, fs.ErrNotExist) {
		return nil, domain.NewNotFoundError("project", s.dir)
	}
	if err != nil {
		return nil, domain.NewPersistenceError("read project", err)
	}
	project, err := storage.DecodeProject(data)
	if err != nil {
		return nil, domain.NewPersistenceError("read project", err)
	}
	return project, nil
}

// SaveProject replaces project.json.
func (s *Store) SaveProject(ctx context.Context, project *domain.ReviewProject) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := storage.EncodeProject(project)
	if err != nil {
		return domain.NewPersistenceError("write project", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeFileAtomic(s.projectPath(), data); err != nil {
		return domain.NewPersistenceError("write project", err)
	}
	return nil
}

// LoadAllPapers reads papers.json. A missing file is an empty project.
func (s *Store) LoadAllPapers(ctx context.Context) ([]*domain.Paper, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readPapers()
}

// LoadPaper returns one paper by id.
func (s *Store) LoadPaper(ctx context.Context, id string) (*domain.Paper, error) {
	papers, err := s.LoadAllPapers(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range papers {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.NewNotFoundError("paper", id)
}

// SavePaper upserts one paper.
func (s *Store) SavePaper(ctx context.Context, paper *domain.Paper) error {
	return s.SavePapers(ctx, []*domain.Paper{paper})
}

// SavePapers upserts papers into papers.json.
func (s *Store) SavePapers(ctx context.Context, papers []*domain.Paper) error {
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, _, err := s.mergedPapersLocked(papers)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.papersPath(), data); err != nil {
		return domain.NewPersistenceError("write papers", err)
	}
	return nil
}

// Commit writes papers.json and then project.json. The previous papers
// document is kept as papers.json.bak and put back when the project write
// fails, so a failed commit leaves both documents as they were.
func (s *Store) Commit(ctx context.Context, project *domain.ReviewProject, papers []*domain.Paper) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	projectData, err := storage.EncodeProject(project)
	if err != nil {
		return domain.NewPersistenceError("commit", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	papersData, previous, err := s.mergedPapersLocked(papers)
	if err != nil {
		return err
	}

	backup := s.papersPath() + BackupSuffix
	if previous != nil {
		if err := writeFileAtomic(backup, previous); err != nil {
			return domain.NewPersistenceError("commit: back up papers", err)
		}
	}
	if err := writeFileAtomic(s.papersPath(), papersData); err != nil {
		return domain.NewPersistenceError("commit: write papers", err)
	}

	if err := writeFileAtomic(s.projectPath(), projectData); err != nil {
		if restoreErr := s.restorePapersLocked(previous, backup); restoreErr != nil {
			s.logger.Error().Err(restoreErr).Str("dir", s.dir).Msg("failed to restore papers after project write failure")
			return domain.NewPersistenceError("commit: write project", errors.Join(err, restoreErr))
		}
		return domain.NewPersistenceError("commit: write project", err)
	}

	s.logger.Debug().Str("dir", s.dir).Int("papers", len(papers)).Msg("committed project snapshot")
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

func (s *Store) readPapers() ([]*domain.Paper, error) {
	papers, _, err := s.readPapersRaw()
	return papers, err
}

// readPapersRaw returns the decoded papers and the raw document, which is
// nil when papers.json does not exist yet.
func (s *Store) readPapersRaw() ([]*domain.Paper, []byte, error) {
	data, err := os.ReadFile(s.papersPath())
	if errors.Is(err, fs.ErrNotExist) {
		return []*domain.Paper{}, nil, nil
	}
	if err != nil {
		return nil, nil, domain.NewPersistenceError("read papers", err)
	}
	papers, err := storage.DecodePapers(data)
	if err != nil {
		return nil, nil, domain.NewPersistenceError("read papers", err)
	}
	return papers, data, nil
}

func (s *Store) mergedPapersLocked(changed []*domain.Paper) ([]byte, []byte, error) {
	existing, previous, err := s.readPapersRaw()
	if err != nil {
		return nil, nil, err
	}
	data, err := storage.EncodePapers(storage.MergeSnapshot(existing, changed))
	if err != nil {
		return nil, nil, domain.NewPersistenceError("write papers", err)
	}
	return data, previous, nil
}

func (s *Store) restorePapersLocked(previous []byte, backup string) error {
	if previous == nil {
		if err := os.Remove(s.papersPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	}
	return os.Rename(backup, s.papersPath())
}

// writeFileAtomic writes data to a temporary file in the target directory,
// syncs it and renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
