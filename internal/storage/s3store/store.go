// Package s3store keeps a review project as project.json and papers.json
// objects under a key prefix in an S3-compatible bucket (AWS S3, MinIO).
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/config"
	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/storage"
)

const jsonContentType = "application/json"

// API is the subset of *s3.Client the store uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

var _ API = (*s3.Client)(nil)

// NewClient builds an S3 client from configuration. Static credentials are
// used when both keys are set; otherwise the default AWS chain applies.
func NewClient(ctx context.Context, cfg config.S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, domain.NewConfigurationError("storage.s3", fmt.Sprintf("load AWS config: %v", err))
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// Many S3-compatible stores reject the newer default checksums.
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	}), nil
}

// Store is a bucket backed storage.Storage. The mutex serialises writers
// within one process; the bucket offers no cross-process locking.
type Store struct {
	client API
	bucket string
	prefix string
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

// New creates a store for the objects under prefix in bucket.
func New(client API, bucket, prefix string, opts ...Option) (*Store, error) {
	if client == nil {
		return nil, domain.NewConfigurationError("storage.s3", "client is required")
	}
	if bucket == "" {
		return nil, domain.NewConfigurationError("storage.s3.bucket", "is required")
	}
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// LoadProject fetches project.json.
func (s *Store) LoadProject(ctx context.Context) (*domain.ReviewProject, error) {
	data, err := s.get(ctx, storage.ProjectDocument)
	if err != nil {
		return nil, domain.NewPersistenceError("read project", err)
	}
	if data == nil {
		return nil, domain.NewNotFoundError("project", s.key(storage.ProjectDocument))
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
	data, err := storage.EncodeProject(project)
	if err != nil {
		return domain.NewPersistenceError("write project", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.put(ctx, storage.ProjectDocument, data); err != nil {
		return domain.NewPersistenceError("write project", err)
	}
	return nil
}

// LoadAllPapers fetches papers.json. A missing object is an empty project.
func (s *Store) LoadAllPapers(ctx context.Context) ([]*domain.Paper, error) {
	papers, _, err := s.readPapers(ctx)
	return papers, err
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
	s.mu.Lock()
	defer s.mu.Unlock()

	data, _, err := s.mergedPapersLocked(ctx, papers)
	if err != nil {
		return err
	}
	if err := s.put(ctx, storage.PapersDocument, data); err != nil {
		return domain.NewPersistenceError("write papers", err)
	}
	return nil
}

// Commit uploads papers.json and then project.json. When the project
// upload fails the previous papers object is put back, or removed if there
// was none.
func (s *Store) Commit(ctx context.Context, project *domain.ReviewProject, papers []*domain.Paper) error {
	if err := project.Validate(); err != nil {
		return err
	}
	if err := storage.ValidatePapers(papers); err != nil {
		return err
	}
	projectData, err := storage.EncodeProject(project)
	if err != nil {
		return domain.NewPersistenceError("commit", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	papersData, previous, err := s.mergedPapersLocked(ctx, papers)
	if err != nil {
		return err
	}
	if err := s.put(ctx, storage.PapersDocument, papersData); err != nil {
		return domain.NewPersistenceError("commit: write papers", err)
	}

	if err := s.put(ctx, storage.ProjectDocument, projectData); err != nil {
		// The caller's context may be what failed the upload.
		restoreCtx := context.WithoutCancel(ctx)
		if restoreErr := s.restorePapers(restoreCtx, previous); restoreErr != nil {
			s.logger.Error().Err(restoreErr).Str("bucket", s.bucket).Str("prefix", s.prefix).
				Msg("failed to restore papers after project upload failure")
			return domain.NewPersistenceError("commit: write project", errors.Join(err, restoreErr))
		}
		return domain.NewPersistenceError("commit: write project", err)
	}

	s.logger.Debug().Str("bucket", s.bucket).Str("prefix", s.prefix).Int("papers", len(papers)).
		Msg("committed project snapshot")
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

func (s *Store) readPapers(ctx context.Context) ([]*domain.Paper, []byte, error) {
	data, err := s.get(ctx, storage.PapersDocument)
	if err != nil {
		return nil, nil, domain.NewPersistenceError("read papers", err)
	}
	if data == nil {
		return []*domain.Paper{}, nil, nil
	}
	papers, err := storage.DecodePapers(data)
	if err != nil {
		return nil, nil, domain.NewPersistenceError("read papers", err)
	}
	return papers, data, nil
}

func (s *Store) mergedPapersLocked(ctx context.Context, changed []*domain.Paper) ([]byte, []byte, error) {
	existing, previous, err := s.readPapers(ctx)
	if err != nil {
		return nil, nil, err
	}
	data, err := storage.EncodePapers(storage.MergeSnapshot(existing, changed))
	if err != nil {
		return nil, nil, domain.NewPersistenceError("write papers", err)
	}
	return data, previous, nil
}

func (s *Store) restorePapers(ctx context.Context, previous []byte) error {
	if previous != nil {
		return s.put(ctx, storage.PapersDocument, previous)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(storage.PapersDocument)),
	})
	return err
}

// get returns the object body, or nil without error when it does not exist.
func (s *Store) get(ctx context.Context, name string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get %s: %w", s.key(name), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.key(name), err)
	}
	return data, nil
}

func (s *Store) put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(jsonContentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", s.key(name), err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr *awshttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}
