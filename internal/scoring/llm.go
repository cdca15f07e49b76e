package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/llm"
	"github.com/helixir/snowball-review/internal/observability"
)

const (
	defaultBatchSize   = 10
	maxAbstractRunes   = 800
	llmSystemPrompt    = "You are an expert research assistant screening papers for a systematic literature review."
	llmScoreMaxTokens  = 256
	llmFailureOutcome  = "error"
	llmSuccessOutcome  = "success"
	llmMismatchOutcome = "invalid_response"
)

// LLMOption configures an LLMScorer.
type LLMOption func(*LLMScorer)

// WithBatchSize sets how many papers are scored per request.
func WithBatchSize(n int) LLMOption {
	return func(s *LLMScorer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLLMLogger sets the logger.
func WithLLMLogger(logger zerolog.Logger) LLMOption {
	return func(s *LLMScorer) {
		s.logger = logger
	}
}

// WithLLMMetrics sets the metrics sink.
func WithLLMMetrics(m *observability.Metrics) LLMOption {
	return func(s *LLMScorer) {
		s.metrics = m
	}
}

// LLMScorer asks a chat model to rate papers in batches. Each request lists
// the papers of one batch and asks for a JSON array of scores in the same
// order. A failed or malformed batch scores 0.0 for each of its papers.
type LLMScorer struct {
	client    llm.Client
	batchSize int
	logger    zerolog.Logger
	metrics   *observability.Metrics
}

var _ Scorer = (*LLMScorer)(nil)

// NewLLMScorer creates a scorer backed by client.
func NewLLMScorer(client llm.Client, opts ...LLMOption) *LLMScorer {
	s := &LLMScorer{
		client:    client,
		batchSize: defaultBatchSize,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Method returns "llm".
func (s *LLMScorer) Method() string { return MethodLLM }

// Model returns the model used for scoring.
func (s *LLMScorer) Model() string { return s.client.Model() }

// ScorePapers scores papers batch by batch. Cancellation stops further
// requests; unscored papers keep 0.0.
func (s *LLMScorer) ScorePapers(ctx context.Context, query string, papers []*domain.Paper, progress ProgressFunc) []Scored {
	out := zeroScores(papers)
	if len(papers) == 0 {
		report(progress, 0, 0)
		return out
	}

	for start := 0; start < len(papers); start += s.batchSize {
		end := min(start+s.batchSize, len(papers))
		if ctx.Err() == nil {
			scores, err := s.scoreBatch(ctx, query, papers[start:end])
			if err != nil {
				s.logger.Warn().Err(err).
					Int("batch_start", start).
					Int("batch_size", end-start).
					Msg("llm scoring batch failed; scoring 0.0")
			} else {
				for i, score := range scores {
					out[start+i].Score = score
				}
			}
		}
		report(progress, end, len(papers))
	}
	return out
}

func (s *LLMScorer) scoreBatch(ctx context.Context, query string, batch []*domain.Paper) ([]float64, error) {
	resp, err := s.client.Complete(ctx, llm.CompletionRequest{
		System:    llmSystemPrompt,
		Messages:  []llm.Message{{Role: "user", Content: BuildScoringPrompt(query, batch)}},
		MaxTokens: llmScoreMaxTokens,
	})
	if err != nil {
		s.metrics.RecordLLMRequest(s.client.Provider(), s.client.Model(), llmFailureOutcome, 0, 0)
		return nil, err
	}

	scores, err := ParseScores(resp.Content, len(batch))
	outcome := llmSuccessOutcome
	if err != nil {
		outcome = llmMismatchOutcome
	}
	s.metrics.RecordLLMRequest(s.client.Provider(), resp.Model, outcome, resp.InputTokens, resp.OutputTokens)
	return scores, err
}

// BuildScoringPrompt renders the user prompt for one batch.
func BuildScoringPrompt(query string, batch []*domain.Paper) string {
	var sb strings.Builder
	sb.WriteString("Research question: ")
	sb.WriteString(strings.TrimSpace(query))
	sb.WriteString("\n\nRate how relevant each paper is to the research question on a scale from 0.0 (irrelevant) to 1.0 (highly relevant).\n\n")
	for i, p := range batch {
		fmt.Fprintf(&sb, "Paper %d:\nTitle: %s\n", i+1, p.Title)
		if abstract := truncateRunes(strings.TrimSpace(p.Abstract), maxAbstractRunes); abstract != "" {
			fmt.Fprintf(&sb, "Abstract: %s\n", abstract)
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Respond with only a JSON array of %d numbers, one per paper, in the order given. Example: [0.8, 0.2]", len(batch))
	return sb.String()
}

// ParseScores extracts a JSON array of want scores from a model answer,
// tolerating markdown code fences. Scores are clamped to [0, 1].
func ParseScores(content string, want int) ([]float64, error) {
	content = stripCodeFence(content)
	if i, j := strings.Index(content, "["), strings.LastIndex(content, "]"); i >= 0 && j > i {
		content = content[i : j+1]
	}

	var raw []float64
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("parse scores: %w", err)
	}
	if len(raw) != want {
		return nil, fmt.Errorf("parse scores: got %d scores for %d papers", len(raw), want)
	}
	for i, v := range raw {
		raw[i] = clamp(v)
	}
	return raw, nil
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
