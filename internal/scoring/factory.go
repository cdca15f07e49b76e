package scoring

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/snowball-review/internal/domain"
	"github.com/helixir/snowball-review/internal/llm"
	"github.com/helixir/snowball-review/internal/observability"
)

// Scoring method names.
const (
	MethodTFIDF = "tfidf"
	MethodLLM   = "llm"
)

// llmTimeout is used when the configuration leaves the timeout unset.
const llmTimeout = 60 * time.Second

// Methods lists the valid scoring methods.
var Methods = []string{MethodTFIDF, MethodLLM}

// Config configures scorer construction.
type Config struct {
	// Provider is the LLM provider ("openai" or "anthropic").
	Provider string
	// Model overrides the provider's default model.
	Model string
	// APIKey is the LLM API key. When empty OPENAI_API_KEY or
	// ANTHROPIC_API_KEY is read from the environment.
	APIKey string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// BatchSize is the number of papers per LLM request.
	BatchSize int
	// Timeout bounds one LLM request.
	Timeout time.Duration
	// MaxRetries bounds retries of transient LLM errors.
	MaxRetries int

	Logger  zerolog.Logger
	Metrics *observability.Metrics
}

// New creates the scorer for method. An LLM scorer without an API key is a
// configuration error.
func New(method string, cfg Config) (Scorer, error) {
	switch strings.ToLower(strings.TrimSpace(method)) {
	case MethodTFIDF:
		return NewTFIDFScorer(), nil
	case MethodLLM:
		return newLLMScorer(cfg)
	default:
		return nil, fmt.Errorf("unknown scoring method %q (valid: %s)", method, strings.Join(Methods, ", "))
	}
}

func newLLMScorer(cfg Config) (*LLMScorer, error) {
	provider := strings.ToLower(cfg.Provider)
	if provider == "" {
		provider = "openai"
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		switch provider {
		case "openai":
			apiKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if apiKey == "" {
		return nil, domain.NewConfigurationError("scoring.api_key",
			fmt.Sprintf("API key required for %s scoring (set %s_API_KEY)", provider, strings.ToUpper(provider)))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = llmTimeout
	}

	client, err := llm.NewClient(llm.FactoryConfig{
		Provider:   provider,
		Timeout:    timeout,
		MaxRetries: cfg.MaxRetries,
		OpenAI:     llm.OpenAIConfig{APIKey: apiKey, Model: cfg.Model, BaseURL: cfg.BaseURL},
		Anthropic:  llm.AnthropicConfig{APIKey: apiKey, Model: cfg.Model, BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, domain.NewConfigurationError("scoring.provider", err.Error())
	}

	return NewLLMScorer(client,
		WithBatchSize(cfg.BatchSize),
		WithLLMLogger(cfg.Logger),
		WithLLMMetrics(cfg.Metrics),
	), nil
}
