// Package config provides configuration management for the snowball review engine.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/snowball-review/internal/domain"
)

// SSL mode constants for database connections.
const (
	// SSLModeDisable disables SSL (use only for local development).
	SSLModeDisable = "disable"
	// SSLModeRequire requires SSL but does not verify certificates.
	SSLModeRequire = "require"
	// SSLModeVerifyCA verifies the server certificate against a CA.
	SSLModeVerifyCA = "verify-ca"
	// SSLModeVerifyFull verifies the server certificate and hostname.
	SSLModeVerifyFull = "verify-full"
)

// Storage drivers.
const (
	StorageFile     = "file"
	StorageS3       = "s3"
	StoragePostgres = "postgres"
)

// Provider names accepted in providers.order.
const (
	ProviderSemanticScholar = "semanticscholar"
	ProviderOpenAlex        = "openalex"
	ProviderPubMed          = "pubmed"
	ProviderArXiv           = "arxiv"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SNOWBALL"

// Config holds all configuration for the snowball review engine.
type Config struct {
	// Server contains review API server settings.
	Server ServerConfig `mapstructure:"server"`
	// Storage selects and configures the project storage backend.
	Storage StorageConfig `mapstructure:"storage"`
	// Logging contains structured logging settings.
	Logging LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Providers contains bibliographic provider settings.
	Providers ProvidersConfig `mapstructure:"providers"`
	// Aggregator contains retry, timeout and concurrency settings for provider lookups.
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	// Dedup contains identity resolution settings.
	Dedup DedupConfig `mapstructure:"dedup"`
	// Scoring contains relevance scoring settings.
	Scoring ScoringConfig `mapstructure:"scoring"`
	// PDF contains seed PDF download settings.
	PDF PDFConfig `mapstructure:"pdf"`
}

// ServerConfig holds review API server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// Port is the HTTP server port (default: 8080).
	Port int `mapstructure:"port"`
	// ReadTimeout is the maximum duration for reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing a response. Iteration
	// runs are synchronous, so keep it above the expected iteration time.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// RequestTimeout bounds the handling of a single request.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Driver is one of file, s3 or postgres.
	Driver string `mapstructure:"driver"`
	// Dir is the project directory for the file driver.
	Dir string `mapstructure:"dir"`
	// S3 configures the s3 driver.
	S3 S3Config `mapstructure:"s3"`
	// Database configures the postgres driver.
	Database DatabaseConfig `mapstructure:"database"`
}

// S3Config holds object storage settings.
type S3Config struct {
	// Bucket holds the project objects.
	Bucket string `mapstructure:"bucket"`
	// Prefix is prepended to every object key.
	Prefix string `mapstructure:"prefix"`
	// Region is the AWS region.
	Region string `mapstructure:"region"`
	// Endpoint overrides the S3 endpoint for S3-compatible stores.
	Endpoint string `mapstructure:"endpoint"`
	// UsePathStyle addresses buckets by path, as most S3-compatible stores require.
	UsePathStyle bool `mapstructure:"use_path_style"`
	// AccessKeyID is loaded from SNOWBALL_STORAGE_S3_ACCESS_KEY_ID. When
	// empty the default AWS credential chain is used.
	AccessKeyID string `mapstructure:"-"`
	// SecretAccessKey is loaded from SNOWBALL_STORAGE_S3_SECRET_ACCESS_KEY.
	SecretAccessKey string `mapstructure:"-"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	// Host is the PostgreSQL server hostname.
	Host string `mapstructure:"host"`
	// Port is the PostgreSQL server port (default: 5432).
	Port int `mapstructure:"port"`
	// User is the database username.
	User string `mapstructure:"user"`
	// Password is loaded from SNOWBALL_STORAGE_DATABASE_PASSWORD.
	Password string `mapstructure:"-"`
	// Name is the database name.
	Name string `mapstructure:"name"`
	// SSLMode controls SSL connection security (require, verify-ca, verify-full, disable).
	SSLMode string `mapstructure:"ssl_mode"`
	// Project names the review project; one database holds many projects.
	Project string `mapstructure:"project"`
	// MaxConns is the maximum number of connections in the pool (default: 10).
	MaxConns int32 `mapstructure:"max_conns"`
	// MinConns is the minimum number of connections to keep open (default: 1).
	MinConns int32 `mapstructure:"min_conns"`
	// MaxConnLifetime is the maximum lifetime of a connection before it's closed.
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// MaxConnIdleTime is the maximum time a connection can be idle before it's closed.
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	// HealthCheckPeriod is the interval between health checks of idle connections.
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	// ConnectTimeout is the maximum time to wait for a connection.
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MigrationAutoRun applies the embedded migrations when the store opens.
	MigrationAutoRun bool `mapstructure:"migration_auto_run"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level (trace, debug, info, warn, error, fatal, panic).
	Level string `mapstructure:"level"`
	// Format is the log format (json, console, pretty).
	Format string `mapstructure:"format"`
	// Output is the log output destination (stdout, stderr).
	Output string `mapstructure:"output"`
	// AddSource adds source file and line to log output.
	AddSource bool `mapstructure:"add_source"`
	// TimeFormat is the timestamp format.
	TimeFormat string `mapstructure:"time_format"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// ProvidersConfig holds configuration for all bibliographic providers.
type ProvidersConfig struct {
	// Order is the lookup priority. Providers missing from it are consulted last.
	Order []string `mapstructure:"order"`
	// SemanticScholar contains Semantic Scholar API settings.
	SemanticScholar ProviderConfig `mapstructure:"semanticscholar"`
	// OpenAlex contains OpenAlex API settings.
	OpenAlex ProviderConfig `mapstructure:"openalex"`
	// PubMed contains NCBI E-utilities settings.
	PubMed ProviderConfig `mapstructure:"pubmed"`
	// ArXiv contains arXiv API settings.
	ArXiv ProviderConfig `mapstructure:"arxiv"`
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	// Enabled controls whether this provider is used.
	Enabled bool `mapstructure:"enabled"`
	// APIKey is loaded from SNOWBALL_PROVIDERS_<NAME>_API_KEY.
	APIKey string `mapstructure:"-"`
	// BaseURL overrides the API base URL.
	BaseURL string `mapstructure:"base_url"`
	// Email identifies the client to OpenAlex and NCBI.
	Email string `mapstructure:"email"`
	// Timeout bounds a single HTTP exchange.
	Timeout time.Duration `mapstructure:"timeout"`
	// RateLimit is the maximum requests per second.
	RateLimit float64 `mapstructure:"rate_limit"`
	// Burst is the rate limiter bucket size.
	Burst int `mapstructure:"burst"`
	// MaxEdges caps the references or citations fetched per paper.
	MaxEdges int `mapstructure:"max_edges"`
}

// AggregatorConfig holds provider lookup policy.
type AggregatorConfig struct {
	// MaxConcurrency bounds in-flight lookups during an iteration.
	MaxConcurrency int `mapstructure:"max_concurrency"`
	// CallTimeout bounds a single provider call.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
	// MaxAttempts is the number of attempts per provider for transient errors.
	MaxAttempts int `mapstructure:"max_attempts"`
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	// MaxBackoff caps the retry delay.
	MaxBackoff time.Duration `mapstructure:"max_backoff"`
	// MaxRetryAfter caps how long a Retry-After hint is honoured.
	MaxRetryAfter time.Duration `mapstructure:"max_retry_after"`
}

// DedupConfig holds identity resolution settings.
type DedupConfig struct {
	// TitleThreshold is the fuzzy title similarity needed to merge two records.
	TitleThreshold float64 `mapstructure:"title_threshold"`
	// ConflictThreshold is the similarity above which a non-merge is logged
	// as an identity conflict.
	ConflictThreshold float64 `mapstructure:"conflict_threshold"`
	// RequireAuthorOverlap requires a shared author for fuzzy merges when
	// both records list authors.
	RequireAuthorOverlap bool `mapstructure:"require_author_overlap"`
}

// ScoringConfig holds relevance scoring settings.
type ScoringConfig struct {
	// Method is "", "tfidf" or "llm". Empty disables scoring.
	Method string `mapstructure:"method"`
	// Provider is the LLM provider (openai, anthropic).
	Provider string `mapstructure:"provider"`
	// Model overrides the provider's default model.
	Model string `mapstructure:"model"`
	// BaseURL overrides the LLM endpoint.
	BaseURL string `mapstructure:"base_url"`
	// BatchSize is the number of papers per LLM request.
	BatchSize int `mapstructure:"batch_size"`
	// Timeout bounds a single LLM request.
	Timeout time.Duration `mapstructure:"timeout"`
	// MaxRetries bounds retries of transient LLM errors.
	MaxRetries int `mapstructure:"max_retries"`
	// APIKey is loaded from SNOWBALL_SCORING_API_KEY. When empty the scorer
	// falls back to OPENAI_API_KEY or ANTHROPIC_API_KEY.
	APIKey string `mapstructure:"-"`
}

// PDFConfig holds seed PDF download settings.
type PDFConfig struct {
	// MaxSizeBytes caps downloaded PDFs.
	MaxSizeBytes int64 `mapstructure:"max_size_bytes"`
	// Timeout bounds a download.
	Timeout time.Duration `mapstructure:"timeout"`
	// AllowPrivateNetworks permits downloads from private addresses.
	AllowPrivateNetworks bool `mapstructure:"allow_private_networks"`
	// MaxPages caps how many pages are read for metadata extraction.
	MaxPages int `mapstructure:"max_pages"`
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	params := url.Values{}
	params.Set("sslmode", c.SSLMode)
	if c.ConnectTimeout > 0 {
		params.Set("connect_timeout", fmt.Sprintf("%d", int(c.ConnectTimeout.Seconds())))
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?%s",
		url.QueryEscape(c.User),
		url.QueryEscape(c.Password),
		c.Host,
		c.Port,
		c.Name,
		params.Encode(),
	)
}

// Address returns the HTTP server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Load loads configuration from defaults, an optional config file and
// SNOWBALL_ environment variables. When configFile is empty snowball.yaml
// is searched in ., ./config and $HOME/.snowball.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("snowball")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home + "/.snowball")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Environment variables do not split comma separated lists on their own.
	if len(cfg.Providers.Order) == 1 && strings.Contains(cfg.Providers.Order[0], ",") {
		cfg.Providers.Order = strings.Split(cfg.Providers.Order[0], ",")
	}
	for i, name := range cfg.Providers.Order {
		cfg.Providers.Order[i] = strings.ToLower(strings.TrimSpace(name))
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Storage.Database.Password = os.Getenv(EnvPrefix + "_STORAGE_DATABASE_PASSWORD")
	cfg.Storage.S3.AccessKeyID = os.Getenv(EnvPrefix + "_STORAGE_S3_ACCESS_KEY_ID")
	cfg.Storage.S3.SecretAccessKey = os.Getenv(EnvPrefix + "_STORAGE_S3_SECRET_ACCESS_KEY")

	cfg.Providers.SemanticScholar.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_SEMANTICSCHOLAR_API_KEY")
	cfg.Providers.OpenAlex.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_OPENALEX_API_KEY")
	cfg.Providers.PubMed.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_PUBMED_API_KEY")
	cfg.Providers.ArXiv.APIKey = os.Getenv(EnvPrefix + "_PROVIDERS_ARXIV_API_KEY")

	cfg.Scoring.APIKey = os.Getenv(EnvPrefix + "_SCORING_API_KEY")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30m")
	v.SetDefault("server.request_timeout", "30m")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Storage defaults
	v.SetDefault("storage.driver", StorageFile)
	v.SetDefault("storage.dir", ".")
	v.SetDefault("storage.s3.prefix", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.use_path_style", false)
	v.SetDefault("storage.database.host", "localhost")
	v.SetDefault("storage.database.port", 5432)
	v.SetDefault("storage.database.user", "snowball")
	v.SetDefault("storage.database.name", "snowball")
	// Default to "require"; use SNOWBALL_STORAGE_DATABASE_SSL_MODE=disable for local development.
	v.SetDefault("storage.database.ssl_mode", SSLModeRequire)
	v.SetDefault("storage.database.project", "default")
	v.SetDefault("storage.database.max_conns", 10)
	v.SetDefault("storage.database.min_conns", 1)
	v.SetDefault("storage.database.max_conn_lifetime", "1h")
	v.SetDefault("storage.database.max_conn_idle_time", "30m")
	v.SetDefault("storage.database.health_check_period", "30s")
	v.SetDefault("storage.database.connect_timeout", "10s")
	v.SetDefault("storage.database.migration_auto_run", false)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "snowball")

	// Provider defaults
	v.SetDefault("providers.order", []string{ProviderSemanticScholar, ProviderOpenAlex, ProviderPubMed, ProviderArXiv})

	v.SetDefault("providers.semanticscholar.enabled", true)
	v.SetDefault("providers.semanticscholar.base_url", "https://api.semanticscholar.org/graph/v1")
	v.SetDefault("providers.semanticscholar.timeout", "30s")
	v.SetDefault("providers.semanticscholar.rate_limit", 1.0)
	v.SetDefault("providers.semanticscholar.burst", 1)
	v.SetDefault("providers.semanticscholar.max_edges", 1000)

	v.SetDefault("providers.openalex.enabled", true)
	v.SetDefault("providers.openalex.base_url", "https://api.openalex.org")
	v.SetDefault("providers.openalex.timeout", "30s")
	v.SetDefault("providers.openalex.rate_limit", 10.0)
	v.SetDefault("providers.openalex.burst", 5)
	v.SetDefault("providers.openalex.max_edges", 1000)

	v.SetDefault("providers.pubmed.enabled", true)
	v.SetDefault("providers.pubmed.base_url", "https://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("providers.pubmed.timeout", "30s")
	v.SetDefault("providers.pubmed.rate_limit", 3.0) // NCBI allows 3 req/sec without an API key
	v.SetDefault("providers.pubmed.burst", 3)
	v.SetDefault("providers.pubmed.max_edges", 500)

	v.SetDefault("providers.arxiv.enabled", true)
	v.SetDefault("providers.arxiv.base_url", "https://export.arxiv.org/api")
	v.SetDefault("providers.arxiv.timeout", "30s")
	v.SetDefault("providers.arxiv.rate_limit", 0.33) // arXiv asks for one request every 3 seconds
	v.SetDefault("providers.arxiv.burst", 1)

	// Aggregator defaults
	v.SetDefault("aggregator.max_concurrency", 5)
	v.SetDefault("aggregator.call_timeout", "30s")
	v.SetDefault("aggregator.max_attempts", 3)
	v.SetDefault("aggregator.initial_backoff", "500ms")
	v.SetDefault("aggregator.max_backoff", "10s")
	v.SetDefault("aggregator.max_retry_after", "60s")

	// Dedup defaults
	v.SetDefault("dedup.title_threshold", 0.9)
	v.SetDefault("dedup.conflict_threshold", 0.75)
	v.SetDefault("dedup.require_author_overlap", true)

	// Scoring defaults
	v.SetDefault("scoring.method", "")
	v.SetDefault("scoring.provider", "openai")
	v.SetDefault("scoring.model", "")
	v.SetDefault("scoring.batch_size", 10)
	v.SetDefault("scoring.timeout", "60s")
	v.SetDefault("scoring.max_retries", 3)

	// PDF defaults
	v.SetDefault("pdf.max_size_bytes", 50<<20)
	v.SetDefault("pdf.timeout", "60s")
	v.SetDefault("pdf.allow_private_networks", false)
	v.SetDefault("pdf.max_pages", 2)
}

// Validate validates the configuration. Every failure is a
// *domain.ConfigurationError.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return domain.NewConfigurationError("server.port", fmt.Sprintf("invalid port: %d", c.Server.Port))
	}

	switch c.Storage.Driver {
	case StorageFile:
		if strings.TrimSpace(c.Storage.Dir) == "" {
			return domain.NewConfigurationError("storage.dir", "is required for the file driver")
		}
	case StorageS3:
		if c.Storage.S3.Bucket == "" {
			return domain.NewConfigurationError("storage.s3.bucket", "is required for the s3 driver")
		}
		if (c.Storage.S3.AccessKeyID == "") != (c.Storage.S3.SecretAccessKey == "") {
			return domain.NewConfigurationError("storage.s3", "access key id and secret access key must be set together")
		}
	case StoragePostgres:
		db := c.Storage.Database
		if db.Host == "" {
			return domain.NewConfigurationError("storage.database.host", "is required")
		}
		if db.Port <= 0 || db.Port > 65535 {
			return domain.NewConfigurationError("storage.database.port", fmt.Sprintf("invalid port: %d", db.Port))
		}
		if db.Name == "" {
			return domain.NewConfigurationError("storage.database.name", "is required")
		}
		if db.Project == "" {
			return domain.NewConfigurationError("storage.database.project", "is required")
		}
		if db.MaxConns < db.MinConns {
			return domain.NewConfigurationError("storage.database.max_conns",
				fmt.Sprintf("max_conns (%d) must be >= min_conns (%d)", db.MaxConns, db.MinConns))
		}
	default:
		return domain.NewConfigurationError("storage.driver",
			fmt.Sprintf("unknown driver %q (valid: file, s3, postgres)", c.Storage.Driver))
	}

	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return domain.NewConfigurationError("logging.level", fmt.Sprintf("invalid log level: %s", c.Logging.Level))
	}

	known := []string{ProviderSemanticScholar, ProviderOpenAlex, ProviderPubMed, ProviderArXiv}
	for _, name := range c.Providers.Order {
		if !slices.Contains(known, name) {
			return domain.NewConfigurationError("providers.order", fmt.Sprintf("unknown provider %q", name))
		}
	}
	if !c.Providers.SemanticScholar.Enabled && !c.Providers.OpenAlex.Enabled &&
		!c.Providers.PubMed.Enabled && !c.Providers.ArXiv.Enabled {
		return domain.NewConfigurationError("providers", "at least one provider must be enabled")
	}

	if c.Aggregator.MaxConcurrency < 1 {
		return domain.NewConfigurationError("aggregator.max_concurrency", "must be at least 1")
	}
	if c.Aggregator.MaxAttempts < 1 {
		return domain.NewConfigurationError("aggregator.max_attempts", "must be at least 1")
	}
	if c.Aggregator.CallTimeout <= 0 {
		return domain.NewConfigurationError("aggregator.call_timeout", "must be positive")
	}

	if c.Dedup.TitleThreshold <= 0 || c.Dedup.TitleThreshold > 1 {
		return domain.NewConfigurationError("dedup.title_threshold", "must be in (0, 1]")
	}

	switch strings.ToLower(c.Scoring.Method) {
	case "", "tfidf":
	case "llm":
		switch strings.ToLower(c.Scoring.Provider) {
		case "openai", "anthropic":
		default:
			return domain.NewConfigurationError("scoring.provider",
				fmt.Sprintf("unsupported LLM provider %q (valid: openai, anthropic)", c.Scoring.Provider))
		}
	default:
		return domain.NewConfigurationError("scoring.method",
			fmt.Sprintf("unknown scoring method %q (valid: tfidf, llm)", c.Scoring.Method))
	}

	return nil
}
