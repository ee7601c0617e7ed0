package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server        ServerConfig
	Logging       LoggingConfig
	Database      DatabaseConfig
	OpenAI        OpenAIConfig
	Discovery     DiscoveryConfig
	Consolidation ConsolidationConfig
	Auth          AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	URL string
}

// OpenAIConfig holds parameters for the extraction capability.
type OpenAIConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	Timeout        time.Duration
}

// DiscoveryConfig bounds the crawl stages.
type DiscoveryConfig struct {
	// StageTimeout caps a whole-source discovery pass; expiry is fatal to
	// the run.
	StageTimeout time.Duration

	// EnumerationTimeout caps site-index article enumeration.
	EnumerationTimeout time.Duration

	// FetchTimeout caps a single article fetch; expiry is an item-level
	// failure only.
	FetchTimeout time.Duration

	// DomainConcurrency bounds concurrent fetches per network domain.
	DomainConcurrency int

	// FetchPacing is the minimum spacing between requests to one domain.
	FetchPacing time.Duration
}

// ConsolidationConfig carries the merge-engine thresholds. These values were
// chosen empirically and are deliberately tunable rather than hard constants.
type ConsolidationConfig struct {
	// PossiblySameThreshold is the cosine similarity below which a candidate
	// is unconditionally treated as a new event.
	PossiblySameThreshold float64

	// ConfidentThreshold is the similarity recorded as "confident" in
	// comparison audit rows.
	ConfidentThreshold float64

	// ConsensusCount is how many strictly-newer reports of a conflicting
	// field value force its adoption outright.
	ConsensusCount int

	// HalfLifeDays controls evidence decay: a report loses half its weight
	// every HalfLifeDays of age.
	HalfLifeDays float64
}

// AuthConfig holds JWT authentication parameters.
type AuthConfig struct {
	JWTSecret     string
	TokenDuration time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultLLMTimeout     = 3 * time.Minute

	defaultStageTimeout       = 10 * time.Minute
	defaultEnumerationTimeout = 2 * time.Minute
	defaultFetchTimeout       = 30 * time.Second
	defaultDomainConcurrency  = 2
	defaultFetchPacing        = 500 * time.Millisecond

	defaultPossiblySame   = 0.6
	defaultConfident      = 0.7
	defaultConsensusCount = 3
	defaultHalfLifeDays   = 30.0

	defaultTokenDuration = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			URL: os.Getenv("DATABASE_URL"),
		},
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			Model:          getEnv("OPENAI_MODEL", defaultModel),
			EmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", defaultEmbeddingModel),
			Temperature:    0.2,
			Timeout:        defaultLLMTimeout,
		},
		Discovery: DiscoveryConfig{
			StageTimeout:       defaultStageTimeout,
			EnumerationTimeout: defaultEnumerationTimeout,
			FetchTimeout:       defaultFetchTimeout,
			DomainConcurrency:  defaultDomainConcurrency,
			FetchPacing:        defaultFetchPacing,
		},
		Consolidation: ConsolidationConfig{
			PossiblySameThreshold: defaultPossiblySame,
			ConfidentThreshold:    defaultConfident,
			ConsensusCount:        defaultConsensusCount,
			HalfLifeDays:          defaultHalfLifeDays,
		},
		Auth: AuthConfig{
			JWTSecret:     getEnv("JWT_SECRET", "change-this-secret"),
			TokenDuration: defaultTokenDuration,
		},
	}

	if v := os.Getenv("SERVER_READ_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_READ_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ReadTimeout = d
	}

	if v := os.Getenv("SERVER_WRITE_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_WRITE_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.WriteTimeout = d
	}

	if v := os.Getenv("SERVER_SHUTDOWN_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid SERVER_SHUTDOWN_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Server.ShutdownTimeout = d
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	if v := os.Getenv("DISCOVERY_TIMEOUT_SECONDS"); v != "" {
		d, err := parseSeconds(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid DISCOVERY_TIMEOUT_SECONDS: %w", err)
		}
		cfg.Discovery.StageTimeout = d
	}

	if v := os.Getenv("DOMAIN_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid DOMAIN_CONCURRENCY: must be a positive integer")
		}
		cfg.Discovery.DomainConcurrency = n
	}

	if v := os.Getenv("CONSOLIDATION_POSSIBLY_SAME"); v != "" {
		f, err := parseUnitInterval(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CONSOLIDATION_POSSIBLY_SAME: %w", err)
		}
		cfg.Consolidation.PossiblySameThreshold = f
	}

	if v := os.Getenv("CONSOLIDATION_CONFIDENT"); v != "" {
		f, err := parseUnitInterval(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid CONSOLIDATION_CONFIDENT: %w", err)
		}
		cfg.Consolidation.ConfidentThreshold = f
	}

	if v := os.Getenv("CONSOLIDATION_CONSENSUS_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("invalid CONSOLIDATION_CONSENSUS_COUNT: must be a positive integer")
		}
		cfg.Consolidation.ConsensusCount = n
	}

	if v := os.Getenv("CONSOLIDATION_HALF_LIFE_DAYS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			return Config{}, fmt.Errorf("invalid CONSOLIDATION_HALF_LIFE_DAYS: must be a positive number")
		}
		cfg.Consolidation.HalfLifeDays = f
	}

	return cfg, nil
}

func parseSeconds(raw string) (time.Duration, error) {
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(seconds) * time.Second, nil
}

func parseUnitInterval(raw string) (float64, error) {
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f < 0 || f > 1 {
		return 0, fmt.Errorf("must be a number between 0 and 1")
	}
	return f, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
