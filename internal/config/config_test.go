package config

import (
	"os"
	"testing"
	"time"

	"log/slog"
)

func TestLoadDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != defaultPort {
		t.Errorf("expected default port %q, got %q", defaultPort, cfg.Server.Port)
	}
	if cfg.Logging.Level != slog.LevelInfo {
		t.Errorf("expected default log level %v, got %v", slog.LevelInfo, cfg.Logging.Level)
	}
	if cfg.Logging.Format != defaultLogFormat {
		t.Errorf("expected default log format %q, got %q", defaultLogFormat, cfg.Logging.Format)
	}
	if cfg.Consolidation.PossiblySameThreshold != defaultPossiblySame {
		t.Errorf("expected possibly-same threshold %v, got %v", defaultPossiblySame, cfg.Consolidation.PossiblySameThreshold)
	}
	if cfg.Consolidation.ConfidentThreshold != defaultConfident {
		t.Errorf("expected confident threshold %v, got %v", defaultConfident, cfg.Consolidation.ConfidentThreshold)
	}
	if cfg.Consolidation.ConsensusCount != defaultConsensusCount {
		t.Errorf("expected consensus count %d, got %d", defaultConsensusCount, cfg.Consolidation.ConsensusCount)
	}
	if cfg.Consolidation.HalfLifeDays != defaultHalfLifeDays {
		t.Errorf("expected half-life %v, got %v", defaultHalfLifeDays, cfg.Consolidation.HalfLifeDays)
	}
	if cfg.Discovery.StageTimeout != defaultStageTimeout {
		t.Errorf("expected stage timeout %v, got %v", defaultStageTimeout, cfg.Discovery.StageTimeout)
	}
	if cfg.Discovery.DomainConcurrency != defaultDomainConcurrency {
		t.Errorf("expected domain concurrency %d, got %d", defaultDomainConcurrency, cfg.Discovery.DomainConcurrency)
	}
}

func TestLoadWithOverrides(t *testing.T) {
	clearConfigEnv(t)

	overrides := map[string]string{
		"SERVER_PORT":                      "9090",
		"SERVER_READ_TIMEOUT_SECONDS":      "30",
		"LOG_LEVEL":                        "debug",
		"LOG_FORMAT":                       "text",
		"DISCOVERY_TIMEOUT_SECONDS":        "120",
		"DOMAIN_CONCURRENCY":               "4",
		"CONSOLIDATION_POSSIBLY_SAME":      "0.5",
		"CONSOLIDATION_CONFIDENT":          "0.8",
		"CONSOLIDATION_CONSENSUS_COUNT":    "5",
		"CONSOLIDATION_HALF_LIFE_DAYS":     "14",
	}
	for key, value := range overrides {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected overridden port 9090, got %q", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected read timeout %v, got %v", 30*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Logging.Level != slog.LevelDebug {
		t.Errorf("expected log level %v, got %v", slog.LevelDebug, cfg.Logging.Level)
	}
	if cfg.Discovery.StageTimeout != 2*time.Minute {
		t.Errorf("expected stage timeout %v, got %v", 2*time.Minute, cfg.Discovery.StageTimeout)
	}
	if cfg.Discovery.DomainConcurrency != 4 {
		t.Errorf("expected domain concurrency 4, got %d", cfg.Discovery.DomainConcurrency)
	}
	if cfg.Consolidation.PossiblySameThreshold != 0.5 {
		t.Errorf("expected possibly-same 0.5, got %v", cfg.Consolidation.PossiblySameThreshold)
	}
	if cfg.Consolidation.ConfidentThreshold != 0.8 {
		t.Errorf("expected confident 0.8, got %v", cfg.Consolidation.ConfidentThreshold)
	}
	if cfg.Consolidation.ConsensusCount != 5 {
		t.Errorf("expected consensus count 5, got %d", cfg.Consolidation.ConsensusCount)
	}
	if cfg.Consolidation.HalfLifeDays != 14 {
		t.Errorf("expected half-life 14, got %v", cfg.Consolidation.HalfLifeDays)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad log format", "LOG_FORMAT", "xml"},
		{"bad log level", "LOG_LEVEL", "verbose"},
		{"negative timeout", "SERVER_READ_TIMEOUT_SECONDS", "-1"},
		{"threshold above one", "CONSOLIDATION_POSSIBLY_SAME", "1.5"},
		{"zero consensus", "CONSOLIDATION_CONSENSUS_COUNT", "0"},
		{"negative half life", "CONSOLIDATION_HALF_LIFE_DAYS", "-3"},
		{"zero domain concurrency", "DOMAIN_CONCURRENCY", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func clearConfigEnv(t *testing.T) {
	t.Helper()

	keys := []string{
		"PORT", "SERVER_PORT",
		"SERVER_READ_TIMEOUT_SECONDS", "SERVER_WRITE_TIMEOUT_SECONDS", "SERVER_SHUTDOWN_TIMEOUT_SECONDS",
		"LOG_LEVEL", "LOG_FORMAT",
		"DATABASE_URL",
		"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_EMBEDDING_MODEL",
		"DISCOVERY_TIMEOUT_SECONDS", "DOMAIN_CONCURRENCY",
		"CONSOLIDATION_POSSIBLY_SAME", "CONSOLIDATION_CONFIDENT",
		"CONSOLIDATION_CONSENSUS_COUNT", "CONSOLIDATION_HALF_LIFE_DAYS",
		"JWT_SECRET",
	}
	for _, key := range keys {
		if v, ok := os.LookupEnv(key); ok {
			t.Setenv(key, v)
			os.Unsetenv(key)
		}
	}
}
