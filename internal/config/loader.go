package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/voidukas/conductor/internal/domain/tier"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "conductor.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// The YAML file is optional; a missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "CONDUCTOR_PORT")
	setString(&cfg.Server.CORSOrigin, "CONDUCTOR_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "CONDUCTOR_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "CONDUCTOR_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "CONDUCTOR_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "CONDUCTOR_PG_MAX_CONN_IDLE_TIME")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.LiteLLM.URL, "LITELLM_URL")
	setString(&cfg.LiteLLM.MasterKey, "LITELLM_MASTER_KEY")
	setDuration(&cfg.LiteLLM.Timeout, "CONDUCTOR_LLM_TIMEOUT")
	setString(&cfg.Logging.Level, "CONDUCTOR_LOG_LEVEL")
	setString(&cfg.Logging.Service, "CONDUCTOR_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "CONDUCTOR_LOG_ASYNC")
	setInt(&cfg.Breaker.MaxFailures, "CONDUCTOR_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "CONDUCTOR_BREAKER_TIMEOUT")
	setBool(&cfg.Telemetry.Enabled, "CONDUCTOR_TELEMETRY_ENABLED")
	setString(&cfg.Telemetry.OTLPEndpoint, "CONDUCTOR_OTLP_ENDPOINT")
	setFloat64(&cfg.Telemetry.SampleRate, "CONDUCTOR_OTLP_SAMPLE_RATE")
	setString(&cfg.Auth.APIKeyHash, "CONDUCTOR_API_KEY_HASH")
	setString(&cfg.Orchestrator.DefaultTier, "CONDUCTOR_DEFAULT_TIER")
	setDuration(&cfg.Orchestrator.StepTimeout, "CONDUCTOR_STEP_TIMEOUT")
	setDuration(&cfg.Orchestrator.LockTTL, "CONDUCTOR_LOCK_TTL")
	setDuration(&cfg.Orchestrator.DecisionTimeout, "CONDUCTOR_DECISION_TIMEOUT")
	setInt(&cfg.Orchestrator.MaxBatchWorkers, "CONDUCTOR_MAX_BATCH_WORKERS")
	setInt(&cfg.Orchestrator.MaxWorkflows, "CONDUCTOR_MAX_WORKFLOWS")
	setDuration(&cfg.Orchestrator.AnalysisCacheTTL, "CONDUCTOR_ANALYSIS_CACHE_TTL")
	setInt(&cfg.Resources.ContextTokens, "CONDUCTOR_CONTEXT_TOKENS")
	setInt(&cfg.Resources.APIQuotaTotal, "CONDUCTOR_API_QUOTA_TOTAL")
	setInt(&cfg.Resources.APIQuotaPerSlot, "CONDUCTOR_API_QUOTA_PER_SLOT")
	setInt(&cfg.Resources.MaxOpenFiles, "CONDUCTOR_MAX_OPEN_FILES")
}

// validate checks that the merged config is usable.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server port is required")
	}
	if !tier.Valid(cfg.Orchestrator.DefaultTier) {
		return fmt.Errorf("unknown default tier %q", cfg.Orchestrator.DefaultTier)
	}
	if cfg.Resources.ContextTokens <= 0 {
		return errors.New("context_tokens must be positive")
	}
	if cfg.Resources.APIQuotaTotal <= 0 || cfg.Resources.APIQuotaPerSlot <= 0 {
		return errors.New("api quota limits must be positive")
	}
	if cfg.Resources.MaxOpenFiles <= 0 {
		return errors.New("max_open_files must be positive")
	}
	if cfg.Orchestrator.MaxBatchWorkers <= 0 {
		return errors.New("max_batch_workers must be positive")
	}
	if cfg.Orchestrator.MaxWorkflows <= 0 {
		return errors.New("max_workflows must be positive")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
