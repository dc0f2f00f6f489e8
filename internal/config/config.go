// Package config provides hierarchical configuration loading for Conductor.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the conductor core service.
type Config struct {
	Server       Server       `yaml:"server"`
	Postgres     Postgres     `yaml:"postgres"`
	NATS         NATS         `yaml:"nats"`
	LiteLLM      LiteLLM      `yaml:"litellm"`
	Logging      Logging      `yaml:"logging"`
	Breaker      Breaker      `yaml:"breaker"`
	Telemetry    Telemetry    `yaml:"telemetry"`
	Auth         Auth         `yaml:"auth"`
	Orchestrator Orchestrator `yaml:"orchestrator"`
	Resources    Resources    `yaml:"resources"`
}

// Server holds HTTP server configuration.
type Server struct {
	Port       string `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
}

// Postgres holds the audit archive connection configuration.
// An empty DSN disables the archive; audit entries then stay local.
type Postgres struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	MinConns        int32         `yaml:"min_conns"`
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`
}

// NATS holds the lifecycle event relay configuration.
// An empty URL disables the relay.
type NATS struct {
	URL string `yaml:"url"`
}

// LiteLLM holds the model-invocation proxy configuration.
type LiteLLM struct {
	URL       string        `yaml:"url"`
	MasterKey string        `yaml:"master_key"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Breaker holds circuit breaker configuration for the invoker.
type Breaker struct {
	MaxFailures int           `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Telemetry holds OpenTelemetry exporter configuration.
type Telemetry struct {
	Enabled      bool    `yaml:"enabled"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// Auth holds API authentication configuration. An empty hash disables auth.
type Auth struct {
	APIKeyHash string `yaml:"api_key_hash"` // bcrypt hash of the accepted API key
}

// Orchestrator holds coordinator and protocol tunables.
type Orchestrator struct {
	DefaultTier      string        `yaml:"default_tier"`       // free | pro | team | enterprise
	StepTimeout      time.Duration `yaml:"step_timeout"`       // per model invocation
	LockTTL          time.Duration `yaml:"lock_ttl"`           // resource lock expiry
	DecisionTimeout  time.Duration `yaml:"decision_timeout"`   // quorum vote window
	MaxBatchWorkers  int           `yaml:"max_batch_workers"`  // bound per parallel batch
	MaxWorkflows     int           `yaml:"max_workflows"`      // retention cap before eviction
	AnalysisCacheTTL time.Duration `yaml:"analysis_cache_ttl"` // decomposition cache entries
}

// Resources holds the shared capacity pools.
type Resources struct {
	ContextTokens   int `yaml:"context_tokens"`     // total context-memory pool
	APIQuotaTotal   int `yaml:"api_quota_total"`    // global hourly call budget
	APIQuotaPerSlot int `yaml:"api_quota_per_slot"` // per-agent hourly call budget
	MaxOpenFiles    int `yaml:"max_open_files"`     // global concurrent file handle cap
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port:       "8080",
			CORSOrigin: "http://localhost:3000",
		},
		Postgres: Postgres{
			MaxConns:        10,
			MinConns:        1,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 10 * time.Minute,
		},
		LiteLLM: LiteLLM{
			URL:     "http://localhost:4000",
			Timeout: 120 * time.Second,
		},
		Logging: Logging{
			Level:   "info",
			Service: "conductor-core",
		},
		Breaker: Breaker{
			MaxFailures: 5,
			Timeout:     30 * time.Second,
		},
		Telemetry: Telemetry{
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Orchestrator: Orchestrator{
			DefaultTier:      "free",
			StepTimeout:      2 * time.Minute,
			LockTTL:          5 * time.Minute,
			DecisionTimeout:  30 * time.Second,
			MaxBatchWorkers:  4,
			MaxWorkflows:     256,
			AnalysisCacheTTL: time.Hour,
		},
		Resources: Resources{
			ContextTokens:   500_000,
			APIQuotaTotal:   1_000,
			APIQuotaPerSlot: 100,
			MaxOpenFiles:    50,
		},
	}
}
