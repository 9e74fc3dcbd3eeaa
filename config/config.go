package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration, loaded once at startup and
// passed into component constructors. No component reads ambient state.
type Config struct {
	Version   string                   `yaml:"version"`
	Services  map[string]ServiceConfig `yaml:"services"`
	AI        AIConfig                 `yaml:"ai"`
	Routing   RoutingConfig            `yaml:"routing,omitempty"`
	Dispatch  DispatchConfig           `yaml:"dispatch,omitempty"`
	Ingest    IngestConfig             `yaml:"ingest,omitempty"`
	Audit     AuditConfig              `yaml:"audit,omitempty"`
	Storage   StorageConfig            `yaml:"storage,omitempty"`
	Telemetry TelemetryConfig          `yaml:"telemetry,omitempty"`
}

// ServiceConfig declares one capability service for the registry
type ServiceConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Capabilities []string      `yaml:"capabilities"`
	AuthHeader   string        `yaml:"auth_header,omitempty"`
	AuthValue    string        `yaml:"auth_value,omitempty"`
	AuthValueEnv string        `yaml:"auth_value_env,omitempty"`
	Timeout      time.Duration `yaml:"timeout,omitempty"`
}

// AIConfig selects and configures the reasoning backend
type AIConfig struct {
	Backend     string        `yaml:"backend"` // bedrock, openai, gemini
	Model       string        `yaml:"model,omitempty"`
	Region      string        `yaml:"region,omitempty"`
	APIKeyEnv   string        `yaml:"api_key_env,omitempty"`
	MaxTokens   int           `yaml:"max_tokens,omitempty"`
	Temperature float32       `yaml:"temperature,omitempty"`
	Timeout     time.Duration `yaml:"timeout,omitempty"`
}

// RoutingConfig bounds what the orchestrator lets through
type RoutingConfig struct {
	MaxActions        int    `yaml:"max_actions,omitempty"`
	FanoutLimit       int    `yaml:"fanout_limit,omitempty"`
	MinTicketSeverity string `yaml:"min_ticket_severity,omitempty"`
	PolicyDir         string `yaml:"policy_dir,omitempty"`
}

// DispatchConfig tunes the dispatch client
type DispatchConfig struct {
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	MaxRetries int           `yaml:"max_retries,omitempty"`
}

// IngestConfig declares batch ingestion sources
type IngestConfig struct {
	Bucket            string        `yaml:"bucket,omitempty"`
	Region            string        `yaml:"region,omitempty"`
	UnprocessedPrefix string        `yaml:"unprocessed_prefix,omitempty"`
	ProcessedPrefix   string        `yaml:"processed_prefix,omitempty"`
	QueueURL          string        `yaml:"queue_url,omitempty"`
	PollInterval      time.Duration `yaml:"poll_interval,omitempty"`
}

// AuditConfig controls the append-only trail
type AuditConfig struct {
	Dir         string        `yaml:"dir,omitempty"`
	MaxFileSize int64         `yaml:"max_file_size,omitempty"`
	Retention   time.Duration `yaml:"retention,omitempty"`
}

// StorageConfig controls the local result store
type StorageConfig struct {
	Path string `yaml:"path,omitempty"`
}

// TelemetryConfig controls OTEL export
type TelemetryConfig struct {
	Endpoint    string `yaml:"endpoint,omitempty"`
	Environment string `yaml:"environment,omitempty"`
	Insecure    bool   `yaml:"insecure,omitempty"`
}

// Defaults applied when fields are omitted
const (
	DefaultMaxActions      = 5
	DefaultDispatchTimeout = 30 * time.Second
	DefaultMaxRetries      = 2
	DefaultAuditDir        = ".reitti/audit"
	DefaultStoragePath     = ".reitti/results.db"
)

// Load reads, parses and validates configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path is intentional user input
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Routing.MaxActions == 0 {
		c.Routing.MaxActions = DefaultMaxActions
	}
	if c.Dispatch.Timeout == 0 {
		c.Dispatch.Timeout = DefaultDispatchTimeout
	}
	if c.Dispatch.MaxRetries == 0 {
		c.Dispatch.MaxRetries = DefaultMaxRetries
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = DefaultAuditDir
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Ingest.UnprocessedPrefix == "" {
		c.Ingest.UnprocessedPrefix = "unprocessed/"
	}
	if c.Ingest.ProcessedPrefix == "" {
		c.Ingest.ProcessedPrefix = "processed/"
	}
}

// Validate ensures config has required fields
func (c *Config) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("version is required")
	}
	if len(c.Services) == 0 {
		return fmt.Errorf("at least one service is required")
	}
	for name, svc := range c.Services {
		if svc.Endpoint == "" {
			return fmt.Errorf("service %s: endpoint is required", name)
		}
		if len(svc.Capabilities) == 0 {
			return fmt.Errorf("service %s: capabilities are required", name)
		}
		if svc.AuthHeader != "" && svc.AuthValue == "" && svc.AuthValueEnv == "" {
			return fmt.Errorf("service %s: auth_header declared without a value source", name)
		}
	}
	if c.AI.Backend == "" {
		return fmt.Errorf("ai backend is required")
	}
	return nil
}

// ResolveAuth returns the auth header value for a service, reading the
// environment when the config points at a variable. Callers must never
// log the returned value.
func (s ServiceConfig) ResolveAuth() string {
	if s.AuthValue != "" {
		return s.AuthValue
	}
	if s.AuthValueEnv != "" {
		return os.Getenv(s.AuthValueEnv)
	}
	return ""
}
