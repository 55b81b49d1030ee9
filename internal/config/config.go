// File: internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/codequal-cli/api/schemas"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Environment() string
	Logger() LoggerConfig
	Database() DatabaseConfig
	Redis() RedisConfig
	Provider() ProviderConfig
	LLM() LLMConfig
	Research() ResearchConfig
	Enrichment() EnrichmentConfig
	Alerting() AlertingConfig
	Scoring() ScoringConfig
	Scheduler() SchedulerConfig
	Server() ServerConfig
	Report() ReportConfig
	Telemetry() TelemetryConfig
}

// Config holds the entire application configuration.
type Config struct {
	EnvironmentName string           `mapstructure:"environment" yaml:"environment"`
	LoggerCfg       LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg     DatabaseConfig   `mapstructure:"database" yaml:"database"`
	RedisCfg        RedisConfig      `mapstructure:"redis" yaml:"redis"`
	ProviderCfg     ProviderConfig   `mapstructure:"provider" yaml:"provider"`
	LLMCfg          LLMConfig        `mapstructure:"llm" yaml:"llm"`
	ResearchCfg     ResearchConfig   `mapstructure:"research" yaml:"research"`
	EnrichmentCfg   EnrichmentConfig `mapstructure:"enrichment" yaml:"enrichment"`
	AlertingCfg     AlertingConfig   `mapstructure:"alerting" yaml:"alerting"`
	ScoringCfg      ScoringConfig    `mapstructure:"scoring" yaml:"scoring"`
	SchedulerCfg    SchedulerConfig  `mapstructure:"scheduler" yaml:"scheduler"`
	ServerCfg       ServerConfig     `mapstructure:"server" yaml:"server"`
	ReportCfg       ReportConfig     `mapstructure:"report" yaml:"report"`
	TelemetryCfg    TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
}

func (c *Config) Environment() string          { return c.EnvironmentName }
func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Redis() RedisConfig           { return c.RedisCfg }
func (c *Config) Provider() ProviderConfig     { return c.ProviderCfg }
func (c *Config) LLM() LLMConfig               { return c.LLMCfg }
func (c *Config) Research() ResearchConfig     { return c.ResearchCfg }
func (c *Config) Enrichment() EnrichmentConfig { return c.EnrichmentCfg }
func (c *Config) Alerting() AlertingConfig     { return c.AlertingCfg }
func (c *Config) Scoring() ScoringConfig       { return c.ScoringCfg }
func (c *Config) Scheduler() SchedulerConfig   { return c.SchedulerCfg }
func (c *Config) Server() ServerConfig         { return c.ServerCfg }
func (c *Config) Report() ReportConfig         { return c.ReportCfg }
func (c *Config) Telemetry() TelemetryConfig   { return c.TelemetryCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds the database connection details.
type DatabaseConfig struct {
	Driver         string        `mapstructure:"driver" yaml:"driver"`
	URL            string        `mapstructure:"url" yaml:"url"`
	SQLitePath     string        `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// RedisConfig configures the last-good-config cache.
type RedisConfig struct {
	Enabled   bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr      string        `mapstructure:"addr" yaml:"addr"`
	Password  string        `mapstructure:"password" yaml:"password"`
	DB        int           `mapstructure:"db" yaml:"db"`
	TTL       time.Duration `mapstructure:"ttl" yaml:"ttl"`
	KeyPrefix string        `mapstructure:"key_prefix" yaml:"key_prefix"`
}

// Analysis provider types.
const (
	ProviderTypeHTTP    = "http"
	ProviderTypeFixture = "fixture"
)

// ProviderConfig configures the analysis provider.
type ProviderConfig struct {
	Type       string        `mapstructure:"type" yaml:"type"`
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	APIKey     string        `mapstructure:"api_key" yaml:"api_key"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst      int           `mapstructure:"burst" yaml:"burst"`
	MaxRetries uint64        `mapstructure:"max_retries" yaml:"max_retries"`
	FixtureDir string        `mapstructure:"fixture_dir" yaml:"fixture_dir"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderOpenAI     LLMProvider = "openai"
	ProviderOpenRouter LLMProvider = "openrouter"
	ProviderAnthropic  LLMProvider = "anthropic"
	ProviderGemini     LLMProvider = "gemini"
)

// ModelSpec names a model at a provider.
type ModelSpec struct {
	Provider string `mapstructure:"provider" yaml:"provider"`
	Model    string `mapstructure:"model" yaml:"model"`
}

// Ref converts the spec into the shared ModelRef.
func (m ModelSpec) Ref() schemas.ModelRef {
	return schemas.ModelRef{Provider: m.Provider, Model: m.Model}
}

// LLMConfig configures model selection and provider credentials.
type LLMConfig struct {
	Primary   ModelSpec                    `mapstructure:"primary" yaml:"primary"`
	Fallback  ModelSpec                    `mapstructure:"fallback" yaml:"fallback"`
	Providers map[string]LLMProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// LLMProviderConfig defines credentials and limits for a single provider.
type LLMProviderConfig struct {
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// Research types.
const (
	ResearchTypeLLM     = "llm"
	ResearchTypeCatalog = "catalog"
)

// ResearchConfig selects the model researcher.
type ResearchConfig struct {
	Type    string        `mapstructure:"type" yaml:"type"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Location enhancer types.
const (
	LocationTypeGitHub = "github"
	LocationTypeGit    = "git"
	LocationTypeNone   = "none"
)

// Educator types.
const (
	EducationTypeWeb     = "web"
	EducationTypeCatalog = "catalog"
	EducationTypeNone    = "none"
)

// EnrichmentConfig configures the enrichment stage.
type EnrichmentConfig struct {
	TaskTimeout    time.Duration   `mapstructure:"task_timeout" yaml:"task_timeout"`
	MaxConcurrency int             `mapstructure:"max_concurrency" yaml:"max_concurrency"`
	Location       LocationConfig  `mapstructure:"location" yaml:"location"`
	Education      EducationConfig `mapstructure:"education" yaml:"education"`
}

// LocationConfig configures location enhancement.
type LocationConfig struct {
	Type          string `mapstructure:"type" yaml:"type"`
	GitHubToken   string `mapstructure:"github_token" yaml:"github_token"`
	GitHubBaseURL string `mapstructure:"github_base_url" yaml:"github_base_url"`
	RepoPath      string `mapstructure:"repo_path" yaml:"repo_path"`
	ContextLines  int    `mapstructure:"context_lines" yaml:"context_lines"`
}

// EducationConfig configures the educator.
type EducationConfig struct {
	Type           string        `mapstructure:"type" yaml:"type"`
	SearchURL      string        `mapstructure:"search_url" yaml:"search_url"`
	ResultSelector string        `mapstructure:"result_selector" yaml:"result_selector"`
	MaxResults     int           `mapstructure:"max_results" yaml:"max_results"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// AlertingConfig configures monitoring alerts.
type AlertingConfig struct {
	Slack SlackConfig `mapstructure:"slack" yaml:"slack"`
}

// SlackConfig configures the Slack alerter.
type SlackConfig struct {
	Enabled    bool   `mapstructure:"enabled" yaml:"enabled"`
	WebhookURL string `mapstructure:"webhook_url" yaml:"webhook_url"`
	Channel    string `mapstructure:"channel" yaml:"channel"`
	Username   string `mapstructure:"username" yaml:"username"`
}

// ScoringConfig configures the quality score.
type ScoringConfig struct {
	BaseScore float64 `mapstructure:"base_score" yaml:"base_score"`
}

// SchedulerConfig configures the staleness sweep.
type SchedulerConfig struct {
	Schedule string `mapstructure:"schedule" yaml:"schedule"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" yaml:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	// APIKey, when set, is required on every /v1 request.
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
}

// ReportConfig configures report rendering.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
}

// TelemetryConfig configures OpenTelemetry trace export. Tracing is off when
// Endpoint is empty.
type TelemetryConfig struct {
	Endpoint    string `mapstructure:"endpoint" yaml:"endpoint"`
	Headers     string `mapstructure:"headers" yaml:"headers"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
}

// Enabled reports whether traces should be exported.
func (t TelemetryConfig) Enabled() bool { return t.Endpoint != "" }

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "codequal")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", "~/.codequal/codequal.db")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.connect_timeout", "10s")

	// -- Redis --
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("redis.key_prefix", "codequal:config:")

	// -- Provider --
	v.SetDefault("provider.type", ProviderTypeFixture)
	v.SetDefault("provider.timeout", "5m")
	v.SetDefault("provider.rate_limit", 2.0)
	v.SetDefault("provider.burst", 2)
	v.SetDefault("provider.max_retries", 3)
	v.SetDefault("provider.fixture_dir", "fixtures")

	// -- LLM --
	v.SetDefault("llm.primary.provider", string(ProviderOpenRouter))
	v.SetDefault("llm.primary.model", "openai/gpt-4o-mini")
	v.SetDefault("llm.fallback.provider", string(ProviderAnthropic))
	v.SetDefault("llm.fallback.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.providers.openrouter.endpoint", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.providers.openrouter.api_timeout", "60s")
	v.SetDefault("llm.providers.openrouter.max_tokens", 2048)
	v.SetDefault("llm.providers.anthropic.api_timeout", "60s")
	v.SetDefault("llm.providers.anthropic.max_tokens", 2048)

	// -- Research --
	v.SetDefault("research.type", ResearchTypeCatalog)
	v.SetDefault("research.timeout", "90s")

	// -- Enrichment --
	v.SetDefault("enrichment.task_timeout", "30s")
	v.SetDefault("enrichment.max_concurrency", 3)
	v.SetDefault("enrichment.location.type", LocationTypeNone)
	v.SetDefault("enrichment.location.context_lines", 2)
	v.SetDefault("enrichment.education.type", EducationTypeCatalog)
	v.SetDefault("enrichment.education.result_selector", "a.result-link")
	v.SetDefault("enrichment.education.max_results", 3)
	v.SetDefault("enrichment.education.timeout", "10s")

	// -- Alerting --
	v.SetDefault("alerting.slack.enabled", false)
	v.SetDefault("alerting.slack.username", "codequal")

	// -- Scoring --
	v.SetDefault("scoring.base_score", 85.0)

	// -- Scheduler --
	v.SetDefault("scheduler.schedule", "0 6 * * *")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")

	// -- Report --
	v.SetDefault("report.format", "json")

	// -- Telemetry --
	v.SetDefault("telemetry.service_name", "codequal")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Secrets are usually supplied through the environment.
	_ = v.BindEnv("database.url", "CODEQUAL_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("provider.api_key", "CODEQUAL_PROVIDER_API_KEY")
	_ = v.BindEnv("llm.providers.openrouter.api_key", "OPENROUTER_API_KEY")
	_ = v.BindEnv("llm.providers.openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("llm.providers.anthropic.api_key", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("llm.providers.gemini.api_key", "GEMINI_API_KEY")
	_ = v.BindEnv("enrichment.location.github_token", "GITHUB_TOKEN")
	_ = v.BindEnv("alerting.slack.webhook_url", "CODEQUAL_SLACK_WEBHOOK_URL")
	_ = v.BindEnv("server.api_key", "CODEQUAL_API_KEY")
	_ = v.BindEnv("telemetry.endpoint", "CODEQUAL_OTLP_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	switch c.DatabaseCfg.Driver {
	case DriverPostgres:
		if c.DatabaseCfg.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case DriverSQLite:
		if c.DatabaseCfg.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseCfg.Driver)
	}

	switch c.ProviderCfg.Type {
	case ProviderTypeHTTP:
		if c.ProviderCfg.Endpoint == "" {
			return fmt.Errorf("provider.endpoint is required for the http provider")
		}
	case ProviderTypeFixture:
	default:
		return fmt.Errorf("unsupported provider.type %q", c.ProviderCfg.Type)
	}

	if c.EnrichmentCfg.TaskTimeout <= 0 {
		return fmt.Errorf("enrichment.task_timeout must be a positive duration")
	}
	if c.EnrichmentCfg.MaxConcurrency <= 0 {
		return fmt.Errorf("enrichment.max_concurrency must be a positive integer")
	}
	if err := c.EnrichmentCfg.Location.Validate(); err != nil {
		return fmt.Errorf("enrichment.location configuration invalid: %w", err)
	}
	if c.ScoringCfg.BaseScore < 0 || c.ScoringCfg.BaseScore > 100 {
		return fmt.Errorf("scoring.base_score must be between 0 and 100")
	}
	if c.AlertingCfg.Slack.Enabled && c.AlertingCfg.Slack.WebhookURL == "" {
		return fmt.Errorf("alerting.slack.webhook_url is required when slack alerts are enabled")
	}
	if c.RedisCfg.Enabled && c.RedisCfg.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	switch strings.ToLower(c.ReportCfg.Format) {
	case "json", "sarif":
	default:
		return fmt.Errorf("unsupported report.format %q", c.ReportCfg.Format)
	}
	return nil
}

// Validate checks the location enhancer configuration.
func (l *LocationConfig) Validate() error {
	switch l.Type {
	case LocationTypeNone, LocationTypeGitHub:
		return nil
	case LocationTypeGit:
		if l.RepoPath == "" {
			return fmt.Errorf("repo_path is required for the git location enhancer")
		}
		return nil
	default:
		return fmt.Errorf("unsupported type %q", l.Type)
	}
}
