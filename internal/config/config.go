package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig               `yaml:"store" mapstructure:"store"`
	Providers  map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Retry      RetryConfig               `yaml:"retry" mapstructure:"retry"`
	Webhook    WebhookConfig             `yaml:"webhook" mapstructure:"webhook"`
	Temporal   TemporalConfig            `yaml:"temporal" mapstructure:"temporal"`
	Server     ServerConfig              `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig          `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig                 `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ProviderConfig holds per-provider connection settings. Base URL and token
// come from deployment config; path templates and parsing live in code.
type ProviderConfig struct {
	BaseURL            string `yaml:"base_url" mapstructure:"base_url"`
	Token              string `yaml:"token" mapstructure:"token"`
	ConnectTimeoutSecs int    `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	ReadTimeoutSecs    int    `yaml:"read_timeout_secs" mapstructure:"read_timeout_secs"`
	// DocumentPolicy overrides the provider's built-in document failure
	// policy ("all_or_nothing" or "best_effort"). Empty keeps the default.
	DocumentPolicy string `yaml:"document_policy" mapstructure:"document_policy"`
	// MinDocumentBytes rejects downloads smaller than this. 0 keeps the
	// provider default.
	MinDocumentBytes int `yaml:"min_document_bytes" mapstructure:"min_document_bytes"`
	// MinDocuments is the best-effort success floor: the stage fails when
	// fewer documents than this were retrieved from a non-empty reference
	// set. Defaults to 1.
	MinDocuments int `yaml:"min_documents" mapstructure:"min_documents"`
	// FTP credentials for the legacy archive provider.
	FTPUser     string `yaml:"ftp_user" mapstructure:"ftp_user"`
	FTPPassword string `yaml:"ftp_password" mapstructure:"ftp_password"`
}

// ConnectTimeout returns the configured connect timeout or the given default.
func (p ProviderConfig) ConnectTimeout(def time.Duration) time.Duration {
	if p.ConnectTimeoutSecs > 0 {
		return time.Duration(p.ConnectTimeoutSecs) * time.Second
	}
	return def
}

// ReadTimeout returns the configured read timeout or the given default.
func (p ProviderConfig) ReadTimeout(def time.Duration) time.Duration {
	if p.ReadTimeoutSecs > 0 {
		return time.Duration(p.ReadTimeoutSecs) * time.Second
	}
	return def
}

// RetryConfig tunes job-level retry of retryable pipeline failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
}

// IntegratorConfig identifies one webhook receiver.
type IntegratorConfig struct {
	URL    string `yaml:"url" mapstructure:"url"`
	Secret string `yaml:"secret" mapstructure:"secret"`
}

// WebhookConfig configures outbound application-completed notifications.
type WebhookConfig struct {
	Integrators    map[string]IntegratorConfig `yaml:"integrators" mapstructure:"integrators"`
	TimeoutSecs    int                         `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetrySchedule  string                      `yaml:"retry_schedule" mapstructure:"retry_schedule"` // cron spec
	MaxAutoRetries int                         `yaml:"max_auto_retries" mapstructure:"max_auto_retries"`
}

// TemporalConfig configures the background worker.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
}

// ServerConfig configures the status HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures the error-tracking webhook for job failures.
type MonitoringConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PREQUAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "prequal.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("webhook.timeout_secs", 15)
	v.SetDefault("webhook.retry_schedule", "*/10 * * * *")
	v.SetDefault("webhook.max_auto_retries", 5)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "prequal-fetch")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}

	return &cfg, nil
}

// Provider returns the settings block for a provider, zero when absent.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[name]
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
