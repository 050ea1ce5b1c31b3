package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Scoring ScoringConfig `yaml:"scoring" mapstructure:"scoring"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres or sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"` // sqlite file path
}

// SourcesConfig configures the registry adapters.
type SourcesConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"` // Socrata open-data host
	AppToken    string  `yaml:"app_token" mapstructure:"app_token"`
	RegistryURL string  `yaml:"registry_url" mapstructure:"registry_url"` // business-registry lookup
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"` // per-adapter, shared across workers
	Burst       int     `yaml:"burst" mapstructure:"burst"`

	Datasets DatasetIDs `yaml:"datasets" mapstructure:"datasets"`
}

// DatasetIDs holds the Socrata dataset identifiers per registry.
type DatasetIDs struct {
	Pluto        string `yaml:"pluto" mapstructure:"pluto"`
	RPAD         string `yaml:"rpad" mapstructure:"rpad"`
	HPD          string `yaml:"hpd" mapstructure:"hpd"`
	ACRISMaster  string `yaml:"acris_master" mapstructure:"acris_master"`
	ACRISLegals  string `yaml:"acris_legals" mapstructure:"acris_legals"`
	ACRISParties string `yaml:"acris_parties" mapstructure:"acris_parties"`
	ECB          string `yaml:"ecb" mapstructure:"ecb"`
	DOB          string `yaml:"dob" mapstructure:"dob"`
}

// EnrichConfig configures the batch orchestrator.
type EnrichConfig struct {
	BatchSize      int         `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency    int         `yaml:"concurrency" mapstructure:"concurrency"`
	StalenessDays  int         `yaml:"staleness_days" mapstructure:"staleness_days"`
	ErrorRetryDays int         `yaml:"error_retry_days" mapstructure:"error_retry_days"`
	Retry          RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// RetryConfig configures the per-call retry schedule for adapter fetches.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// ScoringConfig configures the scoring engine.
type ScoringConfig struct {
	// PolicyPath optionally points at a YAML policy table overriding the
	// built-in point values, job-type weights, and mobile area codes.
	PolicyPath string `yaml:"policy_path" mapstructure:"policy_path"`
}

// ServerConfig configures the dashboard read API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from config.yaml and the environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PARCEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "parcel.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("sources.base_url", "https://data.cityofnewyork.us")
	v.SetDefault("sources.timeout_secs", 30)
	v.SetDefault("sources.rate_per_sec", 2)
	v.SetDefault("sources.burst", 1)
	v.SetDefault("sources.datasets.pluto", "64uk-42ks")
	v.SetDefault("sources.datasets.rpad", "8y4t-faws")
	v.SetDefault("sources.datasets.hpd", "wvxf-dwi5")
	v.SetDefault("sources.datasets.acris_master", "bnx9-e6tj")
	v.SetDefault("sources.datasets.acris_legals", "8h5j-fqxa")
	v.SetDefault("sources.datasets.acris_parties", "636b-3b5g")
	v.SetDefault("sources.datasets.ecb", "6bgk-3dad")
	v.SetDefault("sources.datasets.dob", "3h2n-5cm9")

	v.SetDefault("enrich.batch_size", 100)
	v.SetDefault("enrich.concurrency", 5)
	v.SetDefault("enrich.staleness_days", 30)
	v.SetDefault("enrich.error_retry_days", 3)
	v.SetDefault("enrich.retry.max_attempts", 3)
	v.SetDefault("enrich.retry.initial_backoff_ms", 500)
	v.SetDefault("enrich.retry.max_backoff_ms", 15000)
	v.SetDefault("enrich.retry.multiplier", 2.0)
	v.SetDefault("enrich.retry.jitter_fraction", 0.25)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
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
