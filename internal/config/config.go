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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Forum      ForumConfig      `yaml:"forum" mapstructure:"forum"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer" mapstructure:"analyzer"`
	Scanner    ScannerConfig    `yaml:"scanner" mapstructure:"scanner"`
	Classifier ClassifierConfig `yaml:"classifier" mapstructure:"classifier"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ForumConfig holds forum API settings.
type ForumConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Token         string  `yaml:"token" mapstructure:"token"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	RateBurst     int     `yaml:"rate_burst" mapstructure:"rate_burst"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// AnalyzerConfig configures the market analysis run.
type AnalyzerConfig struct {
	MaxThreadsPerRun  int `yaml:"max_threads_per_run" mapstructure:"max_threads_per_run"`
	LeaseTTLSecs      int `yaml:"lease_ttl_secs" mapstructure:"lease_ttl_secs"`
	RescanIntervalSec int `yaml:"rescan_interval_secs" mapstructure:"rescan_interval_secs"`
	RunTimeoutSecs    int `yaml:"run_timeout_secs" mapstructure:"run_timeout_secs"`
	WindowDays        int `yaml:"window_days" mapstructure:"window_days"`
	MinValidTrades    int `yaml:"min_valid_trades" mapstructure:"min_valid_trades"`
}

// ScannerConfig configures the post scanner.
type ScannerConfig struct {
	IncrementalPostCap int `yaml:"incremental_post_cap" mapstructure:"incremental_post_cap"`
}

// ClassifierConfig configures the rule-based trade classifier.
type ClassifierConfig struct {
	PatternsPath      string  `yaml:"patterns_path" mapstructure:"patterns_path"`
	MinConfidence     float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
	AIFallbackEnabled bool    `yaml:"ai_fallback_enabled" mapstructure:"ai_fallback_enabled"`
}

// RefreshConfig configures the narrative refresh thresholds.
type RefreshConfig struct {
	ItemThreshold    float64 `yaml:"item_threshold" mapstructure:"item_threshold"`
	AccountThreshold float64 `yaml:"account_threshold" mapstructure:"account_threshold"`
}

// ServerConfig configures the job server.
type ServerConfig struct {
	Port     int    `yaml:"port" mapstructure:"port"`
	Token    string `yaml:"token" mapstructure:"token"`
	Schedule string `yaml:"schedule" mapstructure:"schedule"`
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
	v.SetEnvPrefix("MARKETPULSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "marketpulse.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.schedule", "")
	v.SetDefault("forum.rate_per_second", 5.0)
	v.SetDefault("forum.rate_burst", 5)
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("analyzer.max_threads_per_run", 10)
	v.SetDefault("analyzer.lease_ttl_secs", 300)
	v.SetDefault("analyzer.rescan_interval_secs", 3600)
	v.SetDefault("analyzer.run_timeout_secs", 600)
	v.SetDefault("analyzer.window_days", 30)
	v.SetDefault("analyzer.min_valid_trades", 10)
	v.SetDefault("scanner.incremental_post_cap", 100)
	v.SetDefault("classifier.min_confidence", 0.7)
	v.SetDefault("classifier.ai_fallback_enabled", true)
	v.SetDefault("refresh.item_threshold", 0.10)
	v.SetDefault("refresh.account_threshold", 0.20)

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

	return &cfg, nil
}

// Validate checks that the configuration is usable for the given mode
// ("run" or "serve"). It accumulates every problem rather than stopping at
// the first.
func (c *Config) Validate(mode string) error {
	var problems []string

	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	switch mode {
	case "run":
		check(c.Forum.BaseURL != "", "forum.base_url is required")
		check(c.Forum.Token != "", "forum.token is required")
	case "serve":
		check(c.Forum.BaseURL != "", "forum.base_url is required")
		check(c.Forum.Token != "", "forum.token is required")
		check(c.Server.Port > 0, "server.port must be > 0")
		check(c.Server.Token != "", "server.token is required")
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		check(c.Store.DatabaseURL != "", "store.database_url is required for the postgres driver")
	case "sqlite":
		check(c.Store.SQLitePath != "", "store.sqlite_path is required for the sqlite driver")
	default:
		problems = append(problems, "store.driver must be postgres or sqlite")
	}

	check(c.Analyzer.MaxThreadsPerRun >= 1 && c.Analyzer.MaxThreadsPerRun <= 50,
		"analyzer.max_threads_per_run must be between 1 and 50")
	check(c.Analyzer.WindowDays > 0, "analyzer.window_days must be > 0")
	check(c.Analyzer.MinValidTrades > 0, "analyzer.min_valid_trades must be > 0")
	check(c.Analyzer.LeaseTTLSecs > 0, "analyzer.lease_ttl_secs must be > 0")
	check(c.Scanner.IncrementalPostCap > 0, "scanner.incremental_post_cap must be > 0")
	check(c.Classifier.MinConfidence >= 0 && c.Classifier.MinConfidence <= 1,
		"classifier.min_confidence must be in [0, 1]")
	check(c.Refresh.ItemThreshold >= 0, "refresh.item_threshold must be >= 0")
	check(c.Refresh.AccountThreshold >= 0, "refresh.account_threshold must be >= 0")

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
