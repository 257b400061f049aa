// Package config loads skop settings from file and environment and sets up
// the global logger.
package config

import (
	"errors"
	"math"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. SKOP_LOG_LEVEL.
const EnvPrefix = "SKOP"

// Config holds the full application configuration.
type Config struct {
	DataDir      string        `yaml:"data_dir" mapstructure:"data_dir"`
	RegistryPath string        `yaml:"registry_path" mapstructure:"registry_path"`
	Log          LogConfig     `yaml:"log" mapstructure:"log"`
	Store        StoreConfig   `yaml:"store" mapstructure:"store"`
	Capture      CaptureConfig `yaml:"capture" mapstructure:"capture"`
	Replay       ReplayConfig  `yaml:"replay" mapstructure:"replay"`
}

// LogConfig configures the global zap logger.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // "console" or "json"
}

// StoreConfig configures investigation files.
type StoreConfig struct {
	BusyTimeoutMS int    `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
	Synchronous   string `yaml:"synchronous" mapstructure:"synchronous"`
}

// CaptureConfig configures capture sessions.
type CaptureConfig struct {
	RestoreLines int `yaml:"restore_lines" mapstructure:"restore_lines"`
}

// ReplayConfig configures playback.
type ReplayConfig struct {
	Rate     float64 `yaml:"rate" mapstructure:"rate"`
	PageSize int     `yaml:"page_size" mapstructure:"page_size"`
}

// Load reads configuration from file and environment. When configFile is
// empty, config.yaml is searched for in the config directory and then in
// the working directory; a missing file is not an error.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		if dir, err := DefaultConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	dataDir, err := DefaultDataDir()
	if err != nil {
		return nil, eris.Wrap(err, "config: resolve data directory")
	}
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("registry_path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("store.busy_timeout_ms", 5000)
	v.SetDefault("store.synchronous", "FULL")
	v.SetDefault("capture.restore_lines", 1000)
	v.SetDefault("replay.rate", 1.0)
	v.SetDefault("replay.page_size", 512)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = filepath.Join(cfg.DataDir, "registry.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that viper cannot express.
func (c *Config) Validate() error {
	switch {
	case c.DataDir == "":
		return eris.New("config: data_dir is empty")
	case c.Store.BusyTimeoutMS < 0:
		return eris.Errorf("config: store.busy_timeout_ms must be >= 0, got %d", c.Store.BusyTimeoutMS)
	case c.Capture.RestoreLines < 0:
		return eris.Errorf("config: capture.restore_lines must be >= 0, got %d", c.Capture.RestoreLines)
	case !(c.Replay.Rate > 0) || math.IsInf(c.Replay.Rate, 0):
		return eris.Errorf("config: replay.rate must be a positive number, got %v", c.Replay.Rate)
	case c.Replay.PageSize <= 0:
		return eris.Errorf("config: replay.page_size must be > 0, got %d", c.Replay.PageSize)
	}
	switch strings.ToUpper(c.Store.Synchronous) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		return eris.Errorf("config: store.synchronous must be OFF, NORMAL, FULL or EXTRA, got %q", c.Store.Synchronous)
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
