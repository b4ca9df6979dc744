// Package config loads the server's configuration from CLI flags,
// environment variables and a YAML file, in precedence order: CLI flag >
// environment variable (FILED_ prefix) > config file > built-in default.
//
// The listen port is deliberately not part of this Config; it is read by
// ReadPort from port.info, a standalone collaborator outside viper's reach
// (see port.go).
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gharra/filed/internal/bytesize"
)

// Config is the server's static configuration, everything except the
// listen port.
type Config struct {
	Logging         LoggingConfig     `mapstructure:"logging" yaml:"logging"`
	ShutdownTimeout time.Duration     `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DataDir         string            `mapstructure:"data_dir" yaml:"data_dir"`
	Storage         StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Metrics         MetricsConfig     `mapstructure:"metrics" yaml:"metrics"`
	MaxFragmentSize bytesize.ByteSize `mapstructure:"max_fragment_size" yaml:"max_fragment_size"`
}

// LoggingConfig controls logging behavior. Field names match
// internal/logger.Config exactly so a loaded Config can be passed straight
// through to logger.Init.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// StorageConfig selects and configures a persistent-state backend.
type StorageConfig struct {
	// Backend is one of "memory", "badger", "sqlite", "postgres".
	Backend  string         `mapstructure:"backend" yaml:"backend"`
	Badger   BadgerConfig   `mapstructure:"badger" yaml:"badger"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite" yaml:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres" yaml:"postgres"`
}

// BadgerConfig configures the badger backend.
type BadgerConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// SQLiteConfig configures the sqlite backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// MetricsConfig configures the Prometheus/healthz HTTP server.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Load merges flags, environment variables, the config file at configPath
// (if non-empty and present) and defaults into a validated Config.
//
// flags may be nil; when non-nil its currently-changed flags take
// precedence over everything else, matching cobra's "flag beats env beats
// file beats default" convention.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	cfg := defaultConfig()
	registerDefaults(v, cfg)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("FILED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("filed")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("config: read file: %w", err)
	}
	return true, nil
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.ParseByteSize(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

func validate(cfg *Config) error {
	switch strings.ToUpper(cfg.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		return fmt.Errorf("logging.level must be one of DEBUG, INFO, WARN, ERROR, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown_timeout must be positive")
	}
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	switch cfg.Storage.Backend {
	case "memory", "badger", "sqlite", "postgres":
	default:
		return fmt.Errorf("storage.backend must be one of memory, badger, sqlite, postgres, got %q", cfg.Storage.Backend)
	}
	if cfg.Storage.Backend == "postgres" && cfg.Storage.Postgres.DSN == "" {
		return fmt.Errorf("storage.postgres.dsn is required when storage.backend is postgres")
	}
	if cfg.MaxFragmentSize == 0 {
		return fmt.Errorf("max_fragment_size must be positive")
	}
	return nil
}
