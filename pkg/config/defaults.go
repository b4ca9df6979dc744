package config

import (
	"time"

	"github.com/spf13/viper"

	"github.com/gharra/filed/internal/bytesize"
)

// defaultConfig returns the built-in defaults, the lowest-precedence
// source in Load's CLI > env > file > default chain.
func defaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stdout",
		},
		ShutdownTimeout: 30 * time.Second,
		DataDir:         "./data",
		Storage: StorageConfig{
			Backend: "memory",
			Badger:  BadgerConfig{Dir: "./data/badger"},
			SQLite:  SQLiteConfig{Path: "./data/filed.db"},
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  "localhost:9090",
		},
		MaxFragmentSize: 16 * bytesize.MiB,
	}
}

// applyDefaults fills any field still at its zero value after the merge.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "./data"
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "memory"
	}
	if cfg.Storage.Badger.Dir == "" {
		cfg.Storage.Badger.Dir = "./data/badger"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "./data/filed.db"
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = "localhost:9090"
	}
	if cfg.MaxFragmentSize == 0 {
		cfg.MaxFragmentSize = 16 * bytesize.MiB
	}
}

// registerDefaults seeds viper with cfg's values under their mapstructure
// key paths. Without this, viper.AutomaticEnv only resolves environment
// variables for keys it already knows about, so an override like
// FILED_STORAGE_BACKEND would otherwise be silently ignored whenever no
// config file sets storage.backend.
func registerDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.badger.dir", cfg.Storage.Badger.Dir)
	v.SetDefault("storage.sqlite.path", cfg.Storage.SQLite.Path)
	v.SetDefault("storage.postgres.dsn", cfg.Storage.Postgres.DSN)
	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.listen", cfg.Metrics.Listen)
	v.SetDefault("max_fragment_size", uint64(cfg.MaxFragmentSize))
}
