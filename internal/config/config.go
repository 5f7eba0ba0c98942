// Package config loads service settings from defaults, an optional TOML file
// and the environment, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "BULKIMPORT_"

type Config struct {
	LogLevel    string      `koanf:"log_level"`
	Database    Database    `koanf:"database"`
	Server      Server      `koanf:"server"`
	Import      Import      `koanf:"import"`
	Broadcaster Broadcaster `koanf:"broadcaster"`
	NATS        NATS        `koanf:"nats"`
	Archive     Archive     `koanf:"archive"`
}

type Database struct {
	// Driver is one of postgres, mysql or sqlite.
	Driver      string `koanf:"driver"`
	DSN         string `koanf:"dsn"`
	AutoMigrate bool   `koanf:"auto_migrate"`
	MaxConns    int    `koanf:"max_conns"`
}

type Server struct {
	Port            string        `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

type Import struct {
	Workers           int           `koanf:"workers"`
	JobTimeout        time.Duration `koanf:"job_timeout"`
	Retention         time.Duration `koanf:"retention"`
	SweepInterval     time.Duration `koanf:"sweep_interval"`
	ProgressEvery     int64         `koanf:"progress_every"`
	MaxFileSize       int64         `koanf:"max_file_size"`
	StagingStrategy   string        `koanf:"staging_strategy"`
	BatchSize         int           `koanf:"batch_size"`
	MaxStoredFailures int           `koanf:"max_stored_failures"`
	// ThroughputFloor is rows per minute below which staging logs a warning.
	ThroughputFloor int  `koanf:"throughput_floor"`
	HeaderScanRows  int  `koanf:"header_scan_rows"`
	LazyQuotes      bool `koanf:"lazy_quotes"`
}

type Broadcaster struct {
	PingInterval   time.Duration `koanf:"ping_interval"`
	CompletedGrace time.Duration `koanf:"completed_grace"`
	FailedGrace    time.Duration `koanf:"failed_grace"`
	Buffer         int           `koanf:"buffer"`
}

type NATS struct {
	// URL enables event mirroring when set.
	URL           string `koanf:"url"`
	SubjectPrefix string `koanf:"subject_prefix"`
}

type Archive struct {
	Enabled bool `koanf:"enabled"`
	Buffer  int  `koanf:"buffer"`
}

func Default() Config {
	return Config{
		LogLevel: "info",
		Database: Database{Driver: "postgres", AutoMigrate: true, MaxConns: 10},
		Server:   Server{Port: "8080", ShutdownTimeout: 10 * time.Second},
		Import: Import{
			Workers:           3,
			JobTimeout:        30 * time.Minute,
			Retention:         24 * time.Hour,
			SweepInterval:     10 * time.Minute,
			ProgressEvery:     1000,
			MaxFileSize:       10 << 20,
			StagingStrategy:   "auto",
			BatchSize:         500,
			MaxStoredFailures: 50,
			ThroughputFloor:   20000,
			HeaderScanRows:    20,
			LazyQuotes:        true,
		},
		Broadcaster: Broadcaster{
			PingInterval:   30 * time.Second,
			CompletedGrace: 5 * time.Second,
			FailedGrace:    15 * time.Second,
			Buffer:         64,
		},
		NATS:    NATS{SubjectPrefix: "imports.jobs"},
		Archive: Archive{Enabled: true, Buffer: 256},
	}
}

// Load reads configuration. path may be empty. Environment variables use the
// BULKIMPORT_ prefix with "__" separating levels, for example
// BULKIMPORT_IMPORT__WORKERS=5. DATABASE_URL and PORT are honored as well.
func Load(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	overrides := map[string]any{}
	if v := os.Getenv("DATABASE_URL"); v != "" && os.Getenv(EnvPrefix+"DATABASE__DSN") == "" {
		overrides["database.dsn"] = v
	}
	if v := os.Getenv("PORT"); v != "" {
		overrides["server.port"] = v
	}
	for key, v := range overrides {
		if err := k.Set(key, v); err != nil {
			return Config{}, fmt.Errorf("set %s: %w", key, err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c Config) Validate() error {
	switch strings.ToLower(c.Database.Driver) {
	case "postgres", "postgresql", "pgx", "mysql", "mariadb", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	switch c.Import.StagingStrategy {
	case "auto", "native", "batched":
	default:
		return fmt.Errorf("config: unknown staging strategy %q", c.Import.StagingStrategy)
	}
	if c.Import.Workers <= 0 {
		return fmt.Errorf("config: import.workers must be positive")
	}
	if c.Import.MaxFileSize <= 0 {
		return fmt.Errorf("config: import.max_file_size must be positive")
	}
	return nil
}
