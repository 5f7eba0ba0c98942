package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bulk-import.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"

[database]
driver = "mysql"
dsn = "user:pass@tcp(localhost:3306)/imports"

[import]
workers = 5
job_timeout = "10m"
staging_strategy = "batched"
`), 0o600))

	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "9090")
	t.Setenv("BULKIMPORT_IMPORT__WORKERS", "7")
	t.Setenv("BULKIMPORT_BROADCASTER__PING_INTERVAL", "15s")
	t.Setenv("BULKIMPORT_NATS__URL", "nats://localhost:4222")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "mysql", cfg.Database.Driver)
	require.Equal(t, "user:pass@tcp(localhost:3306)/imports", cfg.Database.DSN)
	require.Equal(t, 7, cfg.Import.Workers)
	require.Equal(t, 10*time.Minute, cfg.Import.JobTimeout)
	require.Equal(t, "batched", cfg.Import.StagingStrategy)
	require.Equal(t, 15*time.Second, cfg.Broadcaster.PingInterval)
	require.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, int64(10<<20), cfg.Import.MaxFileSize)
}

func TestDatabaseURLFallback(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/imports")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://localhost/imports", cfg.Database.DSN)

	t.Setenv("BULKIMPORT_DATABASE__DSN", "postgres://other/imports")
	cfg, err = Load("")
	require.NoError(t, err)
	require.Equal(t, "postgres://other/imports", cfg.Database.DSN)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Database.Driver = "oracle"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Import.StagingStrategy = "copy"
	require.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Import.Workers = 0
	require.Error(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
