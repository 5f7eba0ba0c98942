package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"github.com/mohammadpnp/bulk-import/internal/config"
	"github.com/mohammadpnp/bulk-import/internal/infrastructure/repository"
)

// Database bundles the handles the service needs on one connection pool:
// sqlx for the staging pipeline and gorm for the job archive. Gorm is nil for
// sqlite.
type Database struct {
	SQL     *sqlx.DB
	Gorm    *gorm.DB
	Dialect repository.Dialect
	close   []func()
}

func OpenDatabase(ctx context.Context, cfg config.Database) (*Database, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	dialect, err := repository.DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	var db *Database
	switch dialect.Name() {
	case "postgres":
		db, err = openPostgres(ctx, cfg)
	case "mysql":
		db, err = openMySQL(ctx, cfg)
	default:
		db, err = openSQLite(ctx, cfg)
	}
	if err != nil {
		return nil, err
	}
	db.Dialect = dialect
	return db, nil
}

func openPostgres(ctx context.Context, cfg config.Database) (*Database, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = int32(cfg.MaxConns)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		_ = sqlDB.Close()
		pool.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &Database{
		SQL:   sqlx.NewDb(sqlDB, "pgx"),
		Gorm:  gdb,
		close: []func(){func() { _ = sqlDB.Close() }, pool.Close},
	}, nil
}

func openMySQL(ctx context.Context, cfg config.Database) (*Database, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	mc.ParseTime = true

	sqlDB, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return nil, fmt.Errorf("open mysql: %w", err)
	}
	if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping mysql: %w", err)
	}

	gdb, err := gorm.Open(gormmysql.New(gormmysql.Config{Conn: sqlDB}), gormConfig())
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}
	return &Database{
		SQL:   sqlx.NewDb(sqlDB, "mysql"),
		Gorm:  gdb,
		close: []func(){func() { _ = sqlDB.Close() }},
	}, nil
}

// openSQLite serializes access through one connection; sqlite allows a
// single writer and in-memory databases are per connection.
func openSQLite(ctx context.Context, cfg config.Database) (*Database, error) {
	db, err := sqlx.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return &Database{SQL: db, close: []func(){func() { _ = db.Close() }}}, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)}
}

// Migrate creates target, staging and archive tables when missing.
func (d *Database) Migrate(ctx context.Context, archive bool) error {
	if err := repository.NewSchemaMigrator(d.SQL, d.Dialect).Migrate(ctx); err != nil {
		return err
	}
	if archive && d.Gorm != nil {
		return repository.NewImportJobRepository(d.Gorm).AutoMigrate(ctx)
	}
	return nil
}

func (d *Database) Close() {
	for _, fn := range d.close {
		fn()
	}
}
