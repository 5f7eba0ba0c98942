package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type postgresDialect struct{}

func (postgresDialect) Name() string                      { return "postgres" }
func (postgresDialect) DriverName() string                { return "pgx" }
func (postgresDialect) Placeholder() sq.PlaceholderFormat { return sq.Dollar }
func (postgresDialect) Quote(ident string) string         { return pgx.Identifier{ident}.Sanitize() }

func (d postgresDialect) StagingDDL(table string, columns, key []string) []string {
	defs := []string{"job_id TEXT NOT NULL", "row_index BIGINT NOT NULL", "error TEXT"}
	for _, c := range columns {
		defs = append(defs, d.Quote(c)+" TEXT")
	}
	return []string{
		fmt.Sprintf("CREATE UNLOGGED TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (job_id, row_index)", d.Quote("idx_"+table+"_job"), d.Quote(table)),
		stagingKeyIndex(d, table, key),
	}
}

func (d postgresDialect) TargetDDL(table string, columns []TargetColumn, key []string) []string {
	return []string{targetDDL(d, table, columns, key, tableTypes{
		id:    "id BIGSERIAL PRIMARY KEY",
		key:   "VARCHAR(191)",
		stamp: "TIMESTAMP",
		now:   "CURRENT_TIMESTAMP",
		valueOf: func(k domain.FieldKind) string {
			switch k {
			case domain.KindDecimal:
				return "NUMERIC(20,4)"
			case domain.KindInteger:
				return "BIGINT"
			}
			return "TEXT"
		},
	})}
}

func (postgresDialect) Length(expr string) string { return "CHAR_LENGTH(" + expr + ")" }

// Patterns avoid '?' since statements go through sqlx.Rebind.
func (postgresDialect) NumericGuard(expr string) string {
	return expr + " ~ '^-{0,1}[0-9]+([.][0-9]+){0,1}$'"
}

func (postgresDialect) IntegerGuard(expr string) string {
	return expr + " ~ '^[0-9]+$'"
}

func (postgresDialect) Cast(expr string, kind domain.FieldKind) string {
	switch kind {
	case domain.KindDecimal:
		return "CAST(NULLIF(" + expr + ", '') AS NUMERIC(20,4))"
	case domain.KindInteger:
		return "CAST(NULLIF(" + expr + ", '') AS BIGINT)"
	}
	return expr
}

func (d postgresDialect) UpsertClause(key, update []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", quoteAll(d, key), conflictSet(update, "%s = EXCLUDED.%s", "CURRENT_TIMESTAMP"))
}

func (postgresDialect) Counting() UpsertCounting { return CountFromReturning }

func (postgresDialect) Native() NativeLoader { return pgCopyLoader{} }

// pgCopyLoader streams rows through COPY FROM STDIN on a connection borrowed
// from the pool.
type pgCopyLoader struct{}

func (pgCopyLoader) Load(ctx context.Context, db *sqlx.DB, table string, columns []string, next func() ([]any, error)) (int64, error) {
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	var copied int64
	err = conn.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errors.New("connection is not a pgx connection")
		}
		n, err := sc.Conn().CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromFunc(next))
		copied = n
		return err
	})
	if err != nil {
		return copied, fmt.Errorf("copy into %s: %w", table, err)
	}
	return copied, nil
}
