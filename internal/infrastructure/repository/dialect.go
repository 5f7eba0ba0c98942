package repository

import (
	"context"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// Dialect captures the SQL differences between the supported databases. All
// statements are written with "?" placeholders and passed through
// sqlx.Rebind, so dialects only describe types, casts and upsert syntax.
type Dialect interface {
	Name() string
	// DriverName is the database/sql driver the dialect runs on.
	DriverName() string
	Placeholder() sq.PlaceholderFormat
	Quote(ident string) string

	// StagingDDL creates the staging table with indexes on (job_id,
	// row_index) and (job_id, key...).
	StagingDDL(table string, columns, key []string) []string
	TargetDDL(table string, columns []TargetColumn, key []string) []string

	Length(expr string) string
	NumericGuard(expr string) string
	IntegerGuard(expr string) string
	Cast(expr string, kind domain.FieldKind) string
	UpsertClause(key, update []string) string
	// Counting tells Upsert how to split its result into inserts and updates.
	Counting() UpsertCounting

	// Native returns the dialect's bulk-load path, or nil when it has none.
	Native() NativeLoader
}

// NativeLoader streams rows into a staging table using the database's own
// bulk protocol. next returns a nil row once the input is exhausted.
type NativeLoader interface {
	Load(ctx context.Context, db *sqlx.DB, table string, columns []string, next func() ([]any, error)) (int64, error)
}

// UpsertCounting is how a dialect learns the insert/update split of an upsert
// statement.
type UpsertCounting int

const (
	// CountFromReturning reads the split from RETURNING (xmax = 0).
	CountFromReturning UpsertCounting = iota
	// CountFromAffectedRows derives it from RowsAffected, where an insert
	// counts 1 and a changed row counts 2.
	CountFromAffectedRows
	// CountBeforeUpsert counts existing keys inside the upsert transaction.
	// Only safe where writers are serialized.
	CountBeforeUpsert
)

// TargetColumn is one column of a target table as the bootstrapper creates it.
type TargetColumn struct {
	Name string
	Kind domain.FieldKind
	Key  bool
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// DialectFor resolves a configured driver name.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres", "postgresql", "pgx":
		return postgresDialect{}, nil
	case "mysql", "mariadb":
		return mysqlDialect{}, nil
	case "sqlite", "sqlite3":
		return sqliteDialect{}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

func conflictSet(update []string, format, now string) string {
	parts := make([]string, 0, len(update)+1)
	for _, col := range update {
		parts = append(parts, fmt.Sprintf(format, col, col))
	}
	parts = append(parts, "updated_at = "+now)
	return strings.Join(parts, ", ")
}

// tableTypes names the SQL types targetDDL needs from a dialect.
type tableTypes struct {
	id      string
	key     string
	stamp   string
	now     string
	valueOf func(domain.FieldKind) string
}

func targetDDL(d Dialect, table string, columns []TargetColumn, key []string, types tableTypes) string {
	defs := []string{types.id}
	for _, c := range columns {
		if c.Key {
			defs = append(defs, fmt.Sprintf("%s %s NOT NULL DEFAULT ''", d.Quote(c.Name), types.key))
			continue
		}
		defs = append(defs, fmt.Sprintf("%s %s NULL", d.Quote(c.Name), types.valueOf(c.Kind)))
	}
	defs = append(defs,
		fmt.Sprintf("created_at %s NOT NULL DEFAULT %s", types.stamp, types.now),
		fmt.Sprintf("updated_at %s NOT NULL DEFAULT %s", types.stamp, types.now),
		fmt.Sprintf("CONSTRAINT uq_%s_key UNIQUE (%s)", table, quoteAll(d, key)),
	)
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", d.Quote(table), strings.Join(defs, ",\n  "))
}

func stagingKeyIndex(d Dialect, table string, key []string) string {
	return fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (job_id, %s)", d.Quote("idx_"+table+"_key"), d.Quote(table), quoteAll(d, key))
}

func quoteAll(d Dialect, idents []string) string {
	out := make([]string, len(idents))
	for i, id := range idents {
		out[i] = d.Quote(id)
	}
	return strings.Join(out, ", ")
}
