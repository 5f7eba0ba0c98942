package repository

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// sqliteDialect backs local runs and tests. It has no native bulk path.
type sqliteDialect struct{}

func (sqliteDialect) Name() string                      { return "sqlite" }
func (sqliteDialect) DriverName() string                { return "sqlite" }
func (sqliteDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (sqliteDialect) Quote(ident string) string         { return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"` }

func (d sqliteDialect) StagingDDL(table string, columns, key []string) []string {
	defs := []string{"job_id TEXT NOT NULL", "row_index INTEGER NOT NULL", "error TEXT"}
	for _, c := range columns {
		defs = append(defs, d.Quote(c)+" TEXT")
	}
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", d.Quote(table), strings.Join(defs, ", ")),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (job_id, row_index)", d.Quote("idx_"+table+"_job"), d.Quote(table)),
		stagingKeyIndex(d, table, key),
	}
}

func (d sqliteDialect) TargetDDL(table string, columns []TargetColumn, key []string) []string {
	return []string{targetDDL(d, table, columns, key, tableTypes{
		id:    "id INTEGER PRIMARY KEY AUTOINCREMENT",
		key:   "TEXT",
		stamp: "TIMESTAMP",
		now:   "CURRENT_TIMESTAMP",
		valueOf: func(k domain.FieldKind) string {
			switch k {
			case domain.KindDecimal:
				return "NUMERIC"
			case domain.KindInteger:
				return "INTEGER"
			}
			return "TEXT"
		},
	})}
}

func (sqliteDialect) Length(expr string) string { return "LENGTH(" + expr + ")" }

func (sqliteDialect) NumericGuard(expr string) string {
	return fmt.Sprintf("(%s <> '' AND %s NOT GLOB '*[^0-9.-]*')", expr, expr)
}

func (sqliteDialect) IntegerGuard(expr string) string {
	return fmt.Sprintf("(%s <> '' AND %s NOT GLOB '*[^0-9]*')", expr, expr)
}

func (sqliteDialect) Cast(expr string, kind domain.FieldKind) string {
	switch kind {
	case domain.KindDecimal:
		return "CAST(NULLIF(" + expr + ", '') AS REAL)"
	case domain.KindInteger:
		return "CAST(NULLIF(" + expr + ", '') AS INTEGER)"
	}
	return expr
}

func (d sqliteDialect) UpsertClause(key, update []string) string {
	return fmt.Sprintf("ON CONFLICT (%s) DO UPDATE SET %s", quoteAll(d, key), conflictSet(update, "%s = excluded.%s", "CURRENT_TIMESTAMP"))
}

// Counting is CountBeforeUpsert: the pool holds a single connection, so no
// other writer can touch the target between the count and the upsert.
func (sqliteDialect) Counting() UpsertCounting { return CountBeforeUpsert }

func (sqliteDialect) Native() NativeLoader { return nil }
