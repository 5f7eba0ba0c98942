package repository

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type mysqlDialect struct{}

func (mysqlDialect) Name() string                      { return "mysql" }
func (mysqlDialect) DriverName() string                { return "mysql" }
func (mysqlDialect) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (mysqlDialect) Quote(ident string) string         { return "`" + strings.ReplaceAll(ident, "`", "``") + "`" }

func (d mysqlDialect) StagingDDL(table string, columns, key []string) []string {
	defs := []string{"job_id VARCHAR(64) NOT NULL", "row_index BIGINT NOT NULL", "error TEXT NULL"}
	for _, c := range columns {
		defs = append(defs, d.Quote(c)+" TEXT NULL")
	}
	// TEXT columns can only be indexed on a prefix.
	prefixed := make([]string, len(key))
	for i, k := range key {
		prefixed[i] = d.Quote(k) + "(191)"
	}
	defs = append(defs,
		fmt.Sprintf("INDEX %s (job_id, row_index)", d.Quote("idx_"+table+"_job")),
		fmt.Sprintf("INDEX %s (job_id, %s)", d.Quote("idx_"+table+"_key"), strings.Join(prefixed, ", ")),
	)
	return []string{
		fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) DEFAULT CHARSET=utf8mb4", d.Quote(table), strings.Join(defs, ", ")),
	}
}

func (d mysqlDialect) TargetDDL(table string, columns []TargetColumn, key []string) []string {
	// Microsecond stamps make every conflicting row count as changed, which
	// CountFromAffectedRows relies on.
	stmt := targetDDL(d, table, columns, key, tableTypes{
		id:    "id BIGINT AUTO_INCREMENT PRIMARY KEY",
		key:   "VARCHAR(191)",
		stamp: "TIMESTAMP(6)",
		now:   "CURRENT_TIMESTAMP(6)",
		valueOf: func(k domain.FieldKind) string {
			switch k {
			case domain.KindDecimal:
				return "DECIMAL(20,4)"
			case domain.KindInteger:
				return "BIGINT"
			}
			return "TEXT"
		},
	})
	return []string{stmt + " DEFAULT CHARSET=utf8mb4"}
}

func (mysqlDialect) Length(expr string) string { return "CHAR_LENGTH(" + expr + ")" }

func (mysqlDialect) NumericGuard(expr string) string {
	return expr + " REGEXP '^-{0,1}[0-9]+([.][0-9]+){0,1}$'"
}

func (mysqlDialect) IntegerGuard(expr string) string {
	return expr + " REGEXP '^[0-9]+$'"
}

func (mysqlDialect) Cast(expr string, kind domain.FieldKind) string {
	switch kind {
	case domain.KindDecimal:
		return "CAST(NULLIF(" + expr + ", '') AS DECIMAL(20,4))"
	case domain.KindInteger:
		return "CAST(NULLIF(" + expr + ", '') AS SIGNED)"
	}
	return expr
}

func (d mysqlDialect) UpsertClause(_, update []string) string {
	return "ON DUPLICATE KEY UPDATE " + conflictSet(update, "%s = VALUES(%s)", "CURRENT_TIMESTAMP(6)")
}

func (mysqlDialect) Counting() UpsertCounting { return CountFromAffectedRows }

func (mysqlDialect) Native() NativeLoader { return mysqlLoadDataLoader{} }

// mysqlLoadDataLoader spools rows to a temporary CSV file and hands it to
// LOAD DATA LOCAL INFILE. Empty fields are loaded as NULL.
type mysqlLoadDataLoader struct{}

func (mysqlLoadDataLoader) Load(ctx context.Context, db *sqlx.DB, table string, columns []string, next func() ([]any, error)) (int64, error) {
	spool, err := os.CreateTemp("", "bulk-import-*.csv")
	if err != nil {
		return 0, fmt.Errorf("create spool file: %w", err)
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	w := csv.NewWriter(spool)
	record := make([]string, len(columns))
	for {
		row, err := next()
		if err != nil {
			return 0, err
		}
		if row == nil {
			break
		}
		for i, v := range row {
			record[i] = spoolValue(v)
		}
		if err := w.Write(record); err != nil {
			return 0, fmt.Errorf("write spool file: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush spool file: %w", err)
	}
	if err := spool.Close(); err != nil {
		return 0, fmt.Errorf("close spool file: %w", err)
	}

	mysql.RegisterLocalFile(spool.Name())
	defer mysql.DeregisterLocalFile(spool.Name())

	d := mysqlDialect{}
	vars := make([]string, len(columns))
	sets := make([]string, len(columns))
	for i, c := range columns {
		vars[i] = fmt.Sprintf("@v%d", i)
		sets[i] = fmt.Sprintf("%s = NULLIF(@v%d, '')", d.Quote(c), i)
	}
	stmt := fmt.Sprintf(
		"LOAD DATA LOCAL INFILE '%s' INTO TABLE %s CHARACTER SET utf8mb4 "+
			"FIELDS TERMINATED BY ',' OPTIONALLY ENCLOSED BY '\"' ESCAPED BY '' "+
			"LINES TERMINATED BY '\\n' (%s) SET %s",
		strings.ReplaceAll(spool.Name(), "'", "''"), d.Quote(table), strings.Join(vars, ", "), strings.Join(sets, ", "),
	)
	res, err := db.ExecContext(ctx, stmt)
	if err != nil {
		return 0, fmt.Errorf("load data into %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("load data rows affected: %w", err)
	}
	return n, nil
}

func spoolValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case *string:
		if t == nil {
			return ""
		}
		return *t
	default:
		return fmt.Sprint(t)
	}
}
