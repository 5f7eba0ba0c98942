package repository

import (
	"fmt"
	"strconv"
	"strings"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// stagingColumns lists the staging table columns in insert order.
func stagingColumns(s *domain.Schema) []string {
	cols := []string{"job_id", "row_index", "error"}
	for _, f := range s.Fields {
		cols = append(cols, f.Column())
	}
	return cols
}

func targetColumns(s *domain.Schema) []TargetColumn {
	keys := make(map[domain.Field]bool, len(s.Key))
	for _, k := range s.Key {
		keys[k] = true
	}
	out := make([]TargetColumn, 0, len(s.Fields))
	for _, f := range s.Fields {
		out = append(out, TargetColumn{Name: f.Column(), Kind: f.Kind(), Key: keys[f]})
	}
	return out
}

func columnNames(fields []domain.Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = f.Column()
	}
	return out
}

// violation renders the predicate that is true for rows breaking rule.
func violation(d Dialect, r domain.Rule) string {
	v := fmt.Sprintf("COALESCE(%s, '')", d.Quote(r.Field.Column()))
	num := func(expr string) string { return d.Cast(expr, domain.KindDecimal) }

	switch r.Kind {
	case domain.RuleRequired, domain.RuleParentRequired:
		return fmt.Sprintf("TRIM(%s) = ''", v)
	case domain.RuleMaxLength:
		return fmt.Sprintf("%s > %d", d.Length(v), r.Max)
	case domain.RulePositiveNumber:
		return fmt.Sprintf("CASE WHEN %s THEN %s <= 0 ELSE TRUE END", d.NumericGuard(v), num(v))
	case domain.RulePositiveInteger:
		return fmt.Sprintf("CASE WHEN %s THEN %s <= 0 ELSE TRUE END", d.IntegerGuard(v), d.Cast(v, domain.KindInteger))
	case domain.RuleNumberRange:
		return fmt.Sprintf("CASE WHEN %s = '' THEN FALSE WHEN %s THEN (%s < %s OR %s > %s) ELSE TRUE END",
			v, d.NumericGuard(v), num(v), formatFloat(r.Min), num(v), formatFloat(r.Upper))
	case domain.RuleEmail:
		return fmt.Sprintf("(%s <> '' AND (%s NOT LIKE '%%_@_%%._%%' OR %s LIKE '%% %%'))", v, v, v)
	}
	return "FALSE"
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// keyExprs renders the natural key of a staging alias with NULL folded to ''.
func keyExprs(d Dialect, s *domain.Schema, alias string) []string {
	out := make([]string, len(s.Key))
	for i, k := range s.Key {
		out[i] = fmt.Sprintf("COALESCE(%s.%s, '')", alias, d.Quote(k.Column()))
	}
	return out
}

// rankedSurvivors selects the job's valid staging rows numbered per natural
// key, newest first. Rows with rn = 1 are the ones that get upserted.
func rankedSurvivors(d Dialect, s *domain.Schema) string {
	cols := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		cols = append(cols, "r."+d.Quote(f.Column()))
	}
	return fmt.Sprintf(
		"SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s ORDER BY r.row_index DESC) AS rn FROM %s r WHERE r.job_id = ? AND r.error IS NULL",
		strings.Join(cols, ", "), strings.Join(keyExprs(d, s, "r"), ", "), d.Quote(s.StagingTable),
	)
}

// distinctKeys selects each natural key of the job's valid rows once.
func distinctKeys(d Dialect, s *domain.Schema) string {
	exprs := keyExprs(d, s, "r")
	cols := make([]string, len(exprs))
	for i, k := range s.Key {
		cols[i] = exprs[i] + " AS " + d.Quote(k.Column())
	}
	return fmt.Sprintf("SELECT %s FROM %s r WHERE r.job_id = ? AND r.error IS NULL GROUP BY %s",
		strings.Join(cols, ", "), d.Quote(s.StagingTable), strings.Join(exprs, ", "))
}

func countSurvivorsSQL(d Dialect, s *domain.Schema) string {
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) k", distinctKeys(d, s))
}

func countExistingSQL(d Dialect, s *domain.Schema) string {
	match := make([]string, len(s.Key))
	for i, k := range s.Key {
		col := d.Quote(k.Column())
		match[i] = fmt.Sprintf("t.%s = k.%s", col, col)
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) k WHERE EXISTS (SELECT 1 FROM %s t WHERE %s)",
		distinctKeys(d, s), d.Quote(s.TargetTable), strings.Join(match, " AND "))
}

func upsertSQL(d Dialect, s *domain.Schema) string {
	keys := make(map[domain.Field]bool, len(s.Key))
	for _, k := range s.Key {
		keys[k] = true
	}
	cols := make([]string, 0, len(s.Fields))
	exprs := make([]string, 0, len(s.Fields))
	for _, f := range s.Fields {
		col := d.Quote(f.Column())
		cols = append(cols, col)
		if keys[f] {
			exprs = append(exprs, fmt.Sprintf("COALESCE(s.%s, '')", col))
			continue
		}
		exprs = append(exprs, d.Cast("s."+col, f.Kind()))
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM (%s) s WHERE s.rn = 1 %s",
		d.Quote(s.TargetTable),
		strings.Join(cols, ", "),
		strings.Join(exprs, ", "),
		rankedSurvivors(d, s),
		d.UpsertClause(columnNames(s.Key), columnNames(s.Update)),
	)
}

// countedUpsertSQL wraps upsertSQL so the statement itself reports how many
// rows it inserted and how many it updated. Only dialects counting from
// RETURNING use it.
func countedUpsertSQL(d Dialect, s *domain.Schema) string {
	return fmt.Sprintf("WITH up AS (%s RETURNING (xmax = 0) AS fresh) "+
		"SELECT COALESCE(SUM(CASE WHEN fresh THEN 1 ELSE 0 END), 0) AS inserted, "+
		"COALESCE(SUM(CASE WHEN fresh THEN 0 ELSE 1 END), 0) AS updated FROM up",
		upsertSQL(d, s))
}
