package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// SchemaMigrator creates the staging and target tables for every table type.
// Statements are idempotent so it is safe to run on every start.
type SchemaMigrator struct {
	db      *sqlx.DB
	dialect Dialect
}

func NewSchemaMigrator(db *sqlx.DB, dialect Dialect) *SchemaMigrator {
	return &SchemaMigrator{db: db, dialect: dialect}
}

func (m *SchemaMigrator) Migrate(ctx context.Context) error {
	for _, tt := range domain.TableTypes() {
		s, err := domain.LookupSchema(tt)
		if err != nil {
			return err
		}
		stmts := append(
			m.dialect.TargetDDL(s.TargetTable, targetColumns(s), columnNames(s.Key)),
			m.dialect.StagingDDL(s.StagingTable, columnNames(s.Fields), columnNames(s.Key))...,
		)
		for _, stmt := range stmts {
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("migrate %s: %w", tt, err)
			}
		}
	}
	return nil
}
