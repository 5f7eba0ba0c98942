package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type StagingStrategy string

const (
	StrategyAuto    StagingStrategy = "auto"
	StrategyNative  StagingStrategy = "native"
	StrategyBatched StagingStrategy = "batched"
)

const (
	defaultBatchSize         = 500
	defaultMaxStoredFailures = 50
	defaultThroughputFloor   = 20000.0 / 60
	cleanupTimeout           = 30 * time.Second
)

type BulkImportOptions struct {
	Strategy          StagingStrategy
	BatchSize         int
	MaxStoredFailures int
	// ThroughputFloor is the staging rate in rows per second under which a
	// warning is logged.
	ThroughputFloor float64
}

// BulkImportRepository moves parsed rows through the per-table staging table
// into the target table.
type BulkImportRepository struct {
	db      *sqlx.DB
	dialect Dialect
	opts    BulkImportOptions
	log     *zap.Logger
}

func NewBulkImportRepository(db *sqlx.DB, dialect Dialect, opts BulkImportOptions, log *zap.Logger) *BulkImportRepository {
	if opts.Strategy == "" {
		opts.Strategy = StrategyAuto
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.MaxStoredFailures <= 0 {
		opts.MaxStoredFailures = defaultMaxStoredFailures
	}
	if opts.ThroughputFloor <= 0 {
		opts.ThroughputFloor = defaultThroughputFloor
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BulkImportRepository{db: db, dialect: dialect, opts: opts, log: log}
}

// Stage writes every parsed row for the job into the staging table. In auto
// mode a failed native load is discarded and the rows are staged again with
// batched inserts.
func (r *BulkImportRepository) Stage(ctx context.Context, req domain.StageRequest) (domain.StageResult, error) {
	started := time.Now()
	native := r.dialect.Native()

	if r.opts.Strategy != StrategyBatched {
		switch {
		case native == nil && r.opts.Strategy == StrategyNative:
			return domain.StageResult{}, domain.ErrNativeUnsupported
		case native != nil:
			res, err := r.stageWith(ctx, req, func(cols []string, next func() ([]any, error)) error {
				_, err := native.Load(ctx, r.db, req.Schema.StagingTable, cols, next)
				return err
			})
			if err == nil {
				return r.finishStage(req, res, string(StrategyNative), started), nil
			}
			var srcErr *sourceError
			if r.opts.Strategy == StrategyNative || ctx.Err() != nil || errors.As(err, &srcErr) {
				return domain.StageResult{}, err
			}
			r.log.Warn("native staging failed, falling back to batched inserts",
				zap.String("job_id", req.JobID),
				zap.String("dialect", r.dialect.Name()),
				zap.Error(err),
			)
			if err := r.Cleanup(ctx, req.Schema, req.JobID); err != nil {
				return domain.StageResult{}, fmt.Errorf("discard partial native load: %w", err)
			}
			started = time.Now()
		}
	}

	res, err := r.stageWith(ctx, req, func(cols []string, next func() ([]any, error)) error {
		return r.insertBatches(ctx, req.Schema.StagingTable, cols, next)
	})
	if err != nil {
		return domain.StageResult{}, err
	}
	return r.finishStage(req, res, string(StrategyBatched), started), nil
}

// stageWith opens a fresh reader and feeds its rows to load as staging
// records.
func (r *BulkImportRepository) stageWith(ctx context.Context, req domain.StageRequest, load func(cols []string, next func() ([]any, error)) error) (domain.StageResult, error) {
	reader, err := req.Open()
	if err != nil {
		return domain.StageResult{}, &sourceError{err: err}
	}
	defer reader.Close()

	var res domain.StageResult
	fields := req.Schema.Fields
	estimator, _ := reader.(domain.RowEstimator)
	next := func() ([]any, error) {
		row, err := reader.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, &sourceError{err: err}
		}
		if req.Schema.ParentField != 0 && req.Parent != "" {
			row.Values[req.Schema.ParentField] = req.Parent
		}

		record := make([]any, 0, len(fields)+3)
		record = append(record, req.JobID, row.RowNumber, nullable(row.Error()))
		for _, f := range fields {
			record = append(record, nullable(row.Values[f]))
		}

		res.Rows++
		if !row.IsValid {
			res.InvalidRows++
		}
		if req.OnRow != nil {
			var estimated int64
			if estimator != nil {
				estimated = estimator.EstimatedRows()
			}
			req.OnRow(res.Rows, estimated)
		}
		return record, nil
	}

	if err := load(stagingColumns(req.Schema), next); err != nil {
		return domain.StageResult{}, err
	}
	return res, nil
}

func (r *BulkImportRepository) insertBatches(ctx context.Context, table string, cols []string, next func() ([]any, error)) error {
	batch := make([][]any, 0, r.opts.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		ins := sq.Insert(r.dialect.Quote(table)).Columns(cols...).PlaceholderFormat(r.dialect.Placeholder())
		for _, rec := range batch {
			ins = ins.Values(rec...)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return fmt.Errorf("build staging insert: %w", err)
		}
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("insert staging batch: %w", err)
		}
		batch = batch[:0]
		return nil
	}

	for {
		rec, err := next()
		if err != nil {
			return err
		}
		if rec == nil {
			break
		}
		batch = append(batch, rec)
		if len(batch) >= r.opts.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	return flush()
}

func (r *BulkImportRepository) finishStage(req domain.StageRequest, res domain.StageResult, strategy string, started time.Time) domain.StageResult {
	res.Strategy = strategy
	if elapsed := time.Since(started).Seconds(); elapsed > 0 {
		res.RowsPerSecond = float64(res.Rows) / elapsed
	}
	fields := []zap.Field{
		zap.String("job_id", req.JobID),
		zap.String("table", req.Schema.StagingTable),
		zap.String("strategy", strategy),
		zap.Int64("rows", res.Rows),
		zap.Float64("rows_per_second", res.RowsPerSecond),
	}
	// Small files finish too fast for the rate to mean anything.
	if res.Rows >= int64(r.opts.BatchSize) && res.RowsPerSecond < r.opts.ThroughputFloor {
		r.log.Warn("staging throughput below floor", append(fields, zap.Float64("floor", r.opts.ThroughputFloor))...)
	} else {
		r.log.Info("rows staged", fields...)
	}
	return res
}

// Validate applies the schema rules to the job's staged rows. A row keeps the
// message of the first rule it fails.
func (r *BulkImportRepository) Validate(ctx context.Context, schema *domain.Schema, jobID string) (domain.ValidationResult, error) {
	table := r.dialect.Quote(schema.StagingTable)
	for _, rule := range schema.Rules {
		query := fmt.Sprintf("UPDATE %s SET error = ? WHERE job_id = ? AND error IS NULL AND (%s)", table, violation(r.dialect, rule))
		if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), rule.Message, jobID); err != nil {
			return domain.ValidationResult{}, fmt.Errorf("apply rule %q: %w", rule.Message, err)
		}
	}

	var counts struct {
		Total int64 `db:"total"`
		Valid int64 `db:"valid"`
	}
	countQuery := fmt.Sprintf("SELECT COUNT(*) AS total, COALESCE(SUM(CASE WHEN error IS NULL THEN 1 ELSE 0 END), 0) AS valid FROM %s WHERE job_id = ?", table)
	if err := r.db.GetContext(ctx, &counts, r.db.Rebind(countQuery), jobID); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("count validated rows: %w", err)
	}

	var failures []struct {
		RowIndex int64  `db:"row_index"`
		Error    string `db:"error"`
	}
	failQuery := fmt.Sprintf("SELECT row_index, error FROM %s WHERE job_id = ? AND error IS NOT NULL ORDER BY row_index LIMIT %d", table, r.opts.MaxStoredFailures)
	if err := r.db.SelectContext(ctx, &failures, r.db.Rebind(failQuery), jobID); err != nil {
		return domain.ValidationResult{}, fmt.Errorf("select row errors: %w", err)
	}

	res := domain.ValidationResult{
		Valid:   counts.Valid,
		Invalid: counts.Total - counts.Valid,
		Errors:  make([]domain.ImportFailure, 0, len(failures)),
	}
	for _, f := range failures {
		res.Errors = append(res.Errors, domain.ImportFailure{RowNumber: f.RowIndex, Message: f.Error})
	}
	return res, nil
}

// Upsert merges the job's valid staged rows into the target table in one
// transaction. For repeated natural keys the row with the highest row number
// wins.
func (r *BulkImportRepository) Upsert(ctx context.Context, schema *domain.Schema, jobID string) (domain.UpsertResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var valid, survivors int64
	validQuery := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE job_id = ? AND error IS NULL", r.dialect.Quote(schema.StagingTable))
	if err := tx.GetContext(ctx, &valid, tx.Rebind(validQuery), jobID); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("count valid rows: %w", err)
	}
	if err := tx.GetContext(ctx, &survivors, tx.Rebind(countSurvivorsSQL(r.dialect, schema)), jobID); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("count distinct keys: %w", err)
	}

	res, err := r.upsert(ctx, tx, schema, jobID, survivors)
	if err != nil {
		return domain.UpsertResult{}, fmt.Errorf("upsert %s: %w", schema.TargetTable, err)
	}

	if err := tx.Commit(); err != nil {
		return domain.UpsertResult{}, fmt.Errorf("commit upsert: %w", err)
	}

	res.Duplicates = valid - survivors
	return res, nil
}

// upsert runs the merge statement and splits the survivors into inserts and
// updates the way the dialect can observe them.
func (r *BulkImportRepository) upsert(ctx context.Context, tx *sqlx.Tx, schema *domain.Schema, jobID string, survivors int64) (domain.UpsertResult, error) {
	switch r.dialect.Counting() {
	case CountFromReturning:
		var counts struct {
			Inserted int64 `db:"inserted"`
			Updated  int64 `db:"updated"`
		}
		if err := tx.GetContext(ctx, &counts, tx.Rebind(countedUpsertSQL(r.dialect, schema)), jobID); err != nil {
			return domain.UpsertResult{}, err
		}
		return domain.UpsertResult{Inserted: counts.Inserted, Updated: counts.Updated}, nil

	case CountFromAffectedRows:
		result, err := tx.ExecContext(ctx, tx.Rebind(upsertSQL(r.dialect, schema)), jobID)
		if err != nil {
			return domain.UpsertResult{}, err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return domain.UpsertResult{}, fmt.Errorf("rows affected: %w", err)
		}
		updated := min(max(affected-survivors, 0), survivors)
		return domain.UpsertResult{Inserted: survivors - updated, Updated: updated}, nil

	default:
		var existing int64
		if err := tx.GetContext(ctx, &existing, tx.Rebind(countExistingSQL(r.dialect, schema)), jobID); err != nil {
			return domain.UpsertResult{}, fmt.Errorf("count existing keys: %w", err)
		}
		if _, err := tx.ExecContext(ctx, tx.Rebind(upsertSQL(r.dialect, schema)), jobID); err != nil {
			return domain.UpsertResult{}, err
		}
		return domain.UpsertResult{Inserted: survivors - existing, Updated: existing}, nil
	}
}

// Cleanup removes every staging row of the job. It runs detached from ctx
// cancellation so that cancelled and timed-out jobs still clean up.
func (r *BulkImportRepository) Cleanup(ctx context.Context, schema *domain.Schema, jobID string) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	query := fmt.Sprintf("DELETE FROM %s WHERE job_id = ?", r.dialect.Quote(schema.StagingTable))
	if _, err := r.db.ExecContext(ctx, r.db.Rebind(query), jobID); err != nil {
		return fmt.Errorf("cleanup %s: %w", schema.StagingTable, err)
	}
	return nil
}

// CountStaged returns how many staging rows the job still owns.
func (r *BulkImportRepository) CountStaged(ctx context.Context, schema *domain.Schema, jobID string) (int64, error) {
	var n int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE job_id = ?", r.dialect.Quote(schema.StagingTable))
	if err := r.db.GetContext(ctx, &n, r.db.Rebind(query), jobID); err != nil {
		return 0, fmt.Errorf("count staged rows: %w", err)
	}
	return n, nil
}

// sourceError marks failures of the row reader rather than the load path;
// retrying with another strategy cannot fix those.
type sourceError struct {
	err error
}

func (e *sourceError) Error() string { return e.err.Error() }
func (e *sourceError) Unwrap() error { return e.err }

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
