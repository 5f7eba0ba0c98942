package importing

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type rowParser interface {
	Open(tableType domain.TableType, fileName string, data []byte) (domain.RowReader, error)
}

type bulkLoader interface {
	Stage(ctx context.Context, req domain.StageRequest) (domain.StageResult, error)
	Validate(ctx context.Context, schema *domain.Schema, jobID string) (domain.ValidationResult, error)
	Upsert(ctx context.Context, schema *domain.Schema, jobID string) (domain.UpsertResult, error)
	Cleanup(ctx context.Context, schema *domain.Schema, jobID string) error
}

type PipelineConfig struct {
	// ProgressEvery is how many staged rows pass between progress reports.
	ProgressEvery int64
}

// Pipeline runs one job through parse, stage, validate, upsert and cleanup.
type Pipeline struct {
	parser rowParser
	loader bulkLoader
	cfg    PipelineConfig
	log    *zap.Logger
	now    func() time.Time
}

func NewPipeline(parser rowParser, loader bulkLoader, cfg PipelineConfig, log *zap.Logger) *Pipeline {
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 1000
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{parser: parser, loader: loader, cfg: cfg, log: log, now: time.Now}
}

func (p *Pipeline) Run(ctx context.Context, task Task, reporter Reporter) (*domain.JobResult, error) {
	job := task.Job
	schema, err := domain.LookupSchema(job.TableType)
	if err != nil {
		return nil, err
	}

	defer func() {
		reporter.Report(domain.ImportProgress{Stage: domain.StageCleaning})
		if err := p.loader.Cleanup(ctx, schema, job.ID); err != nil {
			p.log.Error("staging cleanup failed", zap.String("job_id", job.ID), zap.Error(err))
		}
	}()

	rate := newThroughput(p.now)
	reporter.Report(rate.progress(0, 0, domain.StageReading))

	staged, err := p.loader.Stage(ctx, domain.StageRequest{
		JobID:  job.ID,
		Schema: schema,
		Parent: job.ParentValue(schema),
		Open: func() (domain.RowReader, error) {
			return p.parser.Open(job.TableType, job.FileName, task.Payload)
		},
		OnRow: func(n, estimated int64) {
			if n%p.cfg.ProgressEvery == 0 {
				reporter.Report(rate.staging(n, estimated))
			}
		},
	})
	task.Payload = nil
	reporter.ReleasePayload()
	if err != nil {
		return nil, fmt.Errorf("stage rows: %w", err)
	}

	total := staged.Rows
	progress := rate.progress(total, total, domain.StageValidating)
	progress.RowsPerSecond = staged.RowsPerSecond
	reporter.Report(progress)

	result := &domain.JobResult{
		Errors:          []domain.ImportFailure{},
		Summary:         domain.ImportSummary{TotalRecords: total},
		StagingStrategy: staged.Strategy,
	}
	if total == 0 {
		return result, domain.ErrNoDataRows
	}

	validation, err := p.loader.Validate(ctx, schema, job.ID)
	if err != nil {
		return nil, fmt.Errorf("validate rows: %w", err)
	}
	result.FailureCount = validation.Invalid
	result.Summary.ErrorRecords = validation.Invalid
	result.Errors = validation.Errors
	if validation.Valid == 0 {
		return result, domain.ErrNoValidRows
	}

	reporter.Report(domain.ImportProgress{Stage: domain.StageApplying})
	upserted, err := p.loader.Upsert(ctx, schema, job.ID)
	if err != nil {
		return nil, fmt.Errorf("apply rows: %w", err)
	}
	result.SuccessCount = upserted.Inserted + upserted.Updated
	result.Summary.NewRecords = upserted.Inserted
	result.Summary.UpdatedRecords = upserted.Updated
	result.Summary.DuplicatesRemoved = upserted.Duplicates

	if !result.Summary.Reconciled() {
		p.log.Warn("import summary does not reconcile",
			zap.String("job_id", job.ID),
			zap.Any("summary", result.Summary),
		)
	}
	return result, nil
}
