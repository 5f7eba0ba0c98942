package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
	"github.com/mohammadpnp/bulk-import/internal/infrastructure/db/models"
)

// ImportJobRepository archives terminal job snapshots so status stays
// available after the queue's retention window.
type ImportJobRepository struct {
	db *gorm.DB
}

func NewImportJobRepository(db *gorm.DB) *ImportJobRepository {
	return &ImportJobRepository{db: db}
}

func (r *ImportJobRepository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.ImportJob{}); err != nil {
		return fmt.Errorf("migrate import_jobs: %w", err)
	}
	return nil
}

// Save inserts or replaces the archived row for the job.
func (r *ImportJobRepository) Save(ctx context.Context, job domain.JobView) error {
	row, err := toModel(job)
	if err != nil {
		return err
	}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("archive import job: %w", err)
	}
	return nil
}

func (r *ImportJobRepository) FindByID(ctx context.Context, id string) (domain.JobView, error) {
	var row models.ImportJob
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.JobView{}, domain.ErrJobNotFound
	}
	if err != nil {
		return domain.JobView{}, fmt.Errorf("find archived import job: %w", err)
	}
	return fromModel(row), nil
}

// List returns the most recent archived jobs first.
func (r *ImportJobRepository) List(ctx context.Context, limit int) ([]domain.JobView, error) {
	var rows []models.ImportJob
	if err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list archived import jobs: %w", err)
	}
	out := make([]domain.JobView, 0, len(rows))
	for _, row := range rows {
		out = append(out, fromModel(row))
	}
	return out, nil
}

func toModel(job domain.JobView) (models.ImportJob, error) {
	row := models.ImportJob{
		ID:              job.ID,
		IdempotencyKey:  job.IdempotencyKey,
		TableType:       job.TableType.String(),
		FileName:        job.FileName,
		FileSize:        job.FileSize,
		Status:          string(job.Status),
		ProgressCurrent: job.Progress.Current,
		ProgressTotal:   job.Progress.Total,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.CompletedAt,
		CreatedAt:       job.CreatedAt,
	}
	if job.Error != "" {
		msg := job.Error
		row.ErrorMessage = &msg
	}
	if res := job.Result; res != nil {
		rowErrors, err := json.Marshal(res.Errors)
		if err != nil {
			return models.ImportJob{}, fmt.Errorf("encode row errors: %w", err)
		}
		row.SuccessCount = res.SuccessCount
		row.FailedCount = res.FailureCount
		row.TotalRecords = res.Summary.TotalRecords
		row.NewRecords = res.Summary.NewRecords
		row.UpdatedRecords = res.Summary.UpdatedRecords
		row.DuplicatesRemoved = res.Summary.DuplicatesRemoved
		row.ErrorRecords = res.Summary.ErrorRecords
		row.RowErrors = string(rowErrors)
		row.StagingStrategy = res.StagingStrategy
	}
	return row, nil
}

func fromModel(row models.ImportJob) domain.JobView {
	view := domain.JobView{
		ID:             row.ID,
		TableType:      domain.TableType(row.TableType),
		FileName:       row.FileName,
		FileSize:       row.FileSize,
		IdempotencyKey: row.IdempotencyKey,
		Status:         domain.JobStatus(row.Status),
		Progress: domain.ImportProgress{
			Current: row.ProgressCurrent,
			Total:   row.ProgressTotal,
			Stage:   domain.StageDone,
		},
		CreatedAt:   row.CreatedAt,
		StartedAt:   row.StartedAt,
		CompletedAt: row.FinishedAt,
	}
	if row.ErrorMessage != nil {
		view.Error = *row.ErrorMessage
	}
	if row.RowErrors != "" {
		res := &domain.JobResult{
			SuccessCount: row.SuccessCount,
			FailureCount: row.FailedCount,
			Summary: domain.ImportSummary{
				TotalRecords:      row.TotalRecords,
				NewRecords:        row.NewRecords,
				UpdatedRecords:    row.UpdatedRecords,
				DuplicatesRemoved: row.DuplicatesRemoved,
				ErrorRecords:      row.ErrorRecords,
			},
			StagingStrategy: row.StagingStrategy,
		}
		// Rows written by this package always decode; a hand-edited value
		// just loses its error list.
		_ = json.Unmarshal([]byte(row.RowErrors), &res.Errors)
		view.Result = res
	}
	return view
}
