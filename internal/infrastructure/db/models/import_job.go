package models

import "time"

// ImportJob is the archived copy of a finished import job. The in-memory
// queue forgets jobs after the retention window; this table does not.
type ImportJob struct {
	ID                string  `gorm:"type:varchar(36);primaryKey"`
	IdempotencyKey    string  `gorm:"type:varchar(255);not null;index"`
	TableType         string  `gorm:"type:varchar(32);not null;index"`
	FileName          string  `gorm:"type:varchar(255);not null"`
	FileSize          int64   `gorm:"not null;default:0"`
	Status            string  `gorm:"type:varchar(16);not null"`
	ProgressCurrent   int64   `gorm:"not null;default:0"`
	ProgressTotal     int64   `gorm:"not null;default:0"`
	SuccessCount      int64   `gorm:"not null;default:0"`
	FailedCount       int64   `gorm:"not null;default:0"`
	TotalRecords      int64   `gorm:"not null;default:0"`
	NewRecords        int64   `gorm:"not null;default:0"`
	UpdatedRecords    int64   `gorm:"not null;default:0"`
	DuplicatesRemoved int64   `gorm:"not null;default:0"`
	ErrorRecords      int64   `gorm:"not null;default:0"`
	RowErrors         string  `gorm:"type:text"`
	StagingStrategy   string  `gorm:"type:varchar(16)"`
	ErrorMessage      *string `gorm:"type:text"`
	StartedAt         *time.Time
	FinishedAt        *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (ImportJob) TableName() string {
	return "import_jobs"
}
