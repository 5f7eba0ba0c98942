package importing

import (
	"strings"
	"time"
)

type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition can happen.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Stage labels shown to operators while a job runs.
const (
	StageQueued     = "Waiting for a free worker"
	StageReading    = "Reading file"
	StageStaging    = "Loading rows into staging"
	StageValidating = "Validating rows"
	StageApplying   = "Applying changes"
	StageCleaning   = "Cleaning up"
	StageDone       = "Done"
)

type ImportProgress struct {
	Current       int64   `json:"current"`
	Total         int64   `json:"total"`
	Stage         string  `json:"stage"`
	RowsPerSecond float64 `json:"rowsPerSecond"`
	ETASeconds    float64 `json:"etaSeconds"`
}

type ImportFailure struct {
	RowNumber int64  `json:"row"`
	Message   string `json:"message"`
}

type ImportSummary struct {
	TotalRecords      int64 `json:"totalRecords"`
	NewRecords        int64 `json:"newRecords"`
	UpdatedRecords    int64 `json:"updatedRecords"`
	DuplicatesRemoved int64 `json:"duplicatesRemoved"`
	ErrorRecords      int64 `json:"errorRecords"`
}

// Reconciled checks new + updated + duplicates + errors == total.
func (s ImportSummary) Reconciled() bool {
	return s.NewRecords+s.UpdatedRecords+s.DuplicatesRemoved+s.ErrorRecords == s.TotalRecords
}

type JobResult struct {
	SuccessCount int64           `json:"success"`
	FailureCount int64           `json:"failed"`
	Errors       []ImportFailure `json:"errors"`
	Summary      ImportSummary   `json:"summary"`
	// StagingStrategy records which load path staged the rows.
	StagingStrategy string `json:"stagingStrategy,omitempty"`
}

type ImportJob struct {
	ID             string            `json:"id"`
	IdempotencyKey string            `json:"idempotencyKey"`
	TableType      TableType         `json:"tableType"`
	FileName       string            `json:"fileName"`
	FileSize       int64             `json:"fileSize"`
	AdditionalData map[string]string `json:"additionalData,omitempty"`
	Status         JobStatus         `json:"status"`
	Progress       ImportProgress    `json:"progress"`
	Result         *JobResult        `json:"result,omitempty"`
	Error          string            `json:"error,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	StartedAt      *time.Time        `json:"startedAt,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
}

// parentKeys are the additional-data keys accepted for a parent identifier.
var parentKeys = map[Field][]string{
	FieldTransferNumber: {"transfer_number", "transferNumber", "transfer_order_number", "transferOrderNumber"},
}

// ParentValue returns the parent identifier carried in additional data for
// schemas that need one.
func (j ImportJob) ParentValue(s *Schema) string {
	if s.ParentField == 0 {
		return ""
	}
	for _, key := range parentKeys[s.ParentField] {
		if v := strings.TrimSpace(j.AdditionalData[key]); v != "" {
			return v
		}
	}
	return ""
}
