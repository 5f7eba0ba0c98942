package importing

import "time"

type EventType string

const (
	EventJobAdded     EventType = "job_added"
	EventJobStarted   EventType = "job_started"
	EventProgress     EventType = "progress"
	EventJobCompleted EventType = "job_completed"
	EventJobFailed    EventType = "job_failed"
	EventJobCancelled EventType = "job_cancelled"

	// Subscription-only messages.
	EventSnapshot EventType = "snapshot"
	EventPing     EventType = "ping"
)

// Event is published on every lifecycle transition and progress update. Job
// is a snapshot copy; consumers may keep it.
type Event struct {
	Type EventType `json:"type"`
	Job  JobView   `json:"job"`
	At   time.Time `json:"at"`
}

// Terminal reports whether the event closes the job's lifecycle.
func (e Event) Terminal() bool {
	return e.Type == EventJobCompleted || e.Type == EventJobFailed || e.Type == EventJobCancelled
}

// JobView is the payload-free projection of an ImportJob that is safe to hand
// to status callers and subscribers.
type JobView struct {
	ID             string         `json:"id"`
	TableType      TableType      `json:"tableType"`
	FileName       string         `json:"fileName"`
	FileSize       int64          `json:"fileSize"`
	IdempotencyKey string         `json:"idempotencyKey"`
	Status         JobStatus      `json:"status"`
	Progress       ImportProgress `json:"progress"`
	Result         *JobResult     `json:"result,omitempty"`
	Error          string         `json:"error,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
}

// View copies the job into a JobView. The result is immutable once attached
// so sharing the pointer is safe.
func (j ImportJob) View() JobView {
	return JobView{
		ID:             j.ID,
		TableType:      j.TableType,
		FileName:       j.FileName,
		FileSize:       j.FileSize,
		IdempotencyKey: j.IdempotencyKey,
		Status:         j.Status,
		Progress:       j.Progress,
		Result:         j.Result,
		Error:          j.Error,
		CreatedAt:      j.CreatedAt,
		StartedAt:      j.StartedAt,
		CompletedAt:    j.CompletedAt,
	}
}
