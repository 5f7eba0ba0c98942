package importing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// Task is what a worker hands to the runner: the job snapshot at claim time
// plus the uploaded bytes.
type Task struct {
	Job     domain.ImportJob
	Payload []byte
}

// Reporter lets a runner push progress for the job it is executing.
type Reporter interface {
	Report(progress domain.ImportProgress)
	// ReleasePayload drops the queue's reference to the uploaded bytes.
	ReleasePayload()
}

// Runner executes one claimed job. A non-nil result is attached to the job
// even when err is set.
type Runner interface {
	Run(ctx context.Context, task Task, reporter Reporter) (*domain.JobResult, error)
}

type QueueConfig struct {
	Workers       int
	JobTimeout    time.Duration
	Retention     time.Duration
	SweepInterval time.Duration
}

// NewJob is a submission that passed synchronous checks.
type NewJob struct {
	IdempotencyKey string
	TableType      domain.TableType
	FileName       string
	AdditionalData map[string]string
	Payload        []byte
}

type queueEntry struct {
	job     domain.ImportJob
	payload []byte
}

// Queue is an in-memory FIFO job queue served by a fixed worker pool.
type Queue struct {
	runner    Runner
	publisher EventPublisher
	cfg       QueueConfig
	log       *zap.Logger
	now       func() time.Time

	mu      sync.Mutex
	entries map[string]*queueEntry
	// byKey holds idempotency keys of jobs that are queued or processing.
	byKey   map[string]string
	pending []string
	ready   chan struct{}

	once sync.Once
	wg   sync.WaitGroup
}

func NewQueue(runner Runner, publisher EventPublisher, cfg QueueConfig, log *zap.Logger) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 10 * time.Minute
	}
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		runner:    runner,
		publisher: publisher,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
		entries:   make(map[string]*queueEntry),
		byKey:     make(map[string]string),
		ready:     make(chan struct{}, 1),
	}
}

// AddJob enqueues a job unless one with the same idempotency key is still
// queued or processing, in which case that job's id is returned with
// duplicate set.
func (q *Queue) AddJob(ctx context.Context, in NewJob) (id string, duplicate bool, err error) {
	if in.IdempotencyKey == "" {
		return "", false, errors.New("idempotency key is required")
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.byKey[in.IdempotencyKey]; ok {
		return existing, true, nil
	}

	job := domain.ImportJob{
		ID:             uuid.NewString(),
		IdempotencyKey: in.IdempotencyKey,
		TableType:      in.TableType,
		FileName:       in.FileName,
		FileSize:       int64(len(in.Payload)),
		AdditionalData: in.AdditionalData,
		Status:         domain.StatusQueued,
		Progress:       domain.ImportProgress{Stage: domain.StageQueued},
		CreatedAt:      q.now(),
	}
	q.entries[job.ID] = &queueEntry{job: job, payload: in.Payload}
	q.byKey[job.IdempotencyKey] = job.ID
	q.pending = append(q.pending, job.ID)
	q.publishLocked(ctx, domain.EventJobAdded, job)
	q.signal()

	q.log.Info("import job queued",
		zap.String("job_id", job.ID),
		zap.String("table_type", job.TableType.String()),
		zap.String("file_name", job.FileName),
		zap.Int64("file_size", job.FileSize),
	)
	return job.ID, false, nil
}

func (q *Queue) Get(id string) (domain.JobView, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return domain.JobView{}, domain.ErrJobNotFound
	}
	return e.job.View(), nil
}

// List returns retained jobs, newest first.
func (q *Queue) List() []domain.JobView {
	q.mu.Lock()
	out := make([]domain.JobView, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.job.View())
	}
	q.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel cancels a job that has not started yet. It returns false for jobs
// that are already processing or finished.
func (q *Queue) Cancel(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return false, domain.ErrJobNotFound
	}
	if e.job.Status != domain.StatusQueued {
		return false, nil
	}

	now := q.now()
	e.job.Status = domain.StatusCancelled
	e.job.CompletedAt = &now
	e.job.Progress.Stage = domain.StageDone
	e.payload = nil
	q.releaseKeyLocked(e.job)
	for i, pid := range q.pending {
		if pid == id {
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.publishLocked(ctx, domain.EventJobCancelled, e.job)

	q.log.Info("import job cancelled", zap.String("job_id", id))
	return true, nil
}

// Start launches the workers and the retention sweeper. They stop when ctx
// is done; Wait blocks until they have.
func (q *Queue) Start(ctx context.Context) {
	q.once.Do(func() {
		for i := 0; i < q.cfg.Workers; i++ {
			q.wg.Add(1)
			go q.workerLoop(ctx)
		}
		q.wg.Add(1)
		go q.sweepLoop(ctx)
	})
}

func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) workerLoop(ctx context.Context) {
	defer q.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}
		task, ok := q.claimNext(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.ready:
			}
			continue
		}
		q.process(ctx, task)
	}
}

func (q *Queue) claimNext(ctx context.Context) (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]

		e, ok := q.entries[id]
		if !ok || e.job.Status != domain.StatusQueued {
			continue
		}

		now := q.now()
		e.job.Status = domain.StatusProcessing
		e.job.StartedAt = &now
		e.job.Progress.Stage = domain.StageReading
		q.publishLocked(ctx, domain.EventJobStarted, e.job)

		if len(q.pending) > 0 {
			q.signal()
		}
		return Task{Job: e.job, Payload: e.payload}, true
	}
	return Task{}, false
}

func (q *Queue) process(ctx context.Context, task Task) {
	jobCtx, cancel := context.WithTimeout(ctx, q.cfg.JobTimeout)
	defer cancel()

	id := task.Job.ID
	log := q.log.With(zap.String("job_id", id), zap.String("table_type", task.Job.TableType.String()))
	log.Info("import job started")

	result, err := q.runSafely(jobCtx, task, &jobReporter{queue: q, id: id, ctx: ctx})
	switch {
	case err == nil:
	case errors.Is(jobCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		err = fmt.Errorf("%w after %s", ErrJobTimedOut, q.cfg.JobTimeout)
	case ctx.Err() != nil:
		err = ErrQueueStopped
	}

	if err == nil && result == nil {
		result = &domain.JobResult{}
	}
	q.finish(ctx, id, result, err)
	if err != nil {
		log.Warn("import job failed", zap.Error(err))
		return
	}
	log.Info("import job completed",
		zap.Int64("success", result.SuccessCount),
		zap.Int64("failed", result.FailureCount),
	)
}

func (q *Queue) runSafely(ctx context.Context, task Task, reporter Reporter) (result *domain.JobResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import panicked: %v", r)
		}
	}()
	return q.runner.Run(ctx, task, reporter)
}

func (q *Queue) finish(ctx context.Context, id string, result *domain.JobResult, runErr error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return
	}

	now := q.now()
	e.job.CompletedAt = &now
	e.job.Result = result
	e.job.Progress.Stage = domain.StageDone
	e.payload = nil
	q.releaseKeyLocked(e.job)

	event := domain.EventJobCompleted
	e.job.Status = domain.StatusCompleted
	if runErr != nil {
		event = domain.EventJobFailed
		e.job.Status = domain.StatusFailed
		e.job.Error = truncateReason(runErr.Error())
	}
	// Lifecycle events outlive the worker's context on shutdown.
	q.publishLocked(context.WithoutCancel(ctx), event, e.job)
}

func (q *Queue) report(ctx context.Context, id string, p domain.ImportProgress) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok || e.job.Status != domain.StatusProcessing {
		return
	}
	cur := e.job.Progress
	if p.Current < cur.Current {
		p.Current = cur.Current
	}
	if cur.Total != 0 {
		p.Total = cur.Total
	}
	if p.Stage == "" {
		p.Stage = cur.Stage
	}
	e.job.Progress = p
	q.publishLocked(ctx, domain.EventProgress, e.job)
}

func (q *Queue) releasePayload(id string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.entries[id]; ok {
		e.payload = nil
	}
}

func (q *Queue) sweepLoop(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := q.Sweep(); n > 0 {
				q.log.Info("expired import jobs removed", zap.Int("count", n))
			}
		}
	}
}

// Sweep drops finished jobs older than the retention window and reports how
// many were removed.
func (q *Queue) Sweep() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-q.cfg.Retention)
	removed := 0
	for id, e := range q.entries {
		if !e.job.Status.Terminal() || e.job.CompletedAt == nil {
			continue
		}
		if e.job.CompletedAt.Before(cutoff) {
			delete(q.entries, id)
			removed++
		}
	}
	return removed
}

func (q *Queue) releaseKeyLocked(job domain.ImportJob) {
	if q.byKey[job.IdempotencyKey] == job.ID {
		delete(q.byKey, job.IdempotencyKey)
	}
}

func (q *Queue) publishLocked(ctx context.Context, t domain.EventType, job domain.ImportJob) {
	q.publisher.Publish(ctx, domain.Event{Type: t, Job: job.View(), At: q.now()})
}

func (q *Queue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

type jobReporter struct {
	queue *Queue
	id    string
	ctx   context.Context
}

func (r *jobReporter) Report(p domain.ImportProgress) { r.queue.report(r.ctx, r.id, p) }
func (r *jobReporter) ReleasePayload()                { r.queue.releasePayload(r.id) }

func truncateReason(reason string) string {
	const maxLen = 1000
	reason = strings.TrimSpace(reason)
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
