package importing_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

func TestQueueAddJobDeduplicatesOutstandingKey(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		<-release
		return okResult(), nil
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1}, nil)

	first, dup, err := q.AddJob(context.Background(), newJob("k1"))
	if err != nil || dup {
		t.Fatalf("expected new job, got dup=%v err=%v", dup, err)
	}
	second, dup, err := q.AddJob(context.Background(), newJob("k1"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !dup || second != first {
		t.Fatalf("expected duplicate of %s, got %s (dup=%v)", first, second, dup)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	waitForStatus(t, q, first, domain.StatusProcessing)

	third, dup, _ := q.AddJob(context.Background(), newJob("k1"))
	if !dup || third != first {
		t.Fatal("expected processing job to keep its idempotency key")
	}

	close(release)
	waitForStatus(t, q, first, domain.StatusCompleted)

	fresh, dup, err := q.AddJob(context.Background(), newJob("k1"))
	if err != nil || dup || fresh == first {
		t.Fatalf("expected a new job once the first finished, got %s dup=%v err=%v", fresh, dup, err)
	}
}

func TestQueueCancelQueuedJobNeverRuns(t *testing.T) {
	t.Parallel()

	var ran []string
	done := make(chan struct{}, 1)
	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		ran = append(ran, task.Job.ID)
		done <- struct{}{}
		return okResult(), nil
	})
	pub := &recordingPublisher{}
	q := app.NewQueue(runner, pub, app.QueueConfig{Workers: 1}, nil)

	cancelled, _, _ := q.AddJob(context.Background(), newJob("a"))
	kept, _, _ := q.AddJob(context.Background(), newJob("b"))

	ok, err := q.Cancel(context.Background(), cancelled)
	if err != nil || !ok {
		t.Fatalf("expected cancel to succeed, got ok=%v err=%v", ok, err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)
	<-done
	waitForStatus(t, q, kept, domain.StatusCompleted)

	if len(ran) != 1 || ran[0] != kept {
		t.Fatalf("expected only %s to run, got %v", kept, ran)
	}
	view, _ := q.Get(cancelled)
	if view.Status != domain.StatusCancelled || view.Result != nil || view.CompletedAt == nil {
		t.Fatalf("unexpected cancelled job state: %+v", view)
	}
	events := pub.forJob(cancelled)
	if got := events[len(events)-1].Type; got != domain.EventJobCancelled {
		t.Fatalf("expected last event job_cancelled, got %s", got)
	}
}

func TestQueueCancelRejectsStartedJob(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		<-release
		return okResult(), nil
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1}, nil)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)

	id, _, _ := q.AddJob(context.Background(), newJob("busy"))
	waitForStatus(t, q, id, domain.StatusProcessing)

	ok, err := q.Cancel(context.Background(), id)
	if err != nil || ok {
		t.Fatalf("expected cancel to be refused, got ok=%v err=%v", ok, err)
	}
	close(release)
	waitForStatus(t, q, id, domain.StatusCompleted)

	if _, err := q.Cancel(context.Background(), "missing"); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestQueueProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		r.Report(domain.ImportProgress{Current: 5, Stage: domain.StageStaging})
		r.Report(domain.ImportProgress{Current: 3, Stage: domain.StageStaging})
		r.Report(domain.ImportProgress{Current: 10, Total: 10, Stage: domain.StageValidating})
		r.Report(domain.ImportProgress{Current: 10, Total: 20, Stage: domain.StageApplying})
		r.Report(domain.ImportProgress{Stage: domain.StageCleaning})
		return okResult(), nil
	})
	pub := &recordingPublisher{}
	q := app.NewQueue(runner, pub, app.QueueConfig{Workers: 1}, nil)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)

	id, _, _ := q.AddJob(context.Background(), newJob("progress"))
	view := waitForStatus(t, q, id, domain.StatusCompleted)

	var last int64
	var progressEvents int
	for _, e := range pub.forJob(id) {
		if e.Job.Progress.Current < last {
			t.Fatalf("progress went backwards: %d after %d", e.Job.Progress.Current, last)
		}
		last = e.Job.Progress.Current
		if e.Type == domain.EventProgress {
			progressEvents++
			if e.Job.Progress.Total != 0 && e.Job.Progress.Total != 10 {
				t.Fatalf("total changed after being set: %d", e.Job.Progress.Total)
			}
		}
	}
	if progressEvents != 5 {
		t.Fatalf("expected 5 progress events, got %d", progressEvents)
	}
	if view.Progress.Current != 10 || view.Progress.Total != 10 || view.Progress.Stage != domain.StageDone {
		t.Fatalf("unexpected final progress: %+v", view.Progress)
	}
}

func TestQueueFailsJobOnTimeout(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1, JobTimeout: 20 * time.Millisecond}, nil)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)

	id, _, _ := q.AddJob(context.Background(), newJob("slow"))
	view := waitForStatus(t, q, id, domain.StatusFailed)
	if !strings.Contains(view.Error, "timed out") {
		t.Fatalf("expected timeout error, got %q", view.Error)
	}
}

func TestQueueRecordsResultOnFailure(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		return &domain.JobResult{FailureCount: 2}, domain.ErrNoValidRows
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1}, nil)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)

	id, _, _ := q.AddJob(context.Background(), newJob("invalid"))
	view := waitForStatus(t, q, id, domain.StatusFailed)
	if view.Result == nil || view.Result.FailureCount != 2 {
		t.Fatalf("expected result to be attached, got %+v", view.Result)
	}
	if view.Error != domain.ErrNoValidRows.Error() {
		t.Fatalf("unexpected error %q", view.Error)
	}
}

func TestQueueRunsJobsInSubmissionOrder(t *testing.T) {
	t.Parallel()

	var order []string
	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		order = append(order, task.Job.IdempotencyKey)
		return okResult(), nil
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1}, nil)

	var ids []string
	for _, key := range []string{"1", "2", "3", "4"} {
		id, _, _ := q.AddJob(context.Background(), newJob(key))
		ids = append(ids, id)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)
	waitForStatus(t, q, ids[3], domain.StatusCompleted)

	if strings.Join(order, ",") != "1,2,3,4" {
		t.Fatalf("expected FIFO order, got %v", order)
	}
}

func TestQueueBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var running, peak int32
	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return okResult(), nil
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 2}, nil)

	var ids []string
	for i := 0; i < 6; i++ {
		id, _, _ := q.AddJob(context.Background(), newJob(string(rune('a'+i))))
		ids = append(ids, id)
	}
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)
	for _, id := range ids {
		waitForStatus(t, q, id, domain.StatusCompleted)
	}
	if p := atomic.LoadInt32(&peak); p > 2 {
		t.Fatalf("expected at most 2 concurrent jobs, saw %d", p)
	}
}

func TestQueueSweepRemovesExpiredJobs(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		return okResult(), nil
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1, Retention: time.Millisecond}, nil)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)

	done, _, _ := q.AddJob(context.Background(), newJob("old"))
	waitForStatus(t, q, done, domain.StatusCompleted)
	time.Sleep(5 * time.Millisecond)

	if n := q.Sweep(); n != 1 {
		t.Fatalf("expected 1 job swept, got %d", n)
	}
	if _, err := q.Get(done); !errors.Is(err, domain.ErrJobNotFound) {
		t.Fatalf("expected swept job to be gone, got %v", err)
	}
}

func TestQueueReleasesPayloadAfterRun(t *testing.T) {
	t.Parallel()

	runner := runnerFunc(func(ctx context.Context, task app.Task, r app.Reporter) (*domain.JobResult, error) {
		if len(task.Payload) == 0 {
			return nil, errors.New("payload missing")
		}
		r.ReleasePayload()
		return okResult(), nil
	})
	q := app.NewQueue(runner, nil, app.QueueConfig{Workers: 1}, nil)
	ctx, stop := context.WithCancel(context.Background())
	defer stop()
	q.Start(ctx)

	id, _, _ := q.AddJob(context.Background(), newJob("payload"))
	view := waitForStatus(t, q, id, domain.StatusCompleted)
	if view.FileSize == 0 {
		t.Fatal("expected file size to be recorded")
	}
}
