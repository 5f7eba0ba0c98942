package importing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type runnerFunc func(ctx context.Context, task app.Task, reporter app.Reporter) (*domain.JobResult, error)

func (f runnerFunc) Run(ctx context.Context, task app.Task, reporter app.Reporter) (*domain.JobResult, error) {
	return f(ctx, task, reporter)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
}

func (p *recordingPublisher) forJob(id string) []domain.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.Event
	for _, e := range p.events {
		if e.Job.ID == id {
			out = append(out, e)
		}
	}
	return out
}

func waitForStatus(t *testing.T, q *app.Queue, id string, want domain.JobStatus) domain.JobView {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		view, err := q.Get(id)
		if err != nil {
			t.Fatalf("get job: %v", err)
		}
		if view.Status == want {
			return view
		}
		time.Sleep(5 * time.Millisecond)
	}
	view, _ := q.Get(id)
	t.Fatalf("job %s: expected status %s, got %s", id, want, view.Status)
	return domain.JobView{}
}

func newJob(key string) app.NewJob {
	return app.NewJob{
		IdempotencyKey: key,
		TableType:      domain.TableItems,
		FileName:       "items.csv",
		Payload:        []byte("item_code,item_name\nA,1\n"),
	}
}

func okResult() *domain.JobResult {
	return &domain.JobResult{SuccessCount: 1, Summary: domain.ImportSummary{TotalRecords: 1, NewRecords: 1}}
}
