package importing_test

import (
	"context"
	"testing"
	"time"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

func recv(t *testing.T, ch <-chan domain.Event) (domain.Event, bool) {
	t.Helper()
	select {
	case e, ok := <-ch:
		return e, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}, false
	}
}

func view(id string, status domain.JobStatus, current int64) domain.JobView {
	return domain.JobView{ID: id, Status: status, Progress: domain.ImportProgress{Current: current}}
}

func TestBroadcasterSendsSnapshotFirst(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{})
	sub := b.Subscribe("j1", view("j1", domain.StatusQueued, 0))
	defer sub.Close()

	e, _ := recv(t, sub.Events())
	if e.Type != domain.EventSnapshot || e.Job.Status != domain.StatusQueued {
		t.Fatalf("expected queued snapshot, got %+v", e)
	}

	b.Publish(context.Background(), domain.Event{Type: domain.EventProgress, Job: view("j1", domain.StatusProcessing, 10)})
	e, _ = recv(t, sub.Events())
	if e.Type != domain.EventProgress || e.Job.Progress.Current != 10 {
		t.Fatalf("expected progress event, got %+v", e)
	}
}

func TestBroadcasterSnapshotPrefersNewestState(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{})
	b.Publish(context.Background(), domain.Event{Type: domain.EventJobStarted, Job: view("j2", domain.StatusProcessing, 0)})

	sub := b.Subscribe("j2", view("j2", domain.StatusQueued, 0))
	defer sub.Close()

	e, _ := recv(t, sub.Events())
	if e.Job.Status != domain.StatusProcessing {
		t.Fatalf("expected processing snapshot, got %s", e.Job.Status)
	}
}

func TestBroadcasterClosesAfterGrace(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{CompletedGrace: 10 * time.Millisecond, FailedGrace: time.Hour})
	sub := b.Subscribe("j3", view("j3", domain.StatusProcessing, 0))
	recv(t, sub.Events())

	b.Publish(context.Background(), domain.Event{Type: domain.EventJobCompleted, Job: view("j3", domain.StatusCompleted, 5)})
	e, _ := recv(t, sub.Events())
	if e.Type != domain.EventJobCompleted {
		t.Fatalf("expected completion event, got %s", e.Type)
	}
	if _, ok := recv(t, sub.Events()); ok {
		t.Fatal("expected channel to close after grace")
	}
	if n := b.Subscribers("j3"); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestBroadcasterSlowSubscriberKeepsTerminalEvent(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{Buffer: 2, FailedGrace: time.Hour})
	sub := b.Subscribe("j4", view("j4", domain.StatusProcessing, 0))
	defer sub.Close()

	for i := int64(1); i <= 50; i++ {
		b.Publish(context.Background(), domain.Event{Type: domain.EventProgress, Job: view("j4", domain.StatusProcessing, i)})
	}
	b.Publish(context.Background(), domain.Event{Type: domain.EventJobFailed, Job: view("j4", domain.StatusFailed, 50)})

	var last domain.Event
	for i := 0; i < 2; i++ {
		last, _ = recv(t, sub.Events())
	}
	if last.Type != domain.EventJobFailed {
		t.Fatalf("expected terminal event to survive, got %s", last.Type)
	}
}

func TestBroadcasterCloseDetaches(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{})
	sub := b.Subscribe("j5", view("j5", domain.StatusProcessing, 0))
	if n := b.Subscribers("j5"); n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}
	sub.Close()
	sub.Close()
	if n := b.Subscribers("j5"); n != 0 {
		t.Fatalf("expected 0 subscribers, got %d", n)
	}
	b.Publish(context.Background(), domain.Event{Type: domain.EventProgress, Job: view("j5", domain.StatusProcessing, 1)})
}

func TestBroadcasterPings(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{PingInterval: 10 * time.Millisecond})
	sub := b.Subscribe("j6", view("j6", domain.StatusProcessing, 0))
	defer sub.Close()

	recv(t, sub.Events())
	e, _ := recv(t, sub.Events())
	if e.Type != domain.EventPing {
		t.Fatalf("expected ping, got %s", e.Type)
	}
}

func TestBroadcasterTerminalSnapshotCloses(t *testing.T) {
	t.Parallel()

	b := app.NewBroadcaster(app.BroadcasterConfig{CompletedGrace: 10 * time.Millisecond})
	sub := b.Subscribe("j7", view("j7", domain.StatusCompleted, 3))

	e, _ := recv(t, sub.Events())
	if e.Type != domain.EventSnapshot || e.Job.Status != domain.StatusCompleted {
		t.Fatalf("unexpected snapshot %+v", e)
	}
	if _, ok := recv(t, sub.Events()); ok {
		t.Fatal("expected channel to close")
	}
}
