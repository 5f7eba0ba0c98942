package echo_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type fakeSubscription struct {
	ch     chan domain.Event
	closed bool
}

func (s *fakeSubscription) Events() <-chan domain.Event { return s.ch }
func (s *fakeSubscription) Close()                      { s.closed = true }

type fakeSubscribeUseCase struct {
	sub *fakeSubscription
	err error
}

func (f *fakeSubscribeUseCase) Execute(ctx context.Context, in app.SubscribeImportJobInput) (app.Subscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.sub, nil
}

func TestStreamWritesSnapshotPingAndTerminalEvent(t *testing.T) {
	t.Parallel()

	sub := &fakeSubscription{ch: make(chan domain.Event, 3)}
	sub.ch <- domain.Event{Type: domain.EventSnapshot, Job: domain.JobView{ID: jobID, Status: domain.StatusProcessing}}
	sub.ch <- domain.Event{Type: domain.EventPing}
	sub.ch <- domain.Event{Type: domain.EventJobCompleted, Job: domain.JobView{ID: jobID, Status: domain.StatusCompleted}}
	close(sub.ch)

	e := newServer(&fakeSubmitUseCase{}, nil, &fakeSubscribeUseCase{sub: sub})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/jobs/"+jobID+"/events", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	body := rec.Body.String()
	snapshot := strings.Index(body, "event: snapshot\n")
	ping := strings.Index(body, ": ping\n\n")
	done := strings.Index(body, "event: job_completed\n")
	if snapshot < 0 || ping < snapshot || done < ping {
		t.Fatalf("unexpected stream order:\n%s", body)
	}
	if !sub.closed {
		t.Fatal("subscription must be closed when the stream ends")
	}
}

func TestStreamUnknownJob(t *testing.T) {
	t.Parallel()

	e := newServer(&fakeSubmitUseCase{}, nil, &fakeSubscribeUseCase{err: domain.ErrJobNotFound})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/imports/jobs/"+jobID+"/events", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
