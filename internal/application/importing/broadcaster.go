package importing

import (
	"context"
	"sync"
	"time"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type BroadcasterConfig struct {
	PingInterval time.Duration
	// CompletedGrace and FailedGrace keep a finished job's subscriptions open
	// so clients can render the final state.
	CompletedGrace time.Duration
	FailedGrace    time.Duration
	Buffer         int
}

// Broadcaster fans job events out to per-job subscribers. It is an
// EventPublisher and must be registered with the queue's publisher.
type Broadcaster struct {
	cfg BroadcasterConfig
	now func() time.Time

	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	latest map[string]domain.JobView
}

func NewBroadcaster(cfg BroadcasterConfig) *Broadcaster {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.CompletedGrace <= 0 {
		cfg.CompletedGrace = 5 * time.Second
	}
	if cfg.FailedGrace <= 0 {
		cfg.FailedGrace = 15 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}
	return &Broadcaster{
		cfg:    cfg,
		now:    time.Now,
		subs:   make(map[string]map[*subscription]struct{}),
		latest: make(map[string]domain.JobView),
	}
}

func (b *Broadcaster) Publish(_ context.Context, event domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := event.Job.ID
	b.latest[id] = event.Job
	for s := range b.subs[id] {
		s.deliver(event, event.Terminal())
	}
	if !event.Terminal() {
		return
	}

	grace := b.grace(event.Job.Status)
	for s := range b.subs[id] {
		b.closeAfter(s, grace)
	}
	delete(b.subs, id)
	time.AfterFunc(grace, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if v, ok := b.latest[id]; ok && v.Status.Terminal() {
			delete(b.latest, id)
		}
	})
}

// Subscribe attaches to a job. The first event on the channel is always a
// snapshot: the newest state the broadcaster has seen, or current when it has
// seen none.
func (b *Broadcaster) Subscribe(jobID string, current domain.JobView) Subscription {
	s := &subscription{
		broadcaster: b,
		jobID:       jobID,
		ch:          make(chan domain.Event, b.cfg.Buffer),
		done:        make(chan struct{}),
	}

	b.mu.Lock()
	view := current
	if latest, ok := b.latest[jobID]; ok {
		view = latest
	}
	s.deliver(domain.Event{Type: domain.EventSnapshot, Job: view, At: b.now()}, true)
	if view.Status.Terminal() {
		b.closeAfter(s, b.grace(view.Status))
	} else {
		if b.subs[jobID] == nil {
			b.subs[jobID] = make(map[*subscription]struct{})
		}
		b.subs[jobID][s] = struct{}{}
	}
	b.mu.Unlock()

	go s.keepAlive(b.cfg.PingInterval, b.now)
	return s
}

// Subscribers reports how many live subscriptions a job has.
func (b *Broadcaster) Subscribers(jobID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[jobID])
}

func (b *Broadcaster) grace(status domain.JobStatus) time.Duration {
	if status == domain.StatusCompleted {
		return b.cfg.CompletedGrace
	}
	return b.cfg.FailedGrace
}

func (b *Broadcaster) closeAfter(s *subscription, d time.Duration) {
	time.AfterFunc(d, s.Close)
}

func (b *Broadcaster) remove(s *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if set, ok := b.subs[s.jobID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(b.subs, s.jobID)
		}
	}
}

type subscription struct {
	broadcaster *Broadcaster
	jobID       string

	mu     sync.Mutex
	ch     chan domain.Event
	done   chan struct{}
	closed bool
}

func (s *subscription) Events() <-chan domain.Event { return s.ch }

// Close detaches the subscription and closes its channel. Safe to call more
// than once.
func (s *subscription) Close() {
	s.broadcaster.remove(s)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
}

// deliver never blocks. A full buffer drops the event, except for events
// that must arrive, which evict the oldest buffered one instead.
func (s *subscription) deliver(event domain.Event, mustArrive bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	select {
	case s.ch <- event:
		return
	default:
	}
	if !mustArrive {
		return
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- event:
	default:
	}
}

func (s *subscription) keepAlive(interval time.Duration, now func() time.Time) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.deliver(domain.Event{Type: domain.EventPing, Job: domain.JobView{ID: s.jobID}, At: now()}, false)
		}
	}
}
