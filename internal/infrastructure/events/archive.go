package events

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type jobSaver interface {
	Save(ctx context.Context, job domain.JobView) error
}

// ArchiveSink persists terminal job snapshots off the queue's lock. Events
// arriving while the buffer is full are dropped and counted.
type ArchiveSink struct {
	saver   jobSaver
	logger  *zap.Logger
	timeout time.Duration
	ch      chan domain.JobView
	dropped atomic.Int64
}

func NewArchiveSink(saver jobSaver, buffer int, logger *zap.Logger) *ArchiveSink {
	if buffer <= 0 {
		buffer = 256
	}
	return &ArchiveSink{
		saver:   saver,
		logger:  logger.Named("archive"),
		timeout: 10 * time.Second,
		ch:      make(chan domain.JobView, buffer),
	}
}

func (s *ArchiveSink) Publish(_ context.Context, event domain.Event) {
	if !event.Terminal() {
		return
	}
	select {
	case s.ch <- event.Job:
	default:
		s.dropped.Add(1)
		s.logger.Warn("archive buffer full, dropping job snapshot", zap.String("job_id", event.Job.ID))
	}
}

func (s *ArchiveSink) Dropped() int64 { return s.dropped.Load() }

// Run saves snapshots until ctx is done, then flushes what is already
// buffered.
func (s *ArchiveSink) Run(ctx context.Context) error {
	for {
		select {
		case job := <-s.ch:
			s.save(ctx, job)
		case <-ctx.Done():
			s.flush(context.WithoutCancel(ctx))
			return nil
		}
	}
}

func (s *ArchiveSink) flush(ctx context.Context) {
	for {
		select {
		case job := <-s.ch:
			s.save(ctx, job)
		default:
			return
		}
	}
}

func (s *ArchiveSink) save(ctx context.Context, job domain.JobView) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.saver.Save(ctx, job); err != nil {
		s.logger.Error("archive import job", zap.String("job_id", job.ID), zap.Error(err))
	}
}
