package importing

import (
	"context"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// Subscription streams a snapshot followed by live events for one job. The
// channel is closed once the job has finished and its grace period passed,
// or when Close is called.
type Subscription interface {
	Events() <-chan domain.Event
	Close()
}

type SubscribeImportJobInput struct {
	ID string
}

type SubscribeImportJob interface {
	Execute(ctx context.Context, in SubscribeImportJobInput) (Subscription, error)
}

type jobSubscriber interface {
	Subscribe(jobID string, current domain.JobView) Subscription
}

type subscribeImportJob struct {
	queue       jobReader
	archive     JobArchive
	broadcaster jobSubscriber
}

func NewSubscribeImportJob(queue jobReader, archive JobArchive, broadcaster jobSubscriber) SubscribeImportJob {
	return &subscribeImportJob{queue: queue, archive: archive, broadcaster: broadcaster}
}

func (uc *subscribeImportJob) Execute(ctx context.Context, in SubscribeImportJobInput) (Subscription, error) {
	view, err := lookupJob(ctx, uc.queue, uc.archive, in.ID)
	if err != nil {
		return nil, err
	}
	return uc.broadcaster.Subscribe(in.ID, view), nil
}
