package importing

import (
	"context"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// EventPublisher receives every job lifecycle and progress event. The queue
// publishes while holding its lock so that events for one job arrive in
// order; implementations must not block and must not call back into the
// queue.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}

// MultiPublisher fans an event out to every sink in order.
type MultiPublisher []EventPublisher

func (m MultiPublisher) Publish(ctx context.Context, event domain.Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ctx, event)
		}
	}
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.Event) {}
