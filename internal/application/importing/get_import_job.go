package importing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type GetImportJobInput struct {
	ID string
}

type GetImportJob interface {
	Execute(ctx context.Context, in GetImportJobInput) (domain.JobView, error)
}

type jobReader interface {
	Get(id string) (domain.JobView, error)
}

// JobArchive serves jobs the in-memory queue no longer retains.
type JobArchive interface {
	FindByID(ctx context.Context, id string) (domain.JobView, error)
}

type getImportJob struct {
	queue   jobReader
	archive JobArchive
}

// NewGetImportJob builds the use case; archive may be nil.
func NewGetImportJob(queue jobReader, archive JobArchive) GetImportJob {
	return &getImportJob{queue: queue, archive: archive}
}

func (uc *getImportJob) Execute(ctx context.Context, in GetImportJobInput) (domain.JobView, error) {
	return lookupJob(ctx, uc.queue, uc.archive, in.ID)
}

func lookupJob(ctx context.Context, queue jobReader, archive JobArchive, id string) (domain.JobView, error) {
	if _, err := uuid.Parse(id); err != nil {
		return domain.JobView{}, ErrInvalidJobID
	}

	view, err := queue.Get(id)
	if err == nil {
		return view, nil
	}
	if !errors.Is(err, domain.ErrJobNotFound) {
		return domain.JobView{}, fmt.Errorf("%w: %v", ErrGetImportJob, err)
	}
	if archive == nil {
		return domain.JobView{}, domain.ErrJobNotFound
	}

	view, err = archive.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return domain.JobView{}, domain.ErrJobNotFound
		}
		return domain.JobView{}, fmt.Errorf("%w: %v", ErrGetImportJob, err)
	}
	return view, nil
}
