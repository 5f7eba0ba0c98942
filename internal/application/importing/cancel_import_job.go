package importing

import (
	"context"

	"github.com/google/uuid"
)

type CancelImportJobInput struct {
	ID string
}

type CancelImportJobOutput struct {
	Cancelled bool `json:"cancelled"`
}

type CancelImportJob interface {
	Execute(ctx context.Context, in CancelImportJobInput) (CancelImportJobOutput, error)
}

type jobCanceller interface {
	Cancel(ctx context.Context, id string) (bool, error)
}

type cancelImportJob struct {
	queue jobCanceller
}

func NewCancelImportJob(queue jobCanceller) CancelImportJob {
	return &cancelImportJob{queue: queue}
}

func (uc *cancelImportJob) Execute(ctx context.Context, in CancelImportJobInput) (CancelImportJobOutput, error) {
	if _, err := uuid.Parse(in.ID); err != nil {
		return CancelImportJobOutput{}, ErrInvalidJobID
	}
	cancelled, err := uc.queue.Cancel(ctx, in.ID)
	if err != nil {
		return CancelImportJobOutput{}, err
	}
	return CancelImportJobOutput{Cancelled: cancelled}, nil
}
