package importing

import (
	"context"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type ListImportJobsInput struct {
	Status    domain.JobStatus
	TableType domain.TableType
	Limit     int
}

type ListImportJobs interface {
	Execute(ctx context.Context, in ListImportJobsInput) ([]domain.JobView, error)
}

type jobLister interface {
	List() []domain.JobView
}

type listImportJobs struct {
	queue jobLister
}

func NewListImportJobs(queue jobLister) ListImportJobs {
	return &listImportJobs{queue: queue}
}

func (uc *listImportJobs) Execute(ctx context.Context, in ListImportJobsInput) ([]domain.JobView, error) {
	jobs := uc.queue.List()
	out := make([]domain.JobView, 0, len(jobs))
	for _, j := range jobs {
		if in.Status != "" && j.Status != in.Status {
			continue
		}
		if in.TableType != "" && j.TableType != in.TableType {
			continue
		}
		out = append(out, j)
		if in.Limit > 0 && len(out) == in.Limit {
			break
		}
	}
	return out, nil
}
