package bootstrap

import (
	"context"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// ImportAndWait submits a file and blocks until the job reaches a terminal
// state. Workers must already be running. onProgress may be nil.
func (a *App) ImportAndWait(ctx context.Context, in app.SubmitImportInput, onProgress func(domain.JobView)) (domain.JobView, error) {
	out, err := a.Submit.Execute(ctx, in)
	if err != nil {
		return domain.JobView{}, err
	}

	sub, err := a.Subscribe.Execute(ctx, app.SubscribeImportJobInput{ID: out.JobID})
	if err != nil {
		return domain.JobView{}, err
	}
	defer sub.Close()

	last := domain.JobView{ID: out.JobID}
	for {
		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case event, ok := <-sub.Events():
			if !ok {
				return a.GetJob.Execute(ctx, app.GetImportJobInput{ID: out.JobID})
			}
			if event.Type == domain.EventPing {
				continue
			}
			last = event.Job
			if onProgress != nil {
				onProgress(last)
			}
			if last.Status.Terminal() {
				return last, nil
			}
		}
	}
}
