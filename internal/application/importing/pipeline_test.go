package importing_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	app "github.com/mohammadpnp/bulk-import/internal/application/importing"
	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

type fakeParser struct {
	opened int
}

func (p *fakeParser) Open(domain.TableType, string, []byte) (domain.RowReader, error) {
	p.opened++
	return emptyReader{}, nil
}

type emptyReader struct{}

func (emptyReader) Next(context.Context) (domain.ParsedRow, error) { return domain.ParsedRow{}, io.EOF }
func (emptyReader) Close() error                                  { return nil }

type fakeLoader struct {
	stageRows  int64
	estimate   int64
	stageErr   error
	validation domain.ValidationResult
	upsert     domain.UpsertResult
	upsertErr  error

	parent   string
	cleaned  []string
	upserted bool
}

func (l *fakeLoader) Stage(ctx context.Context, req domain.StageRequest) (domain.StageResult, error) {
	l.parent = req.Parent
	if _, err := req.Open(); err != nil {
		return domain.StageResult{}, err
	}
	if l.stageErr != nil {
		return domain.StageResult{}, l.stageErr
	}
	if l.estimate > 0 {
		// Let the clock move so a rate can be derived.
		time.Sleep(2 * time.Millisecond)
	}
	for i := int64(1); i <= l.stageRows; i++ {
		req.OnRow(i, l.estimate)
	}
	return domain.StageResult{Rows: l.stageRows, Strategy: "batched"}, nil
}

func (l *fakeLoader) Validate(context.Context, *domain.Schema, string) (domain.ValidationResult, error) {
	return l.validation, nil
}

func (l *fakeLoader) Upsert(context.Context, *domain.Schema, string) (domain.UpsertResult, error) {
	l.upserted = true
	return l.upsert, l.upsertErr
}

func (l *fakeLoader) Cleanup(_ context.Context, _ *domain.Schema, jobID string) error {
	l.cleaned = append(l.cleaned, jobID)
	return nil
}

type fakeReporter struct {
	reports  []domain.ImportProgress
	released bool
}

func (r *fakeReporter) Report(p domain.ImportProgress) { r.reports = append(r.reports, p) }
func (r *fakeReporter) ReleasePayload()                { r.released = true }

func task(tt domain.TableType) app.Task {
	return app.Task{
		Job:     domain.ImportJob{ID: "job-1", TableType: tt, FileName: "f.csv"},
		Payload: []byte("x"),
	}
}

func TestPipelineRunSuccess(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		stageRows: 100,
		validation: domain.ValidationResult{
			Valid:   80,
			Invalid: 20,
			Errors:  []domain.ImportFailure{{RowNumber: 5, Message: "item code is required"}},
		},
		upsert: domain.UpsertResult{Inserted: 60, Updated: 15, Duplicates: 5},
	}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{}, nil)
	rep := &fakeReporter{}

	result, err := p.Run(context.Background(), task(domain.TableItems), rep)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result.SuccessCount != 75 || result.FailureCount != 20 {
		t.Fatalf("unexpected counts: %+v", result)
	}
	if !result.Summary.Reconciled() {
		t.Fatalf("summary does not reconcile: %+v", result.Summary)
	}
	if result.StagingStrategy != "batched" {
		t.Fatalf("unexpected strategy %q", result.StagingStrategy)
	}
	if !rep.released {
		t.Fatal("expected payload to be released after staging")
	}
	if len(loader.cleaned) != 1 {
		t.Fatalf("expected one cleanup, got %d", len(loader.cleaned))
	}
}

func TestPipelineProjectsETAWhileStaging(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		stageRows:  10,
		estimate:   40,
		validation: domain.ValidationResult{Valid: 10},
		upsert:     domain.UpsertResult{Inserted: 10},
	}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{ProgressEvery: 5}, nil)
	rep := &fakeReporter{}

	if _, err := p.Run(context.Background(), task(domain.TableItems), rep); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var staging []domain.ImportProgress
	for _, r := range rep.reports {
		if r.Stage == domain.StageStaging {
			staging = append(staging, r)
		}
	}
	if len(staging) != 2 {
		t.Fatalf("expected 2 staging reports, got %d", len(staging))
	}
	for _, r := range staging {
		if r.Total != 0 {
			t.Fatalf("expected total to stay unknown while staging, got %d", r.Total)
		}
		if r.ETASeconds <= 0 {
			t.Fatalf("expected a positive ETA at %d rows, got %v", r.Current, r.ETASeconds)
		}
	}
}

func TestPipelineCleansUpWhenUpsertFails(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		stageRows:  10,
		validation: domain.ValidationResult{Valid: 10},
		upsertErr:  errors.New("deadlock detected"),
	}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{}, nil)

	_, err := p.Run(context.Background(), task(domain.TableItems), &fakeReporter{})
	if err == nil {
		t.Fatal("expected error")
	}
	if len(loader.cleaned) != 1 || loader.cleaned[0] != "job-1" {
		t.Fatalf("expected staging cleanup for job-1, got %v", loader.cleaned)
	}
}

func TestPipelineFailsWithoutValidRows(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		stageRows:  3,
		validation: domain.ValidationResult{Invalid: 3, Errors: []domain.ImportFailure{{RowNumber: 1, Message: "m"}}},
	}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{}, nil)

	result, err := p.Run(context.Background(), task(domain.TableItems), &fakeReporter{})
	if !errors.Is(err, domain.ErrNoValidRows) {
		t.Fatalf("expected ErrNoValidRows, got %v", err)
	}
	if result == nil || result.FailureCount != 3 || result.Summary.ErrorRecords != 3 {
		t.Fatalf("expected result with failures, got %+v", result)
	}
	if loader.upserted {
		t.Fatal("upsert must not run without valid rows")
	}
	if len(loader.cleaned) != 1 {
		t.Fatal("expected cleanup")
	}
}

func TestPipelineFailsOnEmptyFile(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{}, nil)

	result, err := p.Run(context.Background(), task(domain.TableItems), &fakeReporter{})
	if !errors.Is(err, domain.ErrNoDataRows) {
		t.Fatalf("expected ErrNoDataRows, got %v", err)
	}
	if result == nil || result.Summary.TotalRecords != 0 {
		t.Fatalf("expected empty result, got %+v", result)
	}
}

func TestPipelineReportsStagingProgress(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{
		stageRows:  2500,
		validation: domain.ValidationResult{Valid: 2500},
		upsert:     domain.UpsertResult{Inserted: 2500},
	}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{ProgressEvery: 1000}, nil)
	rep := &fakeReporter{}

	if _, err := p.Run(context.Background(), task(domain.TableItems), rep); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	var staging []int64
	stages := map[string]bool{}
	for _, r := range rep.reports {
		stages[r.Stage] = true
		if r.Stage == domain.StageStaging {
			staging = append(staging, r.Current)
		}
	}
	if len(staging) != 2 || staging[0] != 1000 || staging[1] != 2000 {
		t.Fatalf("unexpected staging progress %v", staging)
	}
	for _, s := range []string{domain.StageReading, domain.StageValidating, domain.StageApplying, domain.StageCleaning} {
		if !stages[s] {
			t.Fatalf("stage %q was never reported", s)
		}
	}
}

func TestPipelinePassesParentFromAdditionalData(t *testing.T) {
	t.Parallel()

	loader := &fakeLoader{stageErr: errors.New("stop")}
	p := app.NewPipeline(&fakeParser{}, loader, app.PipelineConfig{}, nil)

	tk := task(domain.TableTransferItems)
	tk.Job.AdditionalData = map[string]string{"transfer_number": "TO-9"}
	if _, err := p.Run(context.Background(), tk, &fakeReporter{}); err == nil {
		t.Fatal("expected stage error")
	}
	if loader.parent != "TO-9" {
		t.Fatalf("expected parent TO-9, got %q", loader.parent)
	}
}
