package importing

import (
	"time"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

// throughput turns a running row count into rate and ETA figures.
type throughput struct {
	started time.Time
	now     func() time.Time
}

func newThroughput(now func() time.Time) *throughput {
	return &throughput{started: now(), now: now}
}

func (t *throughput) progress(current, total int64, stage string) domain.ImportProgress {
	p := domain.ImportProgress{Current: current, Total: total, Stage: stage}
	elapsed := t.now().Sub(t.started).Seconds()
	if elapsed <= 0 || current <= 0 {
		return p
	}
	p.RowsPerSecond = float64(current) / elapsed
	if total > current {
		p.ETASeconds = float64(total-current) / p.RowsPerSecond
	}
	return p
}

// staging reports progress while the total is still unknown, projecting the
// ETA from the reader's estimate when it has one.
func (t *throughput) staging(current, estimated int64) domain.ImportProgress {
	p := t.progress(current, 0, domain.StageStaging)
	if p.RowsPerSecond > 0 && estimated > current {
		p.ETASeconds = float64(estimated-current) / p.RowsPerSecond
	}
	return p
}
