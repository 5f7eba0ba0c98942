// Package metrics exposes import job activity to Prometheus.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	domain "github.com/mohammadpnp/bulk-import/internal/domain/importing"
)

const namespace = "bulk_import"

// Recorder turns job events into metrics. It is registered as one of the
// queue's event sinks.
type Recorder struct {
	registry *prometheus.Registry

	jobs        *prometheus.CounterVec
	rows        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	queued      prometheus.Gauge
	running     prometheus.Gauge
	stagingRate *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Import jobs that reached a terminal state.",
		}, []string{"table_type", "status"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Imported rows by outcome.",
		}, []string{"table_type", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time from job start to completion.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"table_type", "status"}),
		queued: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_queued",
			Help:      "Jobs waiting for a worker.",
		}),
		running: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Jobs currently executing.",
		}),
		stagingRate: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "staging_rows_per_second",
			Help:      "Staging throughput of the most recent job per table type.",
		}, []string{"table_type"}),
	}
}

func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

func (r *Recorder) Publish(_ context.Context, event domain.Event) {
	job := event.Job
	tableType := job.TableType.String()

	switch event.Type {
	case domain.EventJobAdded:
		r.queued.Inc()
	case domain.EventJobStarted:
		r.queued.Dec()
		r.running.Inc()
	case domain.EventJobCancelled:
		r.queued.Dec()
		r.jobs.WithLabelValues(tableType, string(job.Status)).Inc()
	case domain.EventProgress:
		if job.Progress.Stage == domain.StageValidating && job.Progress.RowsPerSecond > 0 {
			r.stagingRate.WithLabelValues(tableType).Set(job.Progress.RowsPerSecond)
		}
	case domain.EventJobCompleted, domain.EventJobFailed:
		r.running.Dec()
		r.jobs.WithLabelValues(tableType, string(job.Status)).Inc()
		if job.StartedAt != nil && job.CompletedAt != nil {
			r.duration.WithLabelValues(tableType, string(job.Status)).Observe(job.CompletedAt.Sub(*job.StartedAt).Seconds())
		}
		if res := job.Result; res != nil {
			r.rows.WithLabelValues(tableType, "inserted").Add(float64(res.Summary.NewRecords))
			r.rows.WithLabelValues(tableType, "updated").Add(float64(res.Summary.UpdatedRecords))
			r.rows.WithLabelValues(tableType, "duplicate").Add(float64(res.Summary.DuplicatesRemoved))
			r.rows.WithLabelValues(tableType, "invalid").Add(float64(res.Summary.ErrorRecords))
		}
	}
}
