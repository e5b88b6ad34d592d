// Package metrics records operational metrics of an import run without tying
// the importer to a metrics system.
//
// A global Backend defaults to a no-op, so instrumentation is always safe to
// call. Concrete systems live in subpackages (prompush, datadog) and are
// installed once at startup with SetBackend.
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	StepTotal           = "so2pg_step_total"
	StepDurationSeconds = "so2pg_step_duration_seconds"
	RowsTotal           = "so2pg_rows_total"
	BytesTotal          = "so2pg_bytes_total"
	FilesTotal          = "so2pg_files_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep counts one execution of an import step (schema, resolve, load,
// finish) and observes its duration. dataset may be empty for run-level steps.
func RecordStep(job, dataset, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":     job,
		"dataset": dataset,
		"step":    step,
		"status":  status(err),
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows adds streamed rows for a dataset.
func RecordRows(job, dataset string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"job": job, "dataset": dataset})
}

// RecordBytes adds streamed bytes for a dataset.
func RecordBytes(job, dataset string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BytesTotal, float64(delta), Labels{"job": job, "dataset": dataset})
}

// RecordFile counts one imported (or failed) file.
func RecordFile(job string, err error) {
	backend.IncCounter(FilesTotal, 1, Labels{"job": job, "status": status(err)})
}
