// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// An import is a batch job, not a long-running server, so there is nothing to
// scrape: collectors live in a private registry and Flush pushes them to a
// Pushgateway under the job's grouping key.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"so2pg/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // dataset, step, status
	stepDuration *prometheus.SummaryVec // dataset, step, status
	rowCounter   *prometheus.CounterVec // dataset
	byteCounter  *prometheus.CounterVec // dataset
	fileCounter  *prometheus.CounterVec // status
}

// NewBackend constructs a Prometheus Pushgateway backend. An empty jobName
// defaults to "so2pg".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "so2pg"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Import step executions by dataset, step and status.",
		}, []string{"dataset", "step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDurationSeconds,
			Help:       "Import step duration in seconds by dataset, step and status.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"dataset", "step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows streamed to the loader by dataset.",
		}, []string{"dataset"}),
		byteCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.BytesTotal,
			Help: "Bytes streamed to the loader by dataset.",
		}, []string{"dataset"}),
		fileCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.FilesTotal,
			Help: "Dump files imported by status.",
		}, []string{"status"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter": b.stepCounter,
		"step summary": b.stepDuration,
		"row counter":  b.rowCounter,
		"byte counter": b.byteCounter,
		"file counter": b.fileCounter,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	var c prometheus.Counter
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			c = b.stepCounter.WithLabelValues(labels["dataset"], labels["step"], labels["status"])
		}
	case metrics.RowsTotal:
		if b.rowCounter != nil {
			c = b.rowCounter.WithLabelValues(labels["dataset"])
		}
	case metrics.BytesTotal:
		if b.byteCounter != nil {
			c = b.byteCounter.WithLabelValues(labels["dataset"])
		}
	case metrics.FilesTotal:
		if b.fileCounter != nil {
			c = b.fileCounter.WithLabelValues(labels["status"])
		}
	}
	if c != nil {
		c.Add(delta)
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if name != metrics.StepDurationSeconds || b.stepDuration == nil {
		return
	}
	b.stepDuration.WithLabelValues(labels["dataset"], labels["step"], labels["status"]).Observe(value)
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
