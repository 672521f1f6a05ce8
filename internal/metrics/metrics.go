// Package metrics exposes Prometheus metrics for an autoinstall run.
//
// Runs are short-lived batch jobs, so metrics are collected in a private
// registry and written to a node_exporter textfile at the end of the run.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "autoinstall"

// Recorder holds the metrics of a single run.
type Recorder struct {
	registry *prometheus.Registry

	phaseDuration        *prometheus.HistogramVec
	phaseTotal           *prometheus.CounterVec
	longTaskCancelled    *prometheus.CounterVec
	longTaskHangRecovery *prometheus.CounterVec
	cleanupTotal         *prometheus.CounterVec
	runOutcome           *prometheus.GaugeVec
	runDuration          prometheus.Gauge
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "phase",
				Name:      "duration_seconds",
				Help:      "Duration of workflow phases in seconds",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 16), // 1s to ~9h
			},
			[]string{"mode", "phase"},
		),

		phaseTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "phase",
				Name:      "total",
				Help:      "Total number of workflow phases by result",
			},
			[]string{"mode", "phase", "result"},
		),

		longTaskCancelled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "longtask",
				Name:      "cancelled_total",
				Help:      "Total number of long tasks cancelled for exceeding their budget",
			},
			[]string{"task"},
		),

		longTaskHangRecovery: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "longtask",
				Name:      "hang_recoveries_total",
				Help:      "Total number of interactive prompt hang recoveries",
			},
			[]string{"task"},
		),

		cleanupTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cleanup",
				Name:      "total",
				Help:      "Total number of cleanup actions by result",
			},
			[]string{"action", "result"},
		),

		runOutcome: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "outcome",
				Help:      "Outcome code of the run (0 success, 1 error, 2 timeout, 3 stream closed)",
			},
			[]string{"mode"},
		),

		runDuration: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "run",
				Name:      "duration_seconds",
				Help:      "Wall-clock duration of the run in seconds",
			},
		),
	}

	r.registry.MustRegister(
		r.phaseDuration,
		r.phaseTotal,
		r.longTaskCancelled,
		r.longTaskHangRecovery,
		r.cleanupTotal,
		r.runOutcome,
		r.runDuration,
	)
	return r
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordPhase records a finished phase.
func (r *Recorder) RecordPhase(mode, phase string, duration time.Duration, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.phaseDuration.WithLabelValues(mode, phase).Observe(duration.Seconds())
	r.phaseTotal.WithLabelValues(mode, phase, result).Inc()
}

// LongTaskCancelled records a long task cancellation.
func (r *Recorder) LongTaskCancelled(task string) {
	if r == nil {
		return
	}
	r.longTaskCancelled.WithLabelValues(task).Inc()
}

// LongTaskHangRecovery records a prompt hang recovery attempt.
func (r *Recorder) LongTaskHangRecovery(task string) {
	if r == nil {
		return
	}
	r.longTaskHangRecovery.WithLabelValues(task).Inc()
}

// RecordCleanup records a cleanup action.
func (r *Recorder) RecordCleanup(action string, err error) {
	if r == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	r.cleanupTotal.WithLabelValues(action, result).Inc()
}

// RecordRun records the outcome code and duration of the run.
func (r *Recorder) RecordRun(mode string, outcome int, duration time.Duration) {
	if r == nil {
		return
	}
	r.runOutcome.WithLabelValues(mode).Set(float64(outcome))
	r.runDuration.Set(duration.Seconds())
}

// WriteTextfile writes all metrics in the text exposition format to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
