// Package observability exports editing and recovery activity as
// Prometheus metrics.
package observability

import (
	"context"
	"errors"
	"time"

	"github.com/dshills/mmdedit/internal/engine/cmdlog"
	"github.com/dshills/mmdedit/internal/engine/history"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the collectors.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	m := observability.NewMetrics(reg)
//	stack := history.NewStack(history.WithObserver(m))
//	log = m.InstrumentWriter(log, "jsonl")
type Metrics struct {
	// HistoryEvents counts stack activity.
	// Labels: event (push|evict|undo|redo)
	HistoryEvents *prometheus.CounterVec

	// PersistErrors counts commands that could not be written to the log.
	PersistErrors prometheus.Counter

	// LogAppends counts command log appends.
	// Labels: backend (jsonl|sqlite|memory), status (success|error)
	LogAppends *prometheus.CounterVec

	// LogAppendDuration measures append latency in seconds.
	// Labels: backend
	// Buckets: 0.0001s to 1s
	LogAppendDuration *prometheus.HistogramVec

	// Replays counts recovery replays.
	// Labels: status (complete|cancelled|failed)
	Replays *prometheus.CounterVec

	// ReplayedRecords counts records applied during replay.
	ReplayedRecords prometheus.Counter

	// ReplayDuration measures replay time in seconds.
	ReplayDuration prometheus.Histogram

	// ActiveSessions is the number of open editing sessions.
	ActiveSessions prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		HistoryEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmdedit_history_events_total",
				Help: "Total number of undo stack events by kind",
			},
			[]string{"event"},
		),

		PersistErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mmdedit_history_persist_errors_total",
				Help: "Total number of commands that could not be written to the command log",
			},
		),

		LogAppends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmdedit_log_appends_total",
				Help: "Total number of command log appends by backend and status",
			},
			[]string{"backend", "status"},
		),

		LogAppendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mmdedit_log_append_duration_seconds",
				Help:    "Duration of command log appends in seconds",
				Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
			[]string{"backend"},
		),

		Replays: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mmdedit_replays_total",
				Help: "Total number of command log replays by outcome",
			},
			[]string{"status"},
		),

		ReplayedRecords: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mmdedit_replayed_records_total",
				Help: "Total number of records applied during replay",
			},
		),

		ReplayDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mmdedit_replay_duration_seconds",
				Help:    "Duration of command log replays in seconds",
				Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1, 5, 10, 30},
			},
		),

		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mmdedit_sessions_active",
				Help: "Number of open editing sessions",
			},
		),
	}
}

var _ history.Observer = (*Metrics)(nil)

// OnPush implements history.Observer.
func (m *Metrics) OnPush(string) { m.HistoryEvents.WithLabelValues("push").Inc() }

// OnEvict implements history.Observer.
func (m *Metrics) OnEvict(string) { m.HistoryEvents.WithLabelValues("evict").Inc() }

// OnUndo implements history.Observer.
func (m *Metrics) OnUndo(string) { m.HistoryEvents.WithLabelValues("undo").Inc() }

// OnRedo implements history.Observer.
func (m *Metrics) OnRedo(string) { m.HistoryEvents.WithLabelValues("redo").Inc() }

// OnPersistError implements history.Observer.
func (m *Metrics) OnPersistError(string, error) { m.PersistErrors.Inc() }

// RecordReplay records the outcome of a replay.
func (m *Metrics) RecordReplay(res cmdlog.Result, err error) {
	status := "complete"
	switch {
	case errors.Is(err, cmdlog.ErrReplayCancelled):
		status = "cancelled"
	case err != nil:
		status = "failed"
	}
	m.Replays.WithLabelValues(status).Inc()
	m.ReplayedRecords.Add(float64(res.Applied))
	m.ReplayDuration.Observe(res.Duration.Seconds())
}

// SessionStarted increments the active session gauge.
func (m *Metrics) SessionStarted() {
	m.ActiveSessions.Inc()
}

// SessionEnded decrements the active session gauge.
func (m *Metrics) SessionEnded() {
	m.ActiveSessions.Dec()
}

// InstrumentWriter wraps w so every append is counted and timed under the
// given backend label.
func (m *Metrics) InstrumentWriter(w cmdlog.Writer, backend string) cmdlog.Writer {
	return &instrumentedWriter{Writer: w, metrics: m, backend: backend}
}

type instrumentedWriter struct {
	cmdlog.Writer
	metrics *Metrics
	backend string
}

func (w *instrumentedWriter) Append(ctx context.Context, typ string, current, previous any) (cmdlog.Record, error) {
	start := time.Now()
	rec, err := w.Writer.Append(ctx, typ, current, previous)
	status := "success"
	if err != nil {
		status = "error"
	}
	w.metrics.LogAppends.WithLabelValues(w.backend, status).Inc()
	w.metrics.LogAppendDuration.WithLabelValues(w.backend).Observe(time.Since(start).Seconds())
	return rec, err
}
