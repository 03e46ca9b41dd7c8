// Package metrics exposes Prometheus instrumentation for an acquisition session.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "stimlog"

// Drop reasons.
const (
	ReasonAcquisition = "acquisition"
	ReasonShape       = "shape"
)

// Metrics holds all session metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	RowsWritten   *prometheus.CounterVec
	FramesDropped *prometheus.CounterVec
	Presentations prometheus.Counter
	PollLatency   prometheus.Histogram
	State         *prometheus.GaugeVec

	registry *prometheus.Registry
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		RowsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows appended to the session log by phase",
		}, []string{"phase"}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded before composing a row",
		}, []string{"reason"}),
		Presentations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "presentations_total",
			Help:      "Completed stimulus presentations",
		}),
		PollLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Time spent blocked in a device frame pull",
			Buckets:   []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.032, 0.064, 0.25, 1},
		}),
		State: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "controller_state",
			Help:      "1 for the state the acquisition controller is currently in",
		}, []string{"state"}),
		registry: reg,
	}
}

// RecordRow increments the row counter for a phase.
func (m *Metrics) RecordRow(phase string) {
	if m == nil {
		return
	}
	m.RowsWritten.WithLabelValues(phase).Inc()
}

// RecordDrop increments the dropped-frame counter for a reason.
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordPresentation increments the presentation counter.
func (m *Metrics) RecordPresentation() {
	if m == nil {
		return
	}
	m.Presentations.Inc()
}

// ObservePoll records how long a pull blocked.
func (m *Metrics) ObservePoll(d time.Duration) {
	if m == nil {
		return
	}
	m.PollLatency.Observe(d.Seconds())
}

// SetState marks state as current and clears prev.
func (m *Metrics) SetState(prev, state string) {
	if m == nil {
		return
	}
	if prev != "" {
		m.State.WithLabelValues(prev).Set(0)
	}
	m.State.WithLabelValues(state).Set(1)
}

// Handler returns an HTTP handler for metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("Metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
