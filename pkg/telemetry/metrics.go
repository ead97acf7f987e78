package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for the specfleet engine.
type Metrics struct {
	config MetricsConfig

	// Plan metrics
	plansStarted    prometheus.Counter
	plansTerminated *prometheus.CounterVec
	planDuration    *prometheus.HistogramVec

	// Phase metrics
	phaseDuration *prometheus.HistogramVec

	// Remote call metrics
	remoteCalls    *prometheus.CounterVec
	remoteDuration *prometheus.HistogramVec
	remoteErrors   *prometheus.CounterVec

	// Fleet metrics
	unitsDetected    prometheus.Gauge
	unitsOperational prometheus.Gauge
	specOperational  prometheus.Gauge

	// System metrics
	activeExecutions prometheus.Gauge
	pendingPlans     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		plansStarted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_started_total",
				Help:      "Total number of plan executions started",
			},
		),
		plansTerminated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "plans_terminated_total",
				Help:      "Total number of plan executions terminated, by reason",
			},
			[]string{"reason"},
		),
		planDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "plan_duration_seconds",
				Help:      "Duration of plan execution in seconds",
				Buckets:   []float64{1, 10, 60, 300, 900, 1800, 3600, 7200},
			},
			[]string{"reason"},
		),

		phaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "phase_duration_seconds",
				Help:      "Duration of execution phases in seconds",
				Buckets:   []float64{0.1, 1, 5, 20, 60, 300, 1800},
			},
			[]string{"phase"},
		),

		remoteCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_calls_total",
				Help:      "Total number of remote endpoint calls",
			},
			[]string{"peer", "operation"},
		),
		remoteDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "remote_call_duration_seconds",
				Help:      "Duration of remote endpoint calls in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"peer", "operation"},
		),
		remoteErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "remote_errors_total",
				Help:      "Total number of failed remote endpoint calls",
			},
			[]string{"peer", "operation"},
		),

		unitsDetected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "units_detected",
				Help:      "Number of unit endpoints responding to probes",
			},
		),
		unitsOperational: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "units_operational",
				Help:      "Number of unit endpoints reporting operational",
			},
		),
		specOperational: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "spec_operational",
				Help:      "Whether the spectrograph reports operational (1=yes)",
			},
		),

		activeExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_executions",
				Help:      "Current number of in-flight plan executions",
			},
		),
		pendingPlans: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pending_plans",
				Help:      "Current number of plans waiting in the pending area",
			},
		),
	}

	registry.MustRegister(
		m.plansStarted,
		m.plansTerminated,
		m.planDuration,
		m.phaseDuration,
		m.remoteCalls,
		m.remoteDuration,
		m.remoteErrors,
		m.unitsDetected,
		m.unitsOperational,
		m.specOperational,
		m.activeExecutions,
		m.pendingPlans,
	)

	return m, nil
}

// RecordPlanStarted increments the counters for a newly started execution.
func (m *Metrics) RecordPlanStarted() {
	if m.plansStarted == nil {
		return
	}
	m.plansStarted.Inc()
	m.activeExecutions.Inc()
}

// RecordPlanTerminated records a terminated execution with its reason
// and total duration.
func (m *Metrics) RecordPlanTerminated(reason string, duration time.Duration) {
	if m.plansTerminated == nil {
		return
	}
	m.plansTerminated.WithLabelValues(reason).Inc()
	m.planDuration.WithLabelValues(reason).Observe(duration.Seconds())
	m.activeExecutions.Dec()
}

// RecordPhase records how long one execution phase took.
func (m *Metrics) RecordPhase(phase string, duration time.Duration) {
	if m.phaseDuration == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase).Observe(duration.Seconds())
}

// RecordRemoteCall records a remote endpoint call with its duration.
func (m *Metrics) RecordRemoteCall(peer, operation string, duration time.Duration) {
	if m.remoteCalls == nil {
		return
	}
	m.remoteCalls.WithLabelValues(peer, operation).Inc()
	m.remoteDuration.WithLabelValues(peer, operation).Observe(duration.Seconds())
}

// RecordRemoteError records a failed remote endpoint call.
func (m *Metrics) RecordRemoteError(peer, operation string) {
	if m.remoteErrors == nil {
		return
	}
	m.remoteErrors.WithLabelValues(peer, operation).Inc()
}

// SetFleetCounts sets the probe result gauges.
func (m *Metrics) SetFleetCounts(detected, operational int) {
	if m.unitsDetected == nil {
		return
	}
	m.unitsDetected.Set(float64(detected))
	m.unitsOperational.Set(float64(operational))
}

// SetSpecOperational sets the spectrograph operational gauge.
func (m *Metrics) SetSpecOperational(operational bool) {
	if m.specOperational == nil {
		return
	}
	value := 0.0
	if operational {
		value = 1.0
	}
	m.specOperational.Set(value)
}

// SetPendingPlans sets the current pending plan count.
func (m *Metrics) SetPendingPlans(count int) {
	if m.pendingPlans == nil {
		return
	}
	m.pendingPlans.Set(float64(count))
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer starts an HTTP server to expose metrics.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			// Log error but don't fail the application
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()

	return nil
}
