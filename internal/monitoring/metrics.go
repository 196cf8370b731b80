package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
// Every Record method is safe on a nil *Metrics, so components can run
// without instrumentation.
type Metrics struct {
	registry *prometheus.Registry

	// Policy metrics
	Decisions  *prometheus.CounterVec
	Violations *prometheus.CounterVec

	// Integrity metrics
	Derivations *prometheus.CounterVec

	// Bridge metrics
	BridgeMessages *prometheus.CounterVec
	Injections     *prometheus.CounterVec

	// Clipboard metrics
	ClipboardPublished  prometheus.Counter
	ClipboardRejected   prometheus.Counter
	ClipboardDeliveries *prometheus.CounterVec

	// Script metrics
	Scripts        *prometheus.CounterVec
	UncaughtErrors prometheus.Counter

	// Session metrics
	SessionsActive prometheus.Gauge
	WindowsActive  prometheus.Gauge
	Navigations    prometheus.Counter

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	WSConnections   prometheus.Gauge

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time

	snapshot Snapshot
	mu       sync.RWMutex
}

// Snapshot holds current values for the JSON API
type Snapshot struct {
	Decisions      int64 `json:"decisions"`
	Violations     int64 `json:"violations"`
	BridgeDropped  int64 `json:"bridge_dropped"`
	ClipboardStale int64 `json:"clipboard_stale"`
	ScriptFailures int64 `json:"script_failures"`
	UncaughtErrors int64 `json:"uncaught_errors"`
	Navigations    int64 `json:"navigations"`
	UptimeSeconds  int64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		Decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_policy_decisions_total",
				Help: "Total number of policy decisions",
			},
			[]string{"event", "action", "window"},
		),
		Violations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_policy_violations_total",
				Help: "Total number of denied actions",
			},
			[]string{"kind"},
		),

		Derivations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_integrity_derivations_total",
				Help: "Total number of integrity token derivations",
			},
			[]string{"result"},
		),

		BridgeMessages: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_bridge_messages_total",
				Help: "Total number of inbound bridge messages",
			},
			[]string{"kind", "result"},
		),
		Injections: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_bridge_injections_total",
				Help: "Total number of scripts injected into pages",
			},
			[]string{"kind"},
		),

		ClipboardPublished: f.NewCounter(
			prometheus.CounterOpts{
				Name: "examshell_clipboard_published_total",
				Help: "Total number of clipboard entries published",
			},
		),
		ClipboardRejected: f.NewCounter(
			prometheus.CounterOpts{
				Name: "examshell_clipboard_stale_total",
				Help: "Total number of stale clipboard entries rejected by receivers",
			},
		),
		ClipboardDeliveries: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_clipboard_deliveries_total",
				Help: "Total number of clipboard deliveries to windows",
			},
			[]string{"result"},
		),

		Scripts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_script_evaluations_total",
				Help: "Total number of script evaluations requested by the host",
			},
			[]string{"result"},
		),
		UncaughtErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "examshell_uncaught_script_errors_total",
				Help: "Total number of uncaught page script errors",
			},
		),

		SessionsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "examshell_sessions_active",
				Help: "Number of active exam sessions",
			},
		),
		WindowsActive: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "examshell_windows_active",
				Help: "Number of open browser windows",
			},
		),
		Navigations: f.NewCounter(
			prometheus.CounterOpts{
				Name: "examshell_navigations_total",
				Help: "Total number of allowed top-level navigations",
			},
		),

		RequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "examshell_http_requests_total",
				Help: "Total number of diagnostics HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "examshell_http_request_duration_seconds",
				Help:    "Diagnostics HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"method", "path"},
		),
		WSConnections: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "examshell_ws_connections",
				Help: "Number of active host event subscribers",
			},
		),

		Uptime: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "examshell_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}

	return m
}

// Registry returns the registry metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// RecordDecision records a dispatch verdict
func (m *Metrics) RecordDecision(event, action, window string) {
	if m == nil {
		return
	}
	m.Decisions.WithLabelValues(event, action, window).Inc()
	m.mu.Lock()
	m.snapshot.Decisions++
	m.mu.Unlock()
}

// RecordViolation records a denied action
func (m *Metrics) RecordViolation(kind string) {
	if m == nil {
		return
	}
	m.Violations.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.Violations++
	m.mu.Unlock()
}

// RecordDerivation records an integrity token derivation
func (m *Metrics) RecordDerivation(ok bool) {
	if m == nil {
		return
	}
	m.Derivations.WithLabelValues(result(ok)).Inc()
}

// RecordBridgeMessage records an inbound message and whether it was accepted
func (m *Metrics) RecordBridgeMessage(kind string, accepted bool) {
	if m == nil {
		return
	}
	res := "accepted"
	if !accepted {
		res = "dropped"
		m.mu.Lock()
		m.snapshot.BridgeDropped++
		m.mu.Unlock()
	}
	m.BridgeMessages.WithLabelValues(kind, res).Inc()
}

// RecordInjection records an outbound script injection
func (m *Metrics) RecordInjection(kind string) {
	if m == nil {
		return
	}
	m.Injections.WithLabelValues(kind).Inc()
}

// RecordClipboardPublish records a published clipboard entry
func (m *Metrics) RecordClipboardPublish() {
	if m == nil {
		return
	}
	m.ClipboardPublished.Inc()
}

// RecordClipboardStale records a rejected stale entry
func (m *Metrics) RecordClipboardStale() {
	if m == nil {
		return
	}
	m.ClipboardRejected.Inc()
	m.mu.Lock()
	m.snapshot.ClipboardStale++
	m.mu.Unlock()
}

// RecordClipboardDelivery records a delivery attempt to a window
func (m *Metrics) RecordClipboardDelivery(ok bool) {
	if m == nil {
		return
	}
	m.ClipboardDeliveries.WithLabelValues(result(ok)).Inc()
}

// RecordScript records the outcome of a host script evaluation
func (m *Metrics) RecordScript(ok bool) {
	if m == nil {
		return
	}
	m.Scripts.WithLabelValues(result(ok)).Inc()
	if !ok {
		m.mu.Lock()
		m.snapshot.ScriptFailures++
		m.mu.Unlock()
	}
}

// RecordUncaughtError records an uncaught page error
func (m *Metrics) RecordUncaughtError() {
	if m == nil {
		return
	}
	m.UncaughtErrors.Inc()
	m.mu.Lock()
	m.snapshot.UncaughtErrors++
	m.mu.Unlock()
}

// RecordNavigation records an allowed top-level navigation
func (m *Metrics) RecordNavigation() {
	if m == nil {
		return
	}
	m.Navigations.Inc()
	m.mu.Lock()
	m.snapshot.Navigations++
	m.mu.Unlock()
}

// SetSessionsActive sets the number of active sessions
func (m *Metrics) SetSessionsActive(count int) {
	if m == nil {
		return
	}
	m.SessionsActive.Set(float64(count))
}

// IncWindows increments open windows
func (m *Metrics) IncWindows() {
	if m == nil {
		return
	}
	m.WindowsActive.Inc()
}

// DecWindows decrements open windows
func (m *Metrics) DecWindows() {
	if m == nil {
		return
	}
	m.WindowsActive.Dec()
}

// RecordHTTPRequest records a diagnostics HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// IncWSConnections increments host event subscribers
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements host event subscribers
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// GetSnapshot returns current values for the JSON API
func (m *Metrics) GetSnapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	uptime := time.Since(m.startTime)
	m.Uptime.Set(uptime.Seconds())

	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snapshot
	s.UptimeSeconds = int64(uptime.Seconds())
	return s
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
