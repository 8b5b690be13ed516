package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Detection
	Sweeps        prometheus.Counter
	ActiveWorkers prometheus.Gauge
	MotionEvents  *prometheus.CounterVec
	WorkerFaults  *prometheus.CounterVec

	// Notification
	Observers    prometheus.Gauge
	Broadcasts   prometheus.Counter
	SendFailures prometheus.Counter

	// Relays
	ActiveStreams prometheus.Gauge
	SpawnFailures prometheus.Counter
	AbnormalExits prometheus.Counter

	// Alarm
	AlarmPulses *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance on a private registry, so several
// instances can coexist (tests build one each).
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		Sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "detection_sweeps_total",
			Help: "Reconciliation passes of the detection supervisor",
		}),
		ActiveWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detection_active_workers",
			Help: "Detector workers currently running",
		}),
		MotionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detection_motion_events_total",
			Help: "Motion events emitted, by camera",
		}, []string{"camera"}),
		WorkerFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detection_worker_faults_total",
			Help: "Detector workers that ended in the faulted state, by camera",
		}, []string{"camera"}),

		Observers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "notify_observers",
			Help: "Connected observers",
		}),
		Broadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_broadcasts_total",
			Help: "Events fanned out to observers",
		}),
		SendFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "notify_send_failures_total",
			Help: "Observer sends that failed and pruned the observer",
		}),

		ActiveStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stream_active_relays",
			Help: "Relay processes currently tracked",
		}),
		SpawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_spawn_failures_total",
			Help: "Relay processes that failed to launch",
		}),
		AbnormalExits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stream_abnormal_exits_total",
			Help: "Relay processes that exited without being stopped",
		}),

		AlarmPulses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "alarm_pulses_total",
			Help: "Alarm pulse requests, by result",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.Sweeps, m.ActiveWorkers, m.MotionEvents, m.WorkerFaults,
		m.Observers, m.Broadcasts, m.SendFailures,
		m.ActiveStreams, m.SpawnFailures, m.AbnormalExits,
		m.AlarmPulses,
	)

	return m
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
