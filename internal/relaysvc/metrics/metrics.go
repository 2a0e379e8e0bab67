package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Relay holds the relay's collectors. A nil *Relay, or one built without a
// registerer, records nothing.
type Relay struct {
	events        *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	applyDuration *prometheus.HistogramVec
	notifications *prometheus.CounterVec
	viewers       prometheus.Gauge
	transactions  *prometheus.CounterVec
	persistFails  *prometheus.CounterVec
	commands      *prometheus.CounterVec
}

// NewRelay registers the relay metrics on the provided registerer.
func NewRelay(reg prometheus.Registerer) *Relay {
	if reg == nil {
		return &Relay{}
	}
	m := &Relay{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_hardware_events_total",
			Help: "Hardware events accepted by ingress.",
		}, []string{"kind"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_hardware_events_dropped_total",
			Help: "Hardware messages dropped before reconciliation.",
		}, []string{"reason"}),
		applyDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relay_event_apply_seconds",
			Help:    "Time spent applying one event.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_notifications_total",
			Help: "Viewer notifications emitted.",
		}, []string{"type"}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_viewers",
			Help: "Connected viewers.",
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_transactions_total",
			Help: "Transactions persisted.",
		}, []string{"kind"}),
		persistFails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_persistence_failures_total",
			Help: "Store operations that failed.",
		}, []string{"op"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_total",
			Help: "Set-balance commands by outcome.",
		}, []string{"result"}),
	}
	reg.MustRegister(
		m.events,
		m.dropped,
		m.applyDuration,
		m.notifications,
		m.viewers,
		m.transactions,
		m.persistFails,
		m.commands,
	)
	return m
}

func (m *Relay) IncEvent(kind string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Relay) IncDropped(reason string) {
	if m == nil || m.dropped == nil {
		return
	}
	m.dropped.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Relay) ObserveApply(kind string, d time.Duration) {
	if m == nil || m.applyDuration == nil {
		return
	}
	m.applyDuration.WithLabelValues(normalizeLabel(kind)).Observe(d.Seconds())
}

func (m *Relay) IncNotification(msgType string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(msgType)).Inc()
}

func (m *Relay) SetViewers(n int) {
	if m == nil || m.viewers == nil {
		return
	}
	m.viewers.Set(float64(n))
}

func (m *Relay) IncTransaction(kind string) {
	if m == nil || m.transactions == nil {
		return
	}
	m.transactions.WithLabelValues(normalizeLabel(kind)).Inc()
}

func (m *Relay) IncPersistFailure(op string) {
	if m == nil || m.persistFails == nil {
		return
	}
	m.persistFails.WithLabelValues(normalizeLabel(op)).Inc()
}

func (m *Relay) IncCommand(result string) {
	if m == nil || m.commands == nil {
		return
	}
	m.commands.WithLabelValues(normalizeLabel(result)).Inc()
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
