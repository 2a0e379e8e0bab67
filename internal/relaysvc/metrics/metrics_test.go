package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRelayMetricsExport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRelay(reg)

	m.IncEvent("balance")
	m.IncEvent("balance")
	m.IncDropped("invalid_uid")
	m.IncNotification("card_status")
	m.SetViewers(3)
	m.IncTransaction("topup")
	m.IncPersistFailure("")
	m.IncCommand("published")
	m.ObserveApply("balance", 20*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	assert.Equal(t, 2.0, counterValue(t, mfs, "relay_hardware_events_total", "kind", "balance"))
	assert.Equal(t, 1.0, counterValue(t, mfs, "relay_hardware_events_dropped_total", "reason", "invalid_uid"))
	assert.Equal(t, 1.0, counterValue(t, mfs, "relay_persistence_failures_total", "op", "unknown"))
	assert.Equal(t, 1.0, counterValue(t, mfs, "relay_commands_total", "result", "published"))

	viewers := findMetricFamily(mfs, "relay_viewers")
	require.NotNil(t, viewers)
	assert.Equal(t, 3.0, viewers.GetMetric()[0].GetGauge().GetValue())
}

func TestNilRelayIsNoop(t *testing.T) {
	var m *Relay
	assert.NotPanics(t, func() {
		m.IncEvent("presence")
		m.SetViewers(1)
		m.ObserveApply("presence", time.Second)
	})

	unregistered := NewRelay(nil)
	assert.NotPanics(t, func() { unregistered.IncCommand("failed") })
}

func counterValue(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) float64 {
	t.Helper()
	mf := findMetricFamily(mfs, name)
	require.NotNil(t, mf, "metric %q not found", name)
	for _, metric := range mf.GetMetric() {
		for _, l := range metric.GetLabel() {
			if l.GetName() == label && l.GetValue() == value {
				return metric.GetCounter().GetValue()
			}
		}
	}
	t.Fatalf("metric %q missing label %s=%s", name, label, value)
	return 0
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}
