package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")

	s, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", s.HTTP.Port)
	assert.Equal(t, TransportNats, s.Hardware.Transport)
	assert.Equal(t, "rfid/ivan_bright", s.Hardware.TopicPrefix)
	assert.Equal(t, StoreMongo, s.Store.Driver)
	assert.Equal(t, 3*time.Second, s.Relay.PresenceTimeout)
	assert.Equal(t, time.Second, s.Relay.WatchdogTick)
	assert.Equal(t, 50, s.Relay.RecentTransactions)
	assert.Equal(t, []string{"http://localhost:5173"}, s.HTTP.AllowedOrigins)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadNormalizesAndValidates(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("HARDWARE_TRANSPORT", " MQTT ")
	t.Setenv("RELAY_TOPIC_PREFIX", "rfid/team_a/")
	t.Setenv("STORE_DRIVER", "memory")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, TransportMqtt, s.Hardware.Transport)
	assert.Equal(t, "rfid/team_a", s.Hardware.TopicPrefix)
	assert.Equal(t, StoreMemory, s.Store.Driver)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"transport":        {"HARDWARE_TRANSPORT": "amqp"},
		"driver":           {"STORE_DRIVER": "redis"},
		"postgres missing": {"STORE_DRIVER": "postgres"},
		"qos":              {"MQTT_QOS": "3"},
		"prefix":           {"RELAY_TOPIC_PREFIX": "/"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "secret")
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
		})
	}
}

func TestLoadDeviceSkipsRelaySecrets(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("DEVICE_UID", "CD34")
	t.Setenv("HARDWARE_TRANSPORT", "MQTT")

	d, err := LoadDevice()
	require.NoError(t, err)
	assert.Equal(t, "CD34", d.Device.UID)
	assert.Equal(t, 5, d.Device.Heartbeats)
	assert.Equal(t, TransportMqtt, d.Hardware.Transport)
}

func TestLoadMaintenance(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "")
	t.Setenv("STORE_DRIVER", "Postgres")
	t.Setenv("POSTGRES_URL", "postgres://relay@localhost/rfid")
	t.Setenv("CLEANUP_DRY_RUN", "true")

	m, err := LoadMaintenance()
	require.NoError(t, err)
	assert.Equal(t, StorePostgres, m.Store.Driver)
	assert.True(t, m.DryRun)
}
