package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	TransportNats = "nats"
	TransportMqtt = "mqtt"

	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Settings is the typed view of the environment shared by the relay,
// device and cleanup services.
type Settings struct {
	HTTP     HTTPSettings
	Hardware HardwareSettings
	Store    StoreSettings
	Relay    RelaySettings
	Auth     AuthSettings
	Log      LogSettings
}

type HTTPSettings struct {
	Port           string   `envconfig:"RELAY_PORT" default:"8080"`
	RateLimit      int      `envconfig:"RATE_LIMIT" default:"300"`
	AllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"http://localhost:5173"`
}

type HardwareSettings struct {
	Transport      string        `envconfig:"HARDWARE_TRANSPORT" default:"nats"`
	TopicPrefix    string        `envconfig:"RELAY_TOPIC_PREFIX" default:"rfid/ivan_bright"`
	NatsURL        string        `envconfig:"NATS_URL" default:"nats://localhost:4224"`
	NatsToken      string        `envconfig:"NATS_TOKEN"`
	MqttBroker     string        `envconfig:"MQTT_BROKER" default:"tcp://localhost:1883"`
	MqttUsername   string        `envconfig:"MQTT_USERNAME"`
	MqttPassword   string        `envconfig:"MQTT_PASSWORD"`
	MqttQoS        uint8         `envconfig:"MQTT_QOS" default:"1"`
	PublishTimeout time.Duration `envconfig:"HARDWARE_PUBLISH_TIMEOUT" default:"5s"`
}

type StoreSettings struct {
	Driver      string        `envconfig:"STORE_DRIVER" default:"mongo"`
	MongoURI    string        `envconfig:"MONGODB_URI" default:"mongodb://localhost:27017/rfid_db"`
	PostgresURL string        `envconfig:"POSTGRES_URL"`
	Timeout     time.Duration `envconfig:"RELAY_STORE_TIMEOUT" default:"5s"`
}

type RelaySettings struct {
	PresenceTimeout    time.Duration `envconfig:"PRESENCE_TIMEOUT" default:"3s"`
	WatchdogTick       time.Duration `envconfig:"WATCHDOG_TICK" default:"1s"`
	QueueSize          int           `envconfig:"EVENT_QUEUE_SIZE" default:"256"`
	ViewerBuffer       int           `envconfig:"VIEWER_SEND_BUFFER" default:"64"`
	RecentTransactions int           `envconfig:"RECENT_TX_LIMIT" default:"50"`
}

type AuthSettings struct {
	JWTSecret string `envconfig:"JWT_SECRET_KEY" required:"true"`
}

type LogSettings struct {
	Dir   string `envconfig:"LOG_DIR" default:".l_g"`
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load reads Settings from the environment. Call LoadEnv first so values
// from .env are visible.
func Load() (*Settings, error) {
	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("parsing settings: %w", err)
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) validate() error {
	if err := s.Hardware.validate(); err != nil {
		return err
	}

	if err := s.Store.validate(); err != nil {
		return err
	}

	if s.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET_KEY must not be empty")
	}
	if s.Relay.PresenceTimeout <= 0 || s.Relay.WatchdogTick <= 0 {
		return fmt.Errorf("PRESENCE_TIMEOUT and WATCHDOG_TICK must be positive")
	}
	return nil
}

func (st *StoreSettings) validate() error {
	st.Driver = strings.ToLower(strings.TrimSpace(st.Driver))
	switch st.Driver {
	case StoreMongo, StoreMemory:
	case StorePostgres:
		if st.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", st.Driver)
	}
	if st.Timeout <= 0 {
		return fmt.Errorf("RELAY_STORE_TIMEOUT must be positive")
	}
	return nil
}

func (h *HardwareSettings) validate() error {
	h.Transport = strings.ToLower(strings.TrimSpace(h.Transport))
	switch h.Transport {
	case TransportNats, TransportMqtt:
	default:
		return fmt.Errorf("unsupported HARDWARE_TRANSPORT %q", h.Transport)
	}

	h.TopicPrefix = strings.TrimRight(h.TopicPrefix, "/")
	if h.TopicPrefix == "" {
		return fmt.Errorf("RELAY_TOPIC_PREFIX must not be empty")
	}
	if h.MqttQoS > 2 {
		return fmt.Errorf("MQTT_QOS must be 0, 1 or 2")
	}
	return nil
}

// DeviceSettings configures the simulated card reader.
type DeviceSettings struct {
	UID               string        `envconfig:"DEVICE_UID" default:"A1B2C3D4"`
	Heartbeats        int           `envconfig:"DEVICE_HEARTBEATS" default:"5"`
	HeartbeatInterval time.Duration `envconfig:"DEVICE_HEARTBEAT_INTERVAL" default:"1s"`
	DefaultBalance    string        `envconfig:"DEVICE_DEFAULT_BALANCE" default:"50"`
	SendRemoved       bool          `envconfig:"DEVICE_SEND_REMOVED" default:"false"`
}

type DeviceConfig struct {
	Hardware HardwareSettings
	Device   DeviceSettings
	Log      LogSettings
}

// LoadDevice reads the subset of settings the device simulator needs.
func LoadDevice() (*DeviceConfig, error) {
	var d DeviceConfig
	if err := envconfig.Process("", &d); err != nil {
		return nil, fmt.Errorf("parsing device settings: %w", err)
	}
	if err := d.Hardware.validate(); err != nil {
		return nil, err
	}
	if d.Device.Heartbeats < 0 {
		return nil, fmt.Errorf("DEVICE_HEARTBEATS must not be negative")
	}
	return &d, nil
}

// MaintenanceConfig drives the offline cleanup command.
type MaintenanceConfig struct {
	Store  StoreSettings
	Log    LogSettings
	DryRun bool `envconfig:"CLEANUP_DRY_RUN" default:"false"`
}

func LoadMaintenance() (*MaintenanceConfig, error) {
	var m MaintenanceConfig
	if err := envconfig.Process("", &m); err != nil {
		return nil, fmt.Errorf("parsing maintenance settings: %w", err)
	}
	if err := m.Store.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
