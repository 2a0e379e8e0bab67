package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	paho "github.com/eclipse/paho.mqtt.golang"
	log "github.com/sirupsen/logrus"
)

var ErrTimeout = errors.New("mqtt operation timed out")

type Options struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	Timeout  time.Duration

	// optional last will, e.g. a device announcing "offline"
	WillTopic   string
	WillPayload string
}

type Mqtt struct {
	Broker string
	Client paho.Client

	qos     byte
	timeout time.Duration

	mu   sync.Mutex
	subs map[string]comm.Handler
}

// Connect starts the client. The first connection attempt and every later
// reconnect happen in the background; subscriptions are (re)applied from the
// on-connect handler.
func Connect(o Options) *Mqtt {
	m := &Mqtt{
		Broker:  o.Broker,
		qos:     o.QoS,
		timeout: o.Timeout,
		subs:    make(map[string]comm.Handler),
	}
	if m.timeout <= 0 {
		m.timeout = 5 * time.Second
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(true).
		SetOnConnectHandler(m.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnf("MQTT connection lost: %v", err)
		})

	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.WillTopic != "" {
		opts.SetWill(o.WillTopic, o.WillPayload, o.QoS, true)
	}

	m.Client = paho.NewClient(opts)
	m.Client.Connect()

	return m
}

func (m *Mqtt) onConnect(c paho.Client) {
	log.Infof("MQTT connected to %s", m.Broker)

	m.mu.Lock()
	subs := make(map[string]comm.Handler, len(m.subs))
	for topic, h := range m.subs {
		subs[topic] = h
	}
	m.mu.Unlock()

	for topic, h := range subs {
		if err := m.subscribe(topic, h); err != nil {
			log.Errorf("MQTT resubscribe %s failed: %v", topic, err)
		}
	}
}

func (m *Mqtt) subscribe(topic string, handler comm.Handler) error {
	token := m.Client.Subscribe(topic, m.qos, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("subscribe %s: %w", topic, ErrTimeout)
	}
	return token.Error()
}

func (m *Mqtt) Subscribe(topic string, handler comm.Handler) error {
	m.mu.Lock()
	m.subs[topic] = handler
	m.mu.Unlock()

	if !m.Client.IsConnectionOpen() {
		return nil // applied by onConnect
	}
	return m.subscribe(topic, handler)
}

func (m *Mqtt) Publish(topic string, payload []byte) error {
	token := m.Client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		log.Errorf("Error publishing to topic %s: timeout", topic)
		return fmt.Errorf("publish %s: %w", topic, ErrTimeout)
	}
	if err := token.Error(); err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}
	return nil
}

func (m *Mqtt) Close() {
	m.Client.Disconnect(250)
}
