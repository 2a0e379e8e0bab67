// Package hwlink opens the configured hardware transport.
package hwlink

import (
	"fmt"

	config "github.com/avvvet/rfid-relay/configs"
	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/mqtt"
	natscli "github.com/avvvet/rfid-relay/internal/nats"
	log "github.com/sirupsen/logrus"
)

// Open returns a NATS or MQTT backed channel. name identifies this process
// on the broker and should be unique per instance.
func Open(hw config.HardwareSettings, name string, will *Will) (comm.Channel, error) {
	switch hw.Transport {
	case config.TransportNats:
		n, err := natscli.Connect(hw.NatsURL, hw.NatsToken, name, hw.PublishTimeout)
		if err != nil {
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		log.Infof("NATS connection configured %s", n.Url)
		return n, nil
	case config.TransportMqtt:
		o := mqtt.Options{
			Broker:   hw.MqttBroker,
			ClientID: name,
			Username: hw.MqttUsername,
			Password: hw.MqttPassword,
			QoS:      hw.MqttQoS,
			Timeout:  hw.PublishTimeout,
		}
		if will != nil {
			o.WillTopic = will.Topic
			o.WillPayload = will.Payload
		}
		m := mqtt.Connect(o)
		log.Infof("MQTT connection configured %s", m.Broker)
		return m, nil
	default:
		return nil, fmt.Errorf("unsupported hardware transport %q", hw.Transport)
	}
}

// Will is an MQTT last-will message; NATS has no equivalent and ignores it.
type Will struct {
	Topic   string
	Payload string
}
