package nats

import (
	"strings"
	"sync"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
)

type Nats struct {
	Url   string
	Token string
	Conn  *nats.Conn

	flushTimeout time.Duration
	mu           sync.Mutex
	subs         []*nats.Subscription
}

// Connect dials the server. An unreachable server is not an error: the
// connection keeps retrying in the background so the service stays up.
func Connect(url, token, name string, flushTimeout time.Duration) (*Nats, error) {
	n := &Nats{
		Url:          url,
		Token:        token,
		flushTimeout: flushTimeout,
	}

	if n.Url == "" {
		n.Url = "nats://localhost:4224"
	}
	if n.flushTimeout <= 0 {
		n.flushTimeout = 5 * time.Second
	}

	opts := []nats.Option{
		nats.Name(name),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	}

	// if token provided
	if n.Token != "" {
		opts = append(opts, nats.Token(n.Token))
	}

	conn, err := nats.Connect(n.Url, opts...)
	if err != nil {
		return nil, err
	}

	n.Conn = conn

	return n, nil
}

// Subscribe registers handler for an MQTT style topic.
func (n *Nats) Subscribe(topic string, handler comm.Handler) error {
	sub, err := n.Conn.Subscribe(SubjectFromTopic(topic), func(m *nats.Msg) {
		handler(TopicFromSubject(m.Subject), m.Data)
	})
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.subs = append(n.subs, sub)
	n.mu.Unlock()
	return nil
}

// Publish sends payload and flushes so a dead link is reported to the caller
// instead of sitting in the reconnect buffer.
func (n *Nats) Publish(topic string, payload []byte) error {
	if err := n.Conn.Publish(SubjectFromTopic(topic), payload); err != nil {
		log.Errorf("Error publishing to topic %s: %s", topic, err)
		return err
	}
	if err := n.Conn.FlushTimeout(n.flushTimeout); err != nil {
		log.Errorf("Error flushing topic %s: %s", topic, err)
		return err
	}

	return nil
}

func (n *Nats) Close() {
	n.mu.Lock()
	for _, sub := range n.subs {
		sub.Unsubscribe()
	}
	n.subs = nil
	n.mu.Unlock()

	n.Conn.Close()
}

// SubjectFromTopic maps rfid/team/card/status to rfid.team.card.status, the
// same mapping the NATS server applies to MQTT clients.
func SubjectFromTopic(topic string) string {
	return strings.ReplaceAll(strings.Trim(topic, "/"), "/", ".")
}

func TopicFromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
