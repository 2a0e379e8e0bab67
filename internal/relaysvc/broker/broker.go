package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/relaysvc/ingress"
	"github.com/avvvet/rfid-relay/internal/relaysvc/metrics"
	log "github.com/sirupsen/logrus"
)

type Broker struct {
	Channel comm.Channel
	Topics  comm.Topics
	Queue   *ingress.Queue
	metrics *metrics.Relay
	now     func() time.Time
}

func NewBroker(ch comm.Channel, topics comm.Topics, queue *ingress.Queue, m *metrics.Relay) *Broker {
	return &Broker{
		Channel: ch,
		Topics:  topics,
		Queue:   queue,
		metrics: m,
		now:     time.Now,
	}
}

// Subscribe starts feeding hardware messages into the queue. ctx bounds
// how long a callback may wait on a full queue.
func (b *Broker) Subscribe(ctx context.Context) error {
	handler := func(topic string, payload []byte) {
		b.handleMessage(ctx, topic, payload)
	}

	for _, topic := range []string{b.Topics.Status, b.Topics.Balance} {
		if err := b.Channel.Subscribe(topic, handler); err != nil {
			return err
		}
		log.Infof("subscribed to %s", topic)
	}
	return nil
}

// handles message coming from the card readers
func (b *Broker) handleMessage(ctx context.Context, topic string, payload []byte) {
	ev, err := ingress.Decode(topic, payload, b.now())
	if err != nil {
		b.metrics.IncDropped(ingress.DropReason(err))
		log.WithField("topic", topic).Debugf("dropping hardware message: %v", err)
		return
	}

	b.metrics.IncEvent(string(ev.Kind))
	if err := b.Queue.Push(ctx, ev); err != nil {
		log.WithField("uid", ev.UID()).Warnf("event not queued: %v", err)
	}
}

func (b *Broker) PublishTopup(cmd comm.TopupCommand) error {
	bytes, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return b.Channel.Publish(b.Topics.Topup, bytes)
}
