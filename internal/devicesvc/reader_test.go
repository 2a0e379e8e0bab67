package devicesvc

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "rfid/ivan_bright"

type published struct {
	topic   string
	payload []byte
}

type loopback struct {
	mu       sync.Mutex
	handlers map[string]comm.Handler
	out      []published
}

func newLoopback() *loopback {
	return &loopback{handlers: make(map[string]comm.Handler)}
}

func (l *loopback) Subscribe(topic string, h comm.Handler) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[topic] = h
	return nil
}

func (l *loopback) Publish(topic string, payload []byte) error {
	l.mu.Lock()
	l.out = append(l.out, published{topic, payload})
	h := l.handlers[topic]
	l.mu.Unlock()
	if h != nil {
		h(topic, payload)
	}
	return nil
}

func (l *loopback) Close() {}

func (l *loopback) on(topic string) []map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []map[string]any
	for _, p := range l.out {
		if p.topic != topic {
			continue
		}
		var m map[string]any
		if json.Unmarshal(p.payload, &m) == nil {
			out = append(out, m)
		}
	}
	return out
}

func TestTopupAnswersWithTargetBalance(t *testing.T) {
	ch := newLoopback()
	r := NewReader(ch, prefix, decimal.NewFromInt(50))
	require.NoError(t, r.Start())

	require.NoError(t, ch.Publish(prefix+"/card/topup", []byte(`{"uid":"ab12","amount":-60,"new_balance":20,"performed_by":"alice"}`)))

	confirmations := ch.on(prefix + "/card/balance")
	require.Len(t, confirmations, 1)
	assert.Equal(t, "AB12", confirmations[0]["uid"])
	assert.Equal(t, 20.0, confirmations[0]["new_balance"])
	assert.Equal(t, -60.0, confirmations[0]["amount"])
	assert.Equal(t, "alice", confirmations[0]["performed_by"])
	assert.True(t, r.Balance("AB12").Equal(decimal.NewFromInt(20)))
}

func TestTopupWithoutTargetAddsToCache(t *testing.T) {
	ch := newLoopback()
	r := NewReader(ch, prefix, decimal.NewFromInt(50))
	require.NoError(t, r.Start())

	require.NoError(t, ch.Publish(prefix+"/card/topup", []byte(`{"uid":"AB12","amount":30}`)))
	require.NoError(t, ch.Publish(prefix+"/card/topup", []byte(`offline`)))

	assert.True(t, r.Balance("AB12").Equal(decimal.NewFromInt(80)))
	assert.Len(t, ch.on(prefix+"/card/balance"), 1)
}

func TestHoldSendsHeartbeatsThenStops(t *testing.T) {
	ch := newLoopback()
	r := NewReader(ch, prefix, decimal.NewFromInt(50))

	require.NoError(t, r.Hold(context.Background(), " ab12 ", 3, time.Millisecond))
	require.NoError(t, r.Remove("AB12"))

	statuses := ch.on(prefix + "/card/status")
	require.Len(t, statuses, 4)
	for _, s := range statuses[:3] {
		assert.Equal(t, "detected", s["status"])
		assert.Equal(t, "AB12", s["uid"])
		assert.Equal(t, 50.0, s["balance"])
	}
	assert.Equal(t, "removed", statuses[3]["status"])
}

func TestHoldStopsOnCancel(t *testing.T) {
	ch := newLoopback()
	r := NewReader(ch, prefix, decimal.Zero)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := r.Hold(ctx, "AB12", 5, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, ch.on(prefix+"/card/status"), 1)
}
