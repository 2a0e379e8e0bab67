// Package devicesvc is a stand-in for a physical card reader. It speaks the
// same topics as the firmware so the relay can be exercised without
// hardware.
package devicesvc

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DeviceStatusSuffix = "/device/status"
	DeviceHealthSuffix = "/device/health"
)

type topupRequest struct {
	UID         string           `json:"uid"`
	Amount      *decimal.Decimal `json:"amount"`
	NewBalance  *decimal.Decimal `json:"new_balance"`
	PerformedBy string           `json:"performed_by"`
}

type healthReport struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
	Cards      int    `json:"cards"`
	Ts         int64  `json:"ts"`
}

// Reader keeps the balances it has seen, like the firmware does, and
// answers topups with a balance confirmation.
type Reader struct {
	ch             comm.Channel
	topics         comm.Topics
	prefix         string
	defaultBalance decimal.Decimal
	now            func() time.Time

	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func NewReader(ch comm.Channel, prefix string, defaultBalance decimal.Decimal) *Reader {
	prefix = strings.TrimRight(prefix, "/")
	return &Reader{
		ch:             ch,
		topics:         comm.NewTopics(prefix),
		prefix:         prefix,
		defaultBalance: defaultBalance,
		now:            time.Now,
		balances:       make(map[string]decimal.Decimal),
	}
}

// Start listens for topup commands and announces the reader online.
func (r *Reader) Start() error {
	if err := r.ch.Subscribe(r.topics.Topup, r.handleTopup); err != nil {
		return err
	}
	return r.ch.Publish(r.prefix+DeviceStatusSuffix, []byte("online"))
}

func (r *Reader) Balance(uid string) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.balances[normalize(uid)]; ok {
		return b
	}
	return r.defaultBalance
}

// Detect publishes one "card on reader" heartbeat carrying the cached balance.
func (r *Reader) Detect(uid string) error {
	uid = normalize(uid)

	r.mu.Lock()
	balance, ok := r.balances[uid]
	if !ok {
		balance = r.defaultBalance
		r.balances[uid] = balance
	}
	r.mu.Unlock()

	return r.publishJSON(r.topics.Status, comm.StatusPayload{
		UID:     uid,
		Balance: &balance,
		Status:  "detected",
		Ts:      r.now().Unix(),
	})
}

func (r *Reader) Remove(uid string) error {
	return r.publishJSON(r.topics.Status, comm.StatusPayload{
		UID:    normalize(uid),
		Status: comm.StatusRemoved,
		Ts:     r.now().Unix(),
	})
}

// Hold sends count heartbeats spaced by interval and then goes quiet, as if
// the card was pulled away without a removal event.
func (r *Reader) Hold(ctx context.Context, uid string, count int, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; i < count; i++ {
		if err := r.Detect(uid); err != nil {
			return err
		}
		if i == count-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

func (r *Reader) PublishHealth(instanceID string) error {
	r.mu.Lock()
	cards := len(r.balances)
	r.mu.Unlock()

	return r.publishJSON(r.prefix+DeviceHealthSuffix, healthReport{
		Status:     "online",
		InstanceID: instanceID,
		Cards:      cards,
		Ts:         r.now().Unix(),
	})
}

func (r *Reader) handleTopup(topic string, payload []byte) {
	var req topupRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		log.Debugf("ignoring non-json message on %s", topic)
		return
	}
	uid := normalize(req.UID)
	if uid == "" {
		return
	}

	amount := decimal.Zero
	if req.Amount != nil {
		amount = *req.Amount
	}

	r.mu.Lock()
	next := r.defaultBalance
	if b, ok := r.balances[uid]; ok {
		next = b
	}
	if req.NewBalance != nil {
		next = *req.NewBalance
	} else {
		next = next.Add(amount)
	}
	r.balances[uid] = next
	r.mu.Unlock()

	log.Infof("topup processed: %s new balance %s", uid, next)

	err := r.publishJSON(r.topics.Balance, comm.BalancePayload{
		UID:         uid,
		NewBalance:  &next,
		Amount:      &amount,
		Status:      "success",
		PerformedBy: req.PerformedBy,
		Ts:          r.now().Unix(),
	})
	if err != nil {
		log.Errorf("Error confirming topup for %s: %v", uid, err)
	}
}

func (r *Reader) publishJSON(topic string, v any) error {
	bytes, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return r.ch.Publish(topic, bytes)
}

func normalize(uid string) string {
	return strings.ToUpper(strings.TrimSpace(uid))
}
