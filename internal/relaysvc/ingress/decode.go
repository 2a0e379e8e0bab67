package ingress

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/avvvet/rfid-relay/internal/comm"
	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/shopspring/decimal"
)

var (
	ErrMalformed    = errors.New("malformed payload")
	ErrMissingUID   = errors.New("missing uid")
	ErrInvalidUID   = errors.New("invalid uid")
	ErrUnknownTopic = errors.New("unknown topic")
)

// DropReason is the metrics label for a decode error.
func DropReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingUID):
		return "missing_uid"
	case errors.Is(err, ErrInvalidUID):
		return "invalid_uid"
	case errors.Is(err, ErrUnknownTopic):
		return "unknown_topic"
	default:
		return "malformed"
	}
}

// Decode turns a raw hardware message into an Event. Any error means the
// message must be dropped.
func Decode(topic string, payload []byte, now time.Time) (Event, error) {
	switch {
	case strings.HasSuffix(topic, comm.SuffixStatus):
		p, err := decodeStatus(payload)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindPresence, Topic: topic, Presence: p, ReceivedAt: now}, nil
	case strings.HasSuffix(topic, comm.SuffixBalance):
		b, err := decodeBalance(payload)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: KindBalance, Topic: topic, Balance: b, ReceivedAt: now}, nil
	default:
		return Event{}, ErrUnknownTopic
	}
}

func decodeStatus(payload []byte) (*PresenceEvent, error) {
	var msg comm.StatusPayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	uid, err := checkUID(msg.UID)
	if err != nil {
		return nil, err
	}

	status := Detected
	if msg.Status == string(Removed) {
		status = Removed
	}
	return &PresenceEvent{UID: uid, Status: status, Balance: msg.Balance}, nil
}

func decodeBalance(payload []byte) (*BalanceEvent, error) {
	var msg comm.BalancePayload
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, errors.Join(ErrMalformed, err)
	}

	uid, err := checkUID(msg.UID)
	if err != nil {
		return nil, err
	}
	if msg.NewBalance == nil {
		return nil, errors.Join(ErrMalformed, errors.New("new_balance missing"))
	}

	amount := decimal.Zero
	if msg.Amount != nil {
		amount = *msg.Amount
	}
	return &BalanceEvent{
		UID:         uid,
		NewBalance:  *msg.NewBalance,
		Amount:      amount,
		PerformedBy: strings.TrimSpace(msg.PerformedBy),
	}, nil
}

func checkUID(raw string) (string, error) {
	uid := strings.TrimSpace(raw)
	if uid == "" {
		return "", ErrMissingUID
	}
	if !models.ValidUID(uid) {
		return "", ErrInvalidUID
	}
	return uid, nil
}
