package ingress

import (
	"time"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindPresence Kind = "presence"
	KindBalance  Kind = "balance"
)

type PresenceStatus string

const (
	Detected PresenceStatus = "detected"
	Removed  PresenceStatus = "removed"
)

type PresenceEvent struct {
	UID    string
	Status PresenceStatus
	// Balance is what the reader reported, nil when it sent none.
	Balance *decimal.Decimal
}

type BalanceEvent struct {
	UID         string
	NewBalance  decimal.Decimal
	Amount      decimal.Decimal
	PerformedBy string
}

// Event is one validated hardware message. Exactly one of Presence and
// Balance is set, matching Kind.
type Event struct {
	Kind       Kind
	Topic      string
	Presence   *PresenceEvent
	Balance    *BalanceEvent
	ReceivedAt time.Time
}

func (e Event) UID() string {
	switch e.Kind {
	case KindPresence:
		return e.Presence.UID
	case KindBalance:
		return e.Balance.UID
	}
	return ""
}

// Detection builds the event a manual scan injects.
func Detection(uid, topic string, at time.Time) Event {
	return Event{
		Kind:       KindPresence,
		Topic:      topic,
		Presence:   &PresenceEvent{UID: uid, Status: Detected},
		ReceivedAt: at,
	}
}
