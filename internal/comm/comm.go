package comm

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

func init() {
	// hardware and dashboards both expect plain JSON numbers for money
	decimal.MarshalJSONWithoutQuotes = true
}

// viewer push channel message types
const (
	TypeCardStatus    = "card_status"
	TypeBalanceUpdate = "balance_update"
	TypeSystem        = "system"
)

// card_status reasons for present=false
const (
	StatusRemoved = "removed"
	StatusTimeout = "timeout"
)

type WSMessage struct {
	Type string          `json:"type"` // e.g. "card_status", "balance_update"
	Data json.RawMessage `json:"data"`
}

// NewMessage wraps payload into a WSMessage of the given type.
func NewMessage(msgType string, payload any) (*WSMessage, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &WSMessage{Type: msgType, Data: data}, nil
}

type CardStatus struct {
	UID     string           `json:"uid"`
	Present bool             `json:"present"`
	Owner   string           `json:"owner,omitempty"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
	Status  string           `json:"status,omitempty"`
	Topic   string           `json:"topic,omitempty"`
}

type BalanceUpdate struct {
	UID     string          `json:"uid"`
	Balance decimal.Decimal `json:"balance"`
	Owner   string          `json:"owner"`
	Amount  decimal.Decimal `json:"amount"`
	Ts      int64           `json:"ts"` // unix millis
}

type SystemMessage struct {
	Message string `json:"message"`
}

// StatusPayload is published by readers on <prefix>/card/status.
type StatusPayload struct {
	UID     string           `json:"uid"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
	Status  string           `json:"status,omitempty"`
	Ts      int64            `json:"ts,omitempty"`
}

// BalancePayload is published by readers on <prefix>/card/balance.
type BalancePayload struct {
	UID         string           `json:"uid"`
	NewBalance  *decimal.Decimal `json:"new_balance"`
	Amount      *decimal.Decimal `json:"amount,omitempty"`
	Status      string           `json:"status,omitempty"`
	PerformedBy string           `json:"performed_by,omitempty"`
	Ts          int64            `json:"ts,omitempty"`
}

// TopupCommand is published by the relay on <prefix>/card/topup. Amount is
// the delta, NewBalance the absolute target.
type TopupCommand struct {
	UID         string          `json:"uid"`
	Amount      decimal.Decimal `json:"amount"`
	NewBalance  decimal.Decimal `json:"new_balance"`
	PerformedBy string          `json:"performed_by,omitempty"`
}
