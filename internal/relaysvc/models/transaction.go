package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionKind string

const (
	KindTopup    TransactionKind = "topup"
	KindPurchase TransactionKind = "purchase"
)

// KindForAmount classifies a balance change: non-negative amounts are
// top-ups, negative ones purchases.
func KindForAmount(amount decimal.Decimal) TransactionKind {
	if amount.IsNegative() {
		return KindPurchase
	}
	return KindTopup
}

type Transaction struct {
	ID          string          `json:"id"`
	UID         string          `json:"uid"`
	Owner       string          `json:"owner"` // snapshot at the time of the change
	Amount      decimal.Decimal `json:"amount"`
	NewBalance  decimal.Decimal `json:"newBalance"`
	Timestamp   time.Time       `json:"timestamp"`
	Kind        TransactionKind `json:"type"`
	PerformedBy string          `json:"performedBy,omitempty"`
}

// NewTransaction snapshots card after a balance change of amount.
func NewTransaction(card Card, amount decimal.Decimal, at time.Time, performedBy string) Transaction {
	return Transaction{
		UID:         card.UID,
		Owner:       card.Owner,
		Amount:      amount,
		NewBalance:  card.Balance,
		Timestamp:   at,
		Kind:        KindForAmount(amount),
		PerformedBy: performedBy,
	}
}
