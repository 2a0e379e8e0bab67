package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidUID(t *testing.T) {
	cases := []struct {
		uid  string
		want bool
	}{
		{"AB12", true},
		{"A1B2C3D4", true},
		{"TEST CARD", true},
		{"", false},
		{"AB1", false},
		{"AB\x0012", false},
		{"AB12\x7f", false},
		{"ÀB12", false},
		{"\x01\x02\x03\x04", false},
	}

	for _, c := range cases {
		assert.Equal(t, c.want, ValidUID(c.uid), "uid %q", c.uid)
	}
}

func TestSanitizeUID(t *testing.T) {
	uid, ok := SanitizeUID("  A1\x00B2\x1bC3 ")
	assert.True(t, ok)
	assert.Equal(t, "A1B2C3", uid)

	_, ok = SanitizeUID("\x00A\x01B\x02")
	assert.False(t, ok)
}

func TestKindForAmount(t *testing.T) {
	assert.Equal(t, KindTopup, KindForAmount(decimal.NewFromInt(30)))
	assert.Equal(t, KindTopup, KindForAmount(decimal.Zero))
	assert.Equal(t, KindPurchase, KindForAmount(decimal.NewFromInt(-1)))
}

func TestNewTransactionSnapshotsCard(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	card := Card{UID: "AB12", Owner: "Ivan", Balance: decimal.NewFromInt(80)}

	tx := NewTransaction(card, decimal.NewFromInt(30), at, "admin")

	assert.Equal(t, "AB12", tx.UID)
	assert.Equal(t, "Ivan", tx.Owner)
	assert.True(t, tx.NewBalance.Equal(decimal.NewFromInt(80)))
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, KindTopup, tx.Kind)
	assert.Equal(t, at, tx.Timestamp)
	assert.Equal(t, "admin", tx.PerformedBy)
}

func TestOwnerOrDefault(t *testing.T) {
	assert.Equal(t, DefaultOwner, Card{}.OwnerOrDefault())
	assert.Equal(t, "Ivan", Card{Owner: "Ivan"}.OwnerOrDefault())
}
