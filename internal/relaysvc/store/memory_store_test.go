package store

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ CardStore        = (*MemoryStore)(nil)
	_ TransactionStore = (*MemoryStore)(nil)
)

func TestMemoryStoreGetOrCreate(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	card, created, err := s.GetOrCreateCard(ctx, "AB12")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, models.DefaultOwner, card.Owner)
	assert.True(t, card.Balance.IsZero())

	_, err = s.SetBalance(ctx, "AB12", decimal.NewFromInt(50), "")
	require.NoError(t, err)

	card, created, err = s.GetOrCreateCard(ctx, "AB12")
	require.NoError(t, err)
	assert.False(t, created)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(50)))
}

func TestMemoryStoreSetBalanceOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutCard(models.Card{UID: "AB12", Owner: "Ivan", Balance: decimal.NewFromInt(50)})

	card, err := s.SetBalance(ctx, "AB12", decimal.NewFromInt(80), "")
	require.NoError(t, err)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, "Ivan", card.Owner)

	card, err = s.SetBalance(ctx, "AB12", decimal.NewFromInt(20), "Bright")
	require.NoError(t, err)
	assert.Equal(t, "Bright", card.Owner)

	_, err = s.SetBalance(ctx, "ZZ99", decimal.NewFromInt(1), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStoreRecentTransactionsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		tx := models.Transaction{UID: "AB12", Amount: decimal.NewFromInt(int64(i)), Timestamp: base.Add(time.Duration(i) * time.Minute), Kind: models.KindTopup}
		require.NoError(t, s.CreateTransaction(ctx, &tx))
		assert.NotEmpty(t, tx.ID)
	}

	got, err := s.RecentTransactions(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Amount.Equal(decimal.NewFromInt(4)))
	assert.True(t, got[2].Amount.Equal(decimal.NewFromInt(2)))
}

func TestMemoryStoreSumTopupsSince(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	midnight := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	s.PutTransaction(models.Transaction{UID: "AB12", Amount: decimal.NewFromInt(100), Kind: models.KindTopup, Timestamp: midnight.Add(-time.Hour)})
	s.PutTransaction(models.Transaction{UID: "AB12", Amount: decimal.NewFromInt(30), Kind: models.KindTopup, Timestamp: midnight.Add(time.Hour)})
	s.PutTransaction(models.Transaction{UID: "AB12", Amount: decimal.NewFromInt(-10), Kind: models.KindPurchase, Timestamp: midnight.Add(2 * time.Hour)})
	s.PutTransaction(models.Transaction{UID: "CD34", Amount: decimal.NewFromInt(5), Kind: models.KindTopup, Timestamp: midnight})

	total, err := s.SumTopupsSince(ctx, midnight)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(35)), "got %s", total)
}

func TestMemoryStoreDeleteTransactionsByUID(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutTransaction(models.Transaction{UID: "AB12"})
	s.PutTransaction(models.Transaction{UID: "X\x01"})
	s.PutTransaction(models.Transaction{UID: "X\x01"})

	uids, err := s.TransactionUIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"AB12", "X\x01"}, uids)

	n, err := s.DeleteTransactionsByUID(ctx, "X\x01")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Len(t, s.Transactions(), 1)
}

func TestValidUIDPatternMatchesModel(t *testing.T) {
	re := regexp.MustCompile(validUIDPattern)
	for _, uid := range []string{"AB12", "A1B2C3D4", "ab 12", "AB1", "", "AB\x0212", "\x01\x02\x03\x04\x05", "AB12\x7f", "ÄB12"} {
		assert.Equal(t, models.ValidUID(uid), re.MatchString(uid), "uid %q", uid)
	}
}

func TestMemoryStoreTotalsSkipCorruptUIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.PutCard(models.Card{UID: "AB12", Balance: decimal.NewFromInt(10)})
	s.PutCard(models.Card{UID: "\x01\x02\x03\x04\x05", Balance: decimal.NewFromInt(1000)})

	count, total, err := s.CardTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, total.Equal(decimal.NewFromInt(10)), "got %s", total)
}
