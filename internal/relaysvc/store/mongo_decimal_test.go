package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	_ CardStore        = (*MongoCardStore)(nil)
	_ TransactionStore = (*MongoTransactionStore)(nil)
	_ CardStore        = (*PgCardStore)(nil)
	_ TransactionStore = (*PgTransactionStore)(nil)
)

func rawField(t *testing.T, v interface{}) bson.RawValue {
	t.Helper()
	doc, err := bson.Marshal(bson.M{"v": v})
	require.NoError(t, err)
	return bson.Raw(doc).Lookup("v")
}

func TestDecimalFromRawLegacyTypes(t *testing.T) {
	stored, err := toDecimal128(decimal.RequireFromString("80.25"))
	require.NoError(t, err)

	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"double", 50.5, "50.5"},
		{"int32", int32(30), "30"},
		{"int64", int64(-60), "-60"},
		{"decimal128", stored, "80.25"},
		{"string", "12.10", "12.1"},
		{"null", nil, "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decimalFromRaw(rawField(t, tt.value))
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestDecimalFromRawMissingAndBadType(t *testing.T) {
	got, err := decimalFromRaw(bson.RawValue{})
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	_, err = decimalFromRaw(rawField(t, true))
	assert.Error(t, err)
}

func TestCardDocDecodesLegacyBalance(t *testing.T) {
	raw, err := bson.Marshal(bson.M{"uid": "AB12", "owner": "Ivan", "balance": 42.0})
	require.NoError(t, err)

	var doc cardDoc
	require.NoError(t, bson.Unmarshal(raw, &doc))

	card, err := doc.card()
	require.NoError(t, err)
	assert.Equal(t, "AB12", card.UID)
	assert.True(t, card.Balance.Equal(decimal.NewFromInt(42)))
}

func TestDecodeCardsSkipsBadDocuments(t *testing.T) {
	ctx := context.Background()
	cursor, err := mongo.NewCursorFromDocuments([]interface{}{
		bson.M{"uid": "AB12", "owner": "Ivan", "balance": 10.0},
		bson.M{"uid": int32(77), "owner": "numeric uid", "balance": 1.0},
		bson.M{"uid": "CD34", "owner": "bad balance", "balance": true},
		bson.M{"uid": "\x01\x02\x03\x04", "owner": "corrupt", "balance": 5.0},
	}, nil, nil)
	require.NoError(t, err)

	cards, err := decodeCards(ctx, cursor)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, "AB12", cards[0].UID)
	assert.Equal(t, "\x01\x02\x03\x04", cards[1].UID, "corrupt uids still reach cleanup")
}

func TestDecodeTransactionsSkipsBadDocuments(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cursor, err := mongo.NewCursorFromDocuments([]interface{}{
		bson.M{"uid": "AB12", "amount": 30.0, "newBalance": 80.0, "timestamp": at, "type": "topup"},
		bson.M{"uid": "AB12", "amount": "not a number", "newBalance": 80.0, "timestamp": at, "type": "topup"},
		bson.M{"uid": "AB12", "amount": 1.0, "newBalance": 81.0, "timestamp": "yesterday", "type": "topup"},
	}, nil, nil)
	require.NoError(t, err)

	txs, err := decodeTransactions(ctx, cursor)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	assert.True(t, txs[0].NewBalance.Equal(decimal.NewFromInt(80)))
}
