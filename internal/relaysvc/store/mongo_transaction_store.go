package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type transactionDoc struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	UID         string             `bson:"uid"`
	Owner       string             `bson:"owner"`
	Amount      bson.RawValue      `bson:"amount"`
	NewBalance  bson.RawValue      `bson:"newBalance"`
	Timestamp   time.Time          `bson:"timestamp"`
	Type        string             `bson:"type"`
	PerformedBy string             `bson:"performedBy,omitempty"`
}

func (d transactionDoc) transaction() (*models.Transaction, error) {
	amount, err := decimalFromRaw(d.Amount)
	if err != nil {
		return nil, fmt.Errorf("transaction %s amount: %w", d.ID.Hex(), err)
	}
	newBalance, err := decimalFromRaw(d.NewBalance)
	if err != nil {
		return nil, fmt.Errorf("transaction %s newBalance: %w", d.ID.Hex(), err)
	}
	return &models.Transaction{
		ID:          d.ID.Hex(),
		UID:         d.UID,
		Owner:       d.Owner,
		Amount:      amount,
		NewBalance:  newBalance,
		Timestamp:   d.Timestamp,
		Kind:        models.TransactionKind(d.Type),
		PerformedBy: d.PerformedBy,
	}, nil
}

type MongoTransactionStore struct {
	txs *mongo.Collection
}

func NewMongoTransactionStore(db *mongo.Database) *MongoTransactionStore {
	return &MongoTransactionStore{txs: db.Collection(TransactionsCollection)}
}

func (s *MongoTransactionStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	amount, err := toDecimal128(tx.Amount)
	if err != nil {
		return err
	}
	newBalance, err := toDecimal128(tx.NewBalance)
	if err != nil {
		return err
	}

	doc := bson.M{
		"uid":        tx.UID,
		"owner":      tx.Owner,
		"amount":     amount,
		"newBalance": newBalance,
		"timestamp":  tx.Timestamp,
		"type":       string(tx.Kind),
	}
	if tx.PerformedBy != "" {
		doc["performedBy"] = tx.PerformedBy
	}

	res, err := s.txs.InsertOne(ctx, doc)
	if err != nil {
		return fmt.Errorf("could not create transaction for %s: %w", tx.UID, err)
	}
	if id, ok := res.InsertedID.(primitive.ObjectID); ok {
		tx.ID = id.Hex()
	}
	return nil
}

func (s *MongoTransactionStore) RecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.txs.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeTransactions(ctx, cursor)
}

func decodeTransactions(ctx context.Context, cursor *mongo.Cursor) ([]models.Transaction, error) {
	var txs []models.Transaction
	for cursor.Next(ctx) {
		var doc transactionDoc
		if err := cursor.Decode(&doc); err != nil {
			log.Warnf("skipping undecodable transaction %s: %v", cursor.Current.Lookup("_id"), err)
			continue
		}
		tx, err := doc.transaction()
		if err != nil {
			log.Warnf("skipping transaction: %v", err)
			continue
		}
		txs = append(txs, *tx)
	}
	return txs, cursor.Err()
}

func (s *MongoTransactionStore) SumTopupsSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	filter := validUIDFilter()
	filter["type"] = string(models.KindTopup)
	filter["timestamp"] = bson.M{"$gte": since}
	total, err := sumField(ctx, s.txs, filter, "$amount")
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum topups: %w", err)
	}
	return total, nil
}

func (s *MongoTransactionStore) TransactionUIDs(ctx context.Context) ([]string, error) {
	values, err := s.txs.Distinct(ctx, "uid", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction uids: %w", err)
	}

	uids := make([]string, 0, len(values))
	for _, v := range values {
		if uid, ok := v.(string); ok {
			uids = append(uids, uid)
		}
	}
	return uids, nil
}

func (s *MongoTransactionStore) DeleteTransactionsByUID(ctx context.Context, uid string) (int64, error) {
	res, err := s.txs.DeleteMany(ctx, bson.M{"uid": uid})
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions for %s: %w", uid, err)
	}
	return res.DeletedCount, nil
}
