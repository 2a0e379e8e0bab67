package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	CardsCollection        = "cards"
	TransactionsCollection = "transactions"
)

type cardDoc struct {
	UID         string        `bson:"uid"`
	Owner       string        `bson:"owner"`
	Balance     bson.RawValue `bson:"balance"`
	LastUpdated time.Time     `bson:"lastUpdated"`
}

func (d cardDoc) card() (*models.Card, error) {
	balance, err := decimalFromRaw(d.Balance)
	if err != nil {
		return nil, fmt.Errorf("card %s: %w", d.UID, err)
	}
	return &models.Card{
		UID:         d.UID,
		Owner:       d.Owner,
		Balance:     balance,
		LastUpdated: d.LastUpdated,
	}, nil
}

type MongoCardStore struct {
	cards *mongo.Collection
	now   func() time.Time
}

func NewMongoCardStore(db *mongo.Database) *MongoCardStore {
	return &MongoCardStore{
		cards: db.Collection(CardsCollection),
		now:   time.Now,
	}
}

func (s *MongoCardStore) GetCard(ctx context.Context, uid string) (*models.Card, error) {
	var doc cardDoc
	err := s.cards.FindOne(ctx, bson.M{"uid": uid}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card %s: %w", uid, err)
	}
	return doc.card()
}

// GetOrCreateCard relies on the unique uid index: concurrent upserts for
// the same uid collapse into one document.
func (s *MongoCardStore) GetOrCreateCard(ctx context.Context, uid string) (*models.Card, bool, error) {
	fresh := models.NewCard(uid, s.now())
	zero, err := toDecimal128(fresh.Balance)
	if err != nil {
		return nil, false, err
	}

	update := bson.M{"$setOnInsert": bson.M{
		"owner":       fresh.Owner,
		"balance":     zero,
		"lastUpdated": fresh.LastUpdated,
	}}
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.Before)

	var doc cardDoc
	err = s.cards.FindOneAndUpdate(ctx, bson.M{"uid": uid}, update, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return &fresh, true, nil
		}
		return nil, false, fmt.Errorf("failed to get or create card %s: %w", uid, err)
	}

	card, err := doc.card()
	if err != nil {
		return nil, false, err
	}
	return card, false, nil
}

func (s *MongoCardStore) SetBalance(ctx context.Context, uid string, balance decimal.Decimal, owner string) (*models.Card, error) {
	value, err := toDecimal128(balance)
	if err != nil {
		return nil, err
	}

	set := bson.M{
		"balance":     value,
		"lastUpdated": s.now(),
	}
	if owner != "" {
		set["owner"] = owner
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc cardDoc
	err = s.cards.FindOneAndUpdate(ctx, bson.M{"uid": uid}, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set balance for %s: %w", uid, err)
	}
	return doc.card()
}

func (s *MongoCardStore) ListCards(ctx context.Context) ([]models.Card, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastUpdated", Value: -1}})
	cursor, err := s.cards.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer cursor.Close(ctx)

	return decodeCards(ctx, cursor)
}

// decodeCards skips documents it cannot decode so one bad record does not
// hide the rest, cleanup included.
func decodeCards(ctx context.Context, cursor *mongo.Cursor) ([]models.Card, error) {
	var cards []models.Card
	for cursor.Next(ctx) {
		var doc cardDoc
		if err := cursor.Decode(&doc); err != nil {
			log.Warnf("skipping undecodable card %s: %v", cursor.Current.Lookup("_id"), err)
			continue
		}
		card, err := doc.card()
		if err != nil {
			log.Warnf("skipping card: %v", err)
			continue
		}
		cards = append(cards, *card)
	}
	return cards, cursor.Err()
}

func (s *MongoCardStore) CardTotals(ctx context.Context) (int64, decimal.Decimal, error) {
	valid := validUIDFilter()
	count, err := s.cards.CountDocuments(ctx, valid)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to count cards: %w", err)
	}

	total, err := sumField(ctx, s.cards, valid, "$balance")
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to total balances: %w", err)
	}
	return count, total, nil
}

func (s *MongoCardStore) UpdateOwner(ctx context.Context, uid, owner string) error {
	res, err := s.cards.UpdateOne(ctx, bson.M{"uid": uid}, bson.M{"$set": bson.M{"owner": owner}})
	if err != nil {
		return fmt.Errorf("failed to update owner for %s: %w", uid, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoCardStore) DeleteCard(ctx context.Context, uid string) error {
	res, err := s.cards.DeleteOne(ctx, bson.M{"uid": uid})
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", uid, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// validUIDFilter matches documents whose uid is a string accepted by
// models.ValidUID.
func validUIDFilter() bson.M {
	return bson.M{"uid": bson.M{"$regex": validUIDPattern}}
}

// sumField aggregates $sum over field for the documents matching filter.
func sumField(ctx context.Context, coll *mongo.Collection, filter bson.M, field string) (decimal.Decimal, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: filter}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: field}}},
		}}},
	}

	cursor, err := coll.Aggregate(ctx, pipeline)
	if err != nil {
		return decimal.Zero, err
	}
	defer cursor.Close(ctx)

	if !cursor.Next(ctx) {
		return decimal.Zero, cursor.Err()
	}
	var out struct {
		Total bson.RawValue `bson:"total"`
	}
	if err := cursor.Decode(&out); err != nil {
		return decimal.Zero, err
	}
	return decimalFromRaw(out.Total)
}
