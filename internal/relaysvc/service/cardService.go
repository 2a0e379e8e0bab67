package service

import (
	"context"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
	"github.com/shopspring/decimal"
)

type CardService struct {
	store store.CardStore
}

func NewCardService(store store.CardStore) *CardService {
	return &CardService{store: store}
}

// GetCard treats a corrupt uid as unknown.
func (s *CardService) GetCard(ctx context.Context, uid string) (*models.Card, error) {
	if !models.ValidUID(uid) {
		return nil, store.ErrNotFound
	}
	return s.store.GetCard(ctx, uid)
}

func (s *CardService) GetOrCreate(ctx context.Context, uid string) (*models.Card, bool, error) {
	if !models.ValidUID(uid) {
		return nil, false, store.ErrInvalidUID
	}
	return s.store.GetOrCreateCard(ctx, uid)
}

// OverwriteBalance replaces the stored balance with balance. It never adds.
func (s *CardService) OverwriteBalance(ctx context.Context, uid string, balance decimal.Decimal, owner string) (*models.Card, error) {
	if !models.ValidUID(uid) {
		return nil, store.ErrNotFound
	}
	return s.store.SetBalance(ctx, uid, balance, owner)
}

func (s *CardService) ListCards(ctx context.Context) ([]models.Card, error) {
	cards, err := s.store.ListCards(ctx)
	if err != nil {
		return nil, err
	}

	valid := make([]models.Card, 0, len(cards))
	for _, c := range cards {
		if models.ValidUID(c.UID) {
			valid = append(valid, c)
		}
	}
	return valid, nil
}
