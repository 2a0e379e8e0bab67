package service

import (
	"context"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
)

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 200
)

type TransactionService struct {
	store        store.TransactionStore
	defaultLimit int
}

func NewTransactionService(store store.TransactionStore, defaultLimit int) *TransactionService {
	if defaultLimit <= 0 || defaultLimit > MaxRecentLimit {
		defaultLimit = DefaultRecentLimit
	}
	return &TransactionService{store: store, defaultLimit: defaultLimit}
}

func (s *TransactionService) Record(ctx context.Context, tx *models.Transaction) error {
	return s.store.CreateTransaction(ctx, tx)
}

// Recent returns the newest transactions. limit <= 0 selects the default
// and anything above MaxRecentLimit is capped.
func (s *TransactionService) Recent(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > MaxRecentLimit {
		limit = MaxRecentLimit
	}

	txs, err := s.store.RecentTransactions(ctx, limit)
	if err != nil {
		return nil, err
	}

	valid := make([]models.Transaction, 0, len(txs))
	for _, tx := range txs {
		if models.ValidUID(tx.UID) {
			valid = append(valid, tx)
		}
	}
	return valid, nil
}
