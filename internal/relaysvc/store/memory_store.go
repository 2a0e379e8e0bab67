package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps cards and transactions in process memory. It backs
// STORE_DRIVER=memory and the package tests of the relay.
type MemoryStore struct {
	mu    sync.Mutex
	cards map[string]models.Card
	txs   []models.Transaction
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cards: make(map[string]models.Card),
		now:   time.Now,
	}
}

// PutCard stores card as is, bypassing every check.
func (s *MemoryStore) PutCard(card models.Card) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[card.UID] = card
}

// PutTransaction appends tx as is.
func (s *MemoryStore) PutTransaction(tx models.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs = append(s.txs, tx)
}

// Transactions returns a copy of the log in insertion order.
func (s *MemoryStore) Transactions() []models.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.txs...)
}

func (s *MemoryStore) GetCard(_ context.Context, uid string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[uid]
	if !ok {
		return nil, ErrNotFound
	}
	return &card, nil
}

func (s *MemoryStore) GetOrCreateCard(_ context.Context, uid string) (*models.Card, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if card, ok := s.cards[uid]; ok {
		return &card, false, nil
	}
	card := models.NewCard(uid, s.now())
	s.cards[uid] = card
	return &card, true, nil
}

func (s *MemoryStore) SetBalance(_ context.Context, uid string, balance decimal.Decimal, owner string) (*models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[uid]
	if !ok {
		return nil, ErrNotFound
	}
	card.Balance = balance
	card.LastUpdated = s.now()
	if owner != "" {
		card.Owner = owner
	}
	s.cards[uid] = card
	return &card, nil
}

func (s *MemoryStore) ListCards(_ context.Context) ([]models.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cards := make([]models.Card, 0, len(s.cards))
	for _, c := range s.cards {
		cards = append(cards, c)
	}
	sort.Slice(cards, func(i, j int) bool {
		if cards[i].LastUpdated.Equal(cards[j].LastUpdated) {
			return cards[i].UID < cards[j].UID
		}
		return cards[i].LastUpdated.After(cards[j].LastUpdated)
	})
	return cards, nil
}

func (s *MemoryStore) CardTotals(_ context.Context) (int64, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	total := decimal.Zero
	for _, c := range s.cards {
		if !models.ValidUID(c.UID) {
			continue
		}
		count++
		total = total.Add(c.Balance)
	}
	return count, total, nil
}

func (s *MemoryStore) UpdateOwner(_ context.Context, uid, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	card, ok := s.cards[uid]
	if !ok {
		return ErrNotFound
	}
	card.Owner = owner
	s.cards[uid] = card
	return nil
}

func (s *MemoryStore) DeleteCard(_ context.Context, uid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cards[uid]; !ok {
		return ErrNotFound
	}
	delete(s.cards, uid)
	return nil
}

func (s *MemoryStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx.ID = uuid.New().String()
	s.txs = append(s.txs, *tx)
	return nil
}

func (s *MemoryStore) RecentTransactions(_ context.Context, limit int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Transaction, len(s.txs))
	copy(out, s.txs)
	// stable keeps insertion order reversed for equal timestamps
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) SumTopupsSince(_ context.Context, since time.Time) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := decimal.Zero
	for _, tx := range s.txs {
		if tx.Kind == models.KindTopup && !tx.Timestamp.Before(since) && models.ValidUID(tx.UID) {
			total = total.Add(tx.Amount)
		}
	}
	return total, nil
}

func (s *MemoryStore) TransactionUIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	var uids []string
	for _, tx := range s.txs {
		if _, ok := seen[tx.UID]; ok {
			continue
		}
		seen[tx.UID] = struct{}{}
		uids = append(uids, tx.UID)
	}
	return uids, nil
}

func (s *MemoryStore) DeleteTransactionsByUID(_ context.Context, uid string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.txs[:0]
	var deleted int64
	for _, tx := range s.txs {
		if tx.UID == uid {
			deleted++
			continue
		}
		kept = append(kept, tx)
	}
	s.txs = kept
	return deleted, nil
}
