package service

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/avvvet/rfid-relay/internal/relaysvc/store"
)

type StatsService struct {
	cards store.CardStore
	txs   store.TransactionStore
	now   func() time.Time
}

func NewStatsService(cards store.CardStore, txs store.TransactionStore) *StatsService {
	return &StatsService{cards: cards, txs: txs, now: time.Now}
}

func (s *StatsService) GetStats(ctx context.Context) (*models.Stats, error) {
	count, total, err := s.cards.CardTotals(ctx)
	if err != nil {
		return nil, err
	}

	topups, err := s.txs.SumTopupsSince(ctx, startOfDay(s.now()))
	if err != nil {
		return nil, fmt.Errorf("todays topups: %w", err)
	}

	return &models.Stats{
		ActiveCards:  count,
		TotalBalance: total,
		TodaysTopups: topups,
	}, nil
}

// startOfDay is local midnight of t.
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
