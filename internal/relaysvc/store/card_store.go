package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PgCardStore struct {
	db *pgxpool.Pool
}

func NewPgCardStore(db *pgxpool.Pool) *PgCardStore {
	return &PgCardStore{db: db}
}

const cardColumns = `uid, owner, balance, last_updated`

func scanCard(row pgx.Row) (*models.Card, error) {
	var card models.Card
	err := row.Scan(
		&card.UID,
		&card.Owner,
		&card.Balance,
		&card.LastUpdated,
	)
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (s *PgCardStore) GetCard(ctx context.Context, uid string) (*models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE uid = $1
		LIMIT 1
	`

	card, err := scanCard(s.db.QueryRow(ctx, query, uid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get card %s: %w", uid, err)
	}

	return card, nil
}

// GetOrCreateCard upserts in one statement; xmax = 0 only for a freshly
// inserted row.
func (s *PgCardStore) GetOrCreateCard(ctx context.Context, uid string) (*models.Card, bool, error) {
	const query = `
INSERT INTO cards (uid, owner, balance, last_updated)
VALUES ($1, $2, 0, now())
ON CONFLICT (uid) DO UPDATE SET uid = EXCLUDED.uid
RETURNING uid, owner, balance, last_updated, (xmax = 0) AS inserted;
`
	var card models.Card
	var inserted bool
	err := s.db.QueryRow(ctx, query, uid, models.DefaultOwner).Scan(
		&card.UID,
		&card.Owner,
		&card.Balance,
		&card.LastUpdated,
		&inserted,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to get or create card %s: %w", uid, err)
	}

	return &card, inserted, nil
}

func (s *PgCardStore) SetBalance(ctx context.Context, uid string, balance decimal.Decimal, owner string) (*models.Card, error) {
	const query = `
UPDATE cards
SET balance = $2,
    owner = COALESCE(NULLIF($3, ''), owner),
    last_updated = now()
WHERE uid = $1
RETURNING uid, owner, balance, last_updated;
`
	card, err := scanCard(s.db.QueryRow(ctx, query, uid, balance, owner))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to set balance for %s: %w", uid, err)
	}

	return card, nil
}

func (s *PgCardStore) ListCards(ctx context.Context) ([]models.Card, error) {
	query := `
		SELECT ` + cardColumns + `
		FROM cards
		ORDER BY last_updated DESC
	`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list cards: %w", err)
	}
	defer rows.Close()

	var cards []models.Card
	for rows.Next() {
		card, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, *card)
	}

	return cards, rows.Err()
}

func (s *PgCardStore) CardTotals(ctx context.Context) (int64, decimal.Decimal, error) {
	var count int64
	var total decimal.Decimal

	err := s.db.QueryRow(ctx, `
        SELECT COUNT(*), COALESCE(SUM(balance), 0)
        FROM cards
        WHERE uid ~ $1
    `, validUIDPattern).Scan(&count, &total)
	if err != nil {
		return 0, decimal.Zero, fmt.Errorf("failed to total cards: %w", err)
	}

	return count, total, nil
}

func (s *PgCardStore) UpdateOwner(ctx context.Context, uid, owner string) error {
	tag, err := s.db.Exec(ctx, `UPDATE cards SET owner = $2 WHERE uid = $1`, uid, owner)
	if err != nil {
		return fmt.Errorf("failed to update owner for %s: %w", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PgCardStore) DeleteCard(ctx context.Context, uid string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM cards WHERE uid = $1`, uid)
	if err != nil {
		return fmt.Errorf("failed to delete card %s: %w", uid, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
