package store

import (
	"context"
	"fmt"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PgTransactionStore struct {
	db *pgxpool.Pool
}

func NewPgTransactionStore(db *pgxpool.Pool) *PgTransactionStore {
	return &PgTransactionStore{db: db}
}

func (s *PgTransactionStore) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	id := uuid.New()

	query := `
        INSERT INTO transactions (id, uid, owner, amount, new_balance, kind, performed_by, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
    `
	_, err := s.db.Exec(ctx, query,
		id, tx.UID, tx.Owner, tx.Amount, tx.NewBalance, string(tx.Kind), tx.PerformedBy, tx.Timestamp)
	if err != nil {
		return fmt.Errorf("could not create transaction for %s: %w", tx.UID, err)
	}

	tx.ID = id.String()
	return nil
}

func (s *PgTransactionStore) RecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, uid, owner, amount, new_balance, kind, performed_by, created_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var id uuid.UUID
		var kind string
		err := rows.Scan(
			&id,
			&tx.UID,
			&tx.Owner,
			&tx.Amount,
			&tx.NewBalance,
			&kind,
			&tx.PerformedBy,
			&tx.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		tx.ID = id.String()
		tx.Kind = models.TransactionKind(kind)
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

func (s *PgTransactionStore) SumTopupsSince(ctx context.Context, since time.Time) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := s.db.QueryRow(ctx, `
        SELECT COALESCE(SUM(amount), 0)
        FROM transactions
        WHERE kind = 'topup' AND created_at >= $1 AND uid ~ $2
    `, since, validUIDPattern).Scan(&total)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to sum topups: %w", err)
	}

	return total, nil
}

func (s *PgTransactionStore) TransactionUIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT DISTINCT uid FROM transactions`)
	if err != nil {
		return nil, fmt.Errorf("failed to list transaction uids: %w", err)
	}
	defer rows.Close()

	var uids []string
	for rows.Next() {
		var uid string
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		uids = append(uids, uid)
	}

	return uids, rows.Err()
}

func (s *PgTransactionStore) DeleteTransactionsByUID(ctx context.Context, uid string) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM transactions WHERE uid = $1`, uid)
	if err != nil {
		return 0, fmt.Errorf("failed to delete transactions for %s: %w", uid, err)
	}
	return tag.RowsAffected(), nil
}
