package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/models"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = errors.New("card not found")
	ErrInvalidUID = errors.New("invalid card uid")
)

// validUIDPattern matches the uids models.ValidUID accepts. Aggregates run in
// the database use it to leave corrupt records out.
var validUIDPattern = fmt.Sprintf("^[ -~]{%d,}$", models.MinUIDLength)

// CardStore owns every balance mutation. Implementations must apply each
// method as a single atomic operation on one record.
type CardStore interface {
	GetCard(ctx context.Context, uid string) (*models.Card, error)
	// GetOrCreateCard returns the card, inserting models.NewCard when absent.
	GetOrCreateCard(ctx context.Context, uid string) (card *models.Card, created bool, err error)
	// SetBalance overwrites the balance and refreshes lastUpdated. A non-empty
	// owner replaces the stored owner. Unknown uids return ErrNotFound.
	SetBalance(ctx context.Context, uid string, balance decimal.Decimal, owner string) (*models.Card, error)
	// ListCards returns every stored card, most recently updated first.
	ListCards(ctx context.Context) ([]models.Card, error)
	// CardTotals counts cards with a valid uid and sums their balances.
	CardTotals(ctx context.Context) (count int64, total decimal.Decimal, err error)

	UpdateOwner(ctx context.Context, uid, owner string) error
	DeleteCard(ctx context.Context, uid string) error
}

type TransactionStore interface {
	// CreateTransaction appends tx and fills in tx.ID.
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	// RecentTransactions returns at most limit records, newest first.
	RecentTransactions(ctx context.Context, limit int) ([]models.Transaction, error)
	// SumTopupsSince sums topup amounts on valid uids from since onwards.
	SumTopupsSince(ctx context.Context, since time.Time) (decimal.Decimal, error)

	TransactionUIDs(ctx context.Context) ([]string, error)
	DeleteTransactionsByUID(ctx context.Context, uid string) (int64, error)
}
