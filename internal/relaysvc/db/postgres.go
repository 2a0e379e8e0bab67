package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var DB *pgxpool.Pool

// Connect initializes the connection pool. pgxpool opens connections on
// demand, so only a bad dsn fails here.
func Connect(dsn string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		log.Warnf("postgres not reachable yet, continuing: %v", err)
	}

	DB = pool

	return pool, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS cards (
    uid          TEXT PRIMARY KEY,
    owner        TEXT NOT NULL DEFAULT 'Guest',
    balance      NUMERIC NOT NULL DEFAULT 0,
    last_updated TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transactions (
    id           UUID PRIMARY KEY,
    uid          TEXT NOT NULL,
    owner        TEXT NOT NULL,
    amount       NUMERIC NOT NULL,
    new_balance  NUMERIC NOT NULL,
    kind         TEXT NOT NULL,
    performed_by TEXT NOT NULL DEFAULT '',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS transactions_created_at_idx ON transactions (created_at DESC);
CREATE INDEX IF NOT EXISTS transactions_uid_idx ON transactions (uid);
`

// EnsureSchema creates the relay tables when missing.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// ClosePool is for graceful shutdown
func ClosePool() {
	if DB != nil {
		DB.Close()
	}
}
