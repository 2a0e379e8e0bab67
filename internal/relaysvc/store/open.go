package store

import (
	"context"
	"fmt"
	"time"

	config "github.com/avvvet/rfid-relay/configs"
	mongodb "github.com/avvvet/rfid-relay/internal/db"
	pgdb "github.com/avvvet/rfid-relay/internal/relaysvc/db"
	log "github.com/sirupsen/logrus"
)

const setupRetry = 10 * time.Second

// Open builds the configured store pair. Index and schema setup keep
// retrying in the background until ctx ends, so an unreachable database
// does not prevent start-up.
func Open(ctx context.Context, s config.StoreSettings) (CardStore, TransactionStore, func(), error) {
	switch s.Driver {
	case config.StoreMongo:
		database, disconnect, err := mongodb.ConnectToDB(s.MongoURI)
		if err != nil {
			return nil, nil, nil, err
		}
		go retrySetup(ctx, "mongo indexes", setupRetry, func(ctx context.Context) error {
			return mongodb.EnsureIndexes(ctx, database)
		})
		log.Infof("mongo store configured, database %s", database.Name())
		return NewMongoCardStore(database), NewMongoTransactionStore(database), disconnect, nil

	case config.StorePostgres:
		pool, err := pgdb.Connect(s.PostgresURL)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		go retrySetup(ctx, "postgres schema", setupRetry, func(ctx context.Context) error {
			return pgdb.EnsureSchema(ctx, pool)
		})
		log.Info("postgres store configured")
		return NewPgCardStore(pool), NewPgTransactionStore(pool), pgdb.ClosePool, nil

	case config.StoreMemory:
		log.Warn("memory store configured, state is lost on restart")
		mem := NewMemoryStore()
		return mem, mem, func() {}, nil

	default:
		return nil, nil, nil, fmt.Errorf("unsupported store driver %q", s.Driver)
	}
}

// retrySetup runs setup until it succeeds or ctx ends.
func retrySetup(ctx context.Context, name string, every time.Duration, setup func(context.Context) error) {
	for {
		attemptCtx, cancel := context.WithTimeout(ctx, every)
		err := setup(attemptCtx)
		cancel()
		if err == nil {
			log.Infof("%s ready", name)
			return
		}
		log.Warnf("%s not ready, retrying in %s: %v", name, every, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(every):
		}
	}
}
