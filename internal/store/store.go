// Package store implements the Transfer Store (spec §4.2) and Checkpoint
// Store (spec §4.6): the durable, ordered, uniquely-keyed persistence
// layer shared by every chain's Poller and by all readers.
//
// The backing engine is SQLite via modernc.org/sqlite (pure Go, no cgo),
// run in WAL mode so readers never block on the single writer. Write
// serialization is handled internally with a mutex — callers never need
// their own locking around Upsert or CheckpointSave.
package store

import (
	"context"
	"database/sql"
	"sync"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Store is the shared handle passed to every Poller and to the query
// facade. It is safe for concurrent use by many goroutines.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	// writeMu serializes all mutating statements (Upsert, checkpoint Save).
	// SQLite itself only allows one writer at a time; making that explicit
	// here avoids surprising SQLITE_BUSY retries under load.
	writeMu sync.Mutex
}

// Open connects to the SQLite database at dsn (a file path, or ":memory:"
// for tests), applies pragmas suited to a single-writer/many-reader
// workload, and ensures the schema exists. A failure here is startup-fatal
// per spec §7.
func Open(dsn string, log *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}

	s := &Store{db: db, log: log.Named("store")}
	if err := s.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Healthy reports whether the store can currently serve a trivial query.
// Pollers consult this before starting a tick (spec §4.1: "TransferStore
// is unhealthy" skips the tick silently).
func (s *Store) Healthy(ctx context.Context) bool {
	return s.db.PingContext(ctx) == nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
