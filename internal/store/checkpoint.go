package store

import (
	"context"
	"database/sql"
)

// CheckpointGet returns the last safely checkpointed block for chainID,
// and false if this chain has never checkpointed.
func (s *Store) CheckpointGet(ctx context.Context, chainID uint64) (uint64, bool, error) {
	var block uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_safe_block FROM `+CheckpointsTable+` WHERE chain_id = ?`, chainID,
	).Scan(&block)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return block, true, nil
}

// CheckpointSave durably records blockNumber as the new last_safe_block
// for chainID. It must be durable before returning; SQLite's WAL commit
// on this connection satisfies that. Callers treat a successful return as
// a commitment that no earlier block will be re-polled on restart: the
// poller's next from_block is the saved block + 1, so blocks at or below
// the checkpoint are not queried again.
func (s *Store) CheckpointSave(ctx context.Context, chainID uint64, blockNumber uint64) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.db.ExecContext(ctx, `
INSERT INTO `+CheckpointsTable+` (chain_id, last_safe_block)
VALUES (?, ?)
ON CONFLICT(chain_id) DO UPDATE SET last_safe_block = excluded.last_safe_block`,
		chainID, blockNumber)
	return classifyWriteErr(err)
}
