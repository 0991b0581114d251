package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"github.com/erigontech/txindexer/internal/metrics"
)

// Transfer is the central record (spec §3.1). Addresses and the token
// field are always normalized lowercase before they reach this struct.
type Transfer struct {
	ID             int64   `json:"id"`
	ChainID        uint64  `json:"chain_id"`
	TxHash         string  `json:"tx_hash"`
	LogIndex       uint32  `json:"log_index"`
	Token          string  `json:"token"`
	FromAddr       string  `json:"from_addr"`
	ToAddr         string  `json:"to_addr"`
	Value          string  `json:"value"`
	BlockNumber    uint64  `json:"block_number"`
	BlockTimestamp int64   `json:"block_timestamp"`
	SwapType       *string `json:"swap_type,omitempty"`
}

// NaturalKey is the dedup identity of a Transfer: (chain_id, tx_hash,
// log_index). A second attempt to persist the same key is a no-op.
type NaturalKey struct {
	ChainID  uint64
	TxHash   string
	LogIndex uint32
}

// Record is the writer-facing shape of a Transfer prior to id assignment.
type Record struct {
	ChainID        uint64
	TxHash         string
	LogIndex       uint32
	Token          string
	FromAddr       string
	ToAddr         string
	Value          string
	BlockNumber    uint64
	BlockTimestamp int64
}

// Key returns this record's natural key.
func (r Record) Key() NaturalKey {
	return NaturalKey{ChainID: r.ChainID, TxHash: r.TxHash, LogIndex: r.LogIndex}
}

func normalize(r Record) Record {
	r.Token = strings.ToLower(r.Token)
	r.FromAddr = strings.ToLower(r.FromAddr)
	r.ToAddr = strings.ToLower(r.ToAddr)
	r.TxHash = strings.ToLower(r.TxHash)
	return r
}

// Upsert persists r if its natural key is unseen, otherwise is a no-op.
// The id assignment, insert, and index updates commit together in a single
// statement — there is no window where a row exists without its indexes.
//
// Upsert(r); Upsert(r) is equivalent to a single Upsert(r): the row count
// and its id are unchanged on the second call.
func (s *Store) Upsert(ctx context.Context, r Record) (id int64, inserted bool, err error) {
	r = normalize(r)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	const insertStmt = `
INSERT INTO ` + TransfersTable + `
	(chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(chain_id, tx_hash, log_index) DO NOTHING
RETURNING id`

	row := s.db.QueryRowContext(ctx, insertStmt,
		r.ChainID, r.TxHash, r.LogIndex, r.Token, r.FromAddr, r.ToAddr, r.Value, r.BlockNumber, r.BlockTimestamp,
	)
	if scanErr := row.Scan(&id); scanErr == nil {
		metrics.TransfersPersistedTotal.WithLabelValues(chainLabel(r.ChainID)).Inc()
		return id, true, nil
	} else if scanErr != sql.ErrNoRows {
		return 0, false, classifyWriteErr(scanErr)
	}

	// Conflict: the row already exists. Fetch its id without reassigning one.
	const existingStmt = `
SELECT id FROM ` + TransfersTable + `
WHERE chain_id = ? AND tx_hash = ? AND log_index = ?`
	err = s.db.QueryRowContext(ctx, existingStmt, r.ChainID, r.TxHash, r.LogIndex).Scan(&id)
	if err != nil {
		return 0, false, classifyWriteErr(err)
	}
	return id, false, nil
}

// Exists reports whether key already has a persisted row, using the same
// unique index Upsert conflicts against. This is the optimization hook
// StoreBacked dedup uses to skip a redundant Upsert call; it is never the
// sole correctness guarantee — Upsert's ON CONFLICT DO NOTHING is.
func (s *Store) Exists(ctx context.Context, key NaturalKey) (bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `
SELECT id FROM `+TransfersTable+`
WHERE chain_id = ? AND tx_hash = ? AND log_index = ?`,
		key.ChainID, strings.ToLower(key.TxHash), key.LogIndex,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}
