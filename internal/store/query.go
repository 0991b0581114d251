package store

import (
	"context"
	"database/sql"
	"strings"
)

const maxByLimit = 1000

// Direction selects which address column(s) a Stream call matches against.
type Direction string

const (
	DirectionFrom Direction = "from"
	DirectionTo   Direction = "to"
	DirectionBoth Direction = "both"
)

// ByFrom returns rows sent from addr on chainID, newest first by
// block_timestamp, ties broken by id descending. limit is capped at 1000.
func (s *Store) ByFrom(ctx context.Context, chainID uint64, addr string, limit int) ([]Transfer, error) {
	addr = strings.ToLower(addr)
	return s.queryRows(ctx, `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM `+TransfersTable+`
WHERE chain_id = ? AND from_addr = ?
ORDER BY block_timestamp DESC, id DESC
LIMIT ?`, chainID, addr, capLimit(limit))
}

// ByTo returns rows received by addr on chainID, same ordering as ByFrom.
func (s *Store) ByTo(ctx context.Context, chainID uint64, addr string, limit int) ([]Transfer, error) {
	addr = strings.ToLower(addr)
	return s.queryRows(ctx, `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM `+TransfersTable+`
WHERE chain_id = ? AND to_addr = ?
ORDER BY block_timestamp DESC, id DESC
LIMIT ?`, chainID, addr, capLimit(limit))
}

// ByBoth returns rows transferred from `from` to `to` on chainID.
func (s *Store) ByBoth(ctx context.Context, chainID uint64, from, to string, limit int) ([]Transfer, error) {
	from, to = strings.ToLower(from), strings.ToLower(to)
	return s.queryRows(ctx, `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM `+TransfersTable+`
WHERE chain_id = ? AND from_addr = ? AND to_addr = ?
ORDER BY block_timestamp DESC, id DESC
LIMIT ?`, chainID, from, to, capLimit(limit))
}

// ByAddress returns the union of ByFrom and ByTo for addr, deduplicated by
// id and re-sorted by block_timestamp DESC (ties by id DESC).
func (s *Store) ByAddress(ctx context.Context, chainID uint64, addr string, limit int) ([]Transfer, error) {
	addr = strings.ToLower(addr)
	rows, err := s.queryRows(ctx, `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM `+TransfersTable+`
WHERE chain_id = ? AND (from_addr = ? OR to_addr = ?)
ORDER BY block_timestamp DESC, id DESC
LIMIT ?`, chainID, addr, addr, capLimit(limit))
	if err != nil {
		return nil, err
	}
	return dedupByID(rows), nil
}

// StreamResult is the cursor-paginated response shape for Stream and the
// per-address results inside a Batch call.
type StreamResult struct {
	Transfers    []Transfer
	NextSinceID  int64
	HasMore      bool
}

// Stream returns rows for addr strictly after sinceID, ordered by id
// ascending, in the given direction. limit is capped at 1000. The
// implementation fetches limit+1 rows and uses the presence of the extra
// row to derive HasMore without a second count query.
func (s *Store) Stream(ctx context.Context, chainID uint64, addr string, direction Direction, sinceID int64, limit int) (StreamResult, error) {
	addr = strings.ToLower(addr)
	limit = capLimit(limit)
	fetch := limit + 1

	var query string
	var args []interface{}
	switch direction {
	case DirectionFrom:
		query = `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM ` + TransfersTable + `
WHERE chain_id = ? AND from_addr = ? AND id > ?
ORDER BY id ASC
LIMIT ?`
		args = []interface{}{chainID, addr, sinceID, fetch}
	case DirectionTo:
		query = `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM ` + TransfersTable + `
WHERE chain_id = ? AND to_addr = ? AND id > ?
ORDER BY id ASC
LIMIT ?`
		args = []interface{}{chainID, addr, sinceID, fetch}
	default: // both
		query = `
SELECT id, chain_id, tx_hash, log_index, token, from_addr, to_addr, value, block_number, block_timestamp, swap_type
FROM ` + TransfersTable + `
WHERE chain_id = ? AND (from_addr = ? OR to_addr = ?) AND id > ?
ORDER BY id ASC
LIMIT ?`
		args = []interface{}{chainID, addr, addr, sinceID, fetch}
	}

	rows, err := s.queryRows(ctx, query, args...)
	if err != nil {
		return StreamResult{}, err
	}

	hasMore := len(rows) > limit
	if hasMore {
		rows = rows[:limit]
	}

	res := StreamResult{Transfers: rows, NextSinceID: sinceID, HasMore: hasMore}
	if len(rows) > 0 {
		res.NextSinceID = rows[len(rows)-1].ID
	}
	return res, nil
}

const maxBatchQueries = 500

// BatchQuery is one address+cursor pair inside a Batch call.
type BatchQuery struct {
	Addr    string
	SinceID int64
}

// Batch runs Stream once for every query, in order, capped at 500 entries
// per call, and returns results keyed by the lowercased address. Callers
// needing concurrency control should use internal/query, which wraps this
// with an errgroup; Batch itself is sequential to keep the store package
// free of a concurrency-limiting dependency it doesn't otherwise need.
func (s *Store) Batch(ctx context.Context, chainID uint64, queries []BatchQuery, direction Direction, limit int) (map[string]StreamResult, error) {
	if len(queries) > maxBatchQueries {
		return nil, ErrBatchTooLarge
	}
	out := make(map[string]StreamResult, len(queries))
	for _, q := range queries {
		addr := strings.ToLower(q.Addr)
		res, err := s.Stream(ctx, chainID, addr, direction, q.SinceID, limit)
		if err != nil {
			return nil, err
		}
		out[addr] = res
	}
	return out, nil
}

func capLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	if limit > maxByLimit {
		return maxByLimit
	}
	return limit
}

func dedupByID(rows []Transfer) []Transfer {
	seen := make(map[int64]struct{}, len(rows))
	out := make([]Transfer, 0, len(rows))
	for _, r := range rows {
		if _, ok := seen[r.ID]; ok {
			continue
		}
		seen[r.ID] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (s *Store) queryRows(ctx context.Context, query string, args ...interface{}) ([]Transfer, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transfer
	for rows.Next() {
		var t Transfer
		var swapType sql.NullString
		if err := rows.Scan(&t.ID, &t.ChainID, &t.TxHash, &t.LogIndex, &t.Token, &t.FromAddr, &t.ToAddr, &t.Value, &t.BlockNumber, &t.BlockTimestamp, &swapType); err != nil {
			return nil, err
		}
		if swapType.Valid {
			v := swapType.String
			t.SwapType = &v
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
