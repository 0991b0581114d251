package store

// DBSchemaVersion identifies the layout created by ddl below. Bump it and
// add a migration whenever a column or index changes shape.
const DBSchemaVersion = "1.0.0"

// Table names. Kept as named constants, each documented with its logical
// key/value shape, the same cataloging style used for every table in a
// KV-backed node — except here the "value" is a SQL row, not an encoded
// blob.
const (
	// TransfersTable holds one row per (chain_id, tx_hash, log_index)
	// natural key. Never deleted by the core; reorg-orphaned rows coexist
	// under their own natural key forever (spec §4.1 reorg safety).
	TransfersTable = "transfers"

	// CheckpointsTable holds one row per chain_id: the last block number
	// this chain's Poller has fully persisted Transfer logs for.
	CheckpointsTable = "checkpoints"
)

const ddl = `
CREATE TABLE IF NOT EXISTS ` + TransfersTable + ` (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	chain_id        INTEGER NOT NULL,
	tx_hash         TEXT    NOT NULL,
	log_index       INTEGER NOT NULL,
	token           TEXT    NOT NULL,
	from_addr       TEXT    NOT NULL,
	to_addr         TEXT    NOT NULL,
	value           TEXT    NOT NULL,
	block_number    INTEGER NOT NULL,
	block_timestamp INTEGER NOT NULL,
	swap_type       TEXT,
	UNIQUE(chain_id, tx_hash, log_index)
);

CREATE INDEX IF NOT EXISTS idx_transfers_from ON ` + TransfersTable + ` (chain_id, from_addr, id DESC);
CREATE INDEX IF NOT EXISTS idx_transfers_to   ON ` + TransfersTable + ` (chain_id, to_addr, id DESC);
CREATE INDEX IF NOT EXISTS idx_transfers_pair ON ` + TransfersTable + ` (chain_id, from_addr, to_addr, id DESC);
CREATE INDEX IF NOT EXISTS idx_transfers_cursor ON ` + TransfersTable + ` (chain_id, id ASC);

CREATE TABLE IF NOT EXISTS ` + CheckpointsTable + ` (
	chain_id        INTEGER PRIMARY KEY,
	last_safe_block INTEGER NOT NULL
);
`
