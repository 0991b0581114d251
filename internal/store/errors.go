package store

import (
	"errors"
	"strings"

	"github.com/erigontech/txindexer/internal/ingesterr"
)

// ErrBatchTooLarge is returned when a Batch call exceeds maxBatchQueries entries.
var ErrBatchTooLarge = errors.New("store: batch exceeds maximum of 500 queries")

// classifyWriteErr turns a raw driver error from a write path into the
// ingestion error taxonomy. Locking, busy and I/O errors are transient;
// anything reporting a constraint is permanent, since Upsert already
// routes the one expected constraint (the natural key) through its own
// ON CONFLICT clause, so a constraint error here is unexpected.
func classifyWriteErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "locked"), strings.Contains(msg, "busy"), strings.Contains(msg, "timeout"):
		return ingesterr.Transient(err)
	case strings.Contains(msg, "constraint"):
		return ingesterr.Permanent(err)
	default:
		return ingesterr.Transient(err)
	}
}
