// Package query implements the Query Facade (spec §6.2): stateless read
// operations over the Transfer Store, with address validation and
// concurrent batch execution layered on top of internal/store's
// sequential primitives.
package query

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/erigontech/txindexer/internal/store"
)

var hexAddrRE = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// InvalidAddressError reports a malformed address argument. The facade
// never panics or crashes the ingestor on bad caller input (spec §7);
// every reader entry point returns this instead.
type InvalidAddressError struct {
	Addr string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("query: invalid address %q: want 0x-prefixed 20-byte hex", e.Addr)
}

func validateAddr(addr string) (string, error) {
	if !hexAddrRE.MatchString(addr) {
		return "", &InvalidAddressError{Addr: addr}
	}
	return strings.ToLower(addr), nil
}

const (
	batchDefaultLimit = 50
	batchMaxLimit     = 100
)

// Facade is the stateless read-side handle exposed to adapters. It holds
// no state of its own beyond the store reference.
type Facade struct {
	transfers *store.Store
}

// New builds a Facade over transfers.
func New(transfers *store.Store) *Facade {
	return &Facade{transfers: transfers}
}

// ByFrom returns transfers sent from addr on chainID.
func (f *Facade) ByFrom(ctx context.Context, chainID uint64, addr string, limit int) ([]store.Transfer, error) {
	addr, err := validateAddr(addr)
	if err != nil {
		return nil, err
	}
	return f.transfers.ByFrom(ctx, chainID, addr, limit)
}

// ByTo returns transfers received by addr on chainID.
func (f *Facade) ByTo(ctx context.Context, chainID uint64, addr string, limit int) ([]store.Transfer, error) {
	addr, err := validateAddr(addr)
	if err != nil {
		return nil, err
	}
	return f.transfers.ByTo(ctx, chainID, addr, limit)
}

// ByBoth returns transfers from `from` to `to` on chainID.
func (f *Facade) ByBoth(ctx context.Context, chainID uint64, from, to string, limit int) ([]store.Transfer, error) {
	from, err := validateAddr(from)
	if err != nil {
		return nil, err
	}
	to, err = validateAddr(to)
	if err != nil {
		return nil, err
	}
	return f.transfers.ByBoth(ctx, chainID, from, to, limit)
}

// ByAddress returns the union-dedup-sort of ByFrom and ByTo for addr.
func (f *Facade) ByAddress(ctx context.Context, chainID uint64, addr string, limit int) ([]store.Transfer, error) {
	addr, err := validateAddr(addr)
	if err != nil {
		return nil, err
	}
	return f.transfers.ByAddress(ctx, chainID, addr, limit)
}

// Stream returns a cursor page of transfers for addr after sinceID.
func (f *Facade) Stream(ctx context.Context, chainID uint64, addr string, direction store.Direction, sinceID int64, limit int) (store.StreamResult, error) {
	addr, err := validateAddr(addr)
	if err != nil {
		return store.StreamResult{}, err
	}
	return f.transfers.Stream(ctx, chainID, addr, direction, sinceID, limit)
}

// BatchQuery is one address+cursor pair inside a Batch call.
type BatchQuery struct {
	Addr    string
	SinceID int64
}

// Batch runs Stream concurrently for every entry in queries, capped at
// 500 queries per call (spec §4.2/§6.2) and at batchMaxLimit per-entry
// limit. Results are keyed by the lowercased, validated address; any
// invalid address fails the whole call rather than silently dropping an
// entry, since a caller relying on a missing key would misread it as "no
// transfers" instead of "bad input".
func (f *Facade) Batch(ctx context.Context, chainID uint64, queries []BatchQuery, direction store.Direction, limit int) (map[string]store.StreamResult, error) {
	if len(queries) > 500 {
		return nil, store.ErrBatchTooLarge
	}
	if limit <= 0 {
		limit = batchDefaultLimit
	}
	if limit > batchMaxLimit {
		limit = batchMaxLimit
	}

	storeQueries := make([]store.BatchQuery, len(queries))
	for i, q := range queries {
		addr, err := validateAddr(q.Addr)
		if err != nil {
			return nil, err
		}
		storeQueries[i] = store.BatchQuery{Addr: addr, SinceID: q.SinceID}
	}

	results := make([]store.StreamResult, len(storeQueries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range storeQueries {
		i, q := i, q
		g.Go(func() error {
			res, err := f.transfers.Stream(gctx, chainID, q.Addr, direction, q.SinceID, limit)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]store.StreamResult, len(storeQueries))
	for i, q := range storeQueries {
		out[q.Addr] = results[i]
	}
	return out, nil
}
