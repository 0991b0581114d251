// Package rpcclient adapts go-ethereum's ethclient to the narrow upstream
// RPC contract the core consumes (spec §6.1): getBlockNumber, getLogs and
// getBlock, each rate-budgeted and carrying a bounded timeout. Every
// method here is the one place a network call crosses into the ingestion
// pipeline.
package rpcclient

import (
	"context"
	"math/big"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/erigontech/txindexer/internal/ingesterr"
	"github.com/erigontech/txindexer/internal/ratebudget"
)

// retryBackoff builds the per-call exponential schedule for transient
// upstream retries: waits start at 100ms and grow to at most 2s between
// attempts, so a single RPC flap doesn't cost a whole extra poll tick.
// MaxElapsedTime is left at zero (no cap of its own): attempts continue
// until the call's own timeout context expires, and that deadline is what
// bounds the retry loop.
func retryBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0
	return backoff.WithContext(b, ctx)
}

// TransferSig is the bit-exact topic0 of a standard ERC20
// Transfer(address,address,uint256) event.
var TransferSig = common.HexToHash("0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef")

// DefaultTimeout bounds every individual upstream call.
const DefaultTimeout = 30 * time.Second

// Client is the per-chain upstream handle. One is constructed per entry
// in the network catalog.
type Client struct {
	chainID uint64
	eth     *ethclient.Client
	budget  *ratebudget.Budget
	timeout time.Duration
}

// Dial connects to endpoint and wraps it with budget. budget is shared
// process-wide across every chain's Client (spec §4.4).
func Dial(chainID uint64, endpoint string, budget *ratebudget.Budget) (*Client, error) {
	eth, err := ethclient.Dial(endpoint)
	if err != nil {
		return nil, ingesterr.Transientf(err, "dial chain %d", chainID)
	}
	return &Client{chainID: chainID, eth: eth, budget: budget, timeout: DefaultTimeout}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.eth.Close()
}

// HeadBlockNumber returns the current head height (getBlockNumber, §6.1).
// RPC-level failures (timeout, rate limit, network flap) are classified
// transient: the caller skips this tick and retries on the next one.
func (c *Client) HeadBlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var head uint64
	err := backoff.Retry(func() error {
		return c.budget.Execute(ctx, func() error {
			n, err := c.eth.BlockNumber(ctx)
			head = n
			return err
		})
	}, retryBackoff(ctx))
	if err != nil {
		return 0, ingesterr.Transientf(err, "getBlockNumber chain %d", c.chainID)
	}
	return head, nil
}

// TransferLogs fetches Transfer-topic logs in [fromBlock, toBlock]
// (getLogs, §6.1). The topics filter is the single-element AND-of-OR list
// [[TransferSig]] the spec requires; no address filter is applied since
// the core indexes all ERC20 tokens, not one.
func (c *Client) TransferLogs(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(fromBlock),
		ToBlock:   new(big.Int).SetUint64(toBlock),
		Topics:    [][]common.Hash{{TransferSig}},
	}

	var logs []types.Log
	err := backoff.Retry(func() error {
		return c.budget.Execute(ctx, func() error {
			l, err := c.eth.FilterLogs(ctx, query)
			logs = l
			return err
		})
	}, retryBackoff(ctx))
	if err != nil {
		return nil, ingesterr.Transientf(err, "getLogs chain %d [%d,%d]", c.chainID, fromBlock, toBlock)
	}
	return logs, nil
}

// BlockTimestamp fetches the Unix-second timestamp of blockNumber
// (getBlock, §6.1). Satisfies internal/blockcache.Fetcher.
func (c *Client) BlockTimestamp(blockNumber uint64) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	var header *types.Header
	err := backoff.Retry(func() error {
		return c.budget.Execute(ctx, func() error {
			h, err := c.eth.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
			header = h
			return err
		})
	}, retryBackoff(ctx))
	if err != nil {
		return 0, ingesterr.Transientf(err, "getBlock chain %d block %d", c.chainID, blockNumber)
	}
	return int64(header.Time), nil
}
