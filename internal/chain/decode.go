package chain

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/core/types"

	"github.com/erigontech/txindexer/internal/ingesterr"
	"github.com/erigontech/txindexer/internal/store"
)

// decodeTransfer turns a raw Transfer log into a writer-facing Record.
// Logs with fewer than 3 topics are not a standard ERC20 Transfer and are
// classified malformed — skipped, never fatal to the poll cycle (spec
// §4.1, §7).
func decodeTransfer(chainID uint64, log types.Log) (store.Record, error) {
	if len(log.Topics) < 3 {
		return store.Record{}, ingesterr.Malformedf(
			"transfer log has %d topics, want at least 3 (tx %s log %d)",
			len(log.Topics), log.TxHash.Hex(), log.Index)
	}

	from := addressFromTopic(log.Topics[1])
	to := addressFromTopic(log.Topics[2])

	return store.Record{
		ChainID:        chainID,
		TxHash:         strings.ToLower(log.TxHash.Hex()),
		LogIndex:       uint32(log.Index),
		Token:          strings.ToLower(log.Address.Hex()),
		FromAddr:       from,
		ToAddr:         to,
		Value:          "0x" + hex.EncodeToString(log.Data),
		BlockNumber:    log.BlockNumber,
		BlockTimestamp: 0, // resolved by the poller via the block cache
	}, nil
}

// addressFromTopic extracts the lower 20 bytes of a 32-byte indexed topic
// — how Solidity left-pads an address argument into an event topic — and
// returns it lowercased with a 0x prefix.
func addressFromTopic(topic [32]byte) string {
	return "0x" + hex.EncodeToString(topic[12:])
}
