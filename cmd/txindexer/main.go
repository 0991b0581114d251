package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erigontech/txindexer/internal/catalog"
	"github.com/erigontech/txindexer/internal/config"
	"github.com/erigontech/txindexer/internal/orchestrator"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var chainFlags []string

	cmd := &cobra.Command{
		Use:   "txindexer",
		Short: "Multi-chain ERC20 Transfer indexer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), chainFlags)
		},
	}

	cmd.Flags().StringArrayVar(&chainFlags, "chain", nil,
		"chain to index, as chain_id=name=rpc_endpoint (repeatable)")

	return cmd
}

func run(ctx context.Context, chainFlags []string) error {
	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	chains, err := parseChainFlags(chainFlags)
	if err != nil {
		return err
	}
	if len(chains) == 0 {
		return fmt.Errorf("no chains configured: pass at least one --chain chain_id=name=rpc_endpoint")
	}

	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := orchestrator.Boot(ctx, cfg, chains, log)
	if err != nil {
		return fmt.Errorf("boot: %w", err)
	}

	<-ctx.Done()
	log.Info("signal received, shutting down")

	shutdownCtx := context.Background()
	orch.Shutdown(shutdownCtx)
	return nil
}

func parseChainFlags(raw []string) ([]catalog.Chain, error) {
	chains := make([]catalog.Chain, 0, len(raw))
	for _, entry := range raw {
		parts := splitThree(entry)
		if parts == nil {
			return nil, fmt.Errorf("invalid --chain entry %q: want chain_id=name=rpc_endpoint", entry)
		}
		chainID, err := strconv.ParseUint(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --chain entry %q: chain_id must be numeric", entry)
		}
		chains = append(chains, catalog.Chain{ChainID: chainID, Name: parts[1], RPCEndpoint: parts[2]})
	}
	return chains, nil
}

// splitThree splits "a=b=c" into exactly ["a", "b", "c"], where c may
// itself contain '=' (an RPC endpoint query string, for instance).
func splitThree(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s) && len(parts) < 2; i++ {
		if s[i] == '=' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	if len(parts) != 2 {
		return nil
	}
	parts = append(parts, s[start:])
	return parts
}
