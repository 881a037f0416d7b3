// QNet node daemon.
//
// Usage:
//
//	qnetd                  Run a node using environment-variable configuration
//
// Command-line arguments are not read; all settings come from the
// environment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/qnet-project/qnet-core/config"
	qlog "github.com/qnet-project/qnet-core/internal/log"
	"github.com/qnet-project/qnet-core/internal/node"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

func main() {
	// ── 1. Load config from environment (spec §6) ───────────────────────
	cfg := config.FromEnv()

	if err := os.MkdirAll(cfg.LogsDir(), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
		os.Exit(1)
	}
	if err := qlog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.LogsDir()+"/qnetd.log"); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := qlog.WithComponent("node")

	// ── 2. Resolve identity and Genesis status ──────────────────────────
	genesis := config.DefaultGenesis()
	selfID, signKey, err := resolveIdentity(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to resolve node identity")
	}

	var nodeGenesis *config.Genesis
	if cfg.IsGenesis() {
		nodeGenesis = genesis
	}

	logger.Info().
		Str("chain_id", genesis.ChainID).
		Str("self_id", selfID).
		Bool("genesis", cfg.IsGenesis()).
		Msg("starting QNet node")

	// ── 3. Wire the node ─────────────────────────────────────────────────
	n, err := node.New(cfg, nodeGenesis, selfID, signKey)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct node")
	}
	defer func() {
		if err := n.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing node storage")
		}
	}()

	// ── 4. Run until a shutdown signal arrives ──────────────────────────
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		cancel()
	}()

	logger.Info().Str("addr", cfg.RPC.Addr).Msg("node started successfully")
	if err := n.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("node exited with error")
	}
	logger.Info().Msg("goodbye")
}

// resolveIdentity determines the node's stable consensus identity and
// signing key: a Genesis bootstrap identity when QNET_BOOTSTRAP_ID is
// set, otherwise "node_" plus the first 16 hex chars of the hash of a
// freshly generated key's public key. QNET_ACTIVATION_CODE must be set
// for a non-Genesis node but is not decoded or used in the derivation, and
// the key is generated anew on every start, so a non-Genesis node's id
// does not survive a restart.
func resolveIdentity(cfg *config.Config) (string, *crypto.PrivateKey, error) {
	if cfg.IsGenesis() {
		n, err := bootstrapIndex(cfg.BootstrapID)
		if err != nil {
			return "", nil, err
		}
		key, err := crypto.GenerateKey()
		if err != nil {
			return "", nil, fmt.Errorf("generate genesis signing key: %w", err)
		}
		return config.GenesisNodeID(n), key, nil
	}

	if cfg.ActivationCode == "" {
		return "", nil, fmt.Errorf("QNET_ACTIVATION_CODE is required for a non-Genesis node")
	}

	key, err := crypto.GenerateKey()
	if err != nil {
		return "", nil, fmt.Errorf("generate signing key: %w", err)
	}
	if mnemonic, err := key.Mnemonic(); err == nil {
		fmt.Fprintf(os.Stderr, "New node identity generated. Record this recovery phrase:\n\n  %s\n\n", mnemonic)
	}
	digest := crypto.Hash(key.PublicKey())
	return "node_" + digest.String()[:16], key, nil
}

func bootstrapIndex(id string) (int, error) {
	var n int
	if _, err := fmt.Sscanf(id, "%d", &n); err != nil || n < 1 || n > types.GenesisBootstrapCount {
		return 0, fmt.Errorf("invalid QNET_BOOTSTRAP_ID %q: must be 001..%03d", id, types.GenesisBootstrapCount)
	}
	return n, nil
}
