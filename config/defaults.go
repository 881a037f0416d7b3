package config

import (
	"os"
	"strconv"
	"strings"
)

// Default values for every environment variable in spec §6.
const (
	DefaultMicroblockInterval = 1
	DefaultBatchSize          = 5000
	DefaultMempoolSize        = 500_000
	DefaultParallelThreads    = 4
	DefaultRPCAddr            = ":8001"
)

// Default returns a Config populated entirely with defaults, with DataDir
// set to the platform default from DefaultDataDir.
func Default() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		P2P: P2PConfig{
			ListenAddr:  "0.0.0.0",
			Port:        8001,
			MaxPeers:    256,
			UseLockfree: "auto",
		},
		Storage: StorageConfig{
			MempoolSize:  DefaultMempoolSize,
			CompressionOn: false,
		},
		RPC: RPCConfig{Addr: DefaultRPCAddr},
		Consensus: ConsensusConfig{
			MicroblockInterval: DefaultMicroblockInterval,
			BatchSize:          DefaultBatchSize,
			ParallelThreads:    DefaultParallelThreads,
		},
		Log: LogConfig{Level: "info"},
	}
}

// FromEnv loads a Config starting from Default() and overriding with any
// recognized environment variable (spec §6 "Environment variables").
func FromEnv() *Config {
	c := Default()

	if v := os.Getenv("QNET_BOOTSTRAP_ID"); v != "" {
		c.BootstrapID = v
	} else if os.Getenv("QNET_GENESIS_BOOTSTRAP") == "1" {
		// Legacy alias: treat as Genesis node 001 unless QNET_BOOTSTRAP_ID
		// is set explicitly (spec §6: "legacy alias").
		c.BootstrapID = "001"
	}

	if v := os.Getenv("QNET_ACTIVATION_CODE"); v != "" {
		c.ActivationCode = v
	}

	if v := os.Getenv("QNET_EXTERNAL_IP"); v != "" {
		c.ExternalIP = v
	} else if v := os.Getenv("DOCKER_HOST_IP"); v != "" {
		c.ExternalIP = v
	}

	if v := os.Getenv("QNET_REGION"); v != "" {
		c.Region = v
	}

	if v := envInt("QNET_MICROBLOCK_INTERVAL", c.Consensus.MicroblockInterval); v < 1 {
		c.Consensus.MicroblockInterval = 1
	} else {
		c.Consensus.MicroblockInterval = v
	}

	c.Consensus.BatchSize = envInt("QNET_BATCH_SIZE", c.Consensus.BatchSize)
	c.Storage.MempoolSize = envInt("QNET_MEMPOOL_SIZE", c.Storage.MempoolSize)
	c.Storage.ShardCount = envInt("QNET_SHARD_COUNT", c.Storage.ShardCount)
	c.Consensus.ParallelThreads = envInt("QNET_PARALLEL_THREADS", c.Consensus.ParallelThreads)
	c.Storage.MaxStorageGB = envInt("QNET_MAX_STORAGE_GB", c.Storage.MaxStorageGB)

	if v := os.Getenv("QNET_COMPRESSION"); v != "" {
		c.Storage.CompressionOn = v == "1"
	}

	if v := os.Getenv("QNET_USE_LOCKFREE"); v != "" {
		c.P2P.UseLockfree = v
	}

	if v := os.Getenv("QNET_GENESIS_LEADERS"); v != "" {
		c.P2P.GenesisLeaders = splitNonEmpty(v, ",")
	}

	return c
}

func envInt(name string, fallback int) int {
	v := os.Getenv(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
