package config

import (
	"fmt"

	"github.com/qnet-project/qnet-core/pkg/types"
)

// Genesis holds protocol rules that MUST match across every node: the
// Genesis bootstrap identities and their well-known bootstrap addresses.
// Immutable after network launch.
type Genesis struct {
	ChainID   string            `json:"chain_id"`
	Timestamp int64             `json:"timestamp"`
	// BootstrapPeers maps a Genesis node_id ("genesis_node_001"..
	// "genesis_node_005") to its well-known bootstrap address.
	BootstrapPeers map[string]string `json:"bootstrap_peers"`
}

// DefaultGenesis is the QNet mainnet Genesis configuration: five
// bootstrap nodes at well-known addresses (spec §4.4: "the network has
// five hardcoded Genesis bootstrap nodes").
func DefaultGenesis() *Genesis {
	peers := make(map[string]string, types.GenesisBootstrapCount)
	for i := 1; i <= types.GenesisBootstrapCount; i++ {
		id := GenesisNodeID(i)
		peers[id] = fmt.Sprintf("genesis-bootstrap-%03d.qnet.network:8001", i)
	}
	return &Genesis{
		ChainID:        "qnet-mainnet-1",
		BootstrapPeers: peers,
	}
}

// GenesisNodeID formats the stable node_id for bootstrap index n (1..5):
// "genesis_node_001".."genesis_node_005".
func GenesisNodeID(n int) string {
	return fmt.Sprintf("%s%03d", types.GenesisNodePrefix, n)
}

// BootstrapAddresses returns every known Genesis bootstrap address, in
// node_id order, for initial peer dialing.
func (g *Genesis) BootstrapAddresses() []string {
	out := make([]string, 0, len(g.BootstrapPeers))
	for i := 1; i <= types.GenesisBootstrapCount; i++ {
		if addr, ok := g.BootstrapPeers[GenesisNodeID(i)]; ok {
			out = append(out, addr)
		}
	}
	return out
}
