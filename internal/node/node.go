// Package node wires together exactly one instance of each QNet
// component — Cryptographic Envelope, Reputation Ledger, Peer Fabric,
// block storage, mempool, producer Elector, Microblock Pipeline,
// Macroblock Consensus, and Emergency Failover — into a single running
// process (spec §2 component ownership).
package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/qnet-project/qnet-core/config"
	"github.com/qnet-project/qnet-core/internal/api"
	"github.com/qnet-project/qnet-core/internal/consensus"
	"github.com/qnet-project/qnet-core/internal/failover"
	qlog "github.com/qnet-project/qnet-core/internal/log"
	"github.com/qnet-project/qnet-core/internal/mempool"
	"github.com/qnet-project/qnet-core/internal/p2p"
	"github.com/qnet-project/qnet-core/internal/pipeline"
	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/internal/selection"
	"github.com/qnet-project/qnet-core/internal/storage"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// Node owns the full set of QNet components for one running process.
type Node struct {
	cfg     *config.Config
	genesis *config.Genesis
	selfID  string

	envelope *crypto.Envelope
	ledger   *reputation.Ledger
	fabric   *p2p.Fabric
	pool     *mempool.Mempool
	elector  *selection.Elector
	failMgr  *failover.Manager

	records *storage.BadgerDB
	engine  *storage.Engine
	chain   *storage.BlockStore

	driver *pipeline.Driver
	api    *api.Server

	mu         sync.Mutex
	rounds     map[uint64]*consensus.Round // keyed by RoundID
	ownCommits map[uint64]consensus.OwnCommit // keyed by RoundID, cleared once revealed
}

// New wires a Node from cfg and genesis. selfID is this node's consensus
// identity (a Genesis node_id, or for ordinary nodes whatever id the
// caller supplies; cmd/qnetd derives it from signKey's public key).
func New(cfg *config.Config, genesis *config.Genesis, selfID string, signKey *crypto.PrivateKey) (*Node, error) {
	envelope, err := crypto.NewEnvelope(selfID, signKey, 10_000)
	if err != nil {
		return nil, fmt.Errorf("create envelope: %w", err)
	}

	ledger := reputation.New()
	fabric := p2p.NewFabric(selfID, envelope, ledger)
	pool := mempool.New(cfg.Storage.MempoolSize)
	elector := selection.NewElector(ledger)
	failMgr := failover.NewManager(ledger)

	records, err := storage.NewBadger(cfg.RecordsDir())
	if err != nil {
		return nil, fmt.Errorf("open records db: %w", err)
	}
	engine, err := storage.NewEngine(cfg.StorageDir(), 10_000)
	if err != nil {
		return nil, fmt.Errorf("open block storage engine: %w", err)
	}
	chain := storage.NewBlockStore(engine, nil)

	n := &Node{
		cfg:      cfg,
		genesis:  genesis,
		selfID:   selfID,
		envelope: envelope,
		ledger:   ledger,
		fabric:   fabric,
		pool:     pool,
		elector:  elector,
		failMgr:  failMgr,
		records:    records,
		engine:     engine,
		chain:      chain,
		rounds:     make(map[uint64]*consensus.Round),
		ownCommits: make(map[uint64]consensus.OwnCommit),
	}

	n.driver = pipeline.NewDriver(pipeline.Config{
		SelfID:       selfID,
		Chain:        chain,
		Pool:         pool,
		Envelope:     envelope,
		Elector:      elector,
		Logger:       qlog.Pipeline,
		OnMacroblock: n.onMacroblock,
		OnFailover:   n.onFailover,
		BatchSize:    cfg.Consensus.BatchSize,
	})
	n.api = api.New(cfg.RPC.Addr, n)

	n.loadReputation()

	if genesis != nil {
		n.admitGenesisBootstraps()
	}

	return n, nil
}

func (n *Node) admitGenesisBootstraps() {
	for id := range n.genesis.BootstrapPeers {
		if id == n.selfID {
			continue
		}
		addr := n.genesis.BootstrapPeers[id]
		_ = n.fabric.AdmitGenesis(p2p.PeerInfo{NodeID: id, Address: addr, Kind: types.Super})
	}
}

// candidates builds the producer/validator candidate set from the Peer
// Fabric's validated peers for the 30-block epoch containing height (spec
// §4.5).
func (n *Node) candidates(height uint64) []selection.Candidate {
	peers := n.fabric.ValidatedPeers()
	kinds := make([]types.NodeKind, len(peers))
	ids := make([]string, len(peers))
	for i, p := range peers {
		kinds[i] = p.Kind
		ids[i] = p.NodeID
	}
	return selection.BuildCandidates(kinds, ids, n.ledger, height)
}

// Run starts the microblock pipeline and the HTTP peer surface, blocking
// until ctx is canceled.
func (n *Node) Run(ctx context.Context) error {
	go n.driver.Run(ctx, n.candidates)

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.api.ListenAndServe()
	}()

	<-ctx.Done()
	_ = n.api.Shutdown(context.Background())
	return <-errCh
}

// Close persists reputation state and releases storage handles.
func (n *Node) Close() error {
	n.saveReputation()
	if err := n.engine.Close(); err != nil {
		return err
	}
	return n.records.Close()
}

// SelfID returns the node's stable consensus identity.
func (n *Node) SelfID() string { return n.selfID }
