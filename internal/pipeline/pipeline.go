// Package pipeline implements the Microblock Pipeline (spec §4.6 / C6): a
// 1Hz driver loop that produces or follows microblocks, corrects for
// clock drift, dispatches a macroblock consensus round every
// types.MacroblockSpan blocks, and hands off to the caller's onFailover
// callback when the elected producer misses its slot.
package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/qnet-project/qnet-core/internal/mempool"
	"github.com/qnet-project/qnet-core/internal/selection"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

// TickInterval is the target period of the driver loop (spec §4.6: 1Hz).
const TickInterval = 1 * time.Second

// FailoverGrace is how long the pipeline waits past a tick boundary for
// the elected producer's microblock before treating the slot as missed
// (spec §4.6 failover timer).
const FailoverGrace = 3 * time.Second

// MaxDriftCorrection is how far the loop may fall behind its next tick
// deadline before it stops catching up tick-by-tick and re-anchors the
// deadline to one TickInterval from now (spec §4.6 drift correction).
const MaxDriftCorrection = 500 * time.Millisecond

// Chain is the read/write surface the pipeline needs from block storage,
// kept minimal and satisfied by internal/storage.BlockStore in
// production and an in-memory fake in tests.
type Chain interface {
	GetMicroblock(height uint64) (*types.Microblock, bool, error)
	PutMicroblock(mb *types.Microblock) error
	PutMacroblock(mb *types.Macroblock) error
}

// MacroblockHandler is invoked once every MacroblockSpan microblocks with
// the accumulated hashes, to drive internal/consensus.
type MacroblockHandler func(ctx context.Context, macroHeight uint64, microHashes [types.MacroblockSpan]types.Hash, previousMacroHash types.Hash)

// FailoverHandler is invoked when the elected producer misses its slot.
type FailoverHandler func(ctx context.Context, height uint64, missedProducer string) (replacement string, ok bool)

// Driver runs the 1Hz microblock production/follower loop.
type Driver struct {
	selfID  string
	chain   Chain
	pool    *mempool.Mempool
	envelope *crypto.Envelope
	elector *selection.Elector
	log     zerolog.Logger

	onMacroblock MacroblockHandler
	onFailover   FailoverHandler

	height         uint64
	previousHash   types.Hash
	macroHashes    [types.MacroblockSpan]types.Hash
	previousMacro  types.Hash

	batchSize int
}

// Config bundles Driver construction parameters.
type Config struct {
	SelfID       string
	Chain        Chain
	Pool         *mempool.Mempool
	Envelope     *crypto.Envelope
	Elector      *selection.Elector
	Logger       zerolog.Logger
	OnMacroblock MacroblockHandler
	OnFailover   FailoverHandler
	BatchSize    int
	StartHeight  uint64
	PreviousHash types.Hash
}

// NewDriver builds a Driver from cfg.
func NewDriver(cfg Config) *Driver {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 10_000
	}
	return &Driver{
		selfID:       cfg.SelfID,
		chain:        cfg.Chain,
		pool:         cfg.Pool,
		envelope:     cfg.Envelope,
		elector:      cfg.Elector,
		log:          cfg.Logger,
		onMacroblock: cfg.OnMacroblock,
		onFailover:   cfg.OnFailover,
		height:       cfg.StartHeight,
		previousHash: cfg.PreviousHash,
		batchSize:    batch,
	}
}

// Run drives the 1Hz loop until ctx is canceled, correcting for
// accumulated drift between the intended tick boundary and wall-clock
// time (spec §4.6).
func (d *Driver) Run(ctx context.Context, candidates func(height uint64) []selection.Candidate) {
	next := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		d.tick(ctx, candidates(d.height))

		next = next.Add(TickInterval)
		drift := time.Until(next)
		if drift < -MaxDriftCorrection {
			// Badly behind: resync to now plus one interval rather than
			// trying to catch up tick-by-tick.
			next = time.Now().Add(TickInterval)
			drift = TickInterval
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(drift):
		}
	}
}

func (d *Driver) tick(ctx context.Context, candidates []selection.Candidate) {
	producer, ok := d.elector.Elect(d.height, candidates)
	if !ok {
		d.log.Warn().Uint64("height", d.height).Msg("no eligible producer candidates this tick")
		return
	}

	if producer.NodeID == d.selfID {
		d.produce(ctx)
		return
	}
	d.follow(ctx, producer.NodeID)
}

// produce builds and persists a microblock as the elected producer for
// this height (spec §4.6 producer branch).
func (d *Driver) produce(ctx context.Context) {
	txs := d.pool.Drain(d.batchSize)
	if len(txs) > types.MaxTransactionsPerBlock {
		txs = txs[:types.MaxTransactionsPerBlock]
	}

	txHashes := make([]types.Hash, len(txs))
	for i, tx := range txs {
		txHashes[i] = crypto.Hash(tx)
	}

	mb := &types.Microblock{
		Height:       d.height,
		Timestamp:    time.Now().Unix(),
		PreviousHash: d.previousHash,
		MerkleRoot:   crypto.MerkleRoot(txHashes),
		Transactions: txs,
		Producer:     d.selfID,
	}

	digest := blockDigest(mb)
	sig, err := d.envelope.Sign(d.selfID, digest[:])
	if err != nil {
		d.log.Error().Err(err).Uint64("height", d.height).Msg("failed to sign produced microblock")
		return
	}
	mb.Signature = sig

	if err := d.chain.PutMicroblock(mb); err != nil {
		d.log.Error().Err(err).Uint64("height", d.height).Msg("failed to persist produced microblock")
		return
	}
	d.advance(mb)
}

// follow waits up to FailoverGrace for a microblock at the current height
// to appear in chain, invoking onFailover if none does (spec §4.6 follower
// branch + failover timer). The driver does not fetch the block itself,
// and internal/node's message handler accepts inbound Block messages
// without writing them into chain.
func (d *Driver) follow(ctx context.Context, expectedProducer string) {
	deadline := time.Now().Add(FailoverGrace)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if mb, ok, err := d.chain.GetMicroblock(d.height); err == nil && ok {
				d.advance(mb)
				return
			}
		}
	}

	if d.onFailover == nil {
		return
	}
	replacement, ok := d.onFailover(ctx, d.height, expectedProducer)
	if !ok {
		d.log.Error().Uint64("height", d.height).Str("missed_producer", expectedProducer).Msg("failover found no replacement producer")
		return
	}
	if replacement == d.selfID {
		d.produce(ctx)
	}
}

func (d *Driver) advance(mb *types.Microblock) {
	mbHash := blockDigest(mb)
	d.macroHashes[d.height%types.MacroblockSpan] = mbHash
	d.previousHash = mbHash
	d.height++

	if d.height%types.MacroblockSpan == 0 && d.onMacroblock != nil {
		macroHeight := types.MacroHeightFor(d.height - 1)
		d.onMacroblock(context.Background(), macroHeight, d.macroHashes, d.previousMacro)
	}
}

// RecordMacroblock updates the rolling previous-macroblock hash once
// internal/consensus finalizes a round, so the next round's PreviousHash
// chains correctly (spec §4.7).
func (d *Driver) RecordMacroblock(mb *types.Macroblock) {
	d.previousMacro = macroblockDigest(mb)
}

func blockDigest(mb *types.Microblock) types.Hash {
	return crypto.HashConcatBytes(
		uint64Bytes(mb.Height),
		mb.PreviousHash[:],
		mb.MerkleRoot[:],
		[]byte(mb.Producer),
	)
}

func macroblockDigest(mb *types.Macroblock) types.Hash {
	return crypto.HashConcatBytes(
		uint64Bytes(mb.Height),
		mb.StateRoot[:],
		mb.PreviousHash[:],
	)
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// Height returns the next height the driver will produce or follow.
func (d *Driver) Height() uint64 { return d.height }

// PreviousHash returns the hash the next microblock will chain from.
func (d *Driver) PreviousHash() types.Hash { return d.previousHash }
