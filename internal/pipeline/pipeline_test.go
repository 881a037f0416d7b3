package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/qnet-project/qnet-core/internal/mempool"
	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/internal/selection"
	"github.com/qnet-project/qnet-core/pkg/crypto"
	"github.com/qnet-project/qnet-core/pkg/types"
)

type fakeChain struct {
	mu    sync.Mutex
	micro map[uint64]*types.Microblock
	macro []*types.Macroblock
}

func newFakeChain() *fakeChain {
	return &fakeChain{micro: make(map[uint64]*types.Microblock)}
}

func (f *fakeChain) GetMicroblock(height uint64) (*types.Microblock, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	mb, ok := f.micro[height]
	return mb, ok, nil
}

func (f *fakeChain) PutMicroblock(mb *types.Microblock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.micro[mb.Height] = mb
	return nil
}

func (f *fakeChain) PutMacroblock(mb *types.Macroblock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.macro = append(f.macro, mb)
	return nil
}

func newTestDriver(t *testing.T, selfID string) (*Driver, *fakeChain) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	env, err := crypto.NewEnvelope(selfID, key, 16)
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	ledger := reputation.New()
	chain := newFakeChain()
	d := NewDriver(Config{
		SelfID:   selfID,
		Chain:    chain,
		Pool:     mempool.New(100),
		Envelope: env,
		Elector:  selection.NewElector(ledger),
		Logger:   zerolog.Nop(),
	})
	return d, chain
}

func TestDriver_ProduceWhenSoleCandidate(t *testing.T) {
	d, chain := newTestDriver(t, "solo")
	d.pool.Insert([]byte("tx1"), crypto.Hash([]byte("tx1")))

	candidates := []selection.Candidate{{NodeID: "solo", Reputation: 80}}
	d.tick(context.Background(), candidates)

	if d.Height() != 1 {
		t.Fatalf("Height() = %d, want 1", d.Height())
	}
	if _, ok, _ := chain.GetMicroblock(0); !ok {
		t.Error("expected microblock at height 0 to be persisted")
	}
}

func TestDriver_FollowTimesOutAndFailsOver(t *testing.T) {
	d, _ := newTestDriver(t, "follower")
	called := make(chan string, 1)
	d.onFailover = func(ctx context.Context, height uint64, missed string) (string, bool) {
		called <- missed
		return "", false
	}

	candidates := []selection.Candidate{{NodeID: "someone-else", Reputation: 80}}

	done := make(chan struct{})
	go func() {
		d.tick(context.Background(), candidates)
		close(done)
	}()

	select {
	case missed := <-called:
		if missed != "someone-else" {
			t.Errorf("onFailover called with %q, want someone-else", missed)
		}
	case <-time.After(FailoverGrace + 2*time.Second):
		t.Fatal("onFailover was never invoked")
	}
	<-done
}

func TestDriver_MacroblockHandlerFiresEverySpan(t *testing.T) {
	d, _ := newTestDriver(t, "solo")
	var firedAt uint64
	var fired bool
	d.onMacroblock = func(ctx context.Context, macroHeight uint64, hashes [types.MacroblockSpan]types.Hash, prev types.Hash) {
		fired = true
		firedAt = macroHeight
	}

	candidates := []selection.Candidate{{NodeID: "solo", Reputation: 80}}
	for i := 0; i < types.MacroblockSpan; i++ {
		d.tick(context.Background(), candidates)
	}

	if !fired {
		t.Fatal("expected onMacroblock to fire after MacroblockSpan ticks")
	}
	if firedAt != 0 {
		t.Errorf("firedAt = %d, want 0", firedAt)
	}
	if d.Height() != types.MacroblockSpan {
		t.Errorf("Height() = %d, want %d", d.Height(), types.MacroblockSpan)
	}
}
