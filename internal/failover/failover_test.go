package failover

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qnet-project/qnet-core/internal/reputation"
	"github.com/qnet-project/qnet-core/internal/selection"
	"github.com/qnet-project/qnet-core/pkg/types"
)

func TestElectReplacement_ExcludesMissedProducer(t *testing.T) {
	candidates := []selection.Candidate{
		{NodeID: "a", Reputation: 80},
		{NodeID: "b", Reputation: 80},
		{NodeID: "c", Reputation: 80},
	}
	for h := uint64(0); h < 50; h++ {
		replacement, ok := ElectReplacement(candidates, "a", h)
		require.Truef(t, ok, "height %d: expected a replacement", h)
		assert.NotEqualf(t, "a", replacement.NodeID, "height %d: replacement must not be the missed producer", h)
	}
}

func TestElectReplacement_NoCandidatesLeft(t *testing.T) {
	candidates := []selection.Candidate{{NodeID: "a", Reputation: 80}}
	_, ok := ElectReplacement(candidates, "a", 1)
	assert.False(t, ok, "expected no replacement when the only candidate missed its slot")
}

func TestElectReplacement_IndependentOfChainTipState(t *testing.T) {
	candidates := []selection.Candidate{
		{NodeID: "a", Reputation: 80},
		{NodeID: "b", Reputation: 80},
		{NodeID: "c", Reputation: 80},
	}
	r1, ok1 := ElectReplacement(candidates, "a", 7)
	r2, ok2 := ElectReplacement(candidates, "a", 7)
	require.True(t, ok1)
	require.True(t, ok2)
	assert.Equal(t, r1.NodeID, r2.NodeID, "replacement must depend only on (missed_producer, height)")
}

func TestManager_RecordMiss_PenalizesReputation(t *testing.T) {
	ledger := reputation.New()
	ledger.Set("a", 50)
	m := NewManager(ledger)

	m.RecordMiss("a", 0)
	assert.Equal(t, 45.0, ledger.Get("a"))
}

func TestManager_RecordMiss_EscalatesToCriticalJailing(t *testing.T) {
	ledger := reputation.New()
	ledger.Set("a", 90)
	m := NewManager(ledger)

	var critical bool
	for i := 0; i < CriticalMissCount; i++ {
		critical = m.RecordMiss("a", 0) // same epoch (height 0)
	}
	require.True(t, critical, "expected the CriticalMissCount-th miss in the same epoch to be critical")
	assert.True(t, ledger.IsJailed("a"), "expected node to be jailed after critical miss escalation")
}

func TestManager_RecordMiss_ResetsAcrossEpochs(t *testing.T) {
	ledger := reputation.New()
	ledger.Set("a", 90)
	m := NewManager(ledger)

	m.RecordMiss("a", 0)
	m.RecordMiss("a", 0)
	// New epoch: the streak should not carry over.
	critical := m.RecordMiss("a", types.MicroEpochLength)
	assert.False(t, critical, "expected miss count to reset across epoch boundary")
}

func TestManager_ResetMisses(t *testing.T) {
	ledger := reputation.New()
	ledger.Set("a", 90)
	m := NewManager(ledger)

	m.RecordMiss("a", 0)
	m.ResetMisses("a")
	critical := m.RecordMiss("a", 0)
	assert.False(t, critical, "expected miss streak to restart after ResetMisses")
}

func TestManager_AnnounceDeduplicates(t *testing.T) {
	ledger := reputation.New()
	m := NewManager(ledger)

	assert.True(t, m.Announce(10, "a"), "first announcement should not be deduplicated")
	assert.False(t, m.Announce(10, "a"), "repeated announcement for the same (height, node) should be deduplicated")
	assert.True(t, m.Announce(11, "a"), "a different height should not be deduplicated")
}
