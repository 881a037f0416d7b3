package node

import (
	"strconv"
	"strings"

	qlog "github.com/qnet-project/qnet-core/internal/log"
)

// reputationKeyPrefix namespaces reputation snapshot entries in the
// records store so future record kinds can share the same BadgerDB
// instance without key collisions.
const reputationKeyPrefix = "rep:"

// loadReputation restores persisted scores from a previous run into the
// freshly constructed ledger, so a restarted node does not forget every
// peer's standing.
func (n *Node) loadReputation() {
	err := n.records.ForEach([]byte(reputationKeyPrefix), func(key, value []byte) error {
		nodeID := strings.TrimPrefix(string(key), reputationKeyPrefix)
		score, err := strconv.ParseFloat(string(value), 64)
		if err != nil {
			return nil // skip a corrupt entry rather than fail node startup
		}
		n.ledger.Set(nodeID, score)
		return nil
	})
	if err != nil {
		qlog.WithComponent("node").Warn().Err(err).Msg("failed to load persisted reputation scores")
	}
}

// saveReputation snapshots every known score to the records store so it
// survives a restart.
func (n *Node) saveReputation() {
	for nodeID, score := range n.ledger.GetAll() {
		key := []byte(reputationKeyPrefix + nodeID)
		value := []byte(strconv.FormatFloat(score, 'f', -1, 64))
		if err := n.records.Put(key, value); err != nil {
			qlog.WithComponent("node").Warn().Err(err).Str("node_id", nodeID).Msg("failed to persist reputation score")
		}
	}
}
