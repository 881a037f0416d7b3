package types

// MicroEpochLength is the number of microblocks in one producer epoch (§4.5).
const MicroEpochLength = 30

// MacroblockSpan is the number of microblocks finalized per macroblock (§3, §4.7).
const MacroblockSpan = 90

// MaxTransactionsPerBlock is the hard cap on transactions in one microblock (§3).
const MaxTransactionsPerBlock = 50_000

// Microblock is a 1-second block carrying transactions, signed by a single
// producer. It is not itself the subject of Byzantine consensus.
type Microblock struct {
	Height        uint64   `json:"height"`
	Timestamp     int64    `json:"timestamp"` // unix seconds
	PreviousHash  Hash     `json:"previous_hash"`
	MerkleRoot    Hash     `json:"merkle_root"`
	Transactions  [][]byte `json:"transactions"`
	Producer      string   `json:"producer"` // node_id
	Signature     []byte   `json:"signature"`
}

// MacroHeightFor returns the macroblock height that covers this microblock's
// height, i.e. floor(height/90). Only meaningful for height > 0.
func MacroHeightFor(microHeight uint64) uint64 {
	return microHeight / MacroblockSpan
}

// EpochOf returns the 30-block producer epoch containing height.
func EpochOf(height uint64) uint64 {
	return height / MicroEpochLength
}

// Commit is phase-1 of macroblock consensus: a commitment to reveal data
// without disclosing it (§3 Commit/Reveal, §4.7 Phase 1).
type Commit struct {
	RoundID   uint64 `json:"round_id"` // macro_h * 90
	NodeID    string `json:"node_id"`
	CommitHash Hash  `json:"commit_hash"` // H(reveal_data || nonce)
	Timestamp int64  `json:"timestamp"`
	Signature []byte `json:"signature"`
}

// Reveal is phase-2 of macroblock consensus: disclosure of the data
// committed to in phase 1 (§3, §4.7 Phase 2).
type Reveal struct {
	RoundID    uint64 `json:"round_id"`
	NodeID     string `json:"node_id"`
	RevealData []byte `json:"reveal_data"`
	Nonce      [32]byte `json:"nonce"`
	Timestamp  int64  `json:"timestamp"`
}

// ConsensusData records the outcome of one macroblock consensus round,
// embedded in the finalized Macroblock.
type ConsensusData struct {
	Commits    []Commit `json:"commits"`
	Reveals    []Reveal `json:"reveals"`
	NextLeader string   `json:"next_leader"`
}

// Macroblock is finalized every 90 microblocks via commit-reveal Byzantine
// consensus; it carries the canonical chain of state roots (§3, §4.7).
type Macroblock struct {
	Height        uint64         `json:"height"` // macro_h
	Timestamp     int64          `json:"timestamp"`
	MicroHashes   [MacroblockSpan]Hash `json:"micro_hashes"`
	StateRoot     Hash           `json:"state_root"`
	Consensus     ConsensusData  `json:"consensus_data"`
	PreviousHash  Hash           `json:"previous_hash"`
}
