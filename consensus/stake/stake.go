// Package stake implements the stake-based consensus variant (spec.md
// section 4.4.2): slots and epochs, VRF-gated proposer eligibility, and a
// two-tier fork-choice (same-epoch length/strength/VRF/time ladder,
// cross-epoch finalized-checkpoint comparison).
package stake

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/hex"
	"time"

	"github.com/psteckler/coda/consensus"
	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/difficulty"
	"github.com/psteckler/coda/ledgerhash"
	"github.com/psteckler/coda/log"
)

var logger = log.NewModuleLogger(log.ConsensusStake)

// ConsensusState is the stake variant's ConsensusState: Core plus epoch,
// slot, total currency, VRF output, and the epoch lock checkpoint used by
// cross-epoch select (spec.md 4.4.2; the lock checkpoint generalizes the
// glossary's "unforkable transition count" into a concrete value this
// state's select comparison can use without walking full chain history).
type ConsensusState struct {
	consensus.Core

	Epoch               uint64
	Slot                uint64
	TotalCurrency       uint64
	VRFOutput           []byte
	EpochLockCheckpoint crypto.Digest
}

var _ consensus.ConsensusState = ConsensusState{}

// Encode implements consensus.ConsensusState.
func (s ConsensusState) Encode() []bool {
	bits := s.Core.EncodeCore()
	bits = append(bits, uint64Bits(s.Epoch)...)
	bits = append(bits, uint64Bits(s.Slot)...)
	bits = append(bits, uint64Bits(s.TotalCurrency)...)
	bits = append(bits, bytesBits(s.VRFOutput)...)
	bits = append(bits, bytesBits(s.EpochLockCheckpoint.Bytes())...)
	return consensus.PadToTriples(bits)
}

// LengthInTriples implements consensus.ConsensusState.
func (s ConsensusState) LengthInTriples() int {
	return len(s.Encode()) / 3
}

func uint64Bits(v uint64) []bool {
	bits := make([]bool, 64)
	for i := 0; i < 64; i++ {
		bits[63-i] = (v>>uint(i))&1 == 1
	}
	return bits
}

func bytesBits(b []byte) []bool {
	bits := make([]bool, 0, len(b)*8)
	for _, by := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (by>>uint(i))&1 == 1)
		}
	}
	return bits
}

// TransitionData is the stake variant's consensus_transition_data: (slot,
// vrf_output, proposer_pubkey) (spec.md 4.4.2).
type TransitionData struct {
	Slot           uint64
	VRFOutput      []byte
	VRFProof       []byte
	ProposerPubkey *ecdsa.PublicKey
}

// Params are the startup-time parameters a stake Mechanism is constructed
// with (spec.md section 6's CODA_SLOT_INTERVAL and friends); set once and
// never mutated (spec.md section 5).
type Params struct {
	SlotInterval                      time.Duration
	UnforkableTransitionCount         uint64
	ProbableSlotsPerTransitionCount   uint64
	ExpectedNetworkDelay              time.Duration
	ApproximateNetworkDiameter        uint64
	GenesisStateTimestamp             time.Time
	GenesisLedgerHash                 ledgerhash.LedgerHash
	Coinbase                          uint64

	// VRFKey and Stake describe this node's own participation; a
	// production deployment would look these up per-proposer from the
	// frozen stake distribution instead of a single fixed keypair, but
	// spec.md's GenerateTransition is written from "the proposer"'s point
	// of view, so one fixed identity per Mechanism matches its contract.
	VRFKey        *ecdsa.PrivateKey
	VRFPublicKey  *ecdsa.PublicKey
	Stake         uint64
}

// SlotsPerEpoch is probable_slots_per_transition_count *
// unforkable_transition_count (spec.md 4.4.2).
func (p Params) SlotsPerEpoch() uint64 {
	return p.ProbableSlotsPerTransitionCount * p.UnforkableTransitionCount
}

// SlotAt returns slot(time) for this Params' slot_interval and genesis
// timestamp.
func (p Params) SlotAt(t time.Time) uint64 {
	d := t.Sub(p.GenesisStateTimestamp)
	if d < 0 {
		return 0
	}
	return uint64(d / p.SlotInterval)
}

// EpochOf returns the epoch containing slot.
func (p Params) EpochOf(slot uint64) uint64 {
	spe := p.SlotsPerEpoch()
	if spe == 0 {
		return 0
	}
	return slot / spe
}

// LocalStateData is the stake variant's LocalState: the epoch seed
// GenerateTransition evaluates the VRF over (the genesis ledger hash when
// unset) and a stake distribution. LockTransition does not update either
// field.
type LocalStateData struct {
	EpochSeed        []byte
	StakeDistribution map[string]uint64
}

// Mechanism implements consensus.Mechanism for the stake variant.
type Mechanism struct {
	params Params
	cache  *epochCache
}

// New constructs a stake Mechanism from its startup parameters.
func New(params Params) *Mechanism {
	return &Mechanism{params: params, cache: newEpochCache(32)}
}

var _ consensus.Mechanism = (*Mechanism)(nil)

// GenesisProtocolState implements consensus.Mechanism.
func (m *Mechanism) GenesisProtocolState() consensus.ProtocolState {
	cs := ConsensusState{
		Core: consensus.Core{
			PrevStateHash:   crypto.Digest{},
			LedgerHashV:     m.params.GenesisLedgerHash,
			NextDifficultyV: difficulty.Max(),
			StrengthV:       difficulty.ZeroStrength,
			TimestampV:      m.params.GenesisStateTimestamp,
			LengthV:         0,
		},
		Epoch: 0,
		Slot:  0,
	}
	return consensus.ProtocolState{
		PreviousStateHash: crypto.Digest{},
		BlockchainState:   consensus.BlockchainState{LedgerHash: m.params.GenesisLedgerHash},
		ConsensusState:    cs,
	}
}

func vrfAlpha(epochSeed []byte, slot uint64, participantKey *ecdsa.PublicKey) []byte {
	buf := append([]byte{}, epochSeed...)
	buf = append(buf, uint64Bytes(slot)...)
	if participantKey != nil {
		buf = append(buf, participantKey.X.Bytes()...)
		buf = append(buf, participantKey.Y.Bytes()...)
	}
	return buf
}

func uint64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}

// GenerateTransition implements consensus.Mechanism (spec.md 4.4.2):
// returns ok=false unless the participant is VRF-eligible at slot(at) and
// slot(at) is strictly greater than the parent's slot.
func (m *Mechanism) GenerateTransition(
	prev consensus.ProtocolState,
	blockchainState consensus.BlockchainState,
	localState consensus.LocalState,
	at time.Time,
	_ crypto.Keypair,
	txs []ledgerhash.Transaction,
) (*consensus.ProtocolState, interface{}, bool) {
	prevCS, ok := prev.ConsensusState.(ConsensusState)
	if !ok {
		logger.Error("prev consensus state is not a stake ConsensusState")
		return nil, nil, false
	}

	slot := m.params.SlotAt(at)
	if slot <= prevCS.Slot {
		return nil, nil, false
	}

	local, _ := localState.(LocalStateData)
	epochSeed := local.EpochSeed
	if epochSeed == nil {
		epochSeed = m.params.GenesisLedgerHash.Bytes()
	}

	if m.params.VRFKey == nil || m.params.Stake == 0 {
		return nil, nil, false
	}

	alpha := vrfAlpha(epochSeed, slot, m.params.VRFPublicKey)
	beta, pi, err := VRFProve(m.params.VRFKey, alpha)
	if err != nil {
		logger.Warn("vrf evaluation failed", "err", err)
		return nil, nil, false
	}
	if !isEligible(beta, m.params.Stake, prevCS.TotalCurrency) {
		return nil, nil, false
	}

	prevHash := prev.Hash()
	epoch := m.params.EpochOf(slot)
	lockCheckpoint := prevCS.EpochLockCheckpoint
	if epoch != prevCS.Epoch && prevCS.Slot >= m.params.UnforkableTransitionCount {
		lockCheckpoint = prevHash
	}

	next := ConsensusState{
		Core: consensus.Core{
			PrevStateHash:   prevHash,
			LedgerHashV:     blockchainState.LedgerHash,
			NextDifficultyV: difficulty.Next(prevCS.NextDifficulty(), prevCS.Timestamp(), at),
			StrengthV:       difficulty.Increase(prevCS.Strength(), prevCS.NextDifficulty()),
			TimestampV:      at,
			LengthV:         prevCS.Length() + 1,
		},
		Epoch:               epoch,
		Slot:                slot,
		TotalCurrency:        prevCS.TotalCurrency,
		VRFOutput:            beta,
		EpochLockCheckpoint:  lockCheckpoint,
	}

	td := TransitionData{
		Slot:           slot,
		VRFOutput:      beta,
		VRFProof:       pi,
		ProposerPubkey: m.params.VRFPublicKey,
	}

	ps := consensus.ProtocolState{
		PreviousStateHash: prevHash,
		BlockchainState:   blockchainState,
		ConsensusState:    next,
	}
	return &ps, td, true
}

// IsTransitionValidChecked implements consensus.Mechanism: the VRF proof
// must verify against the claimed proposer key and reproduce the claimed
// output, and prev's encoding must fold cleanly into the in-circuit field
// representation (R2).
func (m *Mechanism) IsTransitionValidChecked(prev consensus.ConsensusState, _ crypto.Digest, st consensus.SnarkTransition) bool {
	if _, ok := consensus.FieldCommitment(prev); !ok {
		logger.Error("prev consensus state failed the R2 field-folding invariant")
		return false
	}
	td, ok := st.ConsensusTransitionData.(TransitionData)
	if !ok {
		logger.Error("unexpected transition data type for stake variant")
		return false
	}
	prevCS, ok := prev.(ConsensusState)
	if !ok {
		return false
	}
	if td.Slot <= prevCS.Slot {
		return false
	}
	alpha := vrfAlpha(prevCS.EpochLockCheckpoint.Bytes(), td.Slot, td.ProposerPubkey)
	beta, err := VRFVerify(td.ProposerPubkey, alpha, td.VRFProof)
	if err != nil {
		return false
	}
	return string(beta) == string(td.VRFOutput)
}

// NextStateChecked implements consensus.Mechanism.
func (m *Mechanism) NextStateChecked(prev consensus.ConsensusState, prevStateHash crypto.Digest, at time.Time, st consensus.SnarkTransition) consensus.ConsensusState {
	prevCS := prev.(ConsensusState)
	td := st.ConsensusTransitionData.(TransitionData)

	epoch := m.params.EpochOf(td.Slot)
	lockCheckpoint := prevCS.EpochLockCheckpoint
	if epoch != prevCS.Epoch && prevCS.Slot >= m.params.UnforkableTransitionCount {
		lockCheckpoint = prevStateHash
	}

	return ConsensusState{
		Core: consensus.Core{
			PrevStateHash:   prevStateHash,
			LedgerHashV:     st.BlockchainState.LedgerHash,
			NextDifficultyV: difficulty.Next(prevCS.NextDifficulty(), prevCS.Timestamp(), at),
			StrengthV:       difficulty.Increase(prevCS.Strength(), prevCS.NextDifficulty()),
			TimestampV:      at,
			LengthV:         prevCS.Length() + 1,
		},
		Epoch:               epoch,
		Slot:                td.Slot,
		TotalCurrency:        prevCS.TotalCurrency,
		VRFOutput:            td.VRFOutput,
		EpochLockCheckpoint:  lockCheckpoint,
	}
}

// Select implements consensus.Mechanism (spec.md 4.4.2).
func (m *Mechanism) Select(a consensus.ConsensusState, timeReceivedA time.Time, b consensus.ConsensusState, timeReceivedB time.Time) consensus.SelectResult {
	sa, aok := a.(ConsensusState)
	sb, bok := b.(ConsensusState)
	if !aok || !bok {
		logger.Error("select called with non-stake consensus state")
		return consensus.Keep
	}

	if sa.Epoch == sb.Epoch {
		return sameEpochTiebreak(sa, timeReceivedA, sb, timeReceivedB)
	}

	// Cross-epoch: prefer the candidate whose epoch's last-finalized state
	// is an ancestor of the other. The lock checkpoint recorded on the
	// higher-epoch candidate is exactly that last-finalized state's hash;
	// the trustworthy anchor to compare it against is this node's own
	// locally cached finalized checkpoint for the lower-epoch candidate's
	// epoch (m.cache, populated by LockTransition when this node entered
	// that epoch), not a field read off either untrusted candidate. If this
	// node hasn't locked that epoch in yet, fall back to the lower-epoch
	// candidate's own PrevStateHash, since full ancestor history isn't
	// available to a two-state comparison.
	hi, lo := sa, sb
	hiIsA := true
	if sb.Epoch > sa.Epoch {
		hi, lo = sb, sa
		hiIsA = false
	}
	anchor := lo.PrevStateHash.Bytes()
	if cached, ok := m.cache.get(lo.Epoch); ok {
		anchor = cached
	}
	if bytes.Equal(hi.EpochLockCheckpoint.Bytes(), anchor) {
		if hiIsA {
			return consensus.Keep
		}
		return consensus.Take
	}

	return sameEpochTiebreak(sa, timeReceivedA, sb, timeReceivedB)
}

func sameEpochTiebreak(a ConsensusState, timeReceivedA time.Time, b ConsensusState, timeReceivedB time.Time) consensus.SelectResult {
	if a.Length() != b.Length() {
		if a.Length() > b.Length() {
			return consensus.Keep
		}
		return consensus.Take
	}
	if cmp := a.Strength().Cmp(b.Strength()); cmp != 0 {
		if cmp > 0 {
			return consensus.Keep
		}
		return consensus.Take
	}
	if cmp := compareBytes(a.VRFOutput, b.VRFOutput); cmp != 0 {
		if cmp < 0 {
			return consensus.Keep
		}
		return consensus.Take
	}
	if timeReceivedA.Before(timeReceivedB) {
		return consensus.Keep
	}
	if timeReceivedB.Before(timeReceivedA) {
		return consensus.Take
	}
	return consensus.Keep
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return int(a[i]) - int(b[i])
		}
	}
	return len(a) - len(b)
}

// LockTransition implements consensus.Mechanism: when a new epoch is
// entered, it records the new state's epoch lock checkpoint in the epoch
// cache that cross-epoch Select reads. It does not modify localState and does
// not read snarkedLedger, so the epoch seed and stake distribution held in
// LocalStateData are not updated here.
func (m *Mechanism) LockTransition(old, new consensus.ConsensusState, snarkedLedger ledgerhash.Ledger, localState consensus.LocalState) {
	oldCS, ok1 := old.(ConsensusState)
	newCS, ok2 := new.(ConsensusState)
	if !ok1 || !ok2 {
		return
	}
	if newCS.Epoch == oldCS.Epoch {
		return
	}
	m.cache.put(newCS.Epoch, newCS.EpochLockCheckpoint.Bytes())
	logger.Info("entered new epoch", "epoch", newCS.Epoch, "lock_checkpoint", hex.EncodeToString(newCS.EpochLockCheckpoint.Bytes()))
}
