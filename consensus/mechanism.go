package consensus

import (
	"time"

	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/ledgerhash"
)

// SelectResult is the outcome of Mechanism.Select: which of the two
// candidate tips' consensus states the chain controller should keep as its
// canonical tip (spec.md section 4.4, "select(a, b, time_received) -> Keep
// | Take").
type SelectResult int

const (
	// Keep means prefer the first argument (a).
	Keep SelectResult = iota
	// Take means prefer the second argument (b).
	Take
)

func (r SelectResult) String() string {
	if r == Keep {
		return "Keep"
	}
	return "Take"
}

// LocalState is the opaque variant-local side state passed to
// GenerateTransition and LockTransition (e.g. the stake variant's epoch seed
// and stake distribution). Implementations type-assert to their own concrete
// type.
type LocalState interface{}

// Mechanism is the common contract every consensus variant implements
// (spec.md section 4.4).
type Mechanism interface {
	// GenesisProtocolState is the fixed starting ProtocolState.
	GenesisProtocolState() ProtocolState

	// GenerateTransition is called by the proposer. It returns ok=false
	// when the proposer is not eligible to produce a block at time under
	// this variant's rule (spec.md: "returns None when the proposer is not
	// eligible").
	GenerateTransition(
		prev ProtocolState,
		blockchainState BlockchainState,
		localState LocalState,
		at time.Time,
		kp crypto.Keypair,
		txs []ledgerhash.Transaction,
	) (next *ProtocolState, transitionData interface{}, ok bool)

	// IsTransitionValidChecked is the in-circuit validity check of the
	// variant's additional evidence (signature, or VRF+slot). prevStateHash
	// is H(parent ProtocolState), the same value the new state's
	// previous_state_hash must equal.
	IsTransitionValidChecked(prev ConsensusState, prevStateHash crypto.Digest, st SnarkTransition) bool

	// NextStateChecked is the in-circuit, deterministic transition
	// function: it must agree with whatever out-of-circuit transition
	// GenerateTransition produced for the same inputs (spec.md design
	// notes, "in-circuit vs out-of-circuit duplication"). at is the new
	// state's claimed timestamp, carried by the header that wraps st.
	NextStateChecked(prev ConsensusState, prevStateHash crypto.Digest, at time.Time, st SnarkTransition) ConsensusState

	// Select is fork-choice between two candidate tips' consensus states.
	// timeReceivedA/timeReceivedB are the wall-clock moments the chain
	// controller learned about each candidate, used to break ties (spec.md
	// section 4.4's "select(a, b, time_received)": both candidates'
	// receipt times participate in the tie-break, since a caller comparing
	// two freshly-received competing tips has both on hand). It must be a
	// total, deterministic function of its inputs, and
	// Select(a, t, a, t) must equal Keep (spec.md P3).
	Select(a ConsensusState, timeReceivedA time.Time, b ConsensusState, timeReceivedB time.Time) SelectResult

	// LockTransition is the side-effecting hook invoked when a locked-in
	// tip advances, letting a variant update its own bookkeeping (e.g. the
	// stake variant's cache of epoch lock checkpoints).
	LockTransition(old, new ConsensusState, snarkedLedger ledgerhash.Ledger, localState LocalState)
}
