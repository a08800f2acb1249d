// Package signature implements the signature-based consensus variant
// (spec.md section 4.4.1): proposer eligibility is fixed to the holder of a
// single designated signing key, and fork-choice compares strength with a
// time_received tie-break.
package signature

import (
	"time"

	"github.com/psteckler/coda/consensus"
	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/difficulty"
	"github.com/psteckler/coda/ledgerhash"
	"github.com/psteckler/coda/log"
)

var logger = log.NewModuleLogger(log.ConsensusSig)

// ConsensusState is the signature variant's ConsensusState: exactly the
// common Core fields, no extras (spec.md: "carries at least { next_difficulty,
// previous_state_hash, ledger_hash, strength, timestamp }").
type ConsensusState struct {
	consensus.Core
}

var _ consensus.ConsensusState = ConsensusState{}

// LengthInTriples implements consensus.ConsensusState.
func (s ConsensusState) LengthInTriples() int {
	return len(consensus.PadToTriples(s.Core.EncodeCore())) / 3
}

// Encode implements consensus.ConsensusState.
func (s ConsensusState) Encode() []bool {
	return consensus.PadToTriples(s.Core.EncodeCore())
}

// TransitionData is the signature variant's consensus_transition_data: a
// signature over (prev_state_hash, blockchain_state).
type TransitionData struct {
	Signature []byte
}

// Params are the startup-time parameters a signature Mechanism is
// constructed with (spec.md section 6: CODA_PROPOSAL_INTERVAL); set once
// and never mutated thereafter (spec.md section 5).
type Params struct {
	DesignatedKey    crypto.Keypair // Public is the designated signer identity
	ProposalInterval time.Duration

	GenesisLedgerHash ledgerhash.LedgerHash
	GenesisTimestamp  time.Time
}

// Mechanism implements consensus.Mechanism for the signature variant.
type Mechanism struct {
	params Params
}

// New constructs a signature Mechanism from its startup parameters.
func New(params Params) *Mechanism {
	return &Mechanism{params: params}
}

var _ consensus.Mechanism = (*Mechanism)(nil)

// GenesisProtocolState implements consensus.Mechanism.
func (m *Mechanism) GenesisProtocolState() consensus.ProtocolState {
	cs := ConsensusState{consensus.Core{
		PrevStateHash:   crypto.Digest{},
		LedgerHashV:     m.params.GenesisLedgerHash,
		NextDifficultyV: difficulty.Max(),
		StrengthV:       difficulty.ZeroStrength,
		TimestampV:      m.params.GenesisTimestamp,
		LengthV:         0,
	}}
	return consensus.ProtocolState{
		PreviousStateHash: crypto.Digest{},
		BlockchainState:   consensus.BlockchainState{LedgerHash: m.params.GenesisLedgerHash},
		ConsensusState:    cs,
	}
}

// GenerateTransition implements consensus.Mechanism. It returns ok=false
// when kp does not match the designated signer, or when not enough time has
// elapsed since the parent's timestamp (spec.md 4.4.1).
func (m *Mechanism) GenerateTransition(
	prev consensus.ProtocolState,
	blockchainState consensus.BlockchainState,
	_ consensus.LocalState,
	at time.Time,
	kp crypto.Keypair,
	txs []ledgerhash.Transaction,
) (*consensus.ProtocolState, interface{}, bool) {
	if string(kp.Public) != string(m.params.DesignatedKey.Public) {
		return nil, nil, false
	}
	prevCS := prev.ConsensusState
	if at.Sub(prevCS.Timestamp()) < m.params.ProposalInterval {
		return nil, nil, false
	}

	prevHash := prev.Hash()
	sig := kp.Sign(signedMessage(prevHash, blockchainState))

	td := TransitionData{Signature: sig}

	next := ConsensusState{consensus.Core{
		PrevStateHash:   prevHash,
		LedgerHashV:     blockchainState.LedgerHash,
		NextDifficultyV: difficulty.Next(prevCS.NextDifficulty(), prevCS.Timestamp(), at),
		StrengthV:       difficulty.Increase(prevCS.Strength(), prevCS.NextDifficulty()),
		TimestampV:      at,
		LengthV:         prevCS.Length() + 1,
	}}

	ps := consensus.ProtocolState{
		PreviousStateHash: prevHash,
		BlockchainState:   blockchainState,
		ConsensusState:    next,
	}
	return &ps, td, true
}

func signedMessage(prevHash crypto.Digest, bs consensus.BlockchainState) []byte {
	return crypto.H(prevHash.Bytes(), bs.LedgerHash.Bytes()).Bytes()
}

// IsTransitionValidChecked implements consensus.Mechanism: the signature
// must verify against the designated key, and prev's encoding must fold
// cleanly into the in-circuit field representation (R2).
func (m *Mechanism) IsTransitionValidChecked(prev consensus.ConsensusState, prevStateHash crypto.Digest, st consensus.SnarkTransition) bool {
	if _, ok := consensus.FieldCommitment(prev); !ok {
		logger.Error("prev consensus state failed the R2 field-folding invariant")
		return false
	}
	td, ok := st.ConsensusTransitionData.(TransitionData)
	if !ok {
		logger.Error("unexpected transition data type for signature variant")
		return false
	}
	msg := signedMessage(prevStateHash, st.BlockchainState)
	return crypto.Verify(m.params.DesignatedKey.Public, msg, td.Signature)
}

// NextStateChecked implements consensus.Mechanism: the pure, in-circuit
// transition function. It must agree with GenerateTransition's out-of-circuit
// computation for the same inputs.
func (m *Mechanism) NextStateChecked(prev consensus.ConsensusState, prevStateHash crypto.Digest, at time.Time, st consensus.SnarkTransition) consensus.ConsensusState {
	return ConsensusState{consensus.Core{
		PrevStateHash:   prevStateHash,
		LedgerHashV:     st.BlockchainState.LedgerHash,
		NextDifficultyV: difficulty.Next(prev.NextDifficulty(), prev.Timestamp(), at),
		StrengthV:       difficulty.Increase(prev.Strength(), prev.NextDifficulty()),
		TimestampV:      at,
		LengthV:         prev.Length() + 1,
	}}
}

// Select implements consensus.Mechanism (spec.md 4.4.1): strength wins;
// ties broken by time_received, earlier wins (Keep).
func (m *Mechanism) Select(a consensus.ConsensusState, timeReceivedA time.Time, b consensus.ConsensusState, timeReceivedB time.Time) consensus.SelectResult {
	cmp := a.Strength().Cmp(b.Strength())
	if cmp > 0 {
		return consensus.Keep
	}
	if cmp < 0 {
		return consensus.Take
	}
	// Strength tied: earlier time_received wins, Keep-wins-on-tie per
	// spec.md's documented convention for identical-strength candidates.
	if timeReceivedA.Before(timeReceivedB) {
		return consensus.Keep
	}
	if timeReceivedB.Before(timeReceivedA) {
		return consensus.Take
	}
	return consensus.Keep
}

// LockTransition implements consensus.Mechanism. The signature variant has
// no variant-local state to update.
func (m *Mechanism) LockTransition(consensus.ConsensusState, consensus.ConsensusState, ledgerhash.Ledger, consensus.LocalState) {
}
