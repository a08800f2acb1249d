// Package consensus defines the data model and mechanism contract shared by
// every consensus variant (spec.md sections 3 and 4.4): ConsensusState,
// ProtocolState, SnarkTransition, TransitionWithWitness, Tip, and the
// Mechanism interface (generate_transition, is_transition_valid_checked,
// next_state_checked, select, lock_transition).
package consensus

import (
	"encoding/binary"
	"time"

	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/crypto/field"
	"github.com/psteckler/coda/difficulty"
	"github.com/psteckler/coda/ledgerhash"
	"github.com/psteckler/coda/nonce"
)

// ConsensusState is the domain-specific head-of-chain summary every variant
// provides (spec.md section 3). The signature and stake variants each embed
// Core and extend Encode/LengthInTriples with their own fields.
type ConsensusState interface {
	PreviousStateHash() crypto.Digest
	LedgerHash() ledgerhash.LedgerHash
	NextDifficulty() difficulty.Target
	Strength() difficulty.Strength
	Timestamp() time.Time
	// Length is the chain length (block height) this state represents;
	// compared directly by the stake variant's select; the signature
	// variant's select does not read it.
	Length() uint64
	// LengthInTriples is the width of Encode in 3-bit groups (R2). It is
	// not a constant: Strength's encoding has no fixed width, and the stake
	// variant's VRF output adds its own length, so it varies with the
	// state's values.
	LengthInTriples() int
	// Encode is the canonical bit-encoding used for hashing and the R1
	// round-trip property; one byte per encoded bit (0x00/0x01), grouped in
	// triples, so Fold can visit it 3 bits at a time without a bit-packing
	// dependency between variants.
	Encode() []bool
}

// Core holds the five fields the signature variant requires verbatim, plus
// the chain length, and the stake variant extends it (spec.md section 3,
// "Signature variant").
type Core struct {
	PrevStateHash   crypto.Digest
	LedgerHashV     ledgerhash.LedgerHash
	NextDifficultyV difficulty.Target
	StrengthV       difficulty.Strength
	TimestampV      time.Time
	LengthV         uint64
}

func (c Core) PreviousStateHash() crypto.Digest     { return c.PrevStateHash }
func (c Core) LedgerHash() ledgerhash.LedgerHash    { return c.LedgerHashV }
func (c Core) NextDifficulty() difficulty.Target    { return c.NextDifficultyV }
func (c Core) Strength() difficulty.Strength        { return c.StrengthV }
func (c Core) Timestamp() time.Time                 { return c.TimestampV }
func (c Core) Length() uint64                       { return c.LengthV }

// EncodeCore renders the common fields as a bit sequence; variants append
// their own fields' bits after this prefix.
func (c Core) EncodeCore() []bool {
	var bits []bool
	bits = append(bits, bytesToBits(c.PrevStateHash.Bytes())...)
	bits = append(bits, bytesToBits(c.LedgerHashV.Bytes())...)
	bits = append(bits, bytesToBits(c.NextDifficultyV.Bytes())...)
	bits = append(bits, bytesToBits(c.StrengthV.Bytes())...)
	bits = append(bits, uint64ToBits(uint64(c.TimestampV.UnixNano()))...)
	bits = append(bits, uint64ToBits(c.LengthV)...)
	return bits
}

func bytesToBits(b []byte) []bool {
	bits := make([]bool, 0, len(b)*8)
	for _, by := range b {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (by>>uint(i))&1 == 1)
		}
	}
	return bits
}

func uint64ToBits(v uint64) []bool {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return bytesToBits(b[:])
}

// PadToTriples pads bits with false up to the next multiple of 3, so
// LengthInTriples() * 3 == len(Encode()) for every conforming
// implementation (R2's invariant).
func PadToTriples(bits []bool) []bool {
	for len(bits)%3 != 0 {
		bits = append(bits, false)
	}
	return bits
}

// Fold visits Encode() three booleans at a time, calling f with the running
// accumulator and the triple, and returns the final accumulator. R2
// requires it visit exactly LengthInTriples()*3 booleans, which holds
// because Encode is always triple-padded.
func Fold(s ConsensusState, init interface{}, f func(acc interface{}, b0, b1, b2 bool) interface{}) interface{} {
	bits := s.Encode()
	acc := init
	for i := 0; i+2 < len(bits); i += 3 {
		acc = f(acc, bits[i], bits[i+1], bits[i+2])
	}
	return acc
}

// FieldCommitment folds s's canonical bit-encoding through the field
// representation crypto/field provides: it walks Encode() one triple at a
// time via Fold, lifts each triple with field.Fold, and accumulates with
// field addition. This is the field-element form the in-circuit transition
// functions (is_transition_valid_checked, next_state_checked) are specified
// to operate over rather than raw bytes (spec.md R2). ok is false when
// Encode() isn't exactly LengthInTriples()*3 bits wide, the invariant R2
// requires of every conforming ConsensusState.
func FieldCommitment(s ConsensusState) (commitment field.Element, ok bool) {
	bits := s.Encode()
	if len(bits) != s.LengthInTriples()*3 {
		return field.Element{}, false
	}
	acc := Fold(s, field.Element{}, func(accI interface{}, b0, b1, b2 bool) interface{} {
		a := accI.(field.Element)
		t := field.Fold(b0, b1, b2)
		a.Add(&a, &t)
		return a
	})
	return acc.(field.Element), true
}

// BlockchainState is the non-consensus per-block summary ProtocolState
// carries alongside ConsensusState (spec.md section 3).
type BlockchainState struct {
	LedgerHash ledgerhash.LedgerHash
}

// ProtocolState is { previous_state_hash, blockchain_state, consensus_state }
// (spec.md section 3). Its hash is the parent link for the next state.
type ProtocolState struct {
	PreviousStateHash crypto.Digest
	BlockchainState   BlockchainState
	ConsensusState    ConsensusState
}

// Hash computes H(ProtocolState), the parent link invariant spec.md section
// 3 requires: "previous_state_hash = H(parent.ProtocolState)".
func (p ProtocolState) Hash() crypto.Digest {
	return crypto.H(
		p.PreviousStateHash.Bytes(),
		p.BlockchainState.LedgerHash.Bytes(),
		BoolsToBytes(p.ConsensusState.Encode()),
	)
}

// HashState computes H(previous_state) as spec.md section 4.2 requires of
// the hashing worker's new_state.previous_state_hash: the hash of a bare
// ConsensusState's canonical bit-encoding, independent of any enclosing
// ProtocolState.
func HashState(s ConsensusState) crypto.Digest {
	return crypto.H(BoolsToBytes(s.Encode()))
}

// BoolsToBytes packs a bit sequence into bytes, most-significant bit first
// within each byte, zero-padding the final byte if needed.
func BoolsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}

// SnarkTransition is { blockchain_state, consensus_transition_data, proof }
// (spec.md section 3). ConsensusTransitionData is variant-specific: a
// signature over (prev_state_hash, blockchain_state) for the signature
// variant, or (slot, vrf_output, proposer_pubkey) for the stake variant.
type SnarkTransition struct {
	BlockchainState       BlockchainState
	ConsensusTransitionData interface{}
	Proof                 ProofHandle
}

// ProofHandle is the opaque ledger-transition proof carried by a
// SnarkTransition; kept as an interface{}-free named type so Mechanism
// implementations don't need to import the zkproof package's concrete
// Proof type directly if they don't need its internals.
type ProofHandle struct {
	Bytes []byte
}

// Transition is the per-block payload a TransitionWithWitness carries.
type Transition struct {
	LedgerHash  ledgerhash.LedgerHash
	LedgerProof ProofHandle
	Timestamp   time.Time
	Nonce       nonce.Nonce
}

// TransitionWithWitness is { transition, transactions } (spec.md section 3):
// the mining coordinator's output.
type TransitionWithWitness struct {
	Transition   Transition
	Transactions []ledgerhash.Transaction
}

// Tip is { state, ledger, transaction_pool } (spec.md section 3).
type Tip struct {
	State ProtocolState
	Ledger ledgerhash.Ledger
	Pool   ledgerhash.TransactionPool
}
