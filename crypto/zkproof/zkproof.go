// Package zkproof defines the proving-backend contract spec.md section 2.1
// and 6 name ("prove(pk, public_input, aux) -> Proof",
// "verify(pk, public_input, proof) -> bool") and ships a reference backend
// that satisfies it.
//
// The underlying zero-knowledge circuit for ledger transitions is an
// explicit non-goal of spec.md ("specifying the cryptographic circuit ...
// only its contract is required"), so ReferenceBackend does not implement a
// real SNARK; it implements a deterministic commitment scheme over the same
// Statement shape a real backend would consume, which is enough for the
// bundle builder's contract (spec.md 4.1: "result must not resolve to
// Some(p) unless verify(p, statement(...)) holds") to be fully exercised
// and tested without depending on an external proving toolchain.
package zkproof

import (
	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/crypto/field"
	"github.com/psteckler/coda/ledgerhash"
)

// Statement is the public input a ledger-transition proof attests to.
type Statement struct {
	PrevLedgerHash ledgerhash.LedgerHash
	TargetHash     ledgerhash.LedgerHash
	Transactions   []ledgerhash.Transaction
}

// Encode renders the statement into bytes suitable for hashing or field
// embedding. Order is fixed so Encode is deterministic.
func (s Statement) Encode() []byte {
	buf := make([]byte, 0, 2*ledgerhash.Size+32*len(s.Transactions))
	buf = append(buf, s.PrevLedgerHash.Bytes()...)
	buf = append(buf, s.TargetHash.Bytes()...)
	for _, tx := range s.Transactions {
		buf = append(buf, tx.ID[:]...)
	}
	return buf
}

// Proof is an opaque ledger-transition proof.
type Proof struct {
	commitment field.Element
}

// Bytes renders the proof's commitment as the opaque byte form a
// consensus.ProofHandle carries.
func (p Proof) Bytes() []byte {
	return field.Bytes(p.commitment)
}

// Backend is the proving-backend collaborator contract.
type Backend interface {
	Prove(stmt Statement) (Proof, error)
	Verify(proof Proof, stmt Statement) bool
}

// ReferenceBackend is a deterministic, non-cryptographic stand-in for a
// real SNARK prover: it commits to the statement via H and lifts the
// commitment into a field element. Any two calls to Prove on an equal
// Statement produce an equal Proof, and Verify accepts iff the proof's
// commitment matches the statement's, which is exactly the contract the
// bundle builder relies on (spec.md 4.1).
type ReferenceBackend struct{}

// Prove implements Backend.
func (ReferenceBackend) Prove(stmt Statement) (Proof, error) {
	digest := crypto.H(stmt.Encode())
	return Proof{commitment: field.FromBytes(digest.Bytes())}, nil
}

// Verify implements Backend.
func (ReferenceBackend) Verify(proof Proof, stmt Statement) bool {
	want, err := ReferenceBackend{}.Prove(stmt)
	if err != nil {
		return false
	}
	return proof.commitment.Equal(&want.commitment)
}
