// Package ledgerhash defines the content-hash type for the account ledger
// and the Ledger / TransactionPool collaborator interfaces spec.md section
// 2.2 and section 6 describe but leave external. A fixed-width array with
// a hex string form, in the style of go-ethereum's common.Hash.
package ledgerhash

import (
	"encoding/hex"
	"errors"
)

// Size is the width of a LedgerHash in bytes (32-byte digest, matching the
// collision-resistant hash H from spec.md section 2.1).
const Size = 32

// LedgerHash is the content hash of the account ledger (spec.md section 3).
type LedgerHash [Size]byte

// String renders h as a 0x-prefixed hex string.
func (h LedgerHash) String() string {
	return "0x" + hex.EncodeToString(h[:])
}

// Bytes returns a copy of the underlying bytes.
func (h LedgerHash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// FromBytes builds a LedgerHash from a byte slice, erroring if the length is
// wrong.
func FromBytes(b []byte) (LedgerHash, error) {
	var h LedgerHash
	if len(b) != Size {
		return h, errors.New("ledgerhash: wrong length")
	}
	copy(h[:], b)
	return h, nil
}

// Transaction is the minimal shape the consensus core needs from a
// transaction: ledger application is entirely a Ledger collaborator
// concern, so the core only needs something it can pass through and hash.
type Transaction struct {
	ID      [32]byte
	Payload []byte
}

// Ledger is the mutable account ledger collaborator (spec.md section 6).
// Apply is a synchronous call that mutates a ledger snapshot in place; it is
// only ever called by a bundle builder
// against a snapshot it privately owns (spec.md section 5, "Shared-resource
// policy").
type Ledger interface {
	// Hash returns the current content hash of the ledger.
	Hash() LedgerHash
	// Apply applies tx to the ledger, returning an error if the transaction
	// is invalid against the current state.
	Apply(tx Transaction) error
	// Snapshot returns a logical copy of the ledger, safe for a bundle
	// builder to mutate without racing the chain controller.
	Snapshot() Ledger
}

// TransactionPool is the ordered pool collaborator (spec.md section 6).
// Get removes the returned transactions atomically; concurrent Get calls
// are serialized by the implementation (spec.md section 5).
type TransactionPool interface {
	Get(n int) []Transaction
}
