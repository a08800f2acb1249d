// Package nonce implements the opaque fixed-width nonce used by the hashing
// worker's search (spec.md section 3, "Nonce").
package nonce

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
)

// Size is the width of a Nonce in bytes.
const Size = 16

// Nonce is an opaque fixed-width integer with a random constructor and a
// successor function. Only the Bytes and Uint64 accessors are exposed; callers
// must not assume anything about its internal representation beyond that.
type Nonce [Size]byte

// Random returns a nonce drawn from the full nonce space.
func Random() Nonce {
	var n Nonce
	if _, err := rand.Read(n[:]); err != nil {
		// crypto/rand failing is unrecoverable; the search space would be
		// degenerate otherwise.
		panic(err)
	}
	return n
}

// Next returns the successor of n, wrapping around on overflow.
func (n Nonce) Next() Nonce {
	v := n.big()
	v.Add(v, big.NewInt(1))
	return fromBig(v)
}

// Bytes returns the big-endian byte representation of n.
func (n Nonce) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, n[:])
	return b
}

func (n Nonce) big() *big.Int {
	return new(big.Int).SetBytes(n[:])
}

func fromBig(v *big.Int) Nonce {
	var n Nonce
	b := v.Bytes()
	if len(b) > Size {
		b = b[len(b)-Size:]
	}
	copy(n[Size-len(b):], b)
	return n
}

// Uint64 exposes the low 8 bytes of n as a uint64, useful for compact
// headers in tests.
func (n Nonce) Uint64() uint64 {
	return binary.BigEndian.Uint64(n[Size-8:])
}
