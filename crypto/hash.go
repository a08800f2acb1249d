// Package crypto gathers the cryptographic primitive collaborators spec.md
// section 2.1 treats as opaque: the hash H, the field-element arithmetic
// layer, the signature scheme, and (in the zkproof subpackage) the proving
// backend contract. Each is given a concrete, swappable implementation so
// the rest of the module compiles and its tests run deterministically,
// exactly as the protocol-invariant collaborators spec.md section 6 lists.
package crypto

import (
	"golang.org/x/crypto/sha3"
)

// HashSize is the digest width of H.
const HashSize = 32

// Digest is the output of H.
type Digest [HashSize]byte

// Bytes returns a copy of the digest bytes.
func (d Digest) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, d[:])
	return b
}

// H is the collision-resistant hash collaborator from spec.md section 2.1,
// backed by Keccak-256 (golang.org/x/crypto/sha3), the same hash family the
// teacher's ecosystem relies on throughout its blockchain.types package.
func H(parts ...[]byte) Digest {
	h := sha3.NewLegacyKeccak256()
	for _, p := range parts {
		h.Write(p)
	}
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}
