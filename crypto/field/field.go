// Package field is the field-element arithmetic layer spec.md section 2.1
// names as a primitive collaborator. Backed by gnark-crypto's BN254 scalar
// field, the same field family the pack's zk-oriented repos (e.g. the
// ethereum-go-ethereum and certenIO-certen-validator dependency manifests)
// use for in-circuit arithmetic, so ConsensusState's in-circuit functions
// (next_state_checked, is_transition_valid_checked) operate over a real
// field type rather than raw bytes.
package field

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Element is a single field element.
type Element = fr.Element

// FromBytes interprets b as a big-endian integer and reduces it modulo the
// field's order.
func FromBytes(b []byte) Element {
	var e Element
	e.SetBytes(b)
	return e
}

// FromBool lifts a single boolean into {0, 1} in the field, the atomic unit
// the fold operation (R2) walks over.
func FromBool(bit bool) Element {
	var e Element
	if bit {
		e.SetOne()
	}
	return e
}

// Bytes returns the canonical big-endian encoding of e.
func Bytes(e Element) []byte {
	b := e.Bytes()
	return b[:]
}

// Fold combines a triple of booleans into one field element the way the
// ConsensusState bit-encoding's length_in_triples contract expects: each bit
// is lifted with FromBool, then combined Horner-style (acc = 2*acc + bit,
// high bit first) into 4*b2 + 2*b1 + b0. Three-way packing keeps the
// circuit-side width at one field element per triple.
func Fold(b0, b1, b2 bool) Element {
	acc := FromBool(b2)

	e1 := FromBool(b1)
	acc.Double(&acc)
	acc.Add(&acc, &e1)

	e0 := FromBool(b0)
	acc.Double(&acc)
	acc.Add(&acc, &e0)

	return acc
}
