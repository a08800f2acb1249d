// Package difficulty implements the Difficulty/Target threshold and the
// Strength monotone work accumulator from spec.md section 3.
package difficulty

import (
	"math/big"
	"time"
)

// maxTargetBits bounds the representable target space; digests are compared
// against a Target drawn from [0, 2^maxTargetBits).
const maxTargetBits = 256

// desiredBlockTime is the elapsed-time goal the retarget formula aims for.
// A production deployment would source this from config; it is a protocol
// constant here to keep Difficulty.Next pure.
const desiredBlockTime = 20 * time.Second

// maxAdjustmentFactor bounds how much a single retarget step may move the
// target, preventing a single outlier timestamp from blowing up difficulty.
const maxAdjustmentFactor = 4

// MaxTarget is the easiest possible target: every digest meets it.
var MaxTarget = func() *big.Int {
	t := new(big.Int).Lsh(big.NewInt(1), maxTargetBits)
	return t.Sub(t, big.NewInt(1))
}()

// Target is the threshold T such that a header h "meets difficulty" iff
// H(h) <= T. Smaller targets mean harder-to-meet difficulty.
type Target struct {
	value *big.Int
}

// NewTarget wraps v as a Target, clamping to [1, MaxTarget].
func NewTarget(v *big.Int) Target {
	if v.Sign() <= 0 {
		return Target{value: big.NewInt(1)}
	}
	if v.Cmp(MaxTarget) > 0 {
		return Target{value: new(big.Int).Set(MaxTarget)}
	}
	return Target{value: new(big.Int).Set(v)}
}

// Max returns the target that accepts every digest.
func Max() Target { return Target{value: new(big.Int).Set(MaxTarget)} }

// Meets reports whether digest, interpreted as an unsigned big-endian
// integer, is <= t.
func (t Target) Meets(digest []byte) bool {
	h := new(big.Int).SetBytes(digest)
	return h.Cmp(t.value) <= 0
}

// Big returns the underlying big.Int; callers must not mutate it.
func (t Target) Big() *big.Int { return t.value }

// Equal reports value equality.
func (t Target) Equal(o Target) bool { return t.value.Cmp(o.value) == 0 }

// Bytes returns the canonical big-endian encoding of t, left-padded to
// maxTargetBits/8 bytes, used by ConsensusState's bit encoding (R1).
func (t Target) Bytes() []byte {
	out := make([]byte, maxTargetBits/8)
	if t.value == nil {
		return out
	}
	b := t.value.Bytes()
	copy(out[len(out)-len(b):], b)
	return out
}

// TargetFromBytes is the inverse of Bytes.
func TargetFromBytes(b []byte) Target {
	return NewTarget(new(big.Int).SetBytes(b))
}

// Next derives the next target from the previous target and the elapsed
// wall-clock time between consecutive block timestamps (spec.md 4.2):
// a block produced faster than desiredBlockTime tightens the target
// (raises difficulty); slower loosens it. The adjustment is bounded by
// maxAdjustmentFactor in either direction.
func Next(prev Target, lastTimestamp, thisTimestamp time.Time) Target {
	elapsed := thisTimestamp.Sub(lastTimestamp)
	if elapsed <= 0 {
		elapsed = time.Millisecond
	}

	num := new(big.Int).Mul(prev.value, big.NewInt(int64(elapsed)))
	den := big.NewInt(int64(desiredBlockTime))
	next := new(big.Int).Div(num, den)

	lowerBound := new(big.Int).Div(prev.value, big.NewInt(maxAdjustmentFactor))
	upperBound := new(big.Int).Mul(prev.value, big.NewInt(maxAdjustmentFactor))

	if next.Cmp(lowerBound) < 0 {
		next = lowerBound
	}
	if next.Cmp(upperBound) > 0 {
		next = upperBound
	}
	return NewTarget(next)
}

// Strength is a monotone accumulator over a chain. Strength.Increase is
// strictly monotone in the work implied by d and is associative along a
// chain: work(d) = MaxTarget/d.value, and accumulation is plain addition,
// which is associative.
type Strength struct {
	value *big.Int
}

// ZeroStrength is the genesis strength.
var ZeroStrength = Strength{value: new(big.Int)}

// Increase returns s advanced by the work implied by d.
func Increase(s Strength, d Target) Strength {
	work := new(big.Int).Div(MaxTarget, d.value)
	total := new(big.Int).Add(strengthOrZero(s), work)
	return Strength{value: total}
}

func strengthOrZero(s Strength) *big.Int {
	if s.value == nil {
		return new(big.Int)
	}
	return s.value
}

// Cmp compares two strengths: <0 if a<b, 0 if equal, >0 if a>b.
func (s Strength) Cmp(o Strength) int {
	return strengthOrZero(s).Cmp(strengthOrZero(o))
}

// Bytes returns the canonical big-endian encoding of s.
func (s Strength) Bytes() []byte {
	return strengthOrZero(s).Bytes()
}

// StrengthFromBytes is the inverse of Bytes.
func StrengthFromBytes(b []byte) Strength {
	return Strength{value: new(big.Int).SetBytes(b)}
}
