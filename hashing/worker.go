// Package hashing implements the hashing worker from spec.md section 4.2:
// given a previous consensus state and a target ledger hash, it searches
// the nonce space for a header digest meeting the current difficulty
// target, in fixed-size batches that yield cooperatively between batches
// so cancellation is observed promptly (spec.md section 5).
package hashing

import (
	"time"

	"github.com/psteckler/coda/consensus"
	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/difficulty"
	"github.com/psteckler/coda/ledgerhash"
	"github.com/psteckler/coda/log"
	"github.com/psteckler/coda/metrics"
	"github.com/psteckler/coda/nonce"
)

var logger = log.NewModuleLogger(log.Hashing)

var (
	startedCounter   = metrics.NewRegisteredCounter("hashing/started")
	solvedCounter    = metrics.NewRegisteredCounter("hashing/solved")
	cancelledCounter = metrics.NewRegisteredCounter("hashing/cancelled")
	batchTimer       = metrics.NewRegisteredTimer("hashing/batchtime")
)

// batchSize is the number of candidate nonces tried per batch before
// yielding (spec.md 4.2: "order ≈ 10 per batch").
const batchSize = 10

// batchPause is how long the worker yields between batches so a pending
// cancellation is observed promptly (spec.md 4.2: "pause ≈ 10 ms").
const batchPause = 10 * time.Millisecond

// Status is the terminal status of a hashing attempt.
type Status int

const (
	// StatusOk means a winning nonce was found.
	StatusOk Status = iota
	// StatusCancelled means the search was cancelled before a winning
	// nonce was found.
	StatusCancelled
)

// Outcome is the new consensus-state Core and nonce a successful search
// produced, or the cancelled marker.
type Outcome struct {
	Status Status
	Core   consensus.Core
	Nonce  nonce.Nonce
}

// Handle is the cancellable, asynchronously-completing result of Create.
type Handle struct {
	cancel chan struct{}
	done   chan struct{}

	outcome Outcome
}

// Create starts a search for (new_state, nonce) satisfying spec.md 4.2's
// five equations against previousState and nextLedgerHash, and returns a
// handle whose Result resolves once a winning nonce is found or the handle
// is cancelled.
func Create(previousState consensus.ConsensusState, nextLedgerHash ledgerhash.LedgerHash) *Handle {
	startedCounter.Inc(1)

	h := &Handle{
		cancel: make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.search(previousState, nextLedgerHash)
	return h
}

// Result blocks until the search resolves.
func (h *Handle) Result() Outcome {
	<-h.done
	return h.outcome
}

// Done returns a channel closed once the search resolves, for callers that
// want to select on it alongside other events (the mining coordinator does
// exactly this).
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel requests cancellation; idempotent and safe to call before, during,
// or after completion (spec.md section 5). Cancellation is observed at the
// next batch boundary: unless the batch in progress finds a winning nonce,
// Result then resolves to StatusCancelled, never pending forever. A Cancel
// after completion leaves the result unchanged.
func (h *Handle) Cancel() {
	select {
	case <-h.cancel:
		// already cancelled
	default:
		close(h.cancel)
	}
}

func (h *Handle) search(previousState consensus.ConsensusState, nextLedgerHash ledgerhash.LedgerHash) {
	defer close(h.done)

	prevStateHash := consensus.HashState(previousState)
	now := time.Now()
	target := previousState.NextDifficulty()

	candidateCore := consensus.Core{
		PrevStateHash:   prevStateHash,
		LedgerHashV:     nextLedgerHash,
		NextDifficultyV: difficulty.Next(previousState.NextDifficulty(), previousState.Timestamp(), now),
		StrengthV:       difficulty.Increase(previousState.Strength(), previousState.NextDifficulty()),
		TimestampV:      now,
		LengthV:         previousState.Length() + 1,
	}

	n := nonce.Random()
	for {
		batchStart := time.Now()
		for i := 0; i < batchSize; i++ {
			digest := headerDigest(candidateCore, n)
			if target.Meets(digest.Bytes()) {
				h.outcome = Outcome{Status: StatusOk, Core: candidateCore, Nonce: n}
				solvedCounter.Inc(1)
				return
			}
			n = n.Next()
		}
		batchTimer.UpdateSince(batchStart)

		select {
		case <-h.cancel:
			h.outcome = Outcome{Status: StatusCancelled}
			cancelledCounter.Inc(1)
			return
		case <-time.After(batchPause):
		}
	}
}

// headerDigest computes H(new_state, nonce): the candidate header's
// digest, hashed over the candidate Core's canonical fields concatenated
// with the nonce (spec.md 4.2: "Difficulty.meets(previous_state.next_difficulty,
// H(new_state, nonce))").
func headerDigest(core consensus.Core, n nonce.Nonce) crypto.Digest {
	return crypto.H(
		consensus.BoolsToBytes(core.EncodeCore()),
		n.Bytes(),
	)
}
