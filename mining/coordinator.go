// Package mining implements the mining coordinator from spec.md sections
// 4.3, 4.5 and 5: given a stream of tip changes, it runs exactly one bundle
// builder and one hashing worker per tip concurrently, cancels and restarts
// both on the next tip change, and emits each completed attempt's transition
// onto a bounded output stream.
package mining

import (
	"github.com/psteckler/coda/bundle"
	"github.com/psteckler/coda/consensus"
	"github.com/psteckler/coda/crypto/zkproof"
	"github.com/psteckler/coda/hashing"
	"github.com/psteckler/coda/log"
	"github.com/psteckler/coda/metrics"
)

var logger = log.NewModuleLogger(log.Mining)

var (
	attemptsStartedCounter   = metrics.NewRegisteredCounter("mining/attempts_started")
	attemptsSucceededCounter = metrics.NewRegisteredCounter("mining/attempts_succeeded")
	attemptsFailedCounter    = metrics.NewRegisteredCounter("mining/attempts_failed")
	attemptsCancelledCounter = metrics.NewRegisteredCounter("mining/attempts_cancelled")
	emittedCounter           = metrics.NewRegisteredCounter("mining/emitted")
)

// defaultTransactionsPerBundle is "transactions per bundle" (spec.md 4.3's
// default of 10 when the caller of New doesn't override it).
const defaultTransactionsPerBundle = 10

// outputCapacity is the output stream's bounded capacity (spec.md 4.5: "a
// bounded-capacity channel, capacity 64").
const outputCapacity = 64

// Coordinator runs the mining state machine described in spec.md 4.3 against
// a caller-supplied stream of tips, emitting completed transitions on a
// bounded output stream and reporting unrecoverable conditions (an
// unconsumed tip stream closing, or the output stream's consumer stalling
// past capacity) on Fatal.
type Coordinator struct {
	backend             zkproof.Backend
	transactionsPerBundle int

	out   chan consensus.TransitionWithWitness
	fatal chan error
	stop  chan struct{}
}

// New constructs a Coordinator that proves bundles with backend and takes
// transactionsPerBundle transactions from the pool on each tip (spec.md
// 4.3's "k = transactions per bundle"). A non-positive transactionsPerBundle
// falls back to the default of 10.
func New(backend zkproof.Backend, transactionsPerBundle int) *Coordinator {
	if transactionsPerBundle <= 0 {
		transactionsPerBundle = defaultTransactionsPerBundle
	}
	return &Coordinator{
		backend:             backend,
		transactionsPerBundle: transactionsPerBundle,
		out:                 make(chan consensus.TransitionWithWitness, outputCapacity),
		fatal:               make(chan error, 1),
		stop:                make(chan struct{}),
	}
}

// Output is the stream of completed, successful transitions (spec.md 4.3:
// "emit success, and only success").
func (c *Coordinator) Output() <-chan consensus.TransitionWithWitness {
	return c.out
}

// Fatal reports an unrecoverable condition: the tip stream ending, or a
// stalled consumer overflowing the bounded output stream (spec.md 4.5). At
// most one error is ever sent, and Run returns shortly after.
func (c *Coordinator) Fatal() <-chan error {
	return c.fatal
}

// Stop asks Run to cancel any in-flight attempt and return. Idempotent.
func (c *Coordinator) Stop() {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
}

// Run consumes tipCh until it closes, Stop is called, or a fatal condition
// occurs. It blocks, so callers run it in its own goroutine. At any instant
// at most one bundle builder and one hashing worker are outstanding (spec.md
// P5), and a tip change's cancellation of the previous attempt always
// precedes the construction of its replacement (spec.md P6).
func (c *Coordinator) Run(tipCh <-chan consensus.Tip) {
	tip, ok := c.nextTip(tipCh)
	if !ok {
		return
	}

	for {
		result, next, ok := c.attempt(tip, tipCh)
		if !ok {
			return
		}
		if result != nil {
			if !c.emit(*result) {
				return
			}
		}
		if next != nil {
			tip = *next
			continue
		}
		tip, ok = c.nextTip(tipCh)
		if !ok {
			return
		}
	}
}

// nextTip blocks for the next tip. It returns false if tipCh closes (after
// reporting a fatal error) or if Stop is called first (without one).
func (c *Coordinator) nextTip(tipCh <-chan consensus.Tip) (consensus.Tip, bool) {
	select {
	case tip, ok := <-tipCh:
		if !ok {
			c.reportFatal(errTipStreamClosed)
			return consensus.Tip{}, false
		}
		return tip, true
	case <-c.stop:
		return consensus.Tip{}, false
	}
}

// attempt runs exactly one bundle builder and one hashing worker over tip to
// completion, unless preempted by a new tip arriving on tipCh first. It
// returns:
//   - (result, nil, true) if the attempt completed and produced a
//     transition (result non-nil) or failed/was cancelled by nothing else
//     (result nil);
//   - (nil, &newTip, true) if a new tip preempted the attempt, cancelling it
//     and naming the tip the caller should retry with immediately;
//   - (_, _, false) if the tip stream ended or Stop was called, in which
//     case Run must return.
func (c *Coordinator) attempt(tip consensus.Tip, tipCh <-chan consensus.Tip) (result *consensus.TransitionWithWitness, newTip *consensus.Tip, ok bool) {
	attemptsStartedCounter.Inc(1)

	txs := tip.Pool.Get(c.transactionsPerBundle)
	bh := bundle.Build(tip.Ledger, txs, c.backend)
	hh := hashing.Create(tip.State.ConsensusState, bh.TargetHash())

	bundleDoneCh, hashDoneCh := bh.Done(), hh.Done()
	for bundleDoneCh != nil || hashDoneCh != nil {
		select {
		case <-bundleDoneCh:
			bundleDoneCh = nil
		case <-hashDoneCh:
			hashDoneCh = nil
		case t, chOk := <-tipCh:
			bh.Cancel()
			hh.Cancel()
			attemptsCancelledCounter.Inc(1)
			if !chOk {
				c.reportFatal(errTipStreamClosed)
				return nil, nil, false
			}
			return nil, &t, true
		case <-c.stop:
			bh.Cancel()
			hh.Cancel()
			return nil, nil, false
		}
	}

	proof := bh.Proof()
	outcome := hh.Result()

	if proof == nil || outcome.Status != hashing.StatusOk {
		logger.Warn("mining: attempt did not produce a transition", "bundleOk", proof != nil, "hashStatus", outcome.Status)
		attemptsFailedCounter.Inc(1)
		return nil, nil, true
	}

	attemptsSucceededCounter.Inc(1)
	twt := consensus.TransitionWithWitness{
		Transition: consensus.Transition{
			LedgerHash:  bh.TargetHash(),
			LedgerProof: consensus.ProofHandle{Bytes: proof.Bytes()},
			Timestamp:   outcome.Core.TimestampV,
			Nonce:       outcome.Nonce,
		},
		Transactions: txs,
	}
	return &twt, nil, true
}

// emit delivers result on the output stream, reporting a fatal error and
// returning false if the consumer has stalled past the stream's bounded
// capacity (spec.md 4.5: overflow is a fatal error, never a silent drop).
func (c *Coordinator) emit(result consensus.TransitionWithWitness) bool {
	select {
	case c.out <- result:
		emittedCounter.Inc(1)
		return true
	default:
		c.reportFatal(errOutputStreamFull)
		return false
	}
}

func (c *Coordinator) reportFatal(err error) {
	logger.Error("mining: fatal", "err", err)
	select {
	case c.fatal <- err:
	default:
	}
}

var (
	errTipStreamClosed = fatalError("mining: tip-change stream ended")
	errOutputStreamFull = fatalError("mining: output stream exceeded bounded capacity; consumer appears stalled")
)

// fatalError is a trivial string error so this package doesn't need to
// import errors or fmt for two constant error values.
type fatalError string

func (e fatalError) Error() string { return string(e) }
