// Package bundle implements the bundle builder from spec.md section 4.1:
// given a ledger snapshot and a list of transactions, it produces a target
// ledger hash (computable immediately) and a cancellable, asynchronously
// completing ledger-transition proof.
package bundle

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/psteckler/coda/crypto/zkproof"
	"github.com/psteckler/coda/ledgerhash"
	"github.com/psteckler/coda/log"
	"github.com/psteckler/coda/metrics"
)

var (
	logger = log.NewModuleLogger(log.Bundle)

	startedCounter   = metrics.NewRegisteredCounter("bundle/started")
	succeededCounter = metrics.NewRegisteredCounter("bundle/succeeded")
	failedCounter    = metrics.NewRegisteredCounter("bundle/failed")
	cancelledCounter = metrics.NewRegisteredCounter("bundle/cancelled")
	cacheHitCounter  = metrics.NewRegisteredCounter("bundle/cache_hit")

	proofCache = newProofCache(proofCacheSize)
)

// proofCacheSize bounds the memoization cache: a proving backend is pure
// over its Statement (spec.md section 5), so an identical (prevHash,
// targetHash) pair reached by a later Build can reuse the already-resolved
// proof instead of re-running the backend.
const proofCacheSize = 256

// proofCache memoizes resolved proofs keyed on the ledger transition they
// attest to, the same bounded-LRU idiom consensus/stake/epoch_cache.go uses
// for epoch checkpoints.
type proofCache struct {
	cache *lru.Cache
}

func newProofCache(size int) *proofCache {
	c, err := lru.New(size)
	if err != nil {
		// Only returns an error for a non-positive size, which
		// newProofCache callers never pass.
		panic(err)
	}
	return &proofCache{cache: c}
}

type proofCacheKey struct {
	prevHash   ledgerhash.LedgerHash
	targetHash ledgerhash.LedgerHash
}

func (c *proofCache) get(prevHash, targetHash ledgerhash.LedgerHash) (*zkproof.Proof, bool) {
	v, ok := c.cache.Get(proofCacheKey{prevHash, targetHash})
	if !ok {
		return nil, false
	}
	return v.(*zkproof.Proof), true
}

func (c *proofCache) put(prevHash, targetHash ledgerhash.LedgerHash, proof *zkproof.Proof) {
	c.cache.Add(proofCacheKey{prevHash, targetHash}, proof)
}

// Handle is the cancellable, asynchronously-completing result of Build.
type Handle struct {
	targetHash ledgerhash.LedgerHash

	cancelOnce sync.Once
	cancelCh   chan struct{}
	done       chan struct{}

	mu    sync.Mutex
	proof *zkproof.Proof
}

// Build starts a bundle over ledger (a logical snapshot, per spec.md
// section 5's shared-resource policy) and txs, returning a handle whose
// TargetHash is available immediately and whose Result resolves once the
// backend's proof completes, fails, or the handle is cancelled.
//
// Build must be safe to invoke concurrently with other Build calls over
// different inputs: the shared state is the ledger each call snapshots for
// itself, the proving backend, which Statement/Proof treat as pure, and the
// package-level proofCache, whose LRU is safe for concurrent use.
func Build(ledger ledgerhash.Ledger, txs []ledgerhash.Transaction, backend zkproof.Backend) *Handle {
	startedCounter.Inc(1)

	prevHash := ledger.Hash()
	snap := ledger.Snapshot()

	applyErr := applyAll(snap, txs)
	targetHash := snap.Hash()

	h := &Handle{
		targetHash: targetHash,
		cancelCh:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	if applyErr == nil {
		if cached, ok := proofCache.get(prevHash, targetHash); ok {
			cacheHitCounter.Inc(1)
			h.proof = cached
			succeededCounter.Inc(1)
			close(h.done)
			return h
		}
	}

	stmt := zkproof.Statement{
		PrevLedgerHash: prevHash,
		TargetHash:     targetHash,
		Transactions:   txs,
	}

	go h.run(backend, stmt, applyErr)
	return h
}

func applyAll(ledger ledgerhash.Ledger, txs []ledgerhash.Transaction) error {
	for _, tx := range txs {
		if err := ledger.Apply(tx); err != nil {
			return err
		}
	}
	return nil
}

// TargetHash returns the ledger hash the bundle's proof will attest to. It
// is available the moment Build returns, as spec.md 4.1 requires.
func (h *Handle) TargetHash() ledgerhash.LedgerHash {
	return h.targetHash
}

// Result blocks until the bundle resolves (success, failure, or
// cancellation) or ctx is done. A nil proof with a nil error means the
// bundle resolved to None: proving failed or the handle was cancelled.
func (h *Handle) Result(ctx context.Context) (*zkproof.Proof, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.proof, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests cancellation; idempotent and safe to call before, during,
// or after completion (spec.md section 5). If the result has not yet
// resolved, it resolves to None.
func (h *Handle) Cancel() {
	h.cancelOnce.Do(func() { close(h.cancelCh) })
}

// Done returns a channel closed once the bundle resolves, for callers (the
// mining coordinator) that want to select on it alongside other events
// without a context and a join goroutine per attempt.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Proof returns the resolved proof, or nil if the bundle resolved to None.
// Only meaningful after Done is closed.
func (h *Handle) Proof() *zkproof.Proof {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.proof
}

func (h *Handle) run(backend zkproof.Backend, stmt zkproof.Statement, applyErr error) {
	defer close(h.done)

	if applyErr != nil {
		logger.Warn("bundle: ledger apply failed", "err", applyErr)
		failedCounter.Inc(1)
		return
	}

	proved := make(chan *zkproof.Proof, 1)
	go func() {
		p, err := backend.Prove(stmt)
		if err != nil {
			proved <- nil
			return
		}
		if !backend.Verify(p, stmt) {
			proved <- nil
			return
		}
		proved <- &p
	}()

	select {
	case p := <-proved:
		h.mu.Lock()
		h.proof = p
		h.mu.Unlock()
		if p != nil {
			succeededCounter.Inc(1)
			proofCache.put(stmt.PrevLedgerHash, stmt.TargetHash, p)
		} else {
			logger.Warn("bundle: proof failed verification")
			failedCounter.Inc(1)
		}
	case <-h.cancelCh:
		cancelledCounter.Inc(1)
	}
}
