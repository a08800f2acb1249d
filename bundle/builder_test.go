package bundle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/psteckler/coda/crypto"
	"github.com/psteckler/coda/crypto/zkproof"
	"github.com/psteckler/coda/ledgerhash"
)

// fakeLedger is an in-memory Ledger whose hash is H over a per-instance seed
// and the applied transactions' IDs in order, and whose Snapshot is a deep
// copy. The seed keeps otherwise-identical (empty) ledgers across different
// tests from colliding on the same proofCache key.
type fakeLedger struct {
	seed    byte
	applied [][32]byte
	reject  map[[32]byte]bool
}

func newFakeLedger(seed byte) *fakeLedger {
	return &fakeLedger{seed: seed, reject: make(map[[32]byte]bool)}
}

func (l *fakeLedger) Hash() ledgerhash.LedgerHash {
	parts := make([][]byte, 0, len(l.applied)+1)
	parts = append(parts, []byte{l.seed})
	for _, id := range l.applied {
		idCopy := id
		parts = append(parts, idCopy[:])
	}
	d := crypto.H(parts...)
	var h ledgerhash.LedgerHash
	copy(h[:], d.Bytes())
	return h
}

func (l *fakeLedger) Apply(tx ledgerhash.Transaction) error {
	if l.reject[tx.ID] {
		return errors.New("fakeLedger: rejected transaction")
	}
	l.applied = append(l.applied, tx.ID)
	return nil
}

func (l *fakeLedger) Snapshot() ledgerhash.Ledger {
	cp := &fakeLedger{
		seed:    l.seed,
		applied: append([][32]byte(nil), l.applied...),
		reject:  make(map[[32]byte]bool, len(l.reject)),
	}
	for k, v := range l.reject {
		cp.reject[k] = v
	}
	return cp
}

// blockingBackend blocks Prove until release is closed, so tests can
// exercise cancellation mid-bundle.
type blockingBackend struct {
	release chan struct{}
}

func newBlockingBackend() *blockingBackend {
	return &blockingBackend{release: make(chan struct{})}
}

func (b *blockingBackend) Prove(stmt zkproof.Statement) (zkproof.Proof, error) {
	<-b.release
	return zkproof.ReferenceBackend{}.Prove(stmt)
}

func (b *blockingBackend) Verify(proof zkproof.Proof, stmt zkproof.Statement) bool {
	return zkproof.ReferenceBackend{}.Verify(proof, stmt)
}

func TestBuildEmptyBundleSucceeds(t *testing.T) {
	ledger := newFakeLedger(1)
	h := Build(ledger, nil, zkproof.ReferenceBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	proof, err := h.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}
	if proof == nil {
		t.Fatalf("an empty-transaction bundle should still resolve to Some(proof)")
	}
	if h.TargetHash() != ledger.Hash() {
		t.Errorf("an empty bundle's target hash should equal the unmodified ledger's hash")
	}
}

func TestBuildAppliesTransactionsToASnapshotOnly(t *testing.T) {
	ledger := newFakeLedger(2)
	before := ledger.Hash()

	txs := []ledgerhash.Transaction{{ID: [32]byte{1}}, {ID: [32]byte{2}}}
	h := Build(ledger, txs, zkproof.ReferenceBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := h.Result(ctx); err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}

	if ledger.Hash() != before {
		t.Errorf("Build must not mutate the caller's ledger, only a snapshot of it")
	}
	if h.TargetHash() == before {
		t.Errorf("TargetHash should reflect the transactions applied to the snapshot")
	}
}

func TestBuildResolvesToNoneOnApplyFailure(t *testing.T) {
	ledger := newFakeLedger(3)
	badID := [32]byte{9}
	ledger.reject[badID] = true

	h := Build(ledger, []ledgerhash.Transaction{{ID: badID}}, zkproof.ReferenceBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	proof, err := h.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}
	if proof != nil {
		t.Errorf("a bundle whose apply fails must resolve to None, got a proof")
	}
}

func TestTargetHashIsAvailableImmediately(t *testing.T) {
	ledger := newFakeLedger(4)
	backend := newBlockingBackend()
	h := Build(ledger, nil, backend)
	defer h.Cancel()

	if h.TargetHash() != ledger.Hash() {
		t.Errorf("TargetHash must be available before the proof resolves")
	}
}

func TestCancelResolvesToNone(t *testing.T) {
	ledger := newFakeLedger(5)
	backend := newBlockingBackend()
	h := Build(ledger, nil, backend)

	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	proof, err := h.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}
	if proof != nil {
		t.Errorf("a cancelled bundle must resolve to None")
	}
}

func TestCancelIsIdempotent(t *testing.T) {
	ledger := newFakeLedger(6)
	backend := newBlockingBackend()
	h := Build(ledger, nil, backend)

	h.Cancel()
	h.Cancel()
	h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := h.Result(ctx); err != nil {
		t.Fatalf("Result returned an error after repeated Cancel: %v", err)
	}
}

func TestCancelAfterCompletionIsSafe(t *testing.T) {
	ledger := newFakeLedger(7)
	h := Build(ledger, nil, zkproof.ReferenceBackend{})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	proof, err := h.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}
	if proof == nil {
		t.Fatalf("expected a proof before calling Cancel late")
	}

	h.Cancel()
	proofAgain, err := h.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error after late Cancel: %v", err)
	}
	if proofAgain == nil {
		t.Errorf("a late Cancel must not change an already-resolved result")
	}
}

func TestBuildReusesCachedProofForIdenticalTransition(t *testing.T) {
	ledger := newFakeLedger(9)
	txs := []ledgerhash.Transaction{{ID: [32]byte{1}}}

	first := Build(ledger, txs, zkproof.ReferenceBackend{})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	firstProof, err := first.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}
	if firstProof == nil {
		t.Fatalf("expected the first build to resolve to Some(proof)")
	}

	second := Build(newFakeLedger(9), txs, &blockingBackend{})
	select {
	case <-second.Done():
	case <-time.After(time.Second):
		t.Fatalf("a repeated (ledger, txs) pair should resolve from cache without reaching the backend")
	}
	secondProof, err := second.Result(ctx)
	if err != nil {
		t.Fatalf("Result returned an error: %v", err)
	}
	if secondProof == nil {
		t.Fatalf("expected the cache hit to resolve to Some(proof)")
	}
	if *secondProof != *firstProof {
		t.Errorf("a cache hit should return the same proof as the original build")
	}
}

func TestDoneClosesExactlyOnResolution(t *testing.T) {
	ledger := newFakeLedger(8)
	backend := newBlockingBackend()
	h := Build(ledger, nil, backend)

	select {
	case <-h.Done():
		t.Fatalf("Done should not be closed before the backend releases")
	case <-time.After(10 * time.Millisecond):
	}

	close(backend.release)

	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatalf("Done should close once the backend resolves")
	}
}
