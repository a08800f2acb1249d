package mining

import (
	"testing"
	"time"

	"github.com/psteckler/coda/consensus"
	"github.com/psteckler/coda/consensus/signature"
	"github.com/psteckler/coda/crypto/zkproof"
	"github.com/psteckler/coda/difficulty"
	"github.com/psteckler/coda/ledgerhash"
	"math/big"
)

type fakeLedger struct {
	tag byte
}

func (l *fakeLedger) Hash() ledgerhash.LedgerHash {
	var h ledgerhash.LedgerHash
	h[0] = l.tag
	return h
}

func (l *fakeLedger) Apply(ledgerhash.Transaction) error { return nil }

func (l *fakeLedger) Snapshot() ledgerhash.Ledger {
	return &fakeLedger{tag: l.tag}
}

type fakePool struct {
	txs []ledgerhash.Transaction
}

func (p *fakePool) Get(n int) []ledgerhash.Transaction {
	if n > len(p.txs) {
		n = len(p.txs)
	}
	got := p.txs[:n]
	p.txs = p.txs[n:]
	return got
}

func testTip(tag byte, target difficulty.Target) consensus.Tip {
	cs := signature.ConsensusState{Core: consensus.Core{
		LedgerHashV:     ledgerhash.LedgerHash{tag},
		NextDifficultyV: target,
		StrengthV:       difficulty.ZeroStrength,
		TimestampV:      time.Unix(1_700_000_000, int64(tag)),
	}}
	return consensus.Tip{
		State: consensus.ProtocolState{ConsensusState: cs},
		Ledger: &fakeLedger{tag: tag},
		Pool: &fakePool{txs: []ledgerhash.Transaction{
			{ID: [32]byte{tag, 1}},
			{ID: [32]byte{tag, 2}},
		}},
	}
}

func TestCoordinatorEmitsOnSuccessfulAttempt(t *testing.T) {
	c := New(zkproof.ReferenceBackend{}, 10)
	tipCh := make(chan consensus.Tip, 1)
	tipCh <- testTip(1, difficulty.Max())

	go c.Run(tipCh)
	defer c.Stop()

	select {
	case result := <-c.Output():
		if len(result.Transactions) != 2 {
			t.Errorf("emitted transition carried %d transactions, want 2", len(result.Transactions))
		}
	case err := <-c.Fatal():
		t.Fatalf("coordinator reported a fatal error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator did not emit a transition against Max() difficulty")
	}
}

func TestCoordinatorRestartsOnTipChangeAndCompletesTheNewTip(t *testing.T) {
	c := New(zkproof.ReferenceBackend{}, 10)
	tipCh := make(chan consensus.Tip, 1)

	// An (almost) impossible-to-meet target: if the coordinator failed to
	// cancel and restart on the next tip, this test would time out waiting
	// for an emission that never comes from this tip.
	tipCh <- testTip(1, difficulty.NewTarget(big.NewInt(1)))

	go c.Run(tipCh)
	defer c.Stop()

	time.Sleep(5 * time.Millisecond)
	tipCh <- testTip(2, difficulty.Max())

	select {
	case result := <-c.Output():
		if result.Transition.LedgerHash != (ledgerhash.LedgerHash{2}) {
			t.Errorf("emitted transition's ledger hash = %x, want the second tip's", result.Transition.LedgerHash)
		}
	case err := <-c.Fatal():
		t.Fatalf("coordinator reported a fatal error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("coordinator did not restart on the new tip and complete it")
	}
}

func TestCoordinatorReportsFatalOnOutputOverflow(t *testing.T) {
	c := New(zkproof.ReferenceBackend{}, 1)
	tipCh := make(chan consensus.Tip, 1)

	go c.Run(tipCh)
	defer c.Stop()

	// Feed one tip at a time and wait for its emission before sending the
	// next, so a queued tip change never preempts an attempt; nothing reads
	// Output, so the stream fills to capacity.
	deadline := time.After(5 * time.Second)
	for i := 0; i < outputCapacity; i++ {
		tipCh <- testTip(byte(i), difficulty.Max())
		for len(c.Output()) < i+1 {
			select {
			case err := <-c.Fatal():
				t.Fatalf("coordinator reported a fatal error before the output stream was full: %v", err)
			case <-deadline:
				t.Fatalf("coordinator emitted only %d of %d transitions", len(c.Output()), outputCapacity)
			case <-time.After(time.Millisecond):
			}
		}
	}
	tipCh <- testTip(byte(outputCapacity), difficulty.Max())

	select {
	case err := <-c.Fatal():
		if err != errOutputStreamFull {
			t.Errorf("Fatal() = %v, want errOutputStreamFull", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("coordinator did not report a fatal error once the output stream overflowed")
	}
}

func TestCoordinatorReportsFatalWhenTipStreamCloses(t *testing.T) {
	c := New(zkproof.ReferenceBackend{}, 10)
	tipCh := make(chan consensus.Tip)
	close(tipCh)

	go c.Run(tipCh)

	select {
	case err := <-c.Fatal():
		if err != errTipStreamClosed {
			t.Errorf("Fatal() = %v, want errTipStreamClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("coordinator did not report a fatal error when the tip stream closed")
	}
}

func TestStopEndsRunWithoutFatal(t *testing.T) {
	c := New(zkproof.ReferenceBackend{}, 10)
	tipCh := make(chan consensus.Tip)
	done := make(chan struct{})
	go func() {
		c.Run(tipCh)
		close(done)
	}()

	c.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not return after Stop")
	}
	select {
	case err := <-c.Fatal():
		t.Errorf("Stop should not produce a fatal error, got %v", err)
	default:
	}
}
