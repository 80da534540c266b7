package craq

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/artillery-go/artillery/internal/domain"
)

// startChain boots a 3-node H->M->T chain on loopback and returns the
// nodes; teardown is registered with t.Cleanup. This exercises the real TCP listen/dial
// path rather than calling handlers in-process.
func startChain(t *testing.T, mode OperationMode) []*Node {
	t.Helper()

	listeners := make([]*net.TCPListener, 3)
	addrs := make([]string, 3)
	for i := range listeners {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		tcpLn := ln.(*net.TCPListener)
		listeners[i] = tcpLn
		addrs[i] = tcpLn.Addr().String()
		tcpLn.Close() // free the port; Node.ListenAndServe rebinds it below
	}

	chainNodes := make([]ChainNode, 3)
	for i, a := range addrs {
		chainNodes[i] = ChainNode{Addr: a}
	}

	cfg := DefaultConfig()
	cfg.OperationMode = mode
	cfg.ConnectionPoolSize = 2
	cfg.ConnectionSleepTime = 20 * time.Millisecond

	nodes := make([]*Node, 3)
	ctx, cancel := context.WithCancel(context.Background())

	for i := range nodes {
		chain, err := NewChain(chainNodes, i)
		if err != nil {
			t.Fatalf("NewChain() error = %v", err)
		}
		nodes[i] = NewNode(chain, cfg)
		go nodes[i].ListenAndServe(ctx, addrs[i])
	}

	// Listeners are started in index order tail-first isn't required,
	// but give the OS a moment to have every Accept loop live before
	// Connect starts dialing.
	time.Sleep(50 * time.Millisecond)

	for i := len(nodes) - 1; i >= 0; i-- {
		if err := nodes[i].Connect(ctx); err != nil {
			t.Fatalf("node %d Connect() error = %v", i, err)
		}
	}

	t.Cleanup(cancel)
	return nodes
}

// TestChainWriteAndStrongRead is S4: write at head, strong read from
// tail observes the committed value, strong read from head observes the
// same value. The head forwards synchronously and raises its own clean
// pointer before handleWrite returns, so its read is not a dirty one.
func TestChainWriteAndStrongRead(t *testing.T) {
	nodes := startChain(t, Craq)
	head, tail := nodes[0], nodes[2]

	v, err := head.handleWrite(domain.NewObject([]byte("v1")))
	if err != nil {
		t.Fatalf("head write error = %v", err)
	}
	if v != 0 {
		t.Fatalf("first write version = %d, want 0", v)
	}

	deadline := time.Now().Add(2 * time.Second)
	for tail.store.LatestCleanVersion() < 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	obj, err := tail.handleRead(domain.Strong, 0)
	if err != nil {
		t.Fatalf("tail read error = %v", err)
	}
	if string(obj.Value) != "v1" || obj.IsDirty() {
		t.Errorf("tail Strong read = %q dirty=%v, want v1 dirty=false", obj.Value, obj.IsDirty())
	}

	headObj, err := head.handleRead(domain.Strong, 0)
	if err != nil {
		t.Fatalf("head read error = %v", err)
	}
	if string(headObj.Value) != "v1" {
		t.Errorf("head Strong read value = %q, want v1", headObj.Value)
	}
}

// TestChainTestAndSetLinearisability is S5: a successful test_and_set
// advances the version; a concurrent one observing the same (now
// stale) expected version is rejected.
func TestChainTestAndSetLinearisability(t *testing.T) {
	nodes := startChain(t, Craq)
	head := nodes[0]

	v0, err := head.handleTestAndSet(domain.NewObject([]byte("v2")), domain.NoVersion)
	if err != nil {
		t.Fatalf("first test_and_set error = %v", err)
	}
	if v0 != 0 {
		t.Fatalf("first test_and_set version = %d, want 0", v0)
	}

	v1, err := head.handleTestAndSet(domain.NewObject([]byte("v2b")), 0)
	if err != nil {
		t.Fatalf("second test_and_set error = %v", err)
	}
	if v1 != 1 {
		t.Fatalf("second test_and_set version = %d, want 1", v1)
	}

	v2, err := head.handleTestAndSet(domain.NewObject([]byte("v2c")), 0)
	if err != nil {
		t.Fatalf("third test_and_set error = %v", err)
	}
	if v2 != domain.NoVersion {
		t.Errorf("test_and_set with stale expected version = %d, want %d", v2, domain.NoVersion)
	}
}

// TestCrModeRestrictsReadsToTail is S6.
func TestCrModeRestrictsReadsToTail(t *testing.T) {
	nodes := startChain(t, Cr)
	mid, tail := nodes[1], nodes[2]

	if _, err := mid.handleRead(domain.Strong, 0); err != domain.ErrReadFromNonTail {
		t.Errorf("middle node read in Cr mode error = %v, want ErrReadFromNonTail", err)
	}
	if _, err := tail.handleRead(domain.Strong, 0); err != nil {
		t.Errorf("tail read in Cr mode error = %v, want nil", err)
	}
}
