package cluster

import (
	"context"
	"testing"
	"time"

	"github.com/artillery-go/artillery/internal/epidemic"
	"github.com/google/uuid"
)

func newTestFacade(t *testing.T) *Facade {
	t.Helper()
	cfg := epidemic.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.PingInterval = 20 * time.Millisecond
	cfg.PingTimeout = 60 * time.Millisecond

	f, err := New(context.Background(), uuid.New(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(f.Close)
	return f
}

func TestFacadeSnapshotStartsEmpty(t *testing.T) {
	f := newTestFacade(t)
	if got := f.Snapshot(); len(got) != 0 {
		t.Errorf("Snapshot() = %v, want empty", got)
	}
}

func TestFacadeTwoNodesDiscoverEachOther(t *testing.T) {
	a := newTestFacade(t)
	b := newTestFacade(t)

	a.AddSeedNode(b.LocalAddr())

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-a.Events():
			if len(a.Snapshot()) >= 2 {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for node a to observe node b; snapshot=%v", a.Snapshot())
		}
	}
}

func TestFacadeSnapshotDoesNotStealEvents(t *testing.T) {
	// Snapshot() must read the cached value, not drain Events(); a
	// consumer relying on Events() for every delta must still see them
	// all even when something else polls Snapshot() concurrently.
	a := newTestFacade(t)
	b := newTestFacade(t)

	a.AddSeedNode(b.LocalAddr())

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				a.Snapshot()
				time.Sleep(time.Millisecond)
			}
		}
	}()

	select {
	case ev := <-a.Events():
		if ev.Member.HostKey == uuid.Nil {
			t.Errorf("event member has nil host key")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for an event while Snapshot() was polled concurrently")
	}
}

func TestFacadeCloseStopsReactor(t *testing.T) {
	cfg := epidemic.DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"

	f, err := New(context.Background(), uuid.New(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	f.Close()

	select {
	case _, ok := <-f.Events():
		if ok {
			t.Errorf("Events() yielded a value after Close()")
		}
	case <-time.After(time.Second):
		t.Fatalf("Events() did not close after Close()")
	}
}
