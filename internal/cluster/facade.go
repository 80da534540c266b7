// Package cluster provides ClusterFacade (C4), the public handle wired
// on top of EpidemicCore, and an AP-cluster façade that wires that
// membership layer to peer discovery.
package cluster

import (
	"context"
	"sync/atomic"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/artillery-go/artillery/internal/epidemic"
	"github.com/google/uuid"
)

// Facade is the public contract in front of the epidemic reactor
// (spec.md §4.4). It owns a sender channel into the reactor and a
// receiver of (snapshot, event) pairs; nothing else touches the
// reactor's internals.
type Facade struct {
	core   *epidemic.Core
	cancel context.CancelFunc
	done   chan struct{}
	out    chan epidemic.Event
	latest atomic.Value // []domain.Member
}

// New spins up the reactor on its own goroutine and returns a Facade
// plus a handle (via Wait) to await its termination.
func New(ctx context.Context, hostKey uuid.UUID, config epidemic.Config) (*Facade, error) {
	core, err := epidemic.NewCore(hostKey, config)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	f := &Facade{core: core, cancel: cancel, done: make(chan struct{}), out: make(chan epidemic.Event)}
	f.latest.Store([]domain.Member(nil))

	go func() {
		defer close(f.done)
		core.Run(runCtx)
	}()
	go f.pump()

	return f, nil
}

// pump relays core.Events() onto the facade's own output channel,
// caching the most recent snapshot along the way so Snapshot() can
// answer without consuming from the single shared event stream (a
// second reader pulling straight from core.Events() would otherwise
// steal deltas from whichever consumer actually needs them).
func (f *Facade) pump() {
	defer close(f.out)
	for ev := range f.core.Events() {
		f.latest.Store(ev.Snapshot)
		f.out <- ev
	}
}

// Events yields (snapshot, event) pairs in strict causal order relative
// to the reactor.
func (f *Facade) Events() <-chan epidemic.Event { return f.out }

// Snapshot returns the most recently observed available-nodes view,
// without consuming from Events(). Safe to call from any goroutine,
// e.g. a status HTTP handler polling for a dashboard.
func (f *Facade) Snapshot() []domain.Member {
	return f.latest.Load().([]domain.Member)
}

// LocalAddr returns the UDP address the underlying reactor bound.
func (f *Facade) LocalAddr() string { return f.core.LocalAddr().String() }

// AddSeedNode enqueues a seed address; non-blocking.
func (f *Facade) AddSeedNode(addr string) { f.core.AddSeed(addr) }

// LeaveCluster asks the reactor to announce departure (a Left record
// plus one final probing round) and returns once that round has run.
// The reactor keeps running afterwards, until Close or cancellation of
// the context passed to New.
func (f *Facade) LeaveCluster() {
	f.core.LeaveCluster()
}

// Close issues Exit and waits for the reactor to acknowledge
// termination — the Drop-triggered exit of the original design,
// expressed as an explicit method since Go has no destructors. It does
// not cancel the context passed to New: that remains available as an
// independent, harder stop (e.g. a caller-wide shutdown deadline).
func (f *Facade) Close() {
	f.core.Exit()
	<-f.done
	f.cancel()
}

// Wait blocks until the reactor goroutine has returned, whether through
// Close or context cancellation. A socket read error stops only the
// reactor's read loop and does not make it return.
func (f *Facade) Wait() {
	<-f.done
}
