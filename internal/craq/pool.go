package craq

import (
	"fmt"
	"net"
	"net/rpc"
	"time"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/artillery-go/artillery/internal/observability"
)

// Pool is a bounded FIFO of reusable synchronous RPC stubs to one
// remote chain node (spec.md §3 "Connection pools"). It is the Go
// analogue of the source's crossbeam_channel sender/receiver pair
// (node.rs::create_conn_pool): Acquire blocks for a free stub, Release
// returns it.
type Pool struct {
	addr   string
	target string // "successor" or "tail", for pool-exhaustion metrics
	ch     chan *rpc.Client
}

// NewPool dials addr up to size times, retrying forever on the initial
// dial with ConnectionSleepTime between attempts — "startup is not
// finalised until the chain is wired" (spec.md §4.6). target labels
// this pool ("successor" or "tail") for observability.
func NewPool(addr string, size int, retrySleep time.Duration, target string) (*Pool, error) {
	p := &Pool{addr: addr, target: target, ch: make(chan *rpc.Client, size)}

	first, err := dialWithRetry(addr, retrySleep)
	if err != nil {
		return nil, err
	}
	p.ch <- first

	for i := 1; i < size; i++ {
		c, err := dial(addr)
		if err != nil {
			// Best-effort fill: a partially-filled pool still works,
			// just with less concurrency headroom.
			break
		}
		p.ch <- c
	}
	return p, nil
}

func dial(addr string) (*rpc.Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return rpc.NewClientWithCodec(NewClientCodec(conn)), nil
}

func dialWithRetry(addr string, sleep time.Duration) (*rpc.Client, error) {
	for {
		c, err := dial(addr)
		if err == nil {
			return c, nil
		}
		time.Sleep(sleep)
	}
}

// Acquire blocks until a stub is available or timeout elapses.
// Implementers SHOULD cap this wait (spec.md §4.6 Failure semantics);
// a zero timeout blocks forever, matching the source's unbounded wait.
func (p *Pool) Acquire(timeout time.Duration) (*rpc.Client, error) {
	if timeout <= 0 {
		return <-p.ch, nil
	}
	select {
	case c := <-p.ch:
		return c, nil
	case <-time.After(timeout):
		observability.CraqPoolExhaustions.WithLabelValues(p.target).Inc()
		return nil, fmt.Errorf("craq: acquire from pool to %s: %w", p.addr, domain.ErrPoolExhausted)
	}
}

// Release returns a stub to the pool for reuse.
func (p *Pool) Release(c *rpc.Client) {
	select {
	case p.ch <- c:
	default:
		c.Close() // pool is at capacity (shouldn't happen with balanced acquire/release)
	}
}
