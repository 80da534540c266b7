package craq

import (
	"context"
	"log"
	"net"
	"net/rpc"
	"os"
	"sync/atomic"

	"github.com/artillery-go/artillery/internal/domain"
	"golang.org/x/sync/errgroup"
)

// wireState tracks the "connecting -> ready" transition the design
// notes call for in place of duplicating the chain-wiring retry logic
// inline: a non-tail node rejects write, write_versioned and read
// requests while connecting, the way requireWired below enforces.
type wireState int32

const (
	stateConnecting wireState = iota
	stateReady
)

// Node is the per-node CRAQ server (C6): object versions, clean/dirty
// pointers, connection pools to successor and tail, and the RPC
// handlers in service.go.
type Node struct {
	chain  *Chain
	config Config
	store  *objectStore

	tailPool      *Pool
	successorPool *Pool

	service  *Service
	server   *rpc.Server
	listener net.Listener
	log      *log.Logger

	wired wireState
}

// NewNode constructs a node bound to chain and config. Pools are wired
// separately by Connect, since dialing neighbors can block for a long
// time while the rest of the chain starts up.
func NewNode(chain *Chain, config Config) *Node {
	n := &Node{
		chain:  chain,
		config: config,
		store:  newObjectStore(),
		log:    log.New(os.Stderr, "[craq] ", log.LstdFlags),
		wired:  stateConnecting,
	}
	n.service = &Service{node: n}
	return n
}

func (n *Node) requireWired() error {
	if n.chain.IsTail() {
		return nil // the tail needs no outgoing pools
	}
	if wireState(atomic.LoadInt32((*int32)(&n.wired))) != stateReady {
		return domain.ErrChainNotWired
	}
	return nil
}

// Connect opens the tail and successor connection pools, aliasing the
// successor pool to the tail pool when this node sits immediately
// before the tail (node.rs::connect). It blocks until both pools (or
// the single aliased one) are ready; dialing retries forever on
// failure per spec.md §4.6.
func (n *Node) Connect(ctx context.Context) error {
	if n.chain.IsTail() {
		atomic.StoreInt32((*int32)(&n.wired), int32(stateReady))
		return nil
	}

	g, _ := errgroup.WithContext(ctx)

	tail, _ := n.chain.GetTail()
	g.Go(func() error {
		pool, err := NewPool(tail.Addr, n.config.ConnectionPoolSize, n.config.ConnectionSleepTime, "tail")
		if err != nil {
			return err
		}
		n.tailPool = pool
		return nil
	})

	if n.chain.IsNodeBeforeTail() {
		if err := g.Wait(); err != nil {
			return err
		}
		n.successorPool = n.tailPool
		atomic.StoreInt32((*int32)(&n.wired), int32(stateReady))
		n.log.Printf("node %d: connected to tail at %s (node before tail)", n.chain.GetIndex(), tail.Addr)
		return nil
	}

	successor, _ := n.chain.GetSuccessor()
	g.Go(func() error {
		pool, err := NewPool(successor.Addr, n.config.ConnectionPoolSize, n.config.ConnectionSleepTime, "successor")
		if err != nil {
			return err
		}
		n.successorPool = pool
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	atomic.StoreInt32((*int32)(&n.wired), int32(stateReady))
	n.log.Printf("node %d: connected to tail at %s and successor at %s", n.chain.GetIndex(), tail.Addr, successor.Addr)
	return nil
}

// ListenAndServe binds a TCP listener at addr and serves the CRAQ RPC
// surface until ctx is cancelled.
func (n *Node) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	n.listener = ln

	n.server = rpc.NewServer()
	if err := n.server.RegisterName(ServiceName, n.service); err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	// ProtocolWorkerSize bounds how many connections this node serves
	// concurrently (spec.md §5: "multi-threaded RPC server, worker pool
	// sized by protocol_worker_size"). Serving is per-connection
	// (net/rpc.ServeCodec loops until the connection closes), so the
	// semaphore admits at most that many live connections at once;
	// excess dials block in Accept's backlog rather than spawning
	// unbounded goroutines.
	workers := n.config.ProtocolWorkerSize
	if workers <= 0 {
		workers = 1
	}
	sem := make(chan struct{}, workers)

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				n.log.Printf("accept error: %v", err)
				return err
			}
		}
		sem <- struct{}{}
		go func() {
			defer func() { <-sem }()
			n.server.ServeCodec(NewServerCodec(conn))
		}()
	}
}

// forwardWriteVersioned sends write_versioned downstream using a
// pooled successor connection (aliased to the tail pool if this node
// sits just before the tail).
func (n *Node) forwardWriteVersioned(obj domain.Object, version int64) error {
	client, err := n.successorPool.Acquire(0)
	if err != nil {
		return err
	}
	defer n.successorPool.Release(client)

	var reply WriteVersionedReply
	return client.Call(ServiceName+".WriteVersioned", &WriteVersionedArgs{Obj: obj, Version: version}, &reply)
}

// queryTailVersion issues a version_query to the tail via the pooled
// tail connection.
func (n *Node) queryTailVersion() (int64, error) {
	client, err := n.tailPool.Acquire(0)
	if err != nil {
		return 0, err
	}
	defer n.tailPool.Release(client)

	var reply VersionQueryReply
	if err := client.Call(ServiceName+".VersionQuery", &VersionQueryArgs{}, &reply); err != nil {
		return 0, err
	}
	return reply.Version, nil
}

// Chain exposes the node's chain description.
func (n *Node) Chain() *Chain { return n.chain }
