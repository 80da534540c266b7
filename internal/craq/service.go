package craq

import (
	"context"
	"fmt"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/artillery-go/artillery/internal/observability"
)

// ServiceName is the net/rpc registration name other nodes and clients
// dial against (e.g. "CraqService.Write").
const ServiceName = "CraqService"

// Args/Reply pairs for the RPC surface of spec.md §6. Every method on
// Service below matches the net/rpc shape: func(*Args, *Reply) error.

type WriteArgs struct{ Obj domain.Object }
type WriteReply struct{ Version int64 }

type WriteVersionedArgs struct {
	Obj     domain.Object
	Version int64
}
type WriteVersionedReply struct{}

type TestAndSetArgs struct {
	Obj      domain.Object
	Expected int64
}
type TestAndSetReply struct{ Version int64 }

type VersionQueryArgs struct{}
type VersionQueryReply struct{ Version int64 }

type ReadArgs struct {
	Mode  domain.ConsistencyModel
	Bound int64
}
type ReadReply struct{ Obj domain.Object }

// Service is the net/rpc-registered type backing CraqNode's handlers
// (spec.md §4.6 "Operations"). It holds no state of its own beyond a
// reference back to the owning Node, the way the source's
// CraqProtoServer borrows from the node it serves.
type Service struct {
	node *Node
}

func (s *Service) Write(args *WriteArgs, reply *WriteReply) error {
	v, err := s.node.handleWrite(args.Obj)
	if err != nil {
		return err
	}
	reply.Version = v
	return nil
}

func (s *Service) WriteVersioned(args *WriteVersionedArgs, reply *WriteVersionedReply) error {
	return s.node.handleWriteVersioned(args.Obj, args.Version)
}

func (s *Service) TestAndSet(args *TestAndSetArgs, reply *TestAndSetReply) error {
	v, err := s.node.handleTestAndSet(args.Obj, args.Expected)
	if err != nil {
		return err
	}
	reply.Version = v
	return nil
}

func (s *Service) VersionQuery(args *VersionQueryArgs, reply *VersionQueryReply) error {
	v, err := s.node.handleVersionQuery()
	if err != nil {
		return err
	}
	reply.Version = v
	return nil
}

func (s *Service) Read(args *ReadArgs, reply *ReadReply) error {
	obj, err := s.node.handleRead(args.Mode, args.Bound)
	if err != nil {
		return err
	}
	reply.Obj = obj
	return nil
}

// handleWrite implements spec.md §4.6 "write(obj) — head only".
func (n *Node) handleWrite(obj domain.Object) (int64, error) {
	if !n.chain.IsHead() {
		return 0, domain.ErrNotHead
	}
	return n.commitAndForward(obj)
}

// handleTestAndSet implements "test_and_set(obj, expected) — head only".
func (n *Node) handleTestAndSet(obj domain.Object, expected int64) (int64, error) {
	if !n.chain.IsHead() {
		return 0, domain.ErrNotHead
	}
	if expected != domain.NoVersion {
		cleanV := n.store.LatestCleanVersion()
		latestV := n.store.LatestVersion()
		if cleanV != expected || latestV != cleanV {
			observability.CraqWrites.WithLabelValues("rejected").Inc()
			return domain.NoVersion, nil
		}
	}
	return n.commitAndForward(obj)
}

// commitAndForward is the shared write/test-and-set tail of spec.md
// §4.6: bump the version, store, forward downstream, then raise the
// clean pointer and GC.
func (n *Node) commitAndForward(obj domain.Object) (version int64, err error) {
	span := observability.DefaultTracer.StartSpan(context.Background(), "craq.commit_and_forward", map[string]string{
		"node_addr": n.chain.GetNode().Addr,
	})
	defer func() { observability.DefaultTracer.EndSpan(span, err) }()

	if err := n.requireWired(); err != nil {
		observability.CraqWrites.WithLabelValues("error").Inc()
		return 0, err
	}

	newVersion := n.store.bumpVersion()
	n.store.put(newVersion, obj)

	if !n.chain.IsTail() {
		if err := n.forwardWriteVersioned(obj, newVersion); err != nil {
			observability.CraqWrites.WithLabelValues("error").Inc()
			return 0, fmt.Errorf("craq: forward to successor: %w", err)
		}
	}

	if n.store.raiseCleanVersionTo(newVersion) {
		n.store.gc(n.store.LatestCleanVersion())
		observability.CraqLatestCleanVersion.WithLabelValues(n.chain.GetNode().Addr).Set(float64(newVersion))
	}
	observability.CraqWrites.WithLabelValues("committed").Inc()
	return newVersion, nil
}

// handleWriteVersioned implements "write_versioned(obj, v) — any
// non-head", including the explicit "forward then raise clean" order
// spec.md §9 keeps from the source.
func (n *Node) handleWriteVersioned(obj domain.Object, v int64) error {
	if err := n.requireWired(); err != nil {
		return err
	}
	n.store.put(v, obj)
	n.store.raiseVersionTo(v)

	if !n.chain.IsTail() {
		if err := n.forwardWriteVersioned(obj, v); err != nil {
			return fmt.Errorf("craq: forward to successor: %w", err)
		}
	}

	if n.store.raiseCleanVersionTo(v) {
		n.store.gc(n.store.LatestCleanVersion())
		observability.CraqLatestCleanVersion.WithLabelValues(n.chain.GetNode().Addr).Set(float64(v))
	}
	return nil
}

// handleVersionQuery implements "version_query() — tail only".
func (n *Node) handleVersionQuery() (int64, error) {
	if !n.chain.IsTail() {
		return 0, domain.ErrNotTail
	}
	return n.store.LatestCleanVersion(), nil
}

// handleRead implements the read-mode table of spec.md §4.6.
func (n *Node) handleRead(mode domain.ConsistencyModel, bound int64) (obj domain.Object, err error) {
	span := observability.DefaultTracer.StartSpan(context.Background(), "craq.read", map[string]string{
		"node_addr": n.chain.GetNode().Addr,
		"mode":      mode.String(),
	})
	defer func() { observability.DefaultTracer.EndSpan(span, err) }()

	if n.config.OperationMode == Cr && !n.chain.IsTail() {
		return domain.Object{}, domain.ErrReadFromNonTail
	}
	if err := n.requireWired(); err != nil {
		return domain.Object{}, err
	}
	observability.CraqReads.WithLabelValues(mode.String()).Inc()

	switch mode {
	case domain.Strong:
		return n.readStrong()
	case domain.Eventual:
		obj, _ := n.store.get(n.store.LatestVersion())
		return obj, nil
	case domain.EventualMaxBounded:
		clean := n.store.LatestCleanVersion()
		latest := n.store.LatestVersion()
		delta := bound
		if spread := latest - clean; spread < delta {
			delta = spread
		}
		obj, _ := n.store.get(clean + delta)
		return obj, nil
	case domain.Debug:
		if n.chain.IsTail() {
			return domain.Empty(), nil
		}
		v, err := n.queryTailVersion()
		if err != nil {
			return domain.Object{}, err
		}
		obj, _ := n.store.get(v)
		return obj.WithDirty(true), nil
	default:
		return domain.Object{}, fmt.Errorf("craq: unknown consistency model %v", mode)
	}
}

func (n *Node) readStrong() (domain.Object, error) {
	if n.chain.IsTail() {
		obj, _ := n.store.get(n.store.LatestVersion())
		return obj.WithDirty(false), nil
	}

	latest := n.store.LatestVersion()
	clean := n.store.LatestCleanVersion()
	if latest > clean {
		tailVersion, err := n.queryTailVersion()
		if err != nil {
			return domain.Object{}, err
		}
		obj, ok := n.store.get(tailVersion)
		if !ok {
			// Already GC'd upstream of the clean watermark; fall back.
			obj, _ = n.store.get(clean)
		}
		return obj.WithDirty(true), nil
	}
	obj, _ := n.store.get(clean)
	return obj.WithDirty(false), nil
}
