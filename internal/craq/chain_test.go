package craq

import "testing"

func TestNewChainRejectsOutOfRangeIndex(t *testing.T) {
	nodes := []ChainNode{{Addr: "a"}, {Addr: "b"}}
	if _, err := NewChain(nodes, 2); err == nil {
		t.Error("NewChain() with index == len(nodes) should fail")
	}
	if _, err := NewChain(nodes, -1); err == nil {
		t.Error("NewChain() with negative index should fail")
	}
}

func TestChainHeadTailSuccessor(t *testing.T) {
	nodes := []ChainNode{{Addr: "h"}, {Addr: "m"}, {Addr: "t"}}

	head, err := NewChain(nodes, 0)
	if err != nil {
		t.Fatalf("NewChain() error = %v", err)
	}
	if !head.IsHead() || head.IsTail() {
		t.Errorf("head misclassified: isHead=%v isTail=%v", head.IsHead(), head.IsTail())
	}
	succ, ok := head.GetSuccessor()
	if !ok || succ.Addr != "m" {
		t.Errorf("GetSuccessor() = %v, %v, want m, true", succ, ok)
	}

	mid, _ := NewChain(nodes, 1)
	if !mid.IsNodeBeforeTail() {
		t.Errorf("middle-of-3 node should be the node before the tail")
	}

	tail, _ := NewChain(nodes, 2)
	if !tail.IsTail() || tail.IsHead() {
		t.Errorf("tail misclassified: isHead=%v isTail=%v", tail.IsHead(), tail.IsTail())
	}
	if _, ok := tail.GetSuccessor(); ok {
		t.Errorf("tail should have no successor")
	}
}
