package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure — no infrastructure dependency.

var (
	// Epidemic membership errors
	ErrOrphanNode           = errors.New("orphan node: seed queue exhausted and no live members")
	ErrClusterMessageDecode = errors.New("malformed epidemic datagram")
	ErrChannelClosed        = errors.New("intra-process channel closed")
	ErrBadSocketAddr        = errors.New("invalid socket address")
	ErrPingIntervalOverflow = errors.New("ping interval too large to represent")

	// CRAQ errors
	ErrChainNotWired   = errors.New("craq: chain connections are not established yet")
	ErrNotHead         = errors.New("craq: operation requires the head of the chain")
	ErrNotTail         = errors.New("craq: operation requires the tail of the chain")
	ErrReadFromNonTail = errors.New("craq: cannot read from a non-tail node in CR mode")
	ErrEmptyObject     = errors.New("craq: returning an empty object")
	ErrPoolExhausted   = errors.New("craq: connection pool wait timed out")
	ErrIndexOutOfRange = errors.New("craq: node index must be less than chain size")
)
