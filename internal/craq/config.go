// Package craq implements the Chain Replication with Apportioned
// Queries object store: the static chain description (CraqChain), the
// per-node server (CraqNode) with its versioned object map and
// connection pools, and the RPC surface both the chain and external
// clients (internal/craq/client) speak.
package craq

import "time"

// OperationMode selects whether reads are permitted from any node
// (Craq) or only from the tail (Cr).
type OperationMode int

const (
	// Craq is the default: any node may serve reads.
	Craq OperationMode = iota
	// Cr restricts reads to the tail only.
	Cr
)

func (m OperationMode) String() string {
	if m == Cr {
		return "cr"
	}
	return "craq"
}

// Config holds the CRAQ tunables named in spec.md §6.
type Config struct {
	// FallbackReplicationPort is carried as configuration only: chain
	// node addresses are bound and dialed exactly as given, and an
	// address without a port is not completed with this value.
	FallbackReplicationPort int
	// OperationMode is Cr or Craq.
	OperationMode OperationMode
	// ConnectionSleepTime is the fixed retry sleep while a connection
	// pool's initial dial keeps failing.
	ConnectionSleepTime time.Duration
	// ConnectionPoolSize bounds the successor/tail connection pools.
	ConnectionPoolSize int
	// ProtocolWorkerSize sizes the RPC server's worker pool.
	ProtocolWorkerSize int
}

// DefaultConfig returns the defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		FallbackReplicationPort: 22991,
		OperationMode:           Craq,
		ConnectionSleepTime:     1000 * time.Millisecond,
		ConnectionPoolSize:      50,
		ProtocolWorkerSize:      100,
	}
}
