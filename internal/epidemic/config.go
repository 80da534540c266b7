package epidemic

import (
	"time"

	"github.com/artillery-go/artillery/internal/domain"
)

// MaxPingInterval bounds the configured probe period. A PingInterval
// beyond this is rejected by Validate: either a misconfiguration, or
// the telltale sign of a PingIntervalMS field large enough to have
// silently overflowed int64 nanoseconds when converted to a
// time.Duration (spec.md §7 "NumericCast").
const MaxPingInterval = 24 * time.Hour

// Config controls the epidemic protocol parameters (spec.md §6 "Epidemic
// config").
type Config struct {
	// ClusterKey is compared for byte-equality only; a receiver with a
	// differing key drops the datagram silently. Never cryptographically
	// validated (spec.md §1 Non-goals).
	ClusterKey []byte
	// ListenAddr is the UDP bind address, e.g. "127.0.0.1:0".
	ListenAddr string
	// PingInterval is the protocol period between probe cycles.
	PingInterval time.Duration
	// PingTimeout bounds how long a probe (direct or indirect) waits
	// for an ack before the target is considered unresponsive.
	PingTimeout time.Duration
	// NetworkMTU bounds how many piggy-backed state changes fit on one
	// datagram; entries beyond this are dropped from the outgoing
	// envelope, never fragmented across datagrams.
	NetworkMTU int
	// PingRequestHostCount is k, the number of peers asked to
	// indirect-probe a suspect target.
	PingRequestHostCount int
}

// Validate rejects a PingInterval that time.NewTicker cannot accept
// (zero or negative) or that exceeds MaxPingInterval — the latter check
// is what actually catches overflow, since a corrupted or absurd
// millisecond-based config value multiplied into a time.Duration wraps
// around int64 rather than erroring, and the wrapped result is either
// negative or implausibly large.
func (c Config) Validate() error {
	if c.PingInterval <= 0 || c.PingInterval > MaxPingInterval {
		return domain.ErrPingIntervalOverflow
	}
	return nil
}

// DefaultConfig returns the defaults named in spec.md §6.
func DefaultConfig() Config {
	return Config{
		ClusterKey:           []byte("default"),
		ListenAddr:           ":0",
		PingInterval:         1 * time.Second,
		PingTimeout:          3 * time.Second,
		NetworkMTU:           65536,
		PingRequestHostCount: 3,
	}
}
