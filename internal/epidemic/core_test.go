package epidemic

import (
	"context"
	"testing"
	"time"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/artillery-go/artillery/internal/wire"
	"github.com/google/uuid"
)

func buildTestPingEnvelope(sender uuid.UUID, clusterKey []byte) ([]byte, error) {
	env := wire.Envelope{
		Sender:     keyToBytes(sender),
		ClusterKey: clusterKey,
		Request:    wire.Request{Kind: wire.KindPing},
	}
	return wire.Encode(env)
}

func newTestCore(t *testing.T) (*Core, Config) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PingTimeout = 150 * time.Millisecond

	c, err := NewCore(uuid.New(), cfg)
	if err != nil {
		t.Fatalf("NewCore() error = %v", err)
	}
	return c, cfg
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.PingInterval != time.Second {
		t.Errorf("PingInterval = %v, want 1s", cfg.PingInterval)
	}
	if cfg.PingTimeout != 3*time.Second {
		t.Errorf("PingTimeout = %v, want 3s", cfg.PingTimeout)
	}
	if cfg.PingRequestHostCount != 3 {
		t.Errorf("PingRequestHostCount = %d, want 3", cfg.PingRequestHostCount)
	}
	if string(cfg.ClusterKey) != "default" {
		t.Errorf("ClusterKey = %q, want \"default\"", cfg.ClusterKey)
	}
}

func TestConfigValidateRejectsNonPositivePingInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingInterval = 0
	if err := cfg.Validate(); err != domain.ErrPingIntervalOverflow {
		t.Errorf("Validate() error = %v, want %v", err, domain.ErrPingIntervalOverflow)
	}

	cfg.PingInterval = -time.Second
	if err := cfg.Validate(); err != domain.ErrPingIntervalOverflow {
		t.Errorf("Validate() error = %v, want %v", err, domain.ErrPingIntervalOverflow)
	}
}

func TestConfigValidateRejectsOverflowingPingInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingInterval = MaxPingInterval + time.Nanosecond
	if err := cfg.Validate(); err != domain.ErrPingIntervalOverflow {
		t.Errorf("Validate() error = %v, want %v", err, domain.ErrPingIntervalOverflow)
	}
}

func TestConfigValidateAcceptsDefaults(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil", err)
	}
}

func TestNewCoreRejectsOverflowingPingInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.PingInterval = -1 * time.Second

	_, err := NewCore(uuid.New(), cfg)
	if err != domain.ErrPingIntervalOverflow {
		t.Fatalf("NewCore() error = %v, want %v", err, domain.ErrPingIntervalOverflow)
	}
}

func TestNewCoreBindsSocket(t *testing.T) {
	c, _ := newTestCore(t)
	defer c.conn.Close()
	if c.LocalAddr().Port == 0 {
		t.Errorf("LocalAddr().Port = 0, want an OS-assigned port")
	}
}

// TestTwoNodesConverge is S1 from spec: two nodes on random loopback
// ports, B seeded with A, both converge to a 2-member view.
func TestTwoNodesConverge(t *testing.T) {
	a, _ := newTestCore(t)
	b, _ := newTestCore(t)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	go a.Run(ctx)
	go b.Run(ctx)

	b.AddSeed(a.LocalAddr().String())

	seenJoinA := waitForEvent(t, a.Events(), MemberJoined, 3*time.Second)
	seenJoinB := waitForEvent(t, b.Events(), MemberJoined, 3*time.Second)

	if !seenJoinA {
		t.Errorf("A never observed MemberJoined")
	}
	if !seenJoinB {
		t.Errorf("B never observed MemberJoined")
	}
}

func waitForEvent(t *testing.T, events <-chan Event, kind EventKind, timeout time.Duration) bool {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if ev.Kind == kind {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestDrainStateChangesBoundsByMTU(t *testing.T) {
	c, _ := newTestCore(t)
	defer c.conn.Close()
	c.config.NetworkMTU = 64 // tiny budget: at most one entry fits

	for i := 0; i < 10; i++ {
		c.stateChanges = append(c.stateChanges, domain.NewStateChange(domain.NewMember(uuid.New(), "h", 0, domain.Alive)))
	}

	out := c.drainStateChanges()
	if len(out) != 1 {
		t.Errorf("drainStateChanges() = %d entries, want 1 under a tiny MTU budget", len(out))
	}
	if len(c.stateChanges) != 0 {
		t.Errorf("drainStateChanges() left %d entries queued, want 0 (dropped, not fragmented)", len(c.stateChanges))
	}
}

func TestClusterKeyMismatchDropsDatagramSilently(t *testing.T) {
	c, _ := newTestCore(t)
	defer c.conn.Close()

	foreign, err := NewCore(uuid.New(), func() Config {
		cfg := DefaultConfig()
		cfg.ListenAddr = "127.0.0.1:0"
		cfg.ClusterKey = []byte("other-cluster")
		return cfg
	}())
	if err != nil {
		t.Fatalf("NewCore() error = %v", err)
	}
	defer foreign.conn.Close()

	if len(c.list.AvailableNodes()) != 1 {
		t.Fatalf("precondition: expected only self in member list")
	}

	env, err := buildTestPingEnvelope(foreign.selfKey, foreign.config.ClusterKey)
	if err != nil {
		t.Fatalf("buildTestPingEnvelope() error = %v", err)
	}
	if err := c.onDatagram(inboundPacket{data: env, from: foreign.LocalAddr()}); err != nil {
		t.Fatalf("onDatagram() error = %v", err)
	}
	if len(c.list.AvailableNodes()) != 1 {
		t.Errorf("a cluster_key mismatch must be dropped silently without changing membership")
	}
}
