// Package domain contains pure business types with ZERO infrastructure imports.
// This is the innermost ring of clean architecture — it depends on nothing.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MemberState is the SWIM liveness state of a Member.
type MemberState int

const (
	// Alive is the default state for a freshly discovered or healthy member.
	Alive MemberState = iota
	// Suspect means a direct probe went unanswered within the ping
	// timeout; indirect probes are sent once a member becomes Suspect.
	Suspect
	// Down means a Suspect member stayed unreachable past the timeout.
	Down
	// Left is terminal: the member announced its own departure.
	Left
)

func (s MemberState) String() string {
	switch s {
	case Alive:
		return "alive"
	case Suspect:
		return "suspect"
	case Down:
		return "down"
	case Left:
		return "left"
	default:
		return "unknown"
	}
}

// SuspectTimeout is how long a member may remain Suspect before a node
// unilaterally declares it Down (spec.md §4.2).
const SuspectTimeout = 3 * time.Second

// Member is an immutable-ish record describing one cluster participant.
// HostKey is a 128-bit identity generated once per process and persisted
// by the host (internal/config), never by the membership layer itself.
type Member struct {
	HostKey            uuid.UUID
	RemoteHost         *string // nil ⇒ "this is me"
	IncarnationNumber  uint64
	MemberState        MemberState
	LastStateChange    time.Time
}

// NewMember constructs a remote member record.
func NewMember(hostKey uuid.UUID, remoteHost string, incarnation uint64, state MemberState) Member {
	return Member{
		HostKey:           hostKey,
		RemoteHost:        &remoteHost,
		IncarnationNumber: incarnation,
		MemberState:       state,
		LastStateChange:   time.Now(),
	}
}

// CurrentMember constructs the "self" record for a fresh node: Alive,
// incarnation zero, no remote address.
func CurrentMember(hostKey uuid.UUID) Member {
	return Member{
		HostKey:           hostKey,
		RemoteHost:        nil,
		IncarnationNumber: 0,
		MemberState:       Alive,
		LastStateChange:   time.Now(),
	}
}

// IsRemote reports whether this record describes another process.
func (m Member) IsRemote() bool { return m.RemoteHost != nil }

// IsCurrent reports whether this record describes "me".
func (m Member) IsCurrent() bool { return m.RemoteHost == nil }

// Addr returns the remote address, or "" for the current member.
func (m Member) Addr() string {
	if m.RemoteHost == nil {
		return ""
	}
	return *m.RemoteHost
}

// StateChangeOlderThan reports whether the last transition happened
// longer than d ago.
func (m Member) StateChangeOlderThan(d time.Duration) bool {
	return time.Since(m.LastStateChange) > d
}

// SetState transitions the member, touching LastStateChange only if the
// state actually changes (spec.md §4.1 Member.set_state semantics).
func (m *Member) SetState(state MemberState) {
	if m.MemberState != state {
		m.MemberState = state
		m.LastStateChange = time.Now()
	}
}

// WithHost returns a copy of m bound to the given remote address.
func (m Member) WithHost(addr string) Member {
	cp := m
	cp.RemoteHost = &addr
	return cp
}

// Reincarnate bumps the incarnation number in place. Only a member
// raises its own incarnation, except peers raise theirs when they
// overhear a claim against themselves (spec.md §3 Member invariants).
func (m *Member) Reincarnate() {
	m.IncarnationNumber++
}

func (m Member) String() string {
	host := "(current)"
	if m.RemoteHost != nil {
		host = *m.RemoteHost
	}
	return fmt.Sprintf("Member{host=%s incarnation=%d state=%s addr=%s}",
		m.HostKey, m.IncarnationNumber, m.MemberState, host)
}

// StateChange wraps one Member as the piggy-back delta unit gossiped
// alongside regular probe/ack traffic.
type StateChange struct {
	Member Member
}

// NewStateChange wraps member as a StateChange.
func NewStateChange(member Member) StateChange {
	return StateChange{Member: member}
}

// MostUpToDateMember resolves two competing records for the same
// HostKey using the merge table in spec.md §4.1; ties beyond the table
// keep rhs. For Alive/Suspect pairs, and for a Down or Left record
// against an Alive or Suspect one, the winning state and incarnation do
// not depend on argument order. Two Down records, or two Left records,
// always resolve to rhs whatever their incarnations, so for those the
// result does depend on argument order.
func MostUpToDateMember(lhs, rhs Member) Member {
	lhsOverrides := false

	switch {
	case lhs.MemberState == Alive && rhs.MemberState == Suspect:
		lhsOverrides = lhs.IncarnationNumber > rhs.IncarnationNumber
	case lhs.MemberState == Alive && rhs.MemberState == Alive:
		lhsOverrides = lhs.IncarnationNumber > rhs.IncarnationNumber
	case lhs.MemberState == Suspect && rhs.MemberState == Suspect:
		lhsOverrides = lhs.IncarnationNumber > rhs.IncarnationNumber
	case lhs.MemberState == Suspect && rhs.MemberState == Alive:
		lhsOverrides = lhs.IncarnationNumber >= rhs.IncarnationNumber
	case lhs.MemberState == Down && rhs.MemberState == Alive:
		lhsOverrides = true
	case lhs.MemberState == Down && rhs.MemberState == Suspect:
		lhsOverrides = true
	case lhs.MemberState == Left:
		lhsOverrides = true
	}

	if lhsOverrides {
		return lhs
	}
	return rhs
}
