package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func memberOf(state MemberState, incarnation uint64) Member {
	addr := "127.0.0.1:9000"
	return Member{
		HostKey:           uuid.New(),
		RemoteHost:        &addr,
		IncarnationNumber: incarnation,
		MemberState:       state,
		LastStateChange:   time.Now(),
	}
}

func TestMostUpToDateMember(t *testing.T) {
	tests := []struct {
		name     string
		lhs, rhs Member
		wantLHS  bool
	}{
		{"alive beats lower-incarnation suspect", memberOf(Alive, 5), memberOf(Suspect, 3), true},
		{"alive loses to higher-incarnation suspect", memberOf(Alive, 2), memberOf(Suspect, 3), false},
		{"higher incarnation alive wins", memberOf(Alive, 5), memberOf(Alive, 3), true},
		{"equal incarnation alive keeps rhs", memberOf(Alive, 3), memberOf(Alive, 3), false},
		{"suspect with equal incarnation beats alive", memberOf(Suspect, 3), memberOf(Alive, 3), true},
		{"suspect loses to higher incarnation alive", memberOf(Suspect, 2), memberOf(Alive, 3), false},
		{"down always beats alive", memberOf(Down, 0), memberOf(Alive, 99), true},
		{"down always beats suspect", memberOf(Down, 0), memberOf(Suspect, 99), true},
		{"left always wins", memberOf(Left, 0), memberOf(Alive, 99), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MostUpToDateMember(tt.lhs, tt.rhs)
			wantKey := tt.rhs.HostKey
			if tt.wantLHS {
				wantKey = tt.lhs.HostKey
			}
			if got.HostKey != wantKey {
				t.Errorf("MostUpToDateMember() = %v, wantLHS=%v", got, tt.wantLHS)
			}
		})
	}
}

func TestMostUpToDateMemberCommutative(t *testing.T) {
	a := memberOf(Alive, 7)
	b := memberOf(Suspect, 7)
	b.HostKey = a.HostKey

	ab := MostUpToDateMember(a, b)
	ba := MostUpToDateMember(b, a)
	if ab.MemberState != ba.MemberState || ab.IncarnationNumber != ba.IncarnationNumber {
		t.Errorf("merge not commutative up to authority: ab=%v ba=%v", ab, ba)
	}
}

func TestSetStateTouchesTimestampOnlyOnChange(t *testing.T) {
	m := CurrentMember(uuid.New())
	before := m.LastStateChange
	time.Sleep(2 * time.Millisecond)

	m.SetState(Alive) // no-op, already Alive
	if !m.LastStateChange.Equal(before) {
		t.Errorf("SetState to the same state touched the timestamp")
	}

	m.SetState(Suspect)
	if m.LastStateChange.Equal(before) {
		t.Errorf("SetState to a new state did not touch the timestamp")
	}
}

func TestReincarnate(t *testing.T) {
	m := CurrentMember(uuid.New())
	if m.IncarnationNumber != 0 {
		t.Fatalf("fresh member incarnation = %d, want 0", m.IncarnationNumber)
	}
	m.Reincarnate()
	if m.IncarnationNumber != 1 {
		t.Errorf("IncarnationNumber = %d, want 1", m.IncarnationNumber)
	}
}

func TestIsRemoteIsCurrent(t *testing.T) {
	self := CurrentMember(uuid.New())
	if !self.IsCurrent() || self.IsRemote() {
		t.Errorf("self member misclassified: %v", self)
	}
	remote := NewMember(uuid.New(), "10.0.0.1:7946", 0, Alive)
	if !remote.IsRemote() || remote.IsCurrent() {
		t.Errorf("remote member misclassified: %v", remote)
	}
}
