package epidemic

import (
	"math/rand"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/google/uuid"
)

// MemberList owns one node's view of the cluster. It is never shared
// across goroutines: EpidemicCore's single reactor is the only caller,
// so none of its methods take a lock (spec.md §5: "the member list is
// never shared — messages go through the channel").
type MemberList struct {
	selfKey uuid.UUID
	members []domain.Member
	index   map[uuid.UUID]int
	// periodicIndex is the round-robin cursor for next_random_member.
	periodicIndex int
}

// NewMemberList seeds the list with the current node's own record.
func NewMemberList(selfKey uuid.UUID) *MemberList {
	self := domain.CurrentMember(selfKey)
	return &MemberList{
		selfKey: selfKey,
		members: []domain.Member{self},
		index:   map[uuid.UUID]int{selfKey: 0},
	}
}

// Self returns the current node's own member record.
func (l *MemberList) Self() domain.Member {
	return l.members[l.index[l.selfKey]]
}

// AvailableNodes returns every member excluding those in the Left state.
func (l *MemberList) AvailableNodes() []domain.Member {
	out := make([]domain.Member, 0, len(l.members))
	for _, m := range l.members {
		if m.MemberState != domain.Left {
			out = append(out, m)
		}
	}
	return out
}

// NextRandomMember returns the next remote member in round-robin order,
// shuffling the backing sequence whenever the cursor wraps to 0. It
// never returns self, and returns (Member{}, false) if there are no
// remote members at all.
func (l *MemberList) NextRandomMember() (domain.Member, bool) {
	remoteCount := len(l.members) - 1
	if remoteCount <= 0 {
		return domain.Member{}, false
	}

	if l.periodicIndex == 0 {
		l.shuffle()
	}

	for i := 0; i < len(l.members); i++ {
		idx := l.periodicIndex
		l.periodicIndex = (l.periodicIndex + 1) % len(l.members)
		m := l.members[idx]
		if m.IsRemote() {
			return m, true
		}
	}
	return domain.Member{}, false
}

// shuffle randomises member order, fixing up the index and keeping
// periodicIndex valid (self may land anywhere).
func (l *MemberList) shuffle() {
	rand.Shuffle(len(l.members), func(i, j int) {
		l.members[i], l.members[j] = l.members[j], l.members[i]
	})
	for i, m := range l.members {
		l.index[m.HostKey] = i
	}
}

// TimeOutNodes applies the suspect/down sweep of spec.md §4.2.
func (l *MemberList) TimeOutNodes(expired map[string]bool) (newlySuspect, newlyDown []domain.Member) {
	for i := range l.members {
		m := &l.members[i]
		if !m.IsRemote() {
			continue
		}
		switch m.MemberState {
		case domain.Alive:
			if expired[m.Addr()] {
				m.SetState(domain.Suspect)
				newlySuspect = append(newlySuspect, *m)
			}
		case domain.Suspect:
			if m.StateChangeOlderThan(domain.SuspectTimeout) {
				m.SetState(domain.Down)
				newlyDown = append(newlyDown, *m)
			}
		}
	}
	return newlySuspect, newlyDown
}

// MarkNodeAlive transitions the member at addr to Alive if it was not
// already, returning the updated record. Returns (Member{}, false) if
// no member has that address, or it was already Alive.
func (l *MemberList) MarkNodeAlive(addr string) (domain.Member, bool) {
	for i := range l.members {
		m := &l.members[i]
		if m.IsRemote() && m.Addr() == addr {
			if m.MemberState == domain.Alive {
				return domain.Member{}, false
			}
			m.SetState(domain.Alive)
			return *m, true
		}
	}
	return domain.Member{}, false
}

// ApplyStateChanges folds incoming piggy-backed deltas into the list,
// per spec.md §4.2's three-way rule. It returns the subset that
// actually produced a visible change, for event emission.
func (l *MemberList) ApplyStateChanges(changes []domain.StateChange, from string) []domain.Member {
	var changed []domain.Member
	for _, sc := range changes {
		incoming := sc.Member

		if incoming.HostKey == l.selfKey {
			if incoming.MemberState != domain.Alive {
				changed = append(changed, l.reincarnateLocked())
			}
			continue
		}

		if idx, ok := l.index[incoming.HostKey]; ok {
			current := l.members[idx]
			merged := domain.MostUpToDateMember(incoming, current)
			addr := bindAddr(incoming, current, from)
			merged = merged.WithHost(addr)
			if merged.MemberState != current.MemberState || merged.IncarnationNumber != current.IncarnationNumber {
				l.members[idx] = merged
				changed = append(changed, merged)
			}
			continue
		}

		addr := bindAddr(incoming, domain.Member{}, from)
		incoming = incoming.WithHost(addr)
		l.index[incoming.HostKey] = len(l.members)
		l.members = append(l.members, incoming)
		changed = append(changed, incoming)
	}
	return changed
}

// bindAddr resolves the address a merged member should carry: whichever
// of (incoming, current) is non-empty, falling back to the packet's
// observed sender address (spec.md §4.2 step 2).
func bindAddr(incoming, current domain.Member, from string) string {
	if incoming.Addr() != "" {
		return incoming.Addr()
	}
	if current.Addr() != "" {
		return current.Addr()
	}
	return from
}

// HostsForIndirectPing samples up to k Alive remote members, excluding
// target, to use as indirect-probe requesters.
func (l *MemberList) HostsForIndirectPing(k int, target uuid.UUID) []domain.Member {
	candidates := make([]domain.Member, 0, len(l.members))
	for _, m := range l.members {
		if m.IsRemote() && m.MemberState == domain.Alive && m.HostKey != target {
			candidates = append(candidates, m)
		}
	}
	rand.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	return candidates[:k]
}

// ReincarnateSelf bumps this node's own incarnation and (re-)asserts
// Alive, returning the updated self record.
func (l *MemberList) ReincarnateSelf() domain.Member {
	return l.reincarnateLocked()
}

func (l *MemberList) reincarnateLocked() domain.Member {
	idx := l.index[l.selfKey]
	self := &l.members[idx]
	self.Reincarnate()
	self.SetState(domain.Alive)
	return *self
}

// Leave sets self to Left and bumps its incarnation so the terminal
// record still has authority over any stale Alive/Suspect claim.
func (l *MemberList) Leave() domain.Member {
	idx := l.index[l.selfKey]
	self := &l.members[idx]
	self.Reincarnate()
	self.SetState(domain.Left)
	return *self
}

// ByHostKey looks up a member by identity.
func (l *MemberList) ByHostKey(key uuid.UUID) (domain.Member, bool) {
	idx, ok := l.index[key]
	if !ok {
		return domain.Member{}, false
	}
	return l.members[idx], true
}

// ByAddr looks up a remote member by its last-known address.
func (l *MemberList) ByAddr(addr string) (domain.Member, bool) {
	for _, m := range l.members {
		if m.IsRemote() && m.Addr() == addr {
			return m, true
		}
	}
	return domain.Member{}, false
}
