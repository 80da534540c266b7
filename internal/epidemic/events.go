package epidemic

import "github.com/artillery-go/artillery/internal/domain"

// EventKind enumerates the events EpidemicCore emits to the facade.
type EventKind int

const (
	MemberJoined EventKind = iota
	MemberWentUp
	MemberSuspectedDown
	MemberWentDown
	MemberLeft
)

func (k EventKind) String() string {
	switch k {
	case MemberJoined:
		return "MemberJoined"
	case MemberWentUp:
		return "MemberWentUp"
	case MemberSuspectedDown:
		return "MemberSuspectedDown"
	case MemberWentDown:
		return "MemberWentDown"
	case MemberLeft:
		return "MemberLeft"
	default:
		return "Unknown"
	}
}

// Event pairs one membership transition with a fresh snapshot of
// available nodes at the moment it was observed (spec.md §4.3
// "Emitted events").
type Event struct {
	Kind     EventKind
	Member   domain.Member
	Snapshot []domain.Member
}
