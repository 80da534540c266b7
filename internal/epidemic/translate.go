package epidemic

import (
	"time"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/artillery-go/artillery/internal/wire"
	"github.com/google/uuid"
)

func stateToByte(s domain.MemberState) byte {
	switch s {
	case domain.Alive:
		return 'a'
	case domain.Suspect:
		return 's'
	case domain.Down:
		return 'd'
	case domain.Left:
		return 'l'
	default:
		return 'a'
	}
}

func byteToState(b byte) domain.MemberState {
	switch b {
	case 'a':
		return domain.Alive
	case 's':
		return domain.Suspect
	case 'd':
		return domain.Down
	case 'l':
		return domain.Left
	default:
		return domain.Alive
	}
}

// toWireMember converts a domain.Member into its bit-exact wire shape
// (spec.md §6 "Member wire shape").
func toWireMember(m domain.Member) wire.MemberWire {
	mw := wire.MemberWire{
		HostKey:           m.HostKey,
		IncarnationNumber: m.IncarnationNumber,
		State:             stateToByte(m.MemberState),
		LastStateChangeMS: m.LastStateChange.UnixMilli(),
	}
	if m.IsRemote() {
		mw.HasRemoteHost = true
		mw.RemoteHost = m.Addr()
	}
	return mw
}

// fromWireMember reverses toWireMember.
func fromWireMember(mw wire.MemberWire) domain.Member {
	m := domain.Member{
		HostKey:           mw.HostKey,
		IncarnationNumber: mw.IncarnationNumber,
		MemberState:       byteToState(mw.State),
		LastStateChange:   time.UnixMilli(mw.LastStateChangeMS),
	}
	if mw.HasRemoteHost {
		host := mw.RemoteHost
		m.RemoteHost = &host
	}
	return m
}

func toWireMembers(ms []domain.Member) []wire.MemberWire {
	out := make([]wire.MemberWire, 0, len(ms))
	for _, m := range ms {
		out = append(out, toWireMember(m))
	}
	return out
}

func fromWireStateChanges(ws []wire.MemberWire) []domain.StateChange {
	out := make([]domain.StateChange, 0, len(ws))
	for _, w := range ws {
		out = append(out, domain.NewStateChange(fromWireMember(w)))
	}
	return out
}

func keyToBytes(k uuid.UUID) [16]byte {
	var b [16]byte
	copy(b[:], k[:])
	return b
}
