// Package wire is the shared length-framed msgpack codec used by both the
// epidemic UDP datagrams and the CRAQ RPC framing. Keeping one codec for
// both means a single place owns "self-describing, length-delimited
// binary encoding" (spec terms), instead of duplicating framing logic.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/codec"
)

var mh codec.MsgpackHandle

// RequestKind tags the epidemic request union.
type RequestKind byte

const (
	KindPing        RequestKind = 0
	KindAck         RequestKind = 1
	KindPingRequest RequestKind = 2
	KindAckHost     RequestKind = 3
)

// MemberWire is the on-wire shape of a domain.Member: a 16-byte host key,
// an optional remote host, incarnation, a one-byte state code, and a
// millisecond epoch timestamp — bit-exact round trip, per spec.md §6.
type MemberWire struct {
	HostKey           [16]byte
	RemoteHost        string // empty ⇒ "this is me"
	HasRemoteHost     bool
	IncarnationNumber uint64
	State             byte // 'a','s','d','l'
	LastStateChangeMS int64
}

// Request is the tagged union carried by every Envelope.
type Request struct {
	Kind   RequestKind
	Target [16]byte   // PingRequest: who to probe
	Member MemberWire // AckHost: the member whose ack this relays
}

// Envelope is the full epidemic datagram: ArtilleryMessage in the
// original source.
type Envelope struct {
	Sender       [16]byte
	ClusterKey   []byte
	Request      Request
	StateChanges []MemberWire
}

// Encode serialises env with a 4-byte big-endian length prefix so a
// reader on a stream transport (or a bounded-MTU datagram) can frame it
// unambiguously.
func Encode(env Envelope) ([]byte, error) {
	var body bytes.Buffer
	enc := codec.NewEncoder(&body, &mh)
	if err := enc.Encode(env); err != nil {
		return nil, fmt.Errorf("wire: encode envelope: %w", err)
	}

	out := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(out[:4], uint32(body.Len()))
	copy(out[4:], body.Bytes())
	return out, nil
}

// Decode reverses Encode. It also accepts an unframed buffer (no length
// prefix) to tolerate a raw UDP datagram body handed in directly by the
// socket read path.
func Decode(buf []byte) (Envelope, error) {
	var env Envelope
	body := buf
	if len(buf) >= 4 {
		n := binary.BigEndian.Uint32(buf[:4])
		if int(n) == len(buf)-4 {
			body = buf[4:]
		}
	}
	dec := codec.NewDecoder(bytes.NewReader(body), &mh)
	if err := dec.Decode(&env); err != nil {
		return Envelope{}, fmt.Errorf("wire: decode envelope: %w", err)
	}
	return env, nil
}

// WriteFramed writes a msgpack-encoded value to w with a 4-byte
// big-endian length prefix, used by the CRAQ RPC codec.
func WriteFramed(w io.Writer, v interface{}) error {
	var body bytes.Buffer
	enc := codec.NewEncoder(&body, &mh)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("wire: encode frame: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(body.Len()))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body.Bytes())
	return err
}

// ReadFramed reads one length-prefixed msgpack value from r into v.
func ReadFramed(r io.Reader, v interface{}) error {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}
	dec := codec.NewDecoder(bytes.NewReader(body), &mh)
	return dec.Decode(v)
}
