package craq

import (
	"io"
	"net/rpc"
	"sync"

	"github.com/artillery-go/artillery/internal/wire"
)

// msgpackServerCodec and msgpackClientCodec adapt net/rpc's plumbing to
// the shared length-framed msgpack codec in internal/wire, in place of
// net/rpc's default gob encoding — a framed binary RPC per spec.md §6,
// grounded on the same hashicorp/go-msgpack stack moby-moby vendors
// alongside hashicorp/memberlist and hashicorp/serf.
type msgpackServerCodec struct {
	conn io.ReadWriteCloser
	mu   sync.Mutex
}

// NewServerCodec wraps conn for use with rpc.ServeCodec.
func NewServerCodec(conn io.ReadWriteCloser) rpc.ServerCodec {
	return &msgpackServerCodec{conn: conn}
}

func (c *msgpackServerCodec) ReadRequestHeader(r *rpc.Request) error {
	return wire.ReadFramed(c.conn, r)
}

func (c *msgpackServerCodec) ReadRequestBody(body interface{}) error {
	if body == nil {
		var discard struct{}
		return wire.ReadFramed(c.conn, &discard)
	}
	return wire.ReadFramed(c.conn, body)
}

func (c *msgpackServerCodec) WriteResponse(r *rpc.Response, body interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wire.WriteFramed(c.conn, r); err != nil {
		return err
	}
	return wire.WriteFramed(c.conn, body)
}

func (c *msgpackServerCodec) Close() error { return c.conn.Close() }

type msgpackClientCodec struct {
	conn io.ReadWriteCloser
	mu   sync.Mutex
}

// NewClientCodec wraps conn for use with rpc.NewClientWithCodec.
func NewClientCodec(conn io.ReadWriteCloser) rpc.ClientCodec {
	return &msgpackClientCodec{conn: conn}
}

func (c *msgpackClientCodec) WriteRequest(r *rpc.Request, body interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := wire.WriteFramed(c.conn, r); err != nil {
		return err
	}
	return wire.WriteFramed(c.conn, body)
}

func (c *msgpackClientCodec) ReadResponseHeader(r *rpc.Response) error {
	return wire.ReadFramed(c.conn, r)
}

func (c *msgpackClientCodec) ReadResponseBody(body interface{}) error {
	if body == nil {
		var discard struct{}
		return wire.ReadFramed(c.conn, &discard)
	}
	return wire.ReadFramed(c.conn, body)
}

func (c *msgpackClientCodec) Close() error { return c.conn.Close() }
