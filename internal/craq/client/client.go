// Package client implements CraqClient (C7): a thin synchronous RPC
// wrapper that maintains exactly one framed connection to one CRAQ
// node. It does not hide routing — callers direct writes to the head
// and reads to whichever node suits their consistency need.
package client

import (
	"net"
	"net/rpc"

	"github.com/artillery-go/artillery/internal/craq"
	"github.com/artillery-go/artillery/internal/domain"
)

// Client is a synchronous stub to one CRAQ node.
type Client struct {
	rpc *rpc.Client
}

// Dial opens one framed TCP connection to addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{rpc: rpc.NewClientWithCodec(craq.NewClientCodec(conn))}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.rpc.Close() }

// Write issues write(value) -> version. Direct this at the chain head.
func (c *Client) Write(value []byte) (int64, error) {
	var reply craq.WriteReply
	err := c.rpc.Call(craq.ServiceName+".Write", &craq.WriteArgs{Obj: domain.NewObject(value)}, &reply)
	return reply.Version, err
}

// TestAndSet issues test_and_set(value, expected) -> version. Direct
// this at the chain head. Returns domain.NoVersion (-1) on a failed
// compare.
func (c *Client) TestAndSet(value []byte, expected int64) (int64, error) {
	var reply craq.TestAndSetReply
	err := c.rpc.Call(craq.ServiceName+".TestAndSet",
		&craq.TestAndSetArgs{Obj: domain.NewObject(value), Expected: expected}, &reply)
	return reply.Version, err
}

// Read issues read(mode, bound) -> (bytes, dirty). May be directed at
// any node in Craq mode, the tail only in Cr mode.
func (c *Client) Read(mode domain.ConsistencyModel, bound int64) ([]byte, bool, error) {
	var reply craq.ReadReply
	err := c.rpc.Call(craq.ServiceName+".Read", &craq.ReadArgs{Mode: mode, Bound: bound}, &reply)
	if err != nil {
		return nil, false, err
	}
	return reply.Obj.Value, reply.Obj.IsDirty(), nil
}

// VersionQuery issues version_query() -> version. Only the tail
// answers this.
func (c *Client) VersionQuery() (int64, error) {
	var reply craq.VersionQueryReply
	err := c.rpc.Call(craq.ServiceName+".VersionQuery", &craq.VersionQueryArgs{}, &reply)
	return reply.Version, err
}
