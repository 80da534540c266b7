package epidemic

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"github.com/artillery-go/artillery/internal/domain"
	"github.com/artillery-go/artillery/internal/observability"
	"github.com/artillery-go/artillery/internal/wire"
	"github.com/google/uuid"
)

// reqKind enumerates the in-process requests a facade may send the
// reactor (spec.md §4.3 "On user request").
type reqKind int

const (
	reqAddSeed reqKind = iota
	reqLeaveCluster
	reqExit
)

type userRequest struct {
	kind reqKind
	addr string
	done chan struct{}
}

type pendingProbe struct {
	sentAt time.Time
	addr   string
}

type inboundPacket struct {
	data []byte
	from *net.UDPAddr
}

// Core is the timer-driven UDP reactor (C3). One scheduling context
// (Run's goroutine) owns the socket, the timer, and all MemberList
// mutation; everything else enters through channels, so none of this
// type's fields need a lock (spec.md §5).
type Core struct {
	selfKey uuid.UUID
	config  Config
	conn    *net.UDPConn
	list    *MemberList
	log     *log.Logger

	pending      map[string]pendingProbe   // addr -> outstanding probe
	waitList     map[string][]string       // suspect addr -> relay requester addrs
	seedQueue    []string
	stateChanges []domain.StateChange

	requests chan userRequest
	inbound  chan inboundPacket
	events   *eventQueue
}

// NewCore binds the UDP socket and constructs the reactor. The socket
// is bound synchronously so callers can observe bind failures before
// Run is ever invoked.
func NewCore(selfKey uuid.UUID, config Config) (*Core, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	addr, err := net.ResolveUDPAddr("udp4", config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrBadSocketAddr, err)
	}
	conn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("epidemic: listen udp: %w", err)
	}

	c := &Core{
		selfKey:  selfKey,
		config:   config,
		conn:     conn,
		list:     NewMemberList(selfKey),
		log:      log.New(os.Stderr, "[epidemic] ", log.LstdFlags),
		pending:  make(map[string]pendingProbe),
		waitList: make(map[string][]string),
		requests: make(chan userRequest, 16),
		inbound:  make(chan inboundPacket, 64),
		events:   newEventQueue(),
	}
	// Announce self on the first outgoing datagram so the peer it
	// reaches grafts this node into its membership.
	c.stateChanges = append(c.stateChanges, domain.NewStateChange(c.list.Self()))
	return c, nil
}

// LocalAddr returns the bound UDP address.
func (c *Core) LocalAddr() *net.UDPAddr { return c.conn.LocalAddr().(*net.UDPAddr) }

// Events returns the receive end of the event channel.
func (c *Core) Events() <-chan Event { return c.events.out }

// AddSeed enqueues a seed address for probing, non-blocking.
func (c *Core) AddSeed(addr string) {
	c.requests <- userRequest{kind: reqAddSeed, addr: addr}
}

// LeaveCluster requests a graceful departure; returns once the final
// probing round that disseminates the Left record has run.
func (c *Core) LeaveCluster() {
	done := make(chan struct{})
	c.requests <- userRequest{kind: reqLeaveCluster, done: done}
	<-done
}

// Exit terminates the reactor at the next loop boundary.
func (c *Core) Exit() {
	done := make(chan struct{})
	c.requests <- userRequest{kind: reqExit, done: done}
	<-done
}

// Run is the event loop described in spec.md §4.3. It blocks until the
// reactor exits (via Exit or context cancellation), closing the event
// channel on the way out. LeaveCluster does not end the loop: after its
// final probing round the reactor keeps running. A non-timeout socket
// read error ends only the read loop; Run itself keeps going.
func (c *Core) Run(ctx context.Context) error {
	defer c.events.closeIn()
	defer c.conn.Close()

	readerCtx, cancelReader := context.WithCancel(ctx)
	defer cancelReader()
	go c.readLoop(readerCtx)

	ticker := time.NewTicker(c.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
			c.onTick()

		case pkt := <-c.inbound:
			if err := c.onDatagram(pkt); err != nil {
				c.log.Printf("decode error from %s: %v", pkt.from, err)
			}

		case req := <-c.requests:
			if done, exit := c.onRequest(req); exit {
				if done != nil {
					close(done)
				}
				return nil
			} else if done != nil {
				close(done)
			}
		}
	}
}

func (c *Core) readLoop(ctx context.Context) {
	buf := make([]byte, c.config.NetworkMTU)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
			default:
				c.log.Printf("fatal socket error: %v", err)
			}
			return
		}
		cp := make([]byte, n)
		copy(cp, buf[:n])
		select {
		case c.inbound <- inboundPacket{data: cp, from: from}:
		case <-ctx.Done():
			return
		}
	}
}

// onTick implements event-loop step 2, "On timer fire".
func (c *Core) onTick() {
	now := time.Now()
	expired := make(map[string]bool)
	for addr, p := range c.pending {
		if now.After(p.sentAt.Add(c.config.PingTimeout)) {
			expired[addr] = true
		}
	}
	for addr := range expired {
		delete(c.pending, addr)
	}

	newlySuspect, newlyDown := c.list.TimeOutNodes(expired)
	for _, m := range newlySuspect {
		c.stateChanges = append(c.stateChanges, domain.NewStateChange(m))
		c.emit(MemberSuspectedDown, m)
	}
	for _, m := range newlyDown {
		c.stateChanges = append(c.stateChanges, domain.NewStateChange(m))
		c.emit(MemberWentDown, m)
	}

	if target, ok := c.list.NextRandomMember(); ok {
		c.sendPing(target.Addr())
		c.pending[target.Addr()] = pendingProbe{sentAt: now, addr: target.Addr()}
	}

	for _, m := range newlySuspect {
		c.fanOutIndirectProbes(m)
	}

	seeds := c.seedQueue
	c.seedQueue = nil
	for _, addr := range seeds {
		c.sendPing(addr)
	}
}

func (c *Core) fanOutIndirectProbes(target domain.Member) {
	peers := c.list.HostsForIndirectPing(c.config.PingRequestHostCount, target.HostKey)
	if len(peers) == 0 {
		return
	}
	for _, peer := range peers {
		env := wire.Envelope{
			Sender:     keyToBytes(c.selfKey),
			ClusterKey: c.config.ClusterKey,
			Request: wire.Request{
				Kind:   wire.KindPingRequest,
				Target: keyToBytes(target.HostKey),
			},
		}
		c.send(peer.Addr(), env)
		observability.IndirectProbesSent.Inc()
	}
}

// onDatagram implements event-loop step 3, "On inbound datagram".
func (c *Core) onDatagram(pkt inboundPacket) (err error) {
	span := observability.DefaultTracer.StartSpan(context.Background(), "epidemic.datagram", map[string]string{
		"from": pkt.from.String(),
	})
	defer func() { observability.DefaultTracer.EndSpan(span, err) }()

	env, err := wire.Decode(pkt.data)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrClusterMessageDecode, err)
	}
	if !bytes.Equal(env.ClusterKey, c.config.ClusterKey) {
		return nil
	}

	for _, m := range c.list.ApplyStateChanges(fromWireStateChanges(env.StateChanges), pkt.from.String()) {
		switch m.MemberState {
		case domain.Alive:
			c.emit(MemberJoined, m)
		case domain.Left:
			c.emit(MemberLeft, m)
		}
	}

	switch env.Request.Kind {
	case wire.KindPing:
		c.handlePing(pkt.from)
	case wire.KindAck:
		c.handleAck(pkt.from)
	case wire.KindPingRequest:
		c.handlePingRequest(env, pkt.from)
	case wire.KindAckHost:
		c.handleAckHost(env, pkt.from)
	}
	return nil
}

func (c *Core) handlePing(from *net.UDPAddr) {
	env := wire.Envelope{
		Sender:       keyToBytes(c.selfKey),
		ClusterKey:   c.config.ClusterKey,
		Request:      wire.Request{Kind: wire.KindAck},
		StateChanges: c.drainStateChanges(),
	}
	c.send(from.String(), env)
}

func (c *Core) handleAck(from *net.UDPAddr) {
	addr := from.String()
	if p, ok := c.pending[addr]; ok {
		observability.ProbeRoundTrip.Observe(float64(time.Since(p.sentAt).Milliseconds()))
	}
	delete(c.pending, addr)

	if m, ok := c.list.MarkNodeAlive(addr); ok {
		c.stateChanges = append(c.stateChanges, domain.NewStateChange(m))
		c.emit(MemberWentUp, m)
	}

	if requesters, ok := c.waitList[addr]; ok {
		m, found := c.list.ByAddr(addr)
		if found {
			for _, reqAddr := range requesters {
				c.sendAckHost(reqAddr, m)
			}
		}
		delete(c.waitList, addr)
	}
}

func (c *Core) handlePingRequest(env wire.Envelope, from *net.UDPAddr) {
	var targetKey uuid.UUID
	copy(targetKey[:], env.Request.Target[:])
	target, ok := c.list.ByHostKey(targetKey)
	if !ok || !target.IsRemote() {
		return
	}
	c.waitList[target.Addr()] = append(c.waitList[target.Addr()], from.String())
	c.sendPing(target.Addr())
	if _, exists := c.pending[target.Addr()]; !exists {
		c.pending[target.Addr()] = pendingProbe{sentAt: time.Now(), addr: target.Addr()}
	}
}

func (c *Core) handleAckHost(env wire.Envelope, from *net.UDPAddr) {
	m := fromWireMember(env.Request.Member)
	delete(c.pending, m.Addr())
	if updated, ok := c.list.MarkNodeAlive(m.Addr()); ok {
		c.stateChanges = append(c.stateChanges, domain.NewStateChange(updated))
		c.emit(MemberWentUp, updated)
	}
}

func (c *Core) sendAckHost(toAddr string, m domain.Member) {
	env := wire.Envelope{
		Sender:     keyToBytes(c.selfKey),
		ClusterKey: c.config.ClusterKey,
		Request: wire.Request{
			Kind:   wire.KindAckHost,
			Member: toWireMember(m),
		},
	}
	c.send(toAddr, env)
}

func (c *Core) sendPing(addr string) {
	env := wire.Envelope{
		Sender:       keyToBytes(c.selfKey),
		ClusterKey:   c.config.ClusterKey,
		Request:      wire.Request{Kind: wire.KindPing},
		StateChanges: c.drainStateChanges(),
	}
	c.send(addr, env)
}

// drainStateChanges hands back the accumulated piggyback set, bounded
// so the resulting datagram stays under NetworkMTU (spec.md §6:
// "datagrams exceeding network_mtu must be avoided by dropping
// piggy-back entries; never fragment a request").
func (c *Core) drainStateChanges() []wire.MemberWire {
	if len(c.stateChanges) == 0 {
		return nil
	}
	const perEntryBudget = 256 // conservative upper bound on encoded MemberWire size
	maxEntries := c.config.NetworkMTU / perEntryBudget
	if maxEntries <= 0 {
		maxEntries = 1
	}
	members := make([]domain.Member, 0, len(c.stateChanges))
	for _, sc := range c.stateChanges {
		members = append(members, sc.Member)
	}
	if len(members) > maxEntries {
		members = members[:maxEntries]
	}
	c.stateChanges = nil
	return toWireMembers(members)
}

func (c *Core) send(addr string, env wire.Envelope) {
	udpAddr, err := net.ResolveUDPAddr("udp4", addr)
	if err != nil {
		return
	}
	data, err := wire.Encode(env)
	if err != nil {
		c.log.Printf("encode error: %v", err)
		return
	}
	c.conn.WriteToUDP(data, udpAddr)
}

// onRequest implements event-loop step 4, "On user request". Returns
// the request's done channel (if any, left unclosed for the caller to
// close) and whether the reactor should exit.
func (c *Core) onRequest(req userRequest) (done chan struct{}, exit bool) {
	switch req.kind {
	case reqAddSeed:
		c.seedQueue = append(c.seedQueue, req.addr)
		return req.done, false

	case reqLeaveCluster:
		left := c.list.Leave()
		c.stateChanges = append(c.stateChanges, domain.NewStateChange(left))
		c.emit(MemberLeft, left)
		c.onTick() // one final probing round so Left disseminates
		return req.done, false

	case reqExit:
		return req.done, true
	}
	return req.done, false
}

func (c *Core) emit(kind EventKind, m domain.Member) {
	snapshot := c.list.AvailableNodes()
	observability.MembershipEvents.WithLabelValues(kind.String()).Inc()
	observability.AliveMembers.Set(float64(countAlive(snapshot)))
	c.events.push(Event{Kind: kind, Member: m, Snapshot: snapshot})
}

func countAlive(members []domain.Member) int {
	n := 0
	for _, m := range members {
		if m.MemberState == domain.Alive {
			n++
		}
	}
	return n
}
