// Package discovery defines the peer-discovery collaborator interface
// consumed by the AP-cluster façade, plus a minimal UDP-multicast
// implementation. No mDNS library exists anywhere in the reference
// pack this module was built against, so unlike Ping/membership this
// one surface intentionally stays on net's multicast primitives — see
// DESIGN.md.
package discovery

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Discoverer is the external collaborator spec.md §6 describes: "an
// iterable producer of SocketAddress events". Each observed address
// distinct from the local service port is fed into
// cluster.Facade.AddSeedNode by the caller.
type Discoverer interface {
	// Events returns a channel of discovered peer addresses. It is
	// closed when the discoverer stops.
	Events() <-chan string
}

// UDPMulticastConfig controls the beacon/listen loop.
type UDPMulticastConfig struct {
	// Group is the multicast group address, e.g. "224.0.0.251:7946".
	Group string
	// ServiceAddr is this node's own epidemic listen address,
	// advertised on the beacon and used to filter out self-discovery.
	ServiceAddr string
	// BeaconInterval controls how often this node announces itself.
	BeaconInterval time.Duration
}

// DefaultUDPMulticastConfig returns reasonable defaults for a LAN-local
// discovery beacon.
func DefaultUDPMulticastConfig(serviceAddr string) UDPMulticastConfig {
	return UDPMulticastConfig{
		Group:          "224.0.0.251:7946",
		ServiceAddr:    serviceAddr,
		BeaconInterval: 2 * time.Second,
	}
}

// UDPMulticastDiscoverer announces ServiceAddr on a multicast group and
// reports every distinct peer address it overhears. It is the functional
// analogue of the original crate's multicast/udp_anycast service
// discovery variants, shipped for the same reason they were: no mDNS
// dependency is available.
type UDPMulticastDiscoverer struct {
	cfg    UDPMulticastConfig
	conn   *net.UDPConn
	events chan string
	seen   map[string]bool
}

// NewUDPMulticastDiscoverer joins the configured multicast group.
func NewUDPMulticastDiscoverer(cfg UDPMulticastConfig) (*UDPMulticastDiscoverer, error) {
	groupAddr, err := net.ResolveUDPAddr("udp4", cfg.Group)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve multicast group: %w", err)
	}
	conn, err := net.ListenMulticastUDP("udp4", nil, groupAddr)
	if err != nil {
		return nil, fmt.Errorf("discovery: join multicast group: %w", err)
	}
	conn.SetReadBuffer(4096)

	return &UDPMulticastDiscoverer{
		cfg:    cfg,
		conn:   conn,
		events: make(chan string, 32),
		seen:   make(map[string]bool),
	}, nil
}

// Events implements Discoverer.
func (d *UDPMulticastDiscoverer) Events() <-chan string { return d.events }

// Run beacons ServiceAddr periodically and listens for peers until ctx
// is cancelled.
func (d *UDPMulticastDiscoverer) Run(ctx context.Context) {
	defer close(d.events)
	defer d.conn.Close()

	groupAddr, err := net.ResolveUDPAddr("udp4", d.cfg.Group)
	if err != nil {
		return
	}

	go d.beacon(ctx, groupAddr)

	buf := make([]byte, 512)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, _, err := d.conn.ReadFromUDP(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return
		}
		addr := string(buf[:n])
		if addr == d.cfg.ServiceAddr || d.seen[addr] {
			continue
		}
		d.seen[addr] = true
		select {
		case d.events <- addr:
		case <-ctx.Done():
			return
		}
	}
}

func (d *UDPMulticastDiscoverer) beacon(ctx context.Context, group *net.UDPAddr) {
	sender, err := net.DialUDP("udp4", nil, group)
	if err != nil {
		return
	}
	defer sender.Close()

	ticker := time.NewTicker(d.cfg.BeaconInterval)
	defer ticker.Stop()
	for {
		sender.Write([]byte(d.cfg.ServiceAddr))
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
