package cluster

import (
	"context"

	"github.com/artillery-go/artillery/internal/discovery"
)

// APCluster wires epidemic membership to a Discoverer so a new process
// can find seeds without static configuration (spec.md §1), the "thin
// AP cluster façade" the two layers are deliberately decoupled by.
type APCluster struct {
	*Facade
	discoverer discovery.Discoverer
}

// NewAPCluster wraps an existing Facade with a discovery collaborator,
// forwarding every newly observed peer address into AddSeedNode.
func NewAPCluster(ctx context.Context, facade *Facade, d discovery.Discoverer) *APCluster {
	ap := &APCluster{Facade: facade, discoverer: d}
	go ap.pump(ctx)
	return ap
}

func (ap *APCluster) pump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case addr, ok := <-ap.discoverer.Events():
			if !ok {
				return
			}
			if addr == ap.Facade.LocalAddr() {
				continue
			}
			ap.Facade.AddSeedNode(addr)
		}
	}
}
