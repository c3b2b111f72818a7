package mfc

import (
	"net/netip"

	"mrouted/internal/kernel"
)

type bridgeAdapter struct{ b *kernel.Bridge }

func (a bridgeAdapter) AddMFC(m kernel.MfcCtl) error { return a.b.AddMFC(m) }

func (a bridgeAdapter) DelMFC(origin, group netip.Addr, parent int) error {
	return a.b.DelMFC(origin, group, parent)
}

// NewBridgeAdapter wraps a *kernel.Bridge as a Bridge for the Manager.
func NewBridgeAdapter(b *kernel.Bridge) Bridge { return bridgeAdapter{b: b} }
