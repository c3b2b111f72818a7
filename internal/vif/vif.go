// Package vif implements the VIF Manager: the single source of truth for
// the mapping between interface name and kernel VIF index. Every mutation
// re-reads /proc/net/ip_mr_vif so the in-memory list can never drift from
// the kernel (spec Design Notes §9) — it is a cache between mutations, not
// the authority.
package vif

import (
	"sync"

	"mrouted/internal/ifaceinv"
	"mrouted/internal/kernel"
	"mrouted/internal/merrors"
)

// Bridge is the subset of the Kernel Bridge the VIF Manager drives.
type Bridge interface {
	AddVIF(kernel.VifCtl) error
	DelVIF(vifi int) error
	ReadVIFTable() ([]kernel.VifTableEntry, error)
}

type bridgeAdapter struct{ b *kernel.Bridge }

func (a bridgeAdapter) AddVIF(v kernel.VifCtl) error        { return a.b.AddVIF(v) }
func (a bridgeAdapter) DelVIF(vifi int) error               { return a.b.DelVIF(vifi) }
func (a bridgeAdapter) ReadVIFTable() ([]kernel.VifTableEntry, error) { return kernel.ReadVIFTable() }

// NewBridgeAdapter wraps a *kernel.Bridge as a Bridge for the Manager.
func NewBridgeAdapter(b *kernel.Bridge) Bridge { return bridgeAdapter{b: b} }

// Manager owns VIF assignment. All methods are safe for concurrent use. The
// MFC Manager calls VIFI and MakeTTLs, which take this lock for reading,
// while it holds its own lock; this Manager never takes the MFC lock.
type Manager struct {
	mu      sync.RWMutex
	bridge  Bridge
	entries []kernel.VifTableEntry // snapshot, refreshed after every mutation
}

// New constructs an empty Manager bound to bridge.
func New(bridge Bridge) *Manager {
	return &Manager{bridge: bridge}
}

func (m *Manager) refreshLocked() error {
	entries, err := m.bridge.ReadVIFTable()
	if err != nil {
		return err
	}
	m.entries = entries
	return nil
}

// Refresh re-reads the kernel VIF table. Exposed so the Orchestrator can
// seed the Manager's snapshot at startup before any mutation has happened.
func (m *Manager) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshLocked()
}

// Add installs a VIF bound to iface's ifindex. If vifi is nil, the next
// dense index (current count) is assigned; if vifi names an index already
// present, Add fails with Duplicate.
func (m *Manager) Add(iface ifaceinv.Interface, vifi *int, threshold uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	assigned := len(m.entries)
	if vifi != nil {
		assigned = *vifi
		for _, e := range m.entries {
			if e.VIFI == assigned {
				return merrors.New(merrors.Duplicate, "vif index already in use")
			}
		}
	}
	if threshold == 0 {
		threshold = 1
	}
	ctl := kernel.VifCtl{
		VIFI:      assigned,
		Threshold: threshold,
		Local:     kernel.ByIndex(iface.Index),
	}
	if err := m.bridge.AddVIF(ctl); err != nil {
		return err
	}
	return m.refreshLocked()
}

func (m *Manager) findLocked(pred func(kernel.VifTableEntry) bool) (kernel.VifTableEntry, error) {
	for _, e := range m.entries {
		if pred(e) {
			return e, nil
		}
	}
	return kernel.VifTableEntry{}, merrors.New(merrors.NotFound, "vif not found")
}

// RemoveByName removes the VIF currently bound to name.
func (m *Manager) RemoveByName(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, err := m.findLocked(func(e kernel.VifTableEntry) bool { return e.Name == name })
	if err != nil {
		return err
	}
	if err := m.bridge.DelVIF(e.VIFI); err != nil {
		return err
	}
	return m.refreshLocked()
}

// RemoveByIndex removes the VIF at vifi.
func (m *Manager) RemoveByIndex(vifi int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.findLocked(func(e kernel.VifTableEntry) bool { return e.VIFI == vifi }); err != nil {
		return err
	}
	if err := m.bridge.DelVIF(vifi); err != nil {
		return err
	}
	return m.refreshLocked()
}

// VIFI looks up the vifi currently bound to name.
func (m *Manager) VIFI(name string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, err := m.findLocked(func(e kernel.VifTableEntry) bool { return e.Name == name })
	if err != nil {
		return 0, err
	}
	return e.VIFI, nil
}

// List returns a snapshot of the current VIF table.
func (m *Manager) List() []kernel.VifTableEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]kernel.VifTableEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

// Count returns the current number of installed VIFs.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// MakeTTLs produces a ttls vector whose length equals the current VIF
// count, with ttl at position vifi(name) for each entry in ttlByName and 0
// elsewhere. Fails with NotFound if a name isn't a known VIF.
func (m *Manager) MakeTTLs(ttlByName map[string]uint8) ([]uint8, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ttls := make([]uint8, len(m.entries))
	for name, ttl := range ttlByName {
		e, err := m.findLocked(func(e kernel.VifTableEntry) bool { return e.Name == name })
		if err != nil {
			return nil, merrors.New(merrors.NotFound, "vif not found for outgoing interface "+name)
		}
		ttls[e.VIFI] = ttl
	}
	return ttls, nil
}
