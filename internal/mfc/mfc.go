// Package mfc implements the MFC Manager: the static (source != 0.0.0.0,
// installed eagerly) and dynamic (source == 0.0.0.0, matched on first
// packet) Multicast Forwarding Cache tables.
package mfc

import (
	"net/netip"
	"sync"

	"mrouted/internal/kernel"
	"mrouted/internal/merrors"
)

var unspecified = netip.IPv4Unspecified()

// MRoute is a configured route: either a static SSM entry (Source != 0.0.0.0)
// or a dynamic template (Source == 0.0.0.0) that is only materialized into
// the kernel once a NOCACHE upcall matches it.
type MRoute struct {
	From   string // incoming phyint name
	Group  netip.Addr
	Source netip.Addr
	To     map[string]uint8 // outgoing phyint name -> ttl threshold
}

func (a MRoute) equalTo(b MRoute) bool {
	if a.Group != b.Group || len(a.To) != len(b.To) {
		return false
	}
	for k, v := range a.To {
		if b.To[k] != v {
			return false
		}
	}
	return true
}

// VIFResolver is the subset of the VIF Manager the MFC Manager depends on.
type VIFResolver interface {
	VIFI(name string) (int, error)
	MakeTTLs(ttlByName map[string]uint8) ([]uint8, error)
}

// Bridge is the subset of the Kernel Bridge the MFC Manager drives.
type Bridge interface {
	AddMFC(kernel.MfcCtl) error
	DelMFC(origin, group netip.Addr, parent int) error
}

// Manager owns the static and dynamic MFC tables, both keyed by the
// incoming VIF index (spec §4.5's "iif_vifi" key, corrected from the
// original implementation's group-only keying — see DESIGN.md).
type Manager struct {
	mu      sync.RWMutex
	vifs    VIFResolver
	bridge  Bridge
	static  map[int][]MRoute
	dynamic map[int][]MRoute
}

// New constructs an empty Manager.
func New(vifs VIFResolver, bridge Bridge) *Manager {
	return &Manager{
		vifs:    vifs,
		bridge:  bridge,
		static:  make(map[int][]MRoute),
		dynamic: make(map[int][]MRoute),
	}
}

func isUnspecified(a netip.Addr) bool {
	return !a.IsValid() || a == unspecified
}

// Add installs mroute. Dynamic templates (Source unspecified) are
// upserted into the in-memory table only; static routes are installed
// eagerly via the Kernel Bridge.
func (m *Manager) Add(mroute MRoute) error {
	vifi, err := m.vifs.VIFI(mroute.From)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if isUnspecified(mroute.Source) {
		list := m.dynamic[vifi]
		for i, existing := range list {
			if existing.equalTo(mroute) {
				list[i] = mroute
				return nil
			}
		}
		m.dynamic[vifi] = append(list, mroute)
		return nil
	}

	ttls, err := m.vifs.MakeTTLs(mroute.To)
	if err != nil {
		return err
	}
	if err := m.bridge.AddMFC(kernel.MfcCtl{
		Origin: mroute.Source,
		Group:  mroute.Group,
		Parent: vifi,
		TTLs:   ttls,
	}); err != nil {
		return err
	}
	m.static[vifi] = append(m.static[vifi], mroute)
	return nil
}

// Remove deletes mroute. Dynamic: removed from the in-memory list, deleting
// the key once empty. Static: issues DelMFC.
func (m *Manager) Remove(mroute MRoute) error {
	vifi, err := m.vifs.VIFI(mroute.From)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if isUnspecified(mroute.Source) {
		list := m.dynamic[vifi]
		for i, existing := range list {
			if existing.equalTo(mroute) {
				list = append(list[:i], list[i+1:]...)
				if len(list) == 0 {
					delete(m.dynamic, vifi)
				} else {
					m.dynamic[vifi] = list
				}
				return nil
			}
		}
		return merrors.New(merrors.NotFound, "dynamic mroute not found")
	}

	if err := m.bridge.DelMFC(mroute.Source, mroute.Group, vifi); err != nil {
		return err
	}
	list := m.static[vifi]
	for i, existing := range list {
		if existing.Group == mroute.Group && existing.Source == mroute.Source {
			m.static[vifi] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return nil
}

// matchLocked implements match(iif_vifi, group, source): when source is
// unspecified it searches the dynamic table by group alone (first
// registered wins on ambiguity); otherwise it searches the static table by
// (group, origin).
func (m *Manager) matchLocked(iifVifi int, group, source netip.Addr) (MRoute, bool) {
	if isUnspecified(source) {
		for _, r := range m.dynamic[iifVifi] {
			if r.Group == group {
				return r, true
			}
		}
		return MRoute{}, false
	}
	for _, r := range m.static[iifVifi] {
		if r.Group == group && r.Source == source {
			return r, true
		}
	}
	return MRoute{}, false
}

// Match exposes matchLocked for read-only callers (e.g. the REST layer).
func (m *Manager) Match(iifVifi int, group, source netip.Addr) (MRoute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.matchLocked(iifVifi, group, source)
}

// HandleNOCACHE resolves the incoming VIF from the upcall, looks for a
// matching dynamic template (a NOCACHE upcall only fires when no static
// entry already covers the traffic, per testable property 5, so only the
// dynamic table is ever searched here — see DESIGN.md for why this departs
// from a literal reading of the generic match() helper), and if found
// installs the specific (S,G,iif) entry with TTLs computed from the VIF set
// at upcall time. Returns (matched, error); matched is false when the
// upcall is dropped for lack of a template.
func (m *Manager) HandleNOCACHE(iif int, src, group netip.Addr) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tmpl, ok := m.matchLocked(iif, group, unspecified)
	if !ok {
		return false, nil
	}
	ttls, err := m.vifs.MakeTTLs(tmpl.To)
	if err != nil {
		return false, err
	}
	if err := m.bridge.AddMFC(kernel.MfcCtl{
		Origin: src,
		Group:  group,
		Parent: iif,
		TTLs:   ttls,
	}); err != nil {
		return false, err
	}
	return true, nil
}

// StaticByIIF returns a snapshot of the static table grouped by iif.
func (m *Manager) StaticByIIF() map[int][]MRoute {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneGrouped(m.static)
}

// DynamicByIIF returns a snapshot of the dynamic table grouped by iif.
func (m *Manager) DynamicByIIF() map[int][]MRoute {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneGrouped(m.dynamic)
}

func cloneGrouped(in map[int][]MRoute) map[int][]MRoute {
	out := make(map[int][]MRoute, len(in))
	for k, v := range in {
		cp := make([]MRoute, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}
