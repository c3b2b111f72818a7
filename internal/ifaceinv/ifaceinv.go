// Package ifaceinv enumerates host network interfaces and validates that a
// configured phyint is eligible to become a VIF: it must carry the
// MULTICAST flag and have at least one address.
package ifaceinv

import (
	"net"
	"net/netip"

	"mrouted/internal/merrors"
)

// Flags mirrors the Linux network interface flag bitfield, matching
// pygmp.data.InterfaceFlags.
type Flags uint32

const (
	Up          Flags = 1 << 0
	Broadcast   Flags = 1 << 1
	Loopback    Flags = 1 << 3
	PointToPoint Flags = 1 << 4
	Running     Flags = 1 << 6
	NoARP       Flags = 1 << 7
	Multicast   Flags = 1 << 12
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// Interface is an immutable snapshot of one host network interface.
type Interface struct {
	Name      string
	Index     int
	Flags     Flags
	Addresses []netip.Addr
}

func flagsFromGo(f net.Flags) Flags {
	var out Flags
	if f&net.FlagUp != 0 {
		out |= Up
	}
	if f&net.FlagBroadcast != 0 {
		out |= Broadcast
	}
	if f&net.FlagLoopback != 0 {
		out |= Loopback
	}
	if f&net.FlagPointToPoint != 0 {
		out |= PointToPoint
	}
	if f&net.FlagRunning != 0 {
		out |= Running
	}
	if f&net.FlagMulticast != 0 {
		out |= Multicast
	}
	return out
}

// List enumerates host interfaces, merging IPv4 addresses observed across
// multiple address-table entries for the same interface name.
func List() ([]Interface, error) {
	ifs, err := net.Interfaces()
	if err != nil {
		return nil, merrors.Wrap(merrors.KernelError, err, "listing network interfaces")
	}
	out := make([]Interface, 0, len(ifs))
	for _, nif := range ifs {
		rec := Interface{
			Name:  nif.Name,
			Index: nif.Index,
			Flags: flagsFromGo(nif.Flags),
		}
		addrs, err := nif.Addrs()
		if err != nil {
			return nil, merrors.Wrap(merrors.KernelError, err, "listing addresses for %s", nif.Name)
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			v4 := ipNet.IP.To4()
			if v4 == nil {
				continue
			}
			addr, ok := netip.AddrFromSlice(v4)
			if !ok {
				continue
			}
			rec.Addresses = append(rec.Addresses, addr)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Validate resolves name against the live inventory, failing with NotFound
// when no interface has that name, and with InvariantViolation when it is
// not multicast-capable or has no addresses.
func Validate(ifaces []Interface, name string) (Interface, error) {
	for _, i := range ifaces {
		if i.Name != name {
			continue
		}
		if !i.Flags.Has(Multicast) {
			return Interface{}, merrors.New(merrors.InvariantViolation, "interface "+name+" is not multicast-capable")
		}
		if len(i.Addresses) == 0 {
			return Interface{}, merrors.New(merrors.InvariantViolation, "interface "+name+" has no addresses")
		}
		return i, nil
	}
	return Interface{}, merrors.New(merrors.NotFound, "interface "+name+" not found")
}
