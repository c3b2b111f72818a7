// Package kernel is the Kernel Bridge: a thin typed layer over the raw IGMP
// socket used to drive Linux's kernel multicast routing table (MRT). It
// issues the MRT_* socket options, the SIOCGETVIFCNT/SIOCGETSGCNT ioctls,
// and parses /proc/net/ip_mr_vif and /proc/net/ip_mr_cache.
//
// Why raw syscall instead of a netlink-style library: MRT is not an
// rtnetlink facility — it is configured entirely via setsockopt/ioctl on an
// IPPROTO_IGMP raw socket, so there is no rtnetlink attribute protocol to
// speak. The packed-struct-over-socket technique below follows the same
// shape as internal/netlinkx's rtnetlink client, adapted to MRT's own
// struct layouts (see §6 of the design doc for the exact byte offsets).
package kernel

import "net/netip"

// MAXVIFS is the kernel's hard limit on virtual interfaces.
const MAXVIFS = 32

// AddrKind tags how a VifCtl's address field should be interpreted.
type AddrKind int

const (
	AddrUnspecified AddrKind = iota
	AddrByAddress
	AddrByIndex
)

// VifAddr is a tagged variant replacing the source implementation's
// dynamically-coerced string|integer|address value (spec Design Notes §9).
type VifAddr struct {
	Kind  AddrKind
	Value uint32 // IPv4 in network byte order, or an ifindex
}

// ByAddress tags v as a literal IPv4 address.
func ByAddress(addr netip.Addr) VifAddr {
	a4 := addr.As4()
	return VifAddr{Kind: AddrByAddress, Value: beUint32(a4[:])}
}

// ByIndex tags idx as a kernel interface index.
func ByIndex(idx int) VifAddr {
	return VifAddr{Kind: AddrByIndex, Value: uint32(idx)}
}

// Addr returns the value as an IPv4 address; only meaningful when Kind ==
// AddrByAddress.
func (v VifAddr) Addr() netip.Addr {
	var b [4]byte
	putBE32(b[:], v.Value)
	return netip.AddrFrom4(b)
}

// VifCtl is the request passed to AddVIF / DelVIF.
type VifCtl struct {
	VIFI      int
	Threshold uint8
	RateLimit uint32
	Local     VifAddr
	Remote    VifAddr // usually Unspecified / 0.0.0.0 except for IPIP-tunnel VIFs
}

// VifTableEntry is one row observed from /proc/net/ip_mr_vif.
type VifTableEntry struct {
	VIFI          int
	Name          string
	BytesIn       uint64
	PktsIn        uint64
	BytesOut      uint64
	PktsOut       uint64
	Flags         uint32
	LocalOrIndex  netip.Addr // per spec §4.1, may actually be an ifindex; callers must not assume
	Remote        netip.Addr
}

// MfcCtl is the request passed to AddMFC.
type MfcCtl struct {
	Origin     netip.Addr // 0.0.0.0 means "any"
	Group      netip.Addr
	Parent     int
	TTLs       []uint8 // length must equal current VIF count
}

// MFCEntry is one row observed from /proc/net/ip_mr_cache.
type MFCEntry struct {
	Group    netip.Addr
	Origin   netip.Addr
	IIF      int
	Packets  uint64
	Bytes    uint64
	WrongIF  uint64
	OIFs     map[int]uint8 // vifi -> ttl
}

// VIFCount is the result of SIOCGETVIFCNT.
type VIFCount struct {
	VIFI   int
	ICount uint32
	OCount uint32
	IBytes uint32
	OBytes uint32
}

// MFCCount is the result of SIOCGETSGCNT.
type MFCCount struct {
	Src     netip.Addr
	Group   netip.Addr
	PktCnt  uint32
	ByteCnt uint32
	WrongIF uint32
}
