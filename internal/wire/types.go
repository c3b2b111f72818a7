// Package wire decodes the binary formats the kernel and other hosts speak
// on the IGMP socket: IP headers, IGMPv1/v2/v3 messages, and the 8-byte
// IGMPMSG upcall preamble. Every decoder here is a pure function over a byte
// slice; none of them touch the network or hold state.
package wire

import "net/netip"

// IPProtocol mirrors the subset of IP protocol numbers this daemon cares
// about. CONTROL (0) is not a real IP protocol; the kernel overloads it to
// mark an IGMPMSG upcall.
type IPProtocol int

const (
	ProtoControl IPProtocol = 0
	ProtoIGMP    IPProtocol = 2
	ProtoPIM     IPProtocol = 103
)

// IGMPType is the type byte of an IGMP fixed header.
type IGMPType int

const (
	MembershipQuery    IGMPType = 0x11
	V1MembershipReport IGMPType = 0x12
	V2MembershipReport IGMPType = 0x16
	V2LeaveGroup       IGMPType = 0x17
	V3MembershipReport IGMPType = 0x22
)

// IGMPv3RecordType is the type byte of an IGMPv3 group record.
type IGMPv3RecordType int

const (
	ModeIsInclude        IGMPv3RecordType = 1
	ModeIsExclude        IGMPv3RecordType = 2
	ChangeToIncludeMode  IGMPv3RecordType = 3
	ChangeToExcludeMode  IGMPv3RecordType = 4
	AllowNewSources      IGMPv3RecordType = 5
	BlockOldSources      IGMPv3RecordType = 6
)

// ControlMsgType is the msgtype byte of an IGMPMSG upcall.
type ControlMsgType int

const (
	IGMPMSGNoCache  ControlMsgType = 1
	IGMPMSGWrongVIF ControlMsgType = 2
	IGMPMSGWholePkt ControlMsgType = 3
)

// IPHeader is the minimal 20-byte IPv4 header.
type IPHeader struct {
	Version  int
	IHL      int
	TOS      int
	TotLen   int
	ID       int
	FragOff  int
	TTL      int
	Protocol IPProtocol
	Check    int
	Src      netip.Addr
	Dst      netip.Addr
}

// IGMP is a plain v1/v2 IGMP message.
type IGMP struct {
	Type            IGMPType
	MaxResponseTime int
	Checksum        int
	Group           netip.Addr
}

// IGMPv3Query is an IGMPv3 membership query, decoded when the v1/v2 header
// is followed by at least 4 more bytes.
type IGMPv3Query struct {
	Type                  IGMPType
	MaxResponseTime       int
	Checksum              int
	Group                 netip.Addr
	Suppress              bool
	QuerierRobustness     int
	QQIC                  int
	QuerierQueryInterval  int
	NumSources            int
	SourceList            []netip.Addr
}

// IGMPv3Record is one group record inside an IGMPv3MembershipReport.
type IGMPv3Record struct {
	Type       IGMPv3RecordType
	AuxWords   int
	NumSources int
	Group      netip.Addr
	SourceList []netip.Addr
	AuxData    []byte
}

// IGMPv3MembershipReport is a v3 membership report: a list of group records.
type IGMPv3MembershipReport struct {
	Type       IGMPType
	Checksum   int
	NumRecords int
	Records    []IGMPv3Record
}

// IGMPControl is the 8-byte control message the kernel delivers on the IGMP
// socket whenever a multicast packet needs attention from user space.
type IGMPControl struct {
	MsgType ControlMsgType
	MBZ     int
	VIF     int
	VIFHi   int
	Src     netip.Addr
	Dst     netip.Addr
}

// VIFIndex returns the full 16-bit VIF index reassembled from the low/high bytes.
func (c IGMPControl) VIFIndex() int {
	return c.VIF | (c.VIFHi << 8)
}
