package kernel

import (
	"encoding/binary"
	"net/netip"
)

func beUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func putBE32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }

// vifctlSize is the packed size of the kernel's vifctl struct: §6 specifies
// vifi:u16, threshold:u8, flags:u8, rate_limit:u32, lcl_addr:u32, rmt_addr:u32.
const vifctlSize = 16

func encodeVifctl(v VifCtl) []byte {
	buf := make([]byte, vifctlSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(v.VIFI))
	buf[2] = v.Threshold
	flags := uint8(0)
	if v.Local.Kind == AddrByIndex {
		flags |= viffUseIfindex
	}
	buf[3] = flags
	binary.LittleEndian.PutUint32(buf[4:8], v.RateLimit)
	// An ifindex is a native int; an address is an in_addr in network order.
	if v.Local.Kind == AddrByIndex {
		binary.LittleEndian.PutUint32(buf[8:12], v.Local.Value)
	} else {
		putBE32(buf[8:12], v.Local.Value)
	}
	putBE32(buf[12:16], v.Remote.Value)
	return buf
}

func decodeVifctl(buf []byte) VifCtl {
	flags := buf[3]
	local := VifAddr{Value: beUint32(buf[8:12])}
	if flags&viffUseIfindex != 0 {
		local.Kind = AddrByIndex
		local.Value = binary.LittleEndian.Uint32(buf[8:12])
	} else {
		local.Kind = AddrByAddress
	}
	remote := VifAddr{Kind: AddrByAddress, Value: beUint32(buf[12:16])}
	return VifCtl{
		VIFI:      int(binary.LittleEndian.Uint16(buf[0:2])),
		Threshold: buf[2],
		RateLimit: binary.LittleEndian.Uint32(buf[4:8]),
		Local:     local,
		Remote:    remote,
	}
}

// mfcctlSize is the packed size of the kernel's mfcctl struct: §6 specifies
// origin:u32, mcastgroup:u32, parent:u16, ttls:[u8;MAXVIFS], res1:u32,
// res2:u32, expire:u32, 60 bytes total including kernel-ABI padding.
const mfcctlSize = 60

func encodeMfcctl(m MfcCtl) []byte {
	buf := make([]byte, mfcctlSize)
	origin4 := m.Origin.As4()
	group4 := m.Group.As4()
	copy(buf[0:4], origin4[:])
	copy(buf[4:8], group4[:])
	binary.LittleEndian.PutUint16(buf[8:10], uint16(m.Parent))
	// buf[10:12] is kernel-ABI padding.
	ttls := buf[12 : 12+MAXVIFS]
	copy(ttls, m.TTLs)
	// buf[44:60] (res1, res2, expire, trailing pad) left zero: expire is
	// unsupported per spec Open Questions.
	return buf
}

func decodeMfcctl(buf []byte) MfcCtl {
	var origin4, group4 [4]byte
	copy(origin4[:], buf[0:4])
	copy(group4[:], buf[4:8])
	ttls := make([]uint8, MAXVIFS)
	copy(ttls, buf[12:12+MAXVIFS])
	return MfcCtl{
		Origin: netip.AddrFrom4(origin4),
		Group:  netip.AddrFrom4(group4),
		Parent: int(binary.LittleEndian.Uint16(buf[8:10])),
		TTLs:   ttls,
	}
}

// sioc_vif_req: §6 specifies a 24-byte packed layout (H L L L L, with
// kernel-ABI padding after the vifi field).
const siocVifReqSize = 24

func encodeSiocVifReq(vifi int) []byte {
	buf := make([]byte, siocVifReqSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(vifi))
	return buf
}

func decodeSiocVifReq(buf []byte) VIFCount {
	return VIFCount{
		VIFI:   int(binary.LittleEndian.Uint16(buf[0:2])),
		ICount: binary.LittleEndian.Uint32(buf[8:12]),
		OCount: binary.LittleEndian.Uint32(buf[12:16]),
		IBytes: binary.LittleEndian.Uint32(buf[16:20]),
		OBytes: binary.LittleEndian.Uint32(buf[20:24]),
	}
}

// sioc_sg_req: §6 specifies a 24-byte packed layout (4s 4s L L L).
const siocSGReqSize = 24

func encodeSiocSGReq(src, group netip.Addr) []byte {
	buf := make([]byte, siocSGReqSize)
	s4 := src.As4()
	g4 := group.As4()
	copy(buf[0:4], s4[:])
	copy(buf[4:8], g4[:])
	return buf
}

func decodeSiocSGReq(buf []byte) MFCCount {
	var s4, g4 [4]byte
	copy(s4[:], buf[0:4])
	copy(g4[:], buf[4:8])
	return MFCCount{
		Src:     netip.AddrFrom4(s4),
		Group:   netip.AddrFrom4(g4),
		PktCnt:  binary.LittleEndian.Uint32(buf[8:12]),
		ByteCnt: binary.LittleEndian.Uint32(buf[12:16]),
		WrongIF: binary.LittleEndian.Uint32(buf[16:20]),
	}
}
