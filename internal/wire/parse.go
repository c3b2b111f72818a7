package wire

import (
	"encoding/binary"
	"net/netip"

	"mrouted/internal/merrors"
)

func addrFromBytes(b []byte) netip.Addr {
	var a [4]byte
	copy(a[:], b)
	return netip.AddrFrom4(a)
}

func malformed(what string) error {
	return merrors.New(merrors.Malformed, what)
}

// ParseIPHeader decodes the 20-byte-minimum IPv4 header. IHL < 5 is an error.
func ParseIPHeader(buf []byte) (IPHeader, error) {
	if len(buf) < 20 {
		return IPHeader{}, malformed("ip header: buffer shorter than 20 bytes")
	}
	version := int(buf[0] >> 4)
	ihl := int(buf[0] & 0x0f)
	if ihl < 5 {
		return IPHeader{}, malformed("ip header: ihl < 5")
	}
	return IPHeader{
		Version:  version,
		IHL:      ihl,
		TOS:      int(buf[1]),
		TotLen:   int(binary.BigEndian.Uint16(buf[2:4])),
		ID:       int(binary.BigEndian.Uint16(buf[4:6])),
		FragOff:  int(binary.BigEndian.Uint16(buf[6:8])),
		TTL:      int(buf[8]),
		Protocol: IPProtocol(buf[9]),
		Check:    int(binary.BigEndian.Uint16(buf[10:12])),
		Src:      addrFromBytes(buf[12:16]),
		Dst:      addrFromBytes(buf[16:20]),
	}, nil
}

// decodeQQIC implements the exponential mantissa decode: when the high bit
// is set, value = (mant|0x10) << (exp+3) with exp = bits 6-4, mant = bits 3-0;
// otherwise the byte is the literal value.
func decodeQQIC(b byte) int {
	if b&0x80 == 0 {
		return int(b)
	}
	exp := int((b >> 4) & 0x07)
	mant := int(b & 0x0f)
	return (mant | 0x10) << uint(exp+3)
}

// ParseIGMP decodes the 8-byte IGMP fixed header, discriminating into a
// plain IGMP message, an IGMPv3 query (>= 4 trailing bytes), or leaving v3
// membership reports to ParseIGMPv3MembershipReport (type == 0x22).
func ParseIGMP(buf []byte) (interface{}, error) {
	if len(buf) < 8 {
		return nil, malformed("igmp: buffer shorter than 8 bytes")
	}
	typ := IGMPType(buf[0])
	if typ == V3MembershipReport {
		return ParseIGMPv3MembershipReport(buf)
	}
	if typ == MembershipQuery && len(buf) >= 12 {
		return parseIGMPv3Query(buf)
	}
	return IGMP{
		Type:            typ,
		MaxResponseTime: int(buf[1]),
		Checksum:        int(binary.BigEndian.Uint16(buf[2:4])),
		Group:           addrFromBytes(buf[4:8]),
	}, nil
}

func parseIGMPv3Query(buf []byte) (IGMPv3Query, error) {
	if len(buf) < 12 {
		return IGMPv3Query{}, malformed("igmpv3 query: buffer shorter than 12 bytes")
	}
	rsqrv := buf[8]
	qqicByte := buf[9]
	numSources := int(binary.BigEndian.Uint16(buf[10:12]))
	need := 12 + numSources*4
	if len(buf) < need {
		return IGMPv3Query{}, malformed("igmpv3 query: source list overruns buffer")
	}
	sources := make([]netip.Addr, numSources)
	for i := 0; i < numSources; i++ {
		off := 12 + i*4
		sources[i] = addrFromBytes(buf[off : off+4])
	}
	return IGMPv3Query{
		Type:                 MembershipQuery,
		MaxResponseTime:      int(buf[1]),
		Checksum:             int(binary.BigEndian.Uint16(buf[2:4])),
		Group:                addrFromBytes(buf[4:8]),
		Suppress:             rsqrv&0x08 != 0,
		QuerierRobustness:    int(rsqrv & 0x07),
		QQIC:                 int(qqicByte),
		QuerierQueryInterval: decodeQQIC(qqicByte),
		NumSources:           numSources,
		SourceList:           sources,
	}, nil
}

// ParseIGMPv3MembershipReport decodes a v3 membership report: an 8-byte
// header followed by num_records tightly packed group records.
func ParseIGMPv3MembershipReport(buf []byte) (IGMPv3MembershipReport, error) {
	if len(buf) < 8 {
		return IGMPv3MembershipReport{}, malformed("igmpv3 report: buffer shorter than 8 bytes")
	}
	numRecords := int(binary.BigEndian.Uint16(buf[6:8]))
	records := make([]IGMPv3Record, 0, numRecords)
	off := 8
	for i := 0; i < numRecords; i++ {
		if len(buf) < off+8 {
			return IGMPv3MembershipReport{}, malformed("igmpv3 report: record header overruns buffer")
		}
		recType := IGMPv3RecordType(buf[off])
		auxWords := int(buf[off+1])
		numSources := int(binary.BigEndian.Uint16(buf[off+2 : off+4]))
		group := addrFromBytes(buf[off+4 : off+8])
		srcOff := off + 8
		srcEnd := srcOff + numSources*4
		if len(buf) < srcEnd {
			return IGMPv3MembershipReport{}, malformed("igmpv3 report: source list overruns buffer")
		}
		sources := make([]netip.Addr, numSources)
		for s := 0; s < numSources; s++ {
			sOff := srcOff + s*4
			sources[s] = addrFromBytes(buf[sOff : sOff+4])
		}
		auxEnd := srcEnd + auxWords*4
		if len(buf) < auxEnd {
			return IGMPv3MembershipReport{}, malformed("igmpv3 report: auxiliary data overruns buffer")
		}
		records = append(records, IGMPv3Record{
			Type:       recType,
			AuxWords:   auxWords,
			NumSources: numSources,
			Group:      group,
			SourceList: sources,
			AuxData:    append([]byte(nil), buf[srcEnd:auxEnd]...),
		})
		off = auxEnd
	}
	return IGMPv3MembershipReport{
		Type:       V3MembershipReport,
		Checksum:   int(binary.BigEndian.Uint16(buf[2:4])),
		NumRecords: numRecords,
		Records:    records,
	}, nil
}

// ParseIGMPControl decodes the 8-byte IGMPMSG control body that follows the
// 20-byte IP header of a kernel upcall: msgtype, mbz, vif, vif_hi, and the
// triggering packet's source address. The destination (multicast group) is
// not part of this 8-byte body — callers reading a real upcall must take it
// from the enclosing IP header's destination field (see internal/upcall),
// which is why Dst here is always the zero value when decoded standalone.
func ParseIGMPControl(buf []byte) (IGMPControl, error) {
	if len(buf) < 8 {
		return IGMPControl{}, malformed("igmp control: buffer shorter than 8 bytes")
	}
	return IGMPControl{
		MsgType: ControlMsgType(buf[0]),
		MBZ:     int(buf[1]),
		VIF:     int(buf[2]),
		VIFHi:   int(buf[3]),
		Src:     addrFromBytes(buf[4:8]),
	}, nil
}
