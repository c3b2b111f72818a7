package kernel

import (
	"bufio"
	"encoding/hex"
	"net/netip"
	"os"
	"strconv"
	"strings"

	"mrouted/internal/merrors"
)

const (
	procIPMRVif   = "/proc/net/ip_mr_vif"
	procIPMRCache = "/proc/net/ip_mr_cache"
)

// hostHexToIP converts an 8-hex-digit host-byte-order word to an IPv4
// address by reversing the bytes and reinterpreting as big-endian, matching
// pygmp.kernel.host_hex_to_ip.
func hostHexToIP(s string) (netip.Addr, error) {
	if len(s) != 8 {
		return netip.Addr{}, merrors.New(merrors.Malformed, "hex word has wrong width: "+s)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return netip.Addr{}, merrors.Wrap(merrors.Malformed, err, "decoding hex word "+s)
	}
	var a [4]byte
	a[0], a[1], a[2], a[3] = raw[3], raw[2], raw[1], raw[0]
	return netip.AddrFrom4(a), nil
}

func openProc(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, merrors.Wrap(merrors.NotAvailable, err, "opening "+path)
		}
		return nil, merrors.Wrap(merrors.KernelError, err, "opening "+path)
	}
	return f, nil
}

// ReadVIFTable parses /proc/net/ip_mr_vif. Columns:
// vifi name bytes_in pkts_in bytes_out pkts_out flags local remote.
// A line with fewer than 9 fields is a hard parse error.
func ReadVIFTable() ([]VifTableEntry, error) {
	f, err := openProc(procIPMRVif)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []VifTableEntry
	scanner := bufio.NewScanner(f)
	scanner.Scan() // skip header line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			return nil, merrors.New(merrors.Malformed, "ip_mr_vif: line has fewer than 9 fields: "+line)
		}
		vifi, err := strconv.Atoi(fields[0])
		if err != nil {
			return nil, merrors.Wrap(merrors.Malformed, err, "ip_mr_vif: parsing vifi")
		}
		bytesIn, _ := strconv.ParseUint(fields[2], 10, 64)
		pktsIn, _ := strconv.ParseUint(fields[3], 10, 64)
		bytesOut, _ := strconv.ParseUint(fields[4], 10, 64)
		pktsOut, _ := strconv.ParseUint(fields[5], 10, 64)
		flags, err := strconv.ParseUint(fields[6], 16, 32)
		if err != nil {
			return nil, merrors.Wrap(merrors.Malformed, err, "ip_mr_vif: parsing flags")
		}
		local, err := hostHexToIP(fields[7])
		if err != nil {
			return nil, err
		}
		remote, err := hostHexToIP(fields[8])
		if err != nil {
			return nil, err
		}
		entries = append(entries, VifTableEntry{
			VIFI:         vifi,
			Name:         fields[1],
			BytesIn:      bytesIn,
			PktsIn:       pktsIn,
			BytesOut:     bytesOut,
			PktsOut:      pktsOut,
			Flags:        uint32(flags),
			LocalOrIndex: local,
			Remote:       remote,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KernelError, err, "reading "+procIPMRVif)
	}
	return entries, nil
}

// ReadMFCTable parses /proc/net/ip_mr_cache. Columns:
// group origin iif pkts bytes wrong_if [vifi:ttl]...
// A line with fewer than 6 fields is a hard parse error.
func ReadMFCTable() ([]MFCEntry, error) {
	f, err := openProc(procIPMRCache)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []MFCEntry
	scanner := bufio.NewScanner(f)
	scanner.Scan() // skip header line
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			return nil, merrors.New(merrors.Malformed, "ip_mr_cache: line has fewer than 6 fields: "+line)
		}
		group, err := hostHexToIP(fields[0])
		if err != nil {
			return nil, err
		}
		origin, err := hostHexToIP(fields[1])
		if err != nil {
			return nil, err
		}
		iif, err := strconv.Atoi(fields[2])
		if err != nil {
			return nil, merrors.Wrap(merrors.Malformed, err, "ip_mr_cache: parsing iif")
		}
		pkts, _ := strconv.ParseUint(fields[3], 10, 64)
		bytesCnt, _ := strconv.ParseUint(fields[4], 10, 64)
		wrongIf, _ := strconv.ParseUint(fields[5], 10, 64)

		oifs := make(map[int]uint8)
		for _, tok := range fields[6:] {
			parts := strings.SplitN(tok, ":", 2)
			if len(parts) != 2 {
				return nil, merrors.New(merrors.Malformed, "ip_mr_cache: malformed oif pair: "+tok)
			}
			vifi, err := strconv.Atoi(parts[0])
			if err != nil {
				return nil, merrors.Wrap(merrors.Malformed, err, "ip_mr_cache: parsing oif vifi")
			}
			ttl, err := strconv.Atoi(parts[1])
			if err != nil {
				return nil, merrors.Wrap(merrors.Malformed, err, "ip_mr_cache: parsing oif ttl")
			}
			oifs[vifi] = uint8(ttl)
		}

		entries = append(entries, MFCEntry{
			Group:   group,
			Origin:  origin,
			IIF:     iif,
			Packets: pkts,
			Bytes:   bytesCnt,
			WrongIF: wrongIf,
			OIFs:    oifs,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, merrors.Wrap(merrors.KernelError, err, "reading "+procIPMRCache)
	}
	return entries, nil
}
