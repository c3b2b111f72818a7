package kernel

import (
	"net/netip"
	"testing"
)

func TestHostHexToIP(t *testing.T) {
	got, err := hostHexToIP("0100000A")
	if err != nil {
		t.Fatalf("hostHexToIP: %v", err)
	}
	want := netip.MustParseAddr("10.0.0.1")
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestHostHexToIPRejectsWrongWidth(t *testing.T) {
	if _, err := hostHexToIP("04000000EF"); err == nil {
		t.Fatal("expected error for wrong-width hex word")
	}
}

func TestVifctlRoundTrip(t *testing.T) {
	cases := []VifCtl{
		{VIFI: 0, Threshold: 1, RateLimit: 0, Local: ByIndex(3), Remote: VifAddr{Kind: AddrByAddress, Value: 0}},
		{VIFI: 31, Threshold: 5, RateLimit: 1000, Local: ByAddress(netip.MustParseAddr("10.0.0.1")), Remote: ByAddress(netip.MustParseAddr("0.0.0.0"))},
	}
	for _, c := range cases {
		buf := encodeVifctl(c)
		if len(buf) != vifctlSize {
			t.Fatalf("encoded vifctl length = %d, want %d", len(buf), vifctlSize)
		}
		got := decodeVifctl(buf)
		if got.VIFI != c.VIFI || got.Threshold != c.Threshold || got.RateLimit != c.RateLimit {
			t.Errorf("round trip mismatch: got %+v, want %+v", got, c)
		}
		if got.Local.Kind != c.Local.Kind || got.Local.Value != c.Local.Value {
			t.Errorf("local addr round trip mismatch: got %+v, want %+v", got.Local, c.Local)
		}
	}
}

func TestMfcctlRoundTrip(t *testing.T) {
	ttls := make([]uint8, MAXVIFS)
	ttls[0] = 1
	ttls[2] = 1
	m := MfcCtl{
		Origin: netip.MustParseAddr("10.0.0.1"),
		Group:  netip.MustParseAddr("239.0.0.2"),
		Parent: 0,
		TTLs:   ttls,
	}
	buf := encodeMfcctl(m)
	if len(buf) != mfcctlSize {
		t.Fatalf("encoded mfcctl length = %d, want %d", len(buf), mfcctlSize)
	}
	got := decodeMfcctl(buf)
	if got.Origin != m.Origin || got.Group != m.Group || got.Parent != m.Parent {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, m)
	}
	for i := range ttls {
		if got.TTLs[i] != ttls[i] {
			t.Errorf("ttls[%d] = %d, want %d", i, got.TTLs[i], ttls[i])
		}
	}
}

func TestSiocSGReqRoundTrip(t *testing.T) {
	src := netip.MustParseAddr("10.0.0.1")
	grp := netip.MustParseAddr("239.0.0.2")
	buf := encodeSiocSGReq(src, grp)
	if len(buf) != siocSGReqSize {
		t.Fatalf("encoded sioc_sg_req length = %d, want %d", len(buf), siocSGReqSize)
	}
	got := decodeSiocSGReq(buf)
	if got.Src != src || got.Group != grp {
		t.Errorf("got src/group %v/%v, want %v/%v", got.Src, got.Group, src, grp)
	}
}
