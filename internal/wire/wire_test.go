package wire

import (
	"net/netip"
	"testing"
)

func mustAddr(t *testing.T, s string) netip.Addr {
	t.Helper()
	a, err := netip.ParseAddr(s)
	if err != nil {
		t.Fatalf("parsing test address %q: %v", s, err)
	}
	return a
}

func TestParseIGMPMembershipQuery(t *testing.T) {
	buf := []byte{0x11, 0x00, 0x94, 0x04, 0xef, 0x00, 0x00, 0x01}
	got, err := ParseIGMP(buf)
	if err != nil {
		t.Fatalf("ParseIGMP: %v", err)
	}
	igmp, ok := got.(IGMP)
	if !ok {
		t.Fatalf("expected IGMP, got %T", got)
	}
	want := IGMP{Type: MembershipQuery, MaxResponseTime: 0, Checksum: 0x9404, Group: mustAddr(t, "239.0.0.1")}
	if igmp != want {
		t.Errorf("got %+v, want %+v", igmp, want)
	}
}

func TestParseIGMPV2LeaveGroup(t *testing.T) {
	buf := []byte{0x17, 0x00, 0x94, 0x04, 0xef, 0x00, 0x00, 0x04}
	got, err := ParseIGMP(buf)
	if err != nil {
		t.Fatalf("ParseIGMP: %v", err)
	}
	igmp, ok := got.(IGMP)
	if !ok {
		t.Fatalf("expected IGMP, got %T", got)
	}
	want := IGMP{Type: V2LeaveGroup, MaxResponseTime: 0, Checksum: 0x9404, Group: mustAddr(t, "239.0.0.4")}
	if igmp != want {
		t.Errorf("got %+v, want %+v", igmp, want)
	}
}

func TestParseIPHeaderAndControlUpcall(t *testing.T) {
	buf := []byte{
		0x45, 0x00, 0x00, 0x1c, 0x00, 0x00, 0x40, 0x00, 0x01, 0x00,
		0x00, 0x00, 0x0a, 0x00, 0x00, 0x01, 0xef, 0x00, 0x00, 0x04,
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	ip, err := ParseIPHeader(buf[:20])
	if err != nil {
		t.Fatalf("ParseIPHeader: %v", err)
	}
	if ip.Protocol != ProtoControl {
		t.Errorf("protocol = %v, want ProtoControl", ip.Protocol)
	}
	if ip.Src != mustAddr(t, "10.0.0.1") || ip.Dst != mustAddr(t, "239.0.0.4") {
		t.Errorf("src/dst = %v/%v, want 10.0.0.1/239.0.0.4", ip.Src, ip.Dst)
	}

	body := buf[ip.IHL*4:]
	if len(body) != 8 {
		t.Fatalf("upcall body length = %d, want 8", len(body))
	}
	ctl, err := ParseIGMPControl(body)
	if err != nil {
		t.Fatalf("ParseIGMPControl: %v", err)
	}
	want := IGMPControl{MsgType: IGMPMSGNoCache, MBZ: 0, VIF: 0, VIFHi: 0, Src: mustAddr(t, "0.0.0.0")}
	if ctl != want {
		t.Errorf("got %+v, want %+v", ctl, want)
	}
}

func TestParseIGMPControlShortBuffer(t *testing.T) {
	if _, err := ParseIGMPControl([]byte{0x01, 0x00}); err == nil {
		t.Fatal("expected error for short buffer")
	}
}

func TestParseIPHeaderRejectsShortIHL(t *testing.T) {
	buf := make([]byte, 20)
	buf[0] = 0x44 // version 4, ihl 4 (< 5)
	if _, err := ParseIPHeader(buf); err == nil {
		t.Fatal("expected error for ihl < 5")
	}
}

func TestParseIPHeaderRejectsShortBuffer(t *testing.T) {
	if _, err := ParseIPHeader(make([]byte, 19)); err == nil {
		t.Fatal("expected error for buffer shorter than 20 bytes")
	}
}
