package upcall

import (
	"context"
	"errors"
	"net/netip"
	"testing"
)

// fakeReceiver replays a fixed sequence of datagrams, then returns an error
// on every further call without blocking — Run's ctx.Err() check is what
// actually ends the loop in these tests.
type fakeReceiver struct {
	frames [][]byte
	pos    int
}

func (f *fakeReceiver) Recv(buf []byte) (int, error) {
	if f.pos >= len(f.frames) {
		return 0, errors.New("no more frames")
	}
	n := copy(buf, f.frames[f.pos])
	f.pos++
	return n, nil
}

type fakeMFC struct {
	calls []struct {
		iif   int
		src   netip.Addr
		group netip.Addr
	}
	match bool
}

func (f *fakeMFC) HandleNOCACHE(iif int, src, group netip.Addr) (bool, error) {
	f.calls = append(f.calls, struct {
		iif   int
		src   netip.Addr
		group netip.Addr
	}{iif, src, group})
	return f.match, nil
}

// buildNOCACHE constructs a minimal 20-byte IP header (protocol 0, the
// CONTROL overload) followed by the 8-byte IGMPMSG body, matching the
// golden vector's structure.
func buildNOCACHE(src, dst netip.Addr, vif int) []byte {
	buf := make([]byte, 28)
	buf[0] = 0x45 // version 4, IHL 5
	s := src.As4()
	d := dst.As4()
	copy(buf[12:16], s[:])
	copy(buf[16:20], d[:])
	buf[20] = 1 // NOCACHE
	buf[21] = 0
	buf[22] = byte(vif)
	buf[23] = byte(vif >> 8)
	return buf
}

func TestHandleControlNOCACHEDispatchesToMFC(t *testing.T) {
	src := netip.MustParseAddr("10.10.0.7")
	dst := netip.MustParseAddr("239.0.0.5")
	frame := buildNOCACHE(src, dst, 2)

	mfc := &fakeMFC{match: true}
	d := New(&fakeReceiver{}, mfc, nil)
	d.handle(frame)

	if len(mfc.calls) != 1 {
		t.Fatalf("expected one HandleNOCACHE call, got %d", len(mfc.calls))
	}
	call := mfc.calls[0]
	if call.iif != 2 || call.src != src || call.group != dst {
		t.Errorf("unexpected call: %+v", call)
	}
	if d.NoCache != 1 {
		t.Errorf("NoCache counter = %d, want 1", d.NoCache)
	}
}

func TestHandleMalformedIPHeaderCountsAndDoesNotPanic(t *testing.T) {
	d := New(&fakeReceiver{}, &fakeMFC{}, nil)
	d.handle([]byte{0x01, 0x02})
	if d.Malformed != 1 {
		t.Errorf("Malformed counter = %d, want 1", d.Malformed)
	}
}

type fakeSink struct {
	events []struct {
		eventType string
		data      interface{}
		level     string
	}
}

func (f *fakeSink) Broadcast(eventType string, data interface{}, level string) {
	f.events = append(f.events, struct {
		eventType string
		data      interface{}
		level     string
	}{eventType, data, level})
}

func TestHandleControlNOCACHEEmitsToSinkOnMatch(t *testing.T) {
	src := netip.MustParseAddr("10.10.0.7")
	dst := netip.MustParseAddr("239.0.0.5")
	frame := buildNOCACHE(src, dst, 2)

	sink := &fakeSink{}
	d := New(&fakeReceiver{}, &fakeMFC{match: true}, sink)
	d.handle(frame)

	if len(sink.events) != 1 || sink.events[0].eventType != "nocache_promote" {
		t.Fatalf("expected one nocache_promote event, got %+v", sink.events)
	}
}

func TestHandleControlNOCACHEEmitsDroppedOnNoMatch(t *testing.T) {
	src := netip.MustParseAddr("10.10.0.7")
	dst := netip.MustParseAddr("239.0.0.5")
	frame := buildNOCACHE(src, dst, 2)

	sink := &fakeSink{}
	d := New(&fakeReceiver{}, &fakeMFC{match: false}, sink)
	d.handle(frame)

	if len(sink.events) != 1 || sink.events[0].eventType != "nocache_dropped" {
		t.Fatalf("expected one nocache_dropped event, got %+v", sink.events)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d := New(&fakeReceiver{}, &fakeMFC{}, nil)
	if err := d.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
