// Package upcall implements the Dispatcher: the blocking read loop over the
// IGMP socket that classifies inbound datagrams and routes IGMPMSG upcalls
// to the MFC Manager. Grounded on the original implementation's
// ControlMessageHandler/_daemon_listener read loop.
package upcall

import (
	"context"
	"errors"
	"log"
	"net/netip"

	"mrouted/internal/wire"
)

// Receiver is the subset of the Kernel Bridge the Dispatcher reads from.
type Receiver interface {
	Recv(buf []byte) (int, error)
}

// MFCHandler is the subset of the MFC Manager the Dispatcher drives on a
// NOCACHE upcall.
type MFCHandler interface {
	HandleNOCACHE(iif int, src, group netip.Addr) (bool, error)
}

// EventSink receives a notification for every classified upcall, so the
// REST layer's websocket monitor feed can show live NOCACHE promotions,
// drops, and WRONGVIF/WHOLEPKT events alongside REST-originated mutations.
type EventSink interface {
	Broadcast(eventType string, data interface{}, level string)
}

// Dispatcher owns the read loop. Recv errors are logged and the loop
// continues; a cancelled context is the only clean exit.
type Dispatcher struct {
	recv Receiver
	mfc  MFCHandler
	sink EventSink // nil disables live event broadcast

	// Stats are best-effort counters surfaced by the REST layer; they are
	// not protected against concurrent reads beyond Go's memory model for
	// plain integer loads/stores, which is acceptable for diagnostics.
	NoCache   uint64
	WrongVIF  uint64
	WholePkt  uint64
	Malformed uint64
}

// New constructs a Dispatcher bound to recv and mfc. sink may be nil, in
// which case upcall events are counted but never broadcast.
func New(recv Receiver, mfc MFCHandler, sink EventSink) *Dispatcher {
	return &Dispatcher{recv: recv, mfc: mfc, sink: sink}
}

// emit broadcasts a classified upcall to the monitor feed, if one is wired.
func (d *Dispatcher) emit(eventType string, src, group netip.Addr, iif int) {
	if d.sink == nil {
		return
	}
	d.sink.Broadcast(eventType, map[string]interface{}{
		"src":   src.String(),
		"group": group.String(),
		"iif":   iif,
	}, "info")
}

// Run blocks, reading and classifying datagrams until ctx is cancelled.
// Because Recv itself is a blocking syscall with no context support, Run
// checks ctx.Err() between reads; a real shutdown additionally closes the
// underlying Bridge so the blocked Recv call unblocks with an error.
func (d *Dispatcher) Run(ctx context.Context) error {
	buf := make([]byte, 6000)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		n, err := d.recv.Recv(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("upcall: read error: %v", err)
			continue
		}
		d.handle(buf[:n])
	}
}

func (d *Dispatcher) handle(buf []byte) {
	ip, err := wire.ParseIPHeader(buf)
	if err != nil {
		d.Malformed++
		log.Printf("upcall: malformed IP header: %v", err)
		return
	}

	switch ip.Protocol {
	case wire.ProtoControl:
		d.handleControl(ip, buf)
	case wire.ProtoIGMP:
		d.handleIGMP(ip, buf)
	default:
		// PIM and anything else is outside this daemon's scope; observed
		// and dropped.
	}
}

func (d *Dispatcher) handleControl(ip wire.IPHeader, buf []byte) {
	offset := ip.IHL * 4
	if offset > len(buf) {
		d.Malformed++
		return
	}
	ctl, err := wire.ParseIGMPControl(buf[offset:])
	if err != nil {
		d.Malformed++
		log.Printf("upcall: malformed control message: %v", err)
		return
	}

	// ParseIGMPControl never populates Dst (the 8-byte body has no room for
	// it), and ctl.Src holds whatever bytes 4-7 of the body carry. The
	// multicast group and triggering source used here are taken from the
	// enclosing IP header, not from the control body.
	group := ip.Dst
	src := ip.Src

	switch ctl.MsgType {
	case wire.IGMPMSGNoCache:
		d.NoCache++
		matched, err := d.mfc.HandleNOCACHE(ctl.VIFIndex(), src, group)
		if err != nil {
			log.Printf("upcall: NOCACHE handling failed for %s -> %s: %v", src, group, err)
			return
		}
		if matched {
			d.emit("nocache_promote", src, group, ctl.VIFIndex())
		} else {
			log.Printf("upcall: NOCACHE dropped, no dynamic template for iif=%d group=%s", ctl.VIFIndex(), group)
			d.emit("nocache_dropped", src, group, ctl.VIFIndex())
		}
	case wire.IGMPMSGWrongVIF:
		d.WrongVIF++
		// No forwarding-topology correction is implemented; observed only.
		d.emit("wrongvif", src, group, ctl.VIFIndex())
	case wire.IGMPMSGWholePkt:
		d.WholePkt++
		// PIM-Register-style whole-packet delivery; observed only, no
		// decapsulation performed since PIM is out of scope.
		d.emit("wholepkt", src, group, ctl.VIFIndex())
	}
}

func (d *Dispatcher) handleIGMP(ip wire.IPHeader, buf []byte) {
	offset := ip.IHL * 4
	if offset > len(buf) {
		d.Malformed++
		return
	}
	if _, err := wire.ParseIGMP(buf[offset:]); err != nil {
		d.Malformed++
		log.Printf("upcall: malformed IGMP message from %s: %v", ip.Src, err)
	}
	// Host-side IGMP traffic is observed for diagnostics only; membership
	// tracking is the kernel's job once MRT_INIT is active.
}

// ErrClosed is returned by a Receiver implementation when its underlying
// socket has been closed out from under a blocked Recv call.
var ErrClosed = errors.New("upcall: receiver closed")
