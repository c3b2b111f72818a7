// Package daemon implements the Orchestrator: it wires the Kernel Bridge,
// VIF Manager, MFC Manager, and Upcall Dispatcher together in the boot
// order the original daemon uses (flush, disable PIM, enable MRT, install
// configured VIFs, install configured routes, start listening), and owns
// the signal-driven shutdown sequence.
package daemon

import (
	"context"
	"log"
	"net/netip"
	"time"

	"mrouted/internal/audit"
	"mrouted/internal/config"
	"mrouted/internal/kernel"
	"mrouted/internal/mfc"
	"mrouted/internal/upcall"
	"mrouted/internal/vif"
)

// Orchestrator owns every live subsystem for the lifetime of the process.
type Orchestrator struct {
	Bridge     *kernel.Bridge
	VIFs       *vif.Manager
	MFCs       *mfc.Manager
	Dispatcher *upcall.Dispatcher
	Audit      *audit.BufferedLogger

	cancel context.CancelFunc
	done   chan struct{}
}

// Start opens the IGMP socket, applies cfg, and launches the upcall
// Dispatcher in a background goroutine. The boot order mirrors the
// original daemon: flush stale state, disable PIM, enable MRT, then
// install VIFs before routes (routes reference VIF indices). sink may be
// nil, in which case upcall events are counted but never broadcast to a
// live monitor feed.
func Start(cfg config.Config, auditLogger *audit.BufferedLogger, sink upcall.EventSink) (*Orchestrator, error) {
	bridge, err := kernel.Open()
	if err != nil {
		return nil, err
	}

	if err := bridge.Flush(true, true, true); err != nil {
		bridge.Close()
		return nil, err
	}
	if err := bridge.DisablePIM(); err != nil {
		bridge.Close()
		return nil, err
	}
	if err := bridge.EnableMRT(); err != nil {
		bridge.Close()
		return nil, err
	}
	audit.LogOrWarn(auditLogger, audit.ActionMRTEnable, "", "", true)

	vifs := vif.New(vif.NewBridgeAdapter(bridge))
	if err := vifs.Refresh(); err != nil {
		bridge.Close()
		return nil, err
	}
	for _, iface := range cfg.Phyint {
		if err := vifs.Add(iface, nil, 1); err != nil {
			bridge.Close()
			return nil, err
		}
		audit.LogOrWarn(auditLogger, audit.ActionVIFAdd, iface.Name, "", true)
	}

	mfcs := mfc.New(vifs, mfc.NewBridgeAdapter(bridge))
	for _, route := range cfg.MRoute {
		if err := mfcs.Add(route); err != nil {
			bridge.Close()
			return nil, err
		}
		audit.LogOrWarn(auditLogger, audit.ActionMFCAdd, route.From+" -> "+route.Group.String(), "", true)
	}

	dispatcher := upcall.New(bridge, auditingMFC{mfc: mfcs, auditLogger: auditLogger}, sink)

	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		Bridge:     bridge,
		VIFs:       vifs,
		MFCs:       mfcs,
		Dispatcher: dispatcher,
		Audit:      auditLogger,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	go func() {
		defer close(o.done)
		if err := dispatcher.Run(ctx); err != nil {
			log.Printf("daemon: dispatcher exited: %v", err)
		}
	}()

	return o, nil
}

// auditingMFC wraps the MFC Manager so every successful NOCACHE promotion
// is recorded in the audit trail without the Dispatcher itself knowing
// about auditing.
type auditingMFC struct {
	mfc         *mfc.Manager
	auditLogger *audit.BufferedLogger
}

func (a auditingMFC) HandleNOCACHE(iif int, src, group netip.Addr) (bool, error) {
	matched, err := a.mfc.HandleNOCACHE(iif, src, group)
	if err == nil && matched {
		audit.LogOrWarn(a.auditLogger, audit.ActionNoCachePromote, group.String()+" from "+src.String(), "", true)
	}
	return matched, err
}

// Shutdown flushes kernel state and stops the Dispatcher. Matches the
// spec's SIGTERM handling: flush, close, exit 0.
func (o *Orchestrator) Shutdown() {
	o.cancel()
	select {
	case <-o.done:
	case <-time.After(5 * time.Second):
		log.Printf("daemon: dispatcher did not stop within timeout")
	}
	if err := o.Bridge.Flush(true, true, true); err != nil {
		log.Printf("daemon: flush on shutdown failed: %v", err)
	}
	if err := o.Bridge.DisableMRT(); err != nil {
		log.Printf("daemon: disable MRT on shutdown failed: %v", err)
	}
	audit.LogOrWarn(o.Audit, audit.ActionMRTDisable, "", "", true)
	o.Bridge.Close()
}
