package daemon

import (
	"database/sql"
	"net/netip"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mrouted/internal/audit"
	"mrouted/internal/kernel"
	"mrouted/internal/mfc"
)

// fakeVIFs and fakeBridge mirror the doubles in internal/mfc's own tests;
// Start() itself needs a real raw socket and is exercised by hand, not by
// this suite — what's tested here is the auditing wrapper's behavior,
// which is pure logic independent of the kernel.
type fakeVIFs struct{ count int }

func (f *fakeVIFs) VIFI(name string) (int, error) { return 0, nil }
func (f *fakeVIFs) MakeTTLs(ttlByName map[string]uint8) ([]uint8, error) {
	return make([]uint8, f.count), nil
}

type fakeBridge struct{}

func (f *fakeBridge) AddMFC(kernel.MfcCtl) error                      { return nil }
func (f *fakeBridge) DelMFC(origin, group netip.Addr, parent int) error { return nil }

func TestAuditingMFCLogsOnPromotion(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := audit.InitSchema(db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	logger := audit.NewBufferedLogger(db, 100, time.Hour, nil)

	vifs := &fakeVIFs{count: 2}
	bridge := &fakeBridge{}
	manager := mfc.New(vifs, bridge)
	group := netip.MustParseAddr("239.0.0.5")
	if err := manager.Add(mfc.MRoute{From: "a1", Group: group, Source: netip.IPv4Unspecified(), To: map[string]uint8{"a2": 1}}); err != nil {
		t.Fatal(err)
	}

	wrapped := auditingMFC{mfc: manager, auditLogger: logger}
	matched, err := wrapped.HandleNOCACHE(0, netip.MustParseAddr("10.10.0.7"), group)
	if err != nil {
		t.Fatalf("HandleNOCACHE: %v", err)
	}
	if !matched {
		t.Fatal("expected a match")
	}
	// nocache_promote is not a critical action, so it sits in the buffer
	// until Flush.
	if err := logger.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_logs WHERE action = ?`, audit.ActionNoCachePromote).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one nocache_promote audit row, got %d", count)
	}
}

func TestAuditingMFCNoLogOnDrop(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	if err := audit.InitSchema(db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	logger := audit.NewBufferedLogger(db, 100, time.Hour, nil)

	vifs := &fakeVIFs{count: 2}
	manager := mfc.New(vifs, &fakeBridge{})
	wrapped := auditingMFC{mfc: manager, auditLogger: logger}

	matched, err := wrapped.HandleNOCACHE(0, netip.MustParseAddr("10.10.0.7"), netip.MustParseAddr("239.0.0.9"))
	if err != nil {
		t.Fatalf("HandleNOCACHE: %v", err)
	}
	if matched {
		t.Fatal("expected no match for unregistered group")
	}
	if err := logger.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no audit row on drop, got %d", count)
	}
}
