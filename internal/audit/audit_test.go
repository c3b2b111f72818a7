package audit

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := InitSchema(db); err != nil {
		t.Fatalf("InitSchema: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestBufferedLoggerFlushesAndChains(t *testing.T) {
	db := openTestDB(t)
	key := []byte("0123456789abcdef0123456789abcdef")
	bl := NewBufferedLogger(db, 100, time.Hour, key)

	events := []AuditEvent{
		{Timestamp: 1, Action: ActionVIFAdd, Resource: "a1", Success: true},
		{Timestamp: 2, Action: ActionNoCachePromote, Resource: "239.0.0.5@0", Success: true},
	}
	for _, e := range events {
		if err := bl.Log(e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}
	// vif_add is critical and writes direct; nocache_promote is buffered.
	if err := bl.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("row count = %d, want 2", count)
	}

	firstID, err := VerifyChain(db, key)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if firstID != -1 {
		t.Fatalf("chain broke at id %d, want fully verified", firstID)
	}
}

func TestVerifyChainDetectsTamper(t *testing.T) {
	db := openTestDB(t)
	key := []byte("0123456789abcdef0123456789abcdef")
	bl := NewBufferedLogger(db, 100, time.Hour, key)

	if err := bl.Log(AuditEvent{Timestamp: 1, Action: ActionVIFAdd, Resource: "a1", Success: true}); err != nil {
		t.Fatal(err)
	}
	if err := bl.Log(AuditEvent{Timestamp: 2, Action: ActionVIFRemove, Resource: "a1", Success: true}); err != nil {
		t.Fatal(err)
	}

	if _, err := db.Exec(`UPDATE audit_logs SET resource = 'tampered' WHERE id = 1`); err != nil {
		t.Fatalf("tamper: %v", err)
	}

	firstID, err := VerifyChain(db, key)
	if err != nil {
		t.Fatalf("VerifyChain: %v", err)
	}
	if firstID != 1 {
		t.Fatalf("expected tamper detected at id 1, got %d", firstID)
	}
}

func TestCriticalActionsBypassBuffer(t *testing.T) {
	db := openTestDB(t)
	bl := NewBufferedLogger(db, 100, time.Hour, nil)

	if err := bl.Log(AuditEvent{Timestamp: 1, Action: ActionMFCAdd, Resource: "239.0.0.2@0"}); err != nil {
		t.Fatal(err)
	}

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM audit_logs`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("critical action should have written directly without Flush; count = %d", count)
	}
}
