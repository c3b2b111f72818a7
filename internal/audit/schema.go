package audit

import (
	"database/sql"
	"fmt"
)

// InitSchema creates the audit_logs table if it does not already exist.
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp INTEGER NOT NULL,
		user TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL DEFAULT '',
		resource TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '',
		ip_address TEXT NOT NULL DEFAULT '',
		success INTEGER NOT NULL DEFAULT 1,
		prev_hash TEXT NOT NULL DEFAULT '',
		row_hash TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		return fmt.Errorf("audit: schema init: %w", err)
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp)`)
	if err != nil {
		return fmt.Errorf("audit: index init: %w", err)
	}
	return nil
}

// VerifyChain walks audit_logs in id order and recomputes each row's hash,
// returning the id of the first row whose stored row_hash doesn't match (or
// -1 if the whole chain verifies). Used by the REST /audit/verify endpoint.
func VerifyChain(db *sql.DB, hmacKey []byte) (int64, error) {
	rows, err := db.Query(`SELECT id, timestamp, user, action, resource, details, ip_address, success, prev_hash, row_hash
		FROM audit_logs ORDER BY id ASC`)
	if err != nil {
		return 0, fmt.Errorf("audit: verify query: %w", err)
	}
	defer rows.Close()

	var prevHash string
	for rows.Next() {
		var id int64
		var e AuditEvent
		var storedPrev, storedRow string
		if err := rows.Scan(&id, &e.Timestamp, &e.User, &e.Action, &e.Resource, &e.Details, &e.IPAddress, &e.Success, &storedPrev, &storedRow); err != nil {
			return 0, fmt.Errorf("audit: verify scan: %w", err)
		}
		if storedPrev != prevHash {
			return id, nil
		}
		got := computeRowHash(hmacKey, prevHash, e)
		if got != storedRow {
			return id, nil
		}
		prevHash = storedRow
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("audit: verify iterate: %w", err)
	}
	return -1, nil
}
