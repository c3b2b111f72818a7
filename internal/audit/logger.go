// Package audit persists a tamper-evident, HMAC-chained log of every
// kernel-bridge mutation and upcall-driven promotion this daemon performs.
package audit

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// Action names recorded in AuditEvent.Action.
const (
	ActionVIFAdd         = "vif_add"
	ActionVIFRemove      = "vif_remove"
	ActionMFCAdd         = "mfc_add"
	ActionMFCRemove      = "mfc_remove"
	ActionNoCachePromote = "nocache_promote"
	ActionMRTEnable      = "mrt_enable"
	ActionMRTDisable     = "mrt_disable"
)

// LogOrWarn records an event through logger, or just logs a warning to
// stderr if logger is nil (auditing is disabled).
func LogOrWarn(logger *BufferedLogger, action, resource, user string, success bool) {
	if logger == nil {
		log.Printf("audit: disabled, not recording %s %s", action, resource)
		return
	}
	if err := logger.Log(AuditEvent{
		Timestamp: time.Now().Unix(),
		User:      user,
		Action:    action,
		Resource:  resource,
		Details:   uuid.NewString(),
		Success:   success,
	}); err != nil {
		log.Printf("audit: failed to log %s %s: %v", action, resource, err)
	}
}
