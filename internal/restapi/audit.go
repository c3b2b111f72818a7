package restapi

import (
	"net/http"

	"mrouted/internal/audit"
	"mrouted/internal/merrors"
)

func (s *Server) verifyAudit(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		respondError(w, merrors.New(merrors.NotAvailable, "audit database not configured"))
		return
	}
	firstBroken, err := audit.VerifyChain(s.db, s.hmacKey)
	if err != nil {
		respondError(w, merrors.Wrap(merrors.KernelError, err, "verifying audit chain"))
		return
	}
	if firstBroken == -1 {
		respondOK(w, map[string]interface{}{"valid": true})
		return
	}
	respondOK(w, map[string]interface{}{"valid": false, "broken_at_id": firstBroken})
}
