// Package restapi exposes the VIF/MFC/audit surface over HTTP, grounded on
// the teacher's gorilla/mux router and respondJSON/respondError helpers.
package restapi

import (
	"encoding/json"
	"net/http"

	"mrouted/internal/merrors"
)

var errNoHub = merrors.New(merrors.NotAvailable, "monitor hub not configured")

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func respondOK(w http.ResponseWriter, payload interface{}) {
	respondJSON(w, http.StatusOK, payload)
}

// respondError maps err's Kind to an HTTP status per spec.md §7 and writes
// a JSON error body.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch merrors.KindOf(err) {
	case merrors.Malformed, merrors.NotFound, merrors.Duplicate, merrors.InvariantViolation:
		status = http.StatusBadRequest
		if merrors.Is(err, merrors.NotFound) {
			status = http.StatusNotFound
		}
	case merrors.KernelError, merrors.Permission, merrors.NotAvailable:
		status = http.StatusInternalServerError
		if merrors.Is(err, merrors.Permission) {
			status = http.StatusForbidden
		}
	}
	respondJSON(w, status, map[string]interface{}{
		"error":  err.Error(),
		"kind":   merrors.KindOf(err).String(),
		"status": status,
	})
}
