package restapi

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"

	"mrouted/internal/kernel"
	"mrouted/internal/ldap"
	"mrouted/internal/merrors"
	"mrouted/internal/mfc"
)

func TestRespondErrorMapsKindToStatus(t *testing.T) {
	cases := []struct {
		kind   merrors.Kind
		status int
	}{
		{merrors.Malformed, http.StatusBadRequest},
		{merrors.Duplicate, http.StatusBadRequest},
		{merrors.InvariantViolation, http.StatusBadRequest},
		{merrors.NotFound, http.StatusNotFound},
		{merrors.Permission, http.StatusForbidden},
		{merrors.KernelError, http.StatusInternalServerError},
		{merrors.NotAvailable, http.StatusInternalServerError},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		respondError(rec, merrors.New(c.kind, "boom"))
		if rec.Code != c.status {
			t.Errorf("kind %v: got status %d, want %d", c.kind, rec.Code, c.status)
		}
	}
}

func TestToVIFViewCopiesFields(t *testing.T) {
	e := kernel.VifTableEntry{VIFI: 2, Name: "eth0", BytesIn: 10, PktsIn: 1, BytesOut: 20, PktsOut: 2, Flags: 1}
	v := toVIFView(e)
	if v.VIFI != 2 || v.Name != "eth0" || v.BytesIn != 10 || v.PktsOut != 2 {
		t.Fatalf("unexpected view: %+v", v)
	}
}

func TestToMRouteViewAndFlatten(t *testing.T) {
	route := mfc.MRoute{
		From:   "eth0",
		Group:  netip.MustParseAddr("239.1.1.1"),
		Source: netip.MustParseAddr("10.0.0.1"),
		To:     map[string]uint8{"eth1": 1},
	}
	v := toMRouteView(route)
	if v.From != "eth0" || v.Group != "239.1.1.1" || v.Source != "10.0.0.1" || v.To["eth1"] != 1 {
		t.Fatalf("unexpected view: %+v", v)
	}

	grouped := map[int][]mfc.MRoute{0: {route}, 1: {route}}
	flat := flattenGrouped(grouped)
	if len(flat) != 2 {
		t.Fatalf("expected 2 flattened routes, got %d", len(flat))
	}
}

func TestMRouteRequestDefaultsSourceToUnspecified(t *testing.T) {
	req := mrouteRequest{From: "eth0", Group: "239.1.1.1", To: map[string]uint8{"eth1": 1}}
	route, err := req.toMRoute()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !route.Source.IsUnspecified() {
		t.Fatalf("expected unspecified source, got %v", route.Source)
	}
}

func TestMRouteRequestRejectsInvalidGroup(t *testing.T) {
	req := mrouteRequest{From: "eth0", Group: "not-an-address", To: map[string]uint8{"eth1": 1}}
	if _, err := req.toMRoute(); !merrors.Is(err, merrors.Malformed) {
		t.Fatalf("expected Malformed, got %v", err)
	}
}

func TestRequireAuthPassesThroughWithoutLDAPClient(t *testing.T) {
	s := &Server{ldapClient: nil}
	called := false
	handler := s.requireAuth("vif:write", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/vifs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatal("expected handler to be invoked when no LDAP client is configured")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("got status %d, want 200", rec.Code)
	}
}

func TestRequireAuthRejectsMissingCredentialsWhenLDAPConfigured(t *testing.T) {
	s := &Server{ldapClient: &ldap.Client{}}
	called := false
	handler := s.requireAuth("vif:write", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest("POST", "/vifs", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if called {
		t.Fatal("handler should not run without credentials")
	}
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("got status %d, want 401", rec.Code)
	}
}

func TestBroadcastNoopsWithoutHub(t *testing.T) {
	s := &Server{hub: nil}
	s.broadcast("vif_add", map[string]string{"interface": "eth0"})
}
