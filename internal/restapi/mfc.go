package restapi

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/gorilla/mux"

	"mrouted/internal/merrors"
	"mrouted/internal/mfc"
)

type mrouteView struct {
	From   string           `json:"from"`
	Group  string           `json:"group"`
	Source string           `json:"source"`
	To     map[string]uint8 `json:"to"`
}

func toMRouteView(r mfc.MRoute) mrouteView {
	return mrouteView{From: r.From, Group: r.Group.String(), Source: r.Source.String(), To: r.To}
}

func flattenGrouped(grouped map[int][]mfc.MRoute) []mrouteView {
	out := []mrouteView{}
	for _, list := range grouped {
		for _, r := range list {
			out = append(out, toMRouteView(r))
		}
	}
	return out
}

func (s *Server) listStaticMFC(w http.ResponseWriter, r *http.Request) {
	respondOK(w, flattenGrouped(s.orchestrator.MFCs.StaticByIIF()))
}

func (s *Server) listDynamicMFC(w http.ResponseWriter, r *http.Request) {
	respondOK(w, flattenGrouped(s.orchestrator.MFCs.DynamicByIIF()))
}

func vifiFromVars(r *http.Request) (int, error) {
	raw := mux.Vars(r)["vifi"]
	vifi, err := strconv.Atoi(raw)
	if err != nil {
		return 0, merrors.Wrap(merrors.Malformed, err, "invalid vifi "+raw)
	}
	return vifi, nil
}

func (s *Server) listStaticMFCByVIF(w http.ResponseWriter, r *http.Request) {
	vifi, err := vifiFromVars(r)
	if err != nil {
		respondError(w, err)
		return
	}
	list := s.orchestrator.MFCs.StaticByIIF()[vifi]
	out := make([]mrouteView, 0, len(list))
	for _, route := range list {
		out = append(out, toMRouteView(route))
	}
	respondOK(w, out)
}

func (s *Server) listDynamicMFCByVIF(w http.ResponseWriter, r *http.Request) {
	vifi, err := vifiFromVars(r)
	if err != nil {
		respondError(w, err)
		return
	}
	list := s.orchestrator.MFCs.DynamicByIIF()[vifi]
	out := make([]mrouteView, 0, len(list))
	for _, route := range list {
		out = append(out, toMRouteView(route))
	}
	respondOK(w, out)
}

type mrouteRequest struct {
	From   string           `json:"from"`
	Group  string           `json:"group"`
	Source string           `json:"source,omitempty"`
	To     map[string]uint8 `json:"to"`
}

func (req mrouteRequest) toMRoute() (mfc.MRoute, error) {
	group, err := netip.ParseAddr(req.Group)
	if err != nil {
		return mfc.MRoute{}, merrors.Wrap(merrors.Malformed, err, "invalid group "+req.Group)
	}
	source := netip.IPv4Unspecified()
	if req.Source != "" {
		source, err = netip.ParseAddr(req.Source)
		if err != nil {
			return mfc.MRoute{}, merrors.Wrap(merrors.Malformed, err, "invalid source "+req.Source)
		}
	}
	return mfc.MRoute{From: req.From, Group: group, Source: source, To: req.To}, nil
}

func (s *Server) addMFC(w http.ResponseWriter, r *http.Request) {
	var req mrouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, merrors.Wrap(merrors.Malformed, err, "decoding request body"))
		return
	}
	route, err := req.toMRoute()
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.orchestrator.MFCs.Add(route); err != nil {
		respondError(w, err)
		return
	}
	s.audit(auditCtx(r), "mfc_add", route.From+" -> "+route.Group.String(), true)
	s.broadcast("mfc_add", toMRouteView(route))
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) deleteMFC(w http.ResponseWriter, r *http.Request) {
	var req mrouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, merrors.Wrap(merrors.Malformed, err, "decoding request body"))
		return
	}
	route, err := req.toMRoute()
	if err != nil {
		respondError(w, err)
		return
	}
	if err := s.orchestrator.MFCs.Remove(route); err != nil {
		respondError(w, err)
		return
	}
	s.audit(auditCtx(r), "mfc_remove", route.From+" -> "+route.Group.String(), true)
	s.broadcast("mfc_remove", toMRouteView(route))
	respondOK(w, map[string]string{"status": "ok"})
}
