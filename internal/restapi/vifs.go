package restapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"mrouted/internal/ifaceinv"
	"mrouted/internal/kernel"
	"mrouted/internal/merrors"
)

type vifView struct {
	VIFI     int    `json:"vifi"`
	Name     string `json:"name"`
	BytesIn  uint64 `json:"bytes_in"`
	PktsIn   uint64 `json:"pkts_in"`
	BytesOut uint64 `json:"bytes_out"`
	PktsOut  uint64 `json:"pkts_out"`
	Flags    uint32 `json:"flags"`
}

func toVIFView(e kernel.VifTableEntry) vifView {
	return vifView{
		VIFI: e.VIFI, Name: e.Name,
		BytesIn: e.BytesIn, PktsIn: e.PktsIn,
		BytesOut: e.BytesOut, PktsOut: e.PktsOut,
		Flags: e.Flags,
	}
}

func (s *Server) listVIFs(w http.ResponseWriter, r *http.Request) {
	entries := s.orchestrator.VIFs.List()
	out := make([]vifView, 0, len(entries))
	for _, e := range entries {
		out = append(out, toVIFView(e))
	}
	respondOK(w, out)
}

func (s *Server) getVIF(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	for _, e := range s.orchestrator.VIFs.List() {
		if e.Name == name {
			respondOK(w, toVIFView(e))
			return
		}
	}
	respondError(w, merrors.New(merrors.NotFound, "vif not found: "+name))
}

type addVIFRequest struct {
	Interface string `json:"interface"`
	VIFI      *int   `json:"vifi,omitempty"`
	Threshold uint8  `json:"threshold,omitempty"`
}

func (s *Server) addVIF(w http.ResponseWriter, r *http.Request) {
	var req addVIFRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, merrors.Wrap(merrors.Malformed, err, "decoding request body"))
		return
	}

	ifaces, err := ifaceinv.List()
	if err != nil {
		respondError(w, err)
		return
	}
	iface, err := ifaceinv.Validate(ifaces, req.Interface)
	if err != nil {
		respondError(w, err)
		return
	}

	threshold := req.Threshold
	if threshold == 0 {
		threshold = 1
	}
	if err := s.orchestrator.VIFs.Add(iface, req.VIFI, threshold); err != nil {
		respondError(w, err)
		return
	}
	s.audit(auditCtx(r), "vif_add", iface.Name, true)
	s.broadcast("vif_add", map[string]string{"interface": iface.Name})
	respondJSON(w, http.StatusCreated, map[string]string{"status": "ok"})
}

func (s *Server) deleteVIF(w http.ResponseWriter, r *http.Request) {
	ref := mux.Vars(r)["ref"]

	var err error
	if vifi, convErr := strconv.Atoi(ref); convErr == nil {
		err = s.orchestrator.VIFs.RemoveByIndex(vifi)
	} else {
		err = s.orchestrator.VIFs.RemoveByName(ref)
	}
	if err != nil {
		respondError(w, err)
		return
	}
	s.audit(auditCtx(r), "vif_remove", ref, true)
	s.broadcast("vif_remove", map[string]string{"ref": ref})
	respondOK(w, map[string]string{"status": "ok"})
}
