package restapi

import (
	"database/sql"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"mrouted/internal/audit"
	"mrouted/internal/daemon"
	"mrouted/internal/ldap"
	"mrouted/internal/websocket"
)

// Server is the REST/websocket surface over a running Orchestrator.
type Server struct {
	orchestrator *daemon.Orchestrator
	hub          *websocket.MonitorHub
	db           *sql.DB
	hmacKey      []byte
	ldapClient   *ldap.Client // nil disables auth: every mutating call is allowed
	router       *mux.Router
}

// NewServer builds the router. ldapClient may be nil to run without auth,
// matching the spec's "optional external collaborator" framing for the
// REST surface.
func NewServer(o *daemon.Orchestrator, hub *websocket.MonitorHub, db *sql.DB, hmacKey []byte, ldapClient *ldap.Client) *Server {
	s := &Server{
		orchestrator: o,
		hub:          hub,
		db:           db,
		hmacKey:      hmacKey,
		ldapClient:   ldapClient,
	}
	s.router = mux.NewRouter()
	s.router.Use(loggingMiddleware)
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	s.router.HandleFunc("/ws/monitor", s.serveMonitorWS).Methods("GET")
	s.router.HandleFunc("/audit/verify", s.verifyAudit).Methods("GET")

	s.router.HandleFunc("/vifs", s.listVIFs).Methods("GET")
	s.router.HandleFunc("/vifs/{name}", s.getVIF).Methods("GET")
	s.router.Handle("/vifs", s.requireAuth("vif:write", http.HandlerFunc(s.addVIF))).Methods("POST")
	s.router.Handle("/vifs/{ref}", s.requireAuth("vif:write", http.HandlerFunc(s.deleteVIF))).Methods("DELETE")

	s.router.HandleFunc("/static_mfc", s.listStaticMFC).Methods("GET")
	s.router.HandleFunc("/static_mfc/{vifi}", s.listStaticMFCByVIF).Methods("GET")
	s.router.HandleFunc("/dynamic_mfc", s.listDynamicMFC).Methods("GET")
	s.router.HandleFunc("/dynamic_mfc/{vifi}", s.listDynamicMFCByVIF).Methods("GET")
	s.router.Handle("/mfc", s.requireAuth("mfc:write", http.HandlerFunc(s.addMFC))).Methods("POST")
	s.router.Handle("/mfc", s.requireAuth("mfc:write", http.HandlerFunc(s.deleteMFC))).Methods("DELETE")
}

// Router exposes the mux.Router for the CLI entrypoint to mount on an
// http.Server.
func (s *Server) Router() http.Handler { return s.router }

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	respondOK(w, map[string]interface{}{
		"status":    "ok",
		"vifs":      s.orchestrator.VIFs.Count(),
		"nocache":   s.orchestrator.Dispatcher.NoCache,
		"wrongvif":  s.orchestrator.Dispatcher.WrongVIF,
		"wholepkt":  s.orchestrator.Dispatcher.WholePkt,
		"malformed": s.orchestrator.Dispatcher.Malformed,
	})
}

func (s *Server) audit(user, action, resource string, success bool) {
	audit.LogOrWarn(s.orchestrator.Audit, action, resource, user, success)
}

func (s *Server) broadcast(eventType string, data interface{}) {
	if s.hub == nil {
		return
	}
	s.hub.Broadcast(eventType, data, "info")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s %v", r.RemoteAddr, r.Method, r.URL.Path, time.Since(start))
	})
}
