package restapi

import (
	"log"
	"net/http"

	gorillaws "github.com/gorilla/websocket"
)

var upgrader = gorillaws.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) serveMonitorWS(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		respondError(w, errNoHub)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("restapi: websocket upgrade failed: %v", err)
		return
	}
	s.hub.Register(conn)
}
