// Package live streams session captures over a WebSocket so a viewer can
// watch the remote window without polling the capture endpoint.
package live

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ovidalb/webdesk/internal/platform"
	"github.com/ovidalb/webdesk/internal/session"
)

const (
	defaultFrameInterval = 500 * time.Millisecond
	writeTimeout         = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Server struct {
	registry *session.Registry
	interval time.Duration
}

func NewServer(registry *session.Registry) *Server {
	return &Server{
		registry: registry,
		interval: defaultFrameInterval,
	}
}

// HandleLive upgrades the connection and pushes JPEG frames of the
// session's window as binary messages until the client disconnects or the
// session dies. Transient locate failures skip a frame instead of ending
// the stream; the caller may be mid-navigation.
func (s *Server) HandleLive(w http.ResponseWriter, r *http.Request, sessionID string) {
	if _, err := s.registry.Get(sessionID); err != nil {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Failed to upgrade live connection: %v", err)
		return
	}
	defer conn.Close()

	log.Printf("✅ Live viewer connected to session %s", sessionID[:8])

	// Drain client messages so pings and close frames are processed.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			log.Printf("Live viewer disconnected from session %s", sessionID[:8])
			return
		case <-ticker.C:
			frame, _, err := s.registry.Capture(sessionID)
			if err != nil {
				if errors.Is(err, session.ErrNotFound) || errors.Is(err, platform.ErrProcessGone) {
					log.Printf("Live stream for %s ended: %v", sessionID[:8], err)
					return
				}
				continue
			}

			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				log.Printf("Live stream write for %s failed: %v", sessionID[:8], err)
				return
			}
		}
	}
}
