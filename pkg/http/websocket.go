package http

import (
	"net/http"

	"github.com/gorilla/websocket"

	pkgerrors "callinsights-server/pkg/errors"
	"callinsights-server/pkg/streaming"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin policy is enforced by the deployment's edge, not here
		return true
	},
}

// SentimentStreamHandler upgrades the connection and runs one sentiment
// stream session for the requested call
func (s *Server) SentimentStreamHandler(w http.ResponseWriter, r *http.Request) {
	callID := r.URL.Query().Get("call_id")
	if callID == "" {
		s.errorResponse(w, pkgerrors.NewInvalidInput("call_id query parameter is required"))
		return
	}

	// Validate the call before upgrading so the client gets a proper 404
	if _, err := s.store.GetCall(r.Context(), callID); err != nil {
		s.errorResponse(w, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Error("WebSocket upgrade failed")
		return
	}

	// Run blocks for the life of the session; the handler goroutine is the
	// session's run loop.
	session := streaming.NewSession(conn, callID, s.store, s.engine, s.streamingCfg, s.logger)
	session.Run(r.Context())
}
