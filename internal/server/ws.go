package server

import (
	"net/http"

	"github.com/coder/websocket"
)

// websocketHandler upgrades the connection and attaches it to the push hub.
// Clients only listen on this channel; anything they send is ignored, and the
// read loop exists to notice the close.
func (s *Server) websocketHandler(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(HeaderSessionToken)
	if token == "" {
		token = r.URL.Query().Get("sessionToken")
	}
	userID, err := s.store.Sessions.UserID(r.Context(), token)
	if err != nil {
		http.Error(w, "Invalid session", http.StatusUnauthorized)
		return
	}

	socket, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"}, // TODO: restrict origins per deployment
	})
	if err != nil {
		http.Error(w, "Failed to open websocket", http.StatusInternalServerError)
		return
	}
	defer socket.Close(websocket.StatusGoingAway, "server closing")

	s.log.WithField("user", userID).Debug("websocket attached")
	s.hub.Attach(userID, socket)
	defer func() {
		s.hub.Detach(userID, socket)
		s.log.WithField("user", userID).Debug("websocket detached")
	}()

	ctx := r.Context()
	for {
		if _, _, err := socket.Read(ctx); err != nil {
			return
		}
	}
}
