package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"paperback-server/internal/message"
)

const writeTimeout = 5 * time.Second

// Hub pushes notifications to connected clients over websockets, keyed by
// user id. Users without a live connection just get the log line.
type Hub struct {
	log   *logrus.Logger
	mu    sync.RWMutex
	conns map[uuid.UUID]*websocket.Conn
}

// NewHub returns an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{
		log:   log,
		conns: make(map[uuid.UUID]*websocket.Conn),
	}
}

// Attach registers a user's connection, displacing any previous one.
func (h *Hub) Attach(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	prev := h.conns[userID]
	h.conns[userID] = conn
	h.mu.Unlock()

	if prev != nil {
		prev.Close(websocket.StatusPolicyViolation, "superseded by a newer connection")
	}
}

// Detach removes the user's connection if it is still the given one.
func (h *Hub) Detach(userID uuid.UUID, conn *websocket.Conn) {
	h.mu.Lock()
	if h.conns[userID] == conn {
		delete(h.conns, userID)
	}
	h.mu.Unlock()
}

// notification is the wire shape pushed to clients.
type notification struct {
	Code    int               `json:"code"`
	Message string            `json:"message,omitempty"`
	Context map[string]string `json:"context,omitempty"`
}

// Send renders the message once and pushes it to every recipient with a live
// connection. All sends are logged regardless of delivery.
func (h *Hub) Send(userIDs []uuid.UUID, code message.Code, msgCtx map[string]string) {
	body, err := json.Marshal(notification{
		Code:    int(code),
		Message: message.Render(code, msgCtx),
		Context: msgCtx,
	})
	if err != nil {
		h.log.WithError(err).Warn("notification marshal failed")
		return
	}

	for _, id := range userIDs {
		h.mu.RLock()
		conn := h.conns[id]
		h.mu.RUnlock()

		entry := h.log.WithFields(logrus.Fields{"user": id, "code": int(code)})
		if conn == nil {
			entry.Debug("notification (not connected)")
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := conn.Write(ctx, websocket.MessageText, body)
		cancel()
		if err != nil {
			entry.WithError(err).Debug("notification write failed")
			continue
		}
		entry.Debug("notification delivered")
	}
}
