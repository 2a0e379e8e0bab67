package handlers

import (
	"net/http"
	"time"

	"github.com/avvvet/rfid-relay/internal/relaysvc/hub"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	pongWait       = 60 * time.Second
	maxMessageSize = 4096
)

// HandleWebSocket registers a dashboard viewer. Viewers only listen; what
// they send is logged and otherwise ignored.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Errorf("Failed to upgrade to WebSocket: %v", err)
		return
	}

	client, err := h.hub.Attach(conn)
	if err != nil {
		log.Errorf("Failed to greet viewer: %v", err)
		return
	}

	go h.readLoop(conn, client)
}

func (h *Handler) readLoop(conn *websocket.Conn, client *hub.Client) {
	defer h.hub.Detach(client)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Errorf("WebSocket unexpected close error for viewer %s: %v", client.ID(), err)
			} else {
				log.Debugf("WebSocket connection closed for viewer %s", client.ID())
			}
			return
		}
		log.Debugf("Received message from viewer %s: %s", client.ID(), raw)
	}
}
