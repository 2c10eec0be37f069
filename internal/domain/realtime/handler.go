package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mwork/moments-api/internal/domain/connection"
	"github.com/mwork/moments-api/internal/middleware"
	"github.com/mwork/moments-api/internal/pkg/response"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 64
)

// PeerLister returns the connected counterparts of a user.
type PeerLister interface {
	ListPeers(ctx context.Context, userID uuid.UUID) ([]connection.Peer, error)
}

// clientMessage is what a websocket client may send.
type clientMessage struct {
	Type string `json:"type"`
}

// PresenceEvent answers a presence query with the online peers.
type PresenceEvent struct {
	Type   string      `json:"type"`
	Online []uuid.UUID `json:"online"`
}

// Handler serves the websocket endpoint
type Handler struct {
	hub      *Hub
	peers    PeerLister
	upgrader websocket.Upgrader
}

// NewHandler creates realtime handler. An empty allowedOrigins accepts any origin.
func NewHandler(hub *Hub, peers PeerLister, allowedOrigins []string) *Handler {
	return &Handler{
		hub:   hub,
		peers: peers,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if len(allowedOrigins) == 0 || origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				log.Warn().Str("origin", origin).Msg("WebSocket origin rejected")
				return false
			},
		},
	}
}

// WebSocket handles GET /ws
func (h *Handler) WebSocket(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if userID == uuid.Nil {
		response.Unauthorized(w, "Authentication required")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	client := &Client{
		UserID: userID,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
	}
	h.hub.Register(client)

	go h.reader(client)
	go h.writer(client)
}

func (h *Handler) reader(client *Client) {
	defer func() {
		h.hub.Unregister(client)
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(maxMessageSize)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", client.UserID.String()).Msg("WebSocket read error")
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "presence":
			h.answerPresence(client)
		}
	}
}

// answerPresence reports which connected peers of the client are online.
func (h *Handler) answerPresence(client *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	peers, err := h.peers.ListPeers(ctx, client.UserID)
	if err != nil {
		log.Warn().Err(err).Str("user_id", client.UserID.String()).Msg("Presence peer lookup failed")
		return
	}
	ids := make([]uuid.UUID, len(peers))
	for i, p := range peers {
		ids[i] = p.UserID
	}

	data, err := json.Marshal(PresenceEvent{Type: "presence", Online: h.hub.OnlineUsers(ctx, ids)})
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
		wsEventsSentTotal.Add(1)
	default:
		wsEventsDroppedTotal.Add(1)
	}
}

func (h *Handler) writer(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
