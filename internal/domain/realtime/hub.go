package realtime

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis keys and channels
const (
	presenceChannel   = "ws:presence"
	userEventsChannel = "ws:user_events"

	// presenceTTL bounds how long a lease outlives an instance that died
	// without releasing it. Live instances renew every presenceRefresh.
	presenceTTL     = 90 * time.Second
	presenceRefresh = presenceTTL / 3
	presenceTimeout = 2 * time.Second
)

var (
	wsConnectionsGauge   = expvar.NewInt("websocket_connections")
	wsEventsSentTotal    = expvar.NewInt("websocket_events_sent_total")
	wsEventsDroppedTotal = expvar.NewInt("websocket_events_dropped_total")
)

// userEventMessage is the envelope published on the user events channel.
type userEventMessage struct {
	UserID           string          `json:"user_id"`
	Payload          json.RawMessage `json:"payload"`
	SenderInstanceID string          `json:"sender_instance_id"`
}

// Client is one websocket session of a user
type Client struct {
	UserID uuid.UUID
	Conn   *websocket.Conn
	Send   chan []byte
}

// Hub tracks live sessions on this instance and fans user events out to
// the other instances through Redis Pub/Sub.
type Hub struct {
	clients map[uuid.UUID]map[*Client]bool
	mu      sync.RWMutex

	redis  *redis.Client
	pubsub *redis.PubSub

	register   chan *Client
	unregister chan *Client

	ctx    context.Context
	cancel context.CancelFunc

	instanceID string
	publishFn  func(ctx context.Context, channel string, payload []byte) error
	presence   presenceStore
	now        func() time.Time
}

// NewHub creates hub. redisClient may be nil, which keeps delivery local.
func NewHub(redisClient *redis.Client) *Hub {
	return NewHubWithInstanceID(redisClient, uuid.NewString())
}

// NewHubWithInstanceID creates hub with explicit instance identifier.
func NewHubWithInstanceID(redisClient *redis.Client, instanceID string) *Hub {
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		clients:    make(map[uuid.UUID]map[*Client]bool),
		redis:      redisClient,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		instanceID: instanceID,
		now:        time.Now,
	}

	if redisClient != nil {
		h.presence = redisPresence{client: redisClient}
		h.pubsub = redisClient.Subscribe(ctx, userEventsChannel, presenceChannel)
		h.publishFn = func(ctx context.Context, channel string, payload []byte) error {
			return redisClient.Publish(ctx, channel, payload).Err()
		}
	}

	return h
}

// Run starts the hub (call in goroutine)
func (h *Hub) Run() {
	if h.pubsub != nil {
		go h.runSubscriber()
	}

	ticker := time.NewTicker(presenceRefresh)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			h.releaseAll()
			return

		case <-ticker.C:
			h.refreshPresence()

		case c := <-h.register:
			h.mu.Lock()
			if h.clients[c.UserID] == nil {
				h.clients[c.UserID] = make(map[*Client]bool)
			}
			h.clients[c.UserID][c] = true
			h.mu.Unlock()
			wsConnectionsGauge.Add(1)

			h.markOnline(c.UserID)
			log.Debug().Str("user_id", c.UserID.String()).Msg("User connected to WebSocket")

		case c := <-h.unregister:
			offline := false
			h.mu.Lock()
			if sessions, ok := h.clients[c.UserID]; ok {
				if _, exists := sessions[c]; exists {
					delete(sessions, c)
					close(c.Send)
					wsConnectionsGauge.Add(-1)
				}
				if len(sessions) == 0 {
					delete(h.clients, c.UserID)
					offline = true
				}
			}
			h.mu.Unlock()

			if offline {
				h.markOffline(c.UserID)
			}
			log.Debug().Str("user_id", c.UserID.String()).Msg("User disconnected from WebSocket")
		}
	}
}

func (h *Hub) runSubscriber() {
	ch := h.pubsub.Channel()

	for {
		select {
		case <-h.ctx.Done():
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			switch msg.Channel {
			case userEventsChannel:
				h.handleUserEvent(msg.Payload)
			case presenceChannel:
				log.Debug().Str("presence", msg.Payload).Msg("Presence update received")
			}
		}
	}
}

// handleUserEvent delivers an event published by another instance.
func (h *Hub) handleUserEvent(payload string) {
	var event userEventMessage
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return
	}
	if event.SenderInstanceID == h.instanceID {
		return
	}
	userID, err := uuid.Parse(event.UserID)
	if err != nil {
		return
	}
	h.sendLocal(userID, event.Payload)
}

// Register adds a session
func (h *Hub) Register(c *Client) {
	h.register <- c
}

// Unregister removes a session
func (h *Hub) Unregister(c *Client) {
	h.unregister <- c
}

// SendToUserJSON sends payload to every session of userID on any instance.
// Delivery is best-effort: full buffers drop the event.
func (h *Hub) SendToUserJSON(userID uuid.UUID, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	h.sendLocal(userID, data)
	return h.publishUserEvent(userID, data)
}

func (h *Hub) sendLocal(userID uuid.UUID, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.Send <- data:
			wsEventsSentTotal.Add(1)
		default:
			wsEventsDroppedTotal.Add(1)
			log.Warn().Str("user_id", userID.String()).Msg("WebSocket send buffer full")
		}
	}
}

func (h *Hub) publishUserEvent(userID uuid.UUID, data []byte) error {
	if h.publishFn == nil {
		return nil
	}

	payload, err := json.Marshal(userEventMessage{
		UserID:           userID.String(),
		Payload:          data,
		SenderInstanceID: h.instanceID,
	})
	if err != nil {
		return err
	}
	return h.publishFn(h.ctx, userEventsChannel, payload)
}

func (h *Hub) markOnline(userID uuid.UUID) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, presenceTimeout)
	defer cancel()

	if err := h.presence.Refresh(ctx, h.instanceID, []uuid.UUID{userID}, h.now().Add(presenceTTL)); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Presence refresh failed")
	}
	h.publishPresence(ctx, userID, "online")
}

// markOffline drops this instance's lease only. Sessions of the same user
// on other instances keep it online.
func (h *Hub) markOffline(userID uuid.UUID) {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, presenceTimeout)
	defer cancel()

	if err := h.presence.Release(ctx, h.instanceID, userID); err != nil {
		log.Warn().Err(err).Str("user_id", userID.String()).Msg("Presence release failed")
	}
	h.publishPresence(ctx, userID, "offline")
}

// refreshPresence renews the leases of every user with a local session.
func (h *Hub) refreshPresence() {
	if h.presence == nil {
		return
	}
	users := h.localUsers()
	if len(users) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(h.ctx, presenceTimeout)
	defer cancel()

	if err := h.presence.Refresh(ctx, h.instanceID, users, h.now().Add(presenceTTL)); err != nil {
		log.Warn().Err(err).Int("users", len(users)).Msg("Presence refresh failed")
	}
}

// releaseAll drops the leases held by this instance on shutdown.
func (h *Hub) releaseAll() {
	if h.presence == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), presenceTimeout)
	defer cancel()

	for _, userID := range h.localUsers() {
		if err := h.presence.Release(ctx, h.instanceID, userID); err != nil {
			log.Warn().Err(err).Str("user_id", userID.String()).Msg("Presence release failed")
			return
		}
	}
}

func (h *Hub) localUsers() []uuid.UUID {
	h.mu.RLock()
	defer h.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(h.clients))
	for id := range h.clients {
		users = append(users, id)
	}
	return users
}

func (h *Hub) publishPresence(ctx context.Context, userID uuid.UUID, state string) {
	if h.publishFn == nil {
		return
	}
	if err := h.publishFn(ctx, presenceChannel, []byte(fmt.Sprintf("%s:%s", userID, state))); err != nil {
		log.Debug().Err(err).Msg("Presence publish failed")
	}
}

// OnlineUsers filters userIDs down to users with a live session anywhere.
func (h *Hub) OnlineUsers(ctx context.Context, userIDs []uuid.UUID) []uuid.UUID {
	if h.presence == nil {
		h.mu.RLock()
		defer h.mu.RUnlock()
		online := make([]uuid.UUID, 0)
		for _, id := range userIDs {
			if len(h.clients[id]) > 0 {
				online = append(online, id)
			}
		}
		return online
	}

	online, err := h.presence.Online(ctx, userIDs, h.now())
	if err != nil {
		log.Warn().Err(err).Msg("Presence lookup failed")
		return make([]uuid.UUID, 0)
	}
	return online
}

// ConnectionCount returns number of local sessions
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, sessions := range h.clients {
		total += len(sessions)
	}
	return total
}

// Shutdown stops the hub and its subscription
func (h *Hub) Shutdown() {
	h.cancel()
	if h.pubsub != nil {
		h.pubsub.Close()
	}
}
