package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParticipantResolver answers who is authorized to receive events for a
// conversation. Resolution happens at broadcast time so membership
// changes take effect immediately.
type ParticipantResolver interface {
	ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error)
}

// PresenceSink receives connection lifecycle notifications.
type PresenceSink interface {
	HandleConnect(ctx context.Context, userID uuid.UUID, connID string)
	HandleDisconnect(ctx context.Context, userID uuid.UUID, connID string)
}

// Router dispatches inbound client events to the owning service.
type Router interface {
	HandleClientEvent(ctx context.Context, sess Session, connID string, evt ClientEvent) error
}

// BroadcastMessage is an internal fan-out instruction.
type BroadcastMessage struct {
	UserIDs        []uuid.UUID
	ConversationID *uuid.UUID
	ExcludeConnID  string
	Event          Event
}

// Hub is the connection registry: it owns the live mapping between user
// identities and their websocket connections and performs all fan-out.
// A connection belongs to exactly one user for its lifetime.
type Hub struct {
	clients     map[uuid.UUID]map[string]*Client
	register    chan *Client
	unregister  chan *Client
	broadcast   chan *BroadcastMessage
	resolver    ParticipantResolver
	presence    PresenceSink
	router      Router
	rateLimiter *ConnRateLimiter
	logger      *WSLogger
	mu          sync.RWMutex
	stopChan    chan struct{}
	stopOnce    sync.Once
}

const (
	maxConnectionsPerUser  = 10
	maxHandshakesPerMinute = 20
	broadcastResolveWait   = 5 * time.Second
)

func NewHub(resolver ParticipantResolver) *Hub {
	return &Hub{
		clients:     make(map[uuid.UUID]map[string]*Client),
		register:    make(chan *Client, 256),
		unregister:  make(chan *Client, 256),
		broadcast:   make(chan *BroadcastMessage, 256),
		resolver:    resolver,
		rateLimiter: NewConnRateLimiter(),
		logger:      NewWSLogger(),
		stopChan:    make(chan struct{}),
	}
}

// BindPresence attaches the presence sink. Must be called before Run.
func (h *Hub) BindPresence(sink PresenceSink) {
	h.presence = sink
}

// BindRouter attaches the inbound event router. Must be called before
// Run.
func (h *Hub) BindRouter(router Router) {
	h.router = router
}

// Run processes registrations and broadcasts until Stop is called. All
// mutations of the client map happen on this goroutine or under h.mu.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.handleUnregister(client)

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)

		case <-h.stopChan:
			return
		}
	}
}

func (h *Hub) handleRegister(client *Client) {
	if !h.addClient(client) {
		return
	}
	client.startPumps()
}

// addClient inserts the connection into the registry, evicting the
// user's oldest connection when the cap is reached. The eviction is an
// eager disconnect: the map entry is gone before the evicted read pump
// notices, so presence must be told here, not by that pump's
// unregister. Returns false when the handshake budget refuses the
// connection.
func (h *Hub) addClient(client *Client) bool {
	h.mu.Lock()

	userID := client.session.UserID
	if !h.rateLimiter.AllowConnection(userID) {
		h.mu.Unlock()
		h.logger.Warn("connection rate limit exceeded", userID, client.connID)
		client.closeConn()
		return false
	}

	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]*Client)
	}

	var evicted *Client
	if len(h.clients[userID]) >= maxConnectionsPerUser {
		var oldest *Client
		for _, c := range h.clients[userID] {
			if oldest == nil || c.session.ConnectedAt.Before(oldest.session.ConnectedAt) {
				oldest = c
			}
		}
		if oldest != nil {
			delete(h.clients[userID], oldest.connID)
			h.removeClient(oldest)
			evicted = oldest
		}
	}

	h.clients[userID][client.connID] = client
	h.mu.Unlock()

	if evicted != nil {
		if h.presence != nil {
			h.presence.HandleDisconnect(context.Background(), userID, evicted.connID)
		}
		h.logger.Warn("oldest connection evicted", userID, evicted.connID)
	}

	if h.presence != nil {
		h.presence.HandleConnect(context.Background(), userID, client.connID)
	}

	h.logger.Info("client connected", userID, client.connID)
	return true
}

func (h *Hub) handleUnregister(client *Client) {
	h.mu.Lock()

	userID := client.session.UserID
	removed := false
	if userClients, ok := h.clients[userID]; ok {
		if _, ok := userClients[client.connID]; ok {
			delete(userClients, client.connID)
			h.removeClient(client)
			removed = true
			if len(userClients) == 0 {
				delete(h.clients, userID)
			}
		}
	}
	h.mu.Unlock()

	if removed {
		if h.presence != nil {
			h.presence.HandleDisconnect(context.Background(), userID, client.connID)
		}
		h.logger.Info("client disconnected", userID, client.connID)
	}
}

func (h *Hub) removeClient(client *Client) {
	close(client.send)
	client.closeConn()
}

func (h *Hub) handleBroadcast(msg *BroadcastMessage) {
	data, err := marshalEvent(msg.Event)
	if err != nil {
		return
	}

	userIDs := msg.UserIDs
	if msg.ConversationID != nil {
		// Membership is resolved now, not at enqueue time. A resolver
		// failure drops the fan-out entirely: fail closed.
		ctx, cancel := context.WithTimeout(context.Background(), broadcastResolveWait)
		resolved, err := h.resolver.ParticipantIDs(ctx, *msg.ConversationID)
		cancel()
		if err != nil {
			h.logger.WarnEvent("broadcast membership resolution failed",
				zap.String("conversation_id", msg.ConversationID.String()), zap.Error(err))
			return
		}
		userIDs = resolved
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, userID := range userIDs {
		h.deliverLocked(userID, msg.ExcludeConnID, data)
	}
}

// deliverLocked fans data out to every connection of one user.
// Participants with no active connections are skipped; the event's
// source of truth is already persisted.
func (h *Hub) deliverLocked(userID uuid.UUID, excludeConnID string, data []byte) {
	userClients, ok := h.clients[userID]
	if !ok {
		return
	}
	for connID, client := range userClients {
		if connID == excludeConnID {
			continue
		}
		select {
		case client.send <- data:
		default:
			h.logger.Warn("client send buffer full", userID, connID)
		}
	}
}

// BroadcastToUser queues an event for every connection of one user.
func (h *Hub) BroadcastToUser(userID uuid.UUID, evt Event) {
	h.enqueue(&BroadcastMessage{UserIDs: []uuid.UUID{userID}, Event: evt})
}

// BroadcastToUsers queues an event for a fixed set of users.
func (h *Hub) BroadcastToUsers(userIDs []uuid.UUID, evt Event) {
	h.enqueue(&BroadcastMessage{UserIDs: userIDs, Event: evt})
}

// BroadcastToConversation queues an event for every authorized
// participant of the conversation, optionally excluding one connection.
func (h *Hub) BroadcastToConversation(conversationID uuid.UUID, evt Event, excludeConnID string) {
	convID := conversationID
	h.enqueue(&BroadcastMessage{ConversationID: &convID, ExcludeConnID: excludeConnID, Event: evt})
}

// SendToConnection writes an event to a single connection. Used for
// error reporting to the originating connection only.
func (h *Hub) SendToConnection(userID uuid.UUID, connID string, evt Event) {
	data, err := marshalEvent(evt)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if client, ok := h.clients[userID][connID]; ok {
		select {
		case client.send <- data:
		default:
		}
	}
}

func (h *Hub) enqueue(msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.stopChan:
	}
}

// ConnectionsOf returns the ids of the user's active connections.
func (h *Hub) ConnectionsOf(userID uuid.UUID) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	userClients := h.clients[userID]
	ids := make([]string, 0, len(userClients))
	for connID := range userClients {
		ids = append(ids, connID)
	}
	return ids
}

// IsOnline reports whether the user has at least one active connection.
func (h *Hub) IsOnline(userID uuid.UUID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

// Stop shuts the hub down. Clients are collected under the lock and
// closed outside it.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })

	h.mu.Lock()
	var toClose []*Client
	for _, userClients := range h.clients {
		for _, client := range userClients {
			toClose = append(toClose, client)
		}
	}
	h.clients = make(map[uuid.UUID]map[string]*Client)
	h.mu.Unlock()

	for _, client := range toClose {
		h.removeClient(client)
	}
}

// ConnRateLimiter caps handshakes per user over a sliding window.
type ConnRateLimiter struct {
	connectionsPerUser map[uuid.UUID][]time.Time
	mu                 sync.Mutex
}

func NewConnRateLimiter() *ConnRateLimiter {
	return &ConnRateLimiter{
		connectionsPerUser: make(map[uuid.UUID][]time.Time),
	}
}

func (w *ConnRateLimiter) AllowConnection(userID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-1 * time.Minute)

	valid := w.connectionsPerUser[userID][:0]
	for _, t := range w.connectionsPerUser[userID] {
		if t.After(windowStart) {
			valid = append(valid, t)
		}
	}

	if len(valid) >= maxHandshakesPerMinute {
		w.connectionsPerUser[userID] = valid
		return false
	}

	w.connectionsPerUser[userID] = append(valid, now)
	return true
}
