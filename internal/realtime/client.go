package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	civichat_errors "civichat/pkg/errors"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	newline = []byte{'\n'}
	space   = []byte{' '}
)

// Per-minute inbound event budgets.
type RateLimits struct {
	MaxMessages        int
	MaxTypingEvents    int
	MaxPresenceUpdates int
	MaxCallSignals     int
	MaxPingMessages    int
}

var DefaultRateLimits = RateLimits{
	MaxMessages:        60,
	MaxTypingEvents:    60,
	MaxPresenceUpdates: 30,
	MaxCallSignals:     60,
	MaxPingMessages:    60,
}

// ClientRateLimiter tracks per-connection inbound budgets.
type ClientRateLimiter struct {
	messageTokens  int
	typingTokens   int
	presenceTokens int
	callTokens     int
	pingTokens     int
	lastRefill     time.Time
	mu             sync.Mutex
}

func NewClientRateLimiter() *ClientRateLimiter {
	return &ClientRateLimiter{
		messageTokens:  DefaultRateLimits.MaxMessages,
		typingTokens:   DefaultRateLimits.MaxTypingEvents,
		presenceTokens: DefaultRateLimits.MaxPresenceUpdates,
		callTokens:     DefaultRateLimits.MaxCallSignals,
		pingTokens:     DefaultRateLimits.MaxPingMessages,
		lastRefill:     time.Now(),
	}
}

func (rl *ClientRateLimiter) Allow(eventType string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	if now.Sub(rl.lastRefill) >= time.Minute {
		rl.messageTokens = DefaultRateLimits.MaxMessages
		rl.typingTokens = DefaultRateLimits.MaxTypingEvents
		rl.presenceTokens = DefaultRateLimits.MaxPresenceUpdates
		rl.callTokens = DefaultRateLimits.MaxCallSignals
		rl.pingTokens = DefaultRateLimits.MaxPingMessages
		rl.lastRefill = now
	}

	switch eventType {
	case ClientMessageSend:
		if rl.messageTokens > 0 {
			rl.messageTokens--
			return true
		}
	case ClientTyping:
		if rl.typingTokens > 0 {
			rl.typingTokens--
			return true
		}
	case ClientPresenceSet:
		if rl.presenceTokens > 0 {
			rl.presenceTokens--
			return true
		}
	case ClientCallInit, ClientCallAccept, ClientCallReject, ClientCallHangup:
		if rl.callTokens > 0 {
			rl.callTokens--
			return true
		}
	case ClientPing:
		if rl.pingTokens > 0 {
			rl.pingTokens--
			return true
		}
	}
	return false
}

// Client is a single websocket connection bound to one user.
type Client struct {
	hub          *Hub
	conn         *websocket.Conn
	send         chan []byte
	connID       string
	session      Session
	rateLimiter  *ClientRateLimiter
	lastActivity time.Time
	logger       *WSLogger
}

func NewClient(hub *Hub, conn *websocket.Conn, connID string, session Session, logger *WSLogger) *Client {
	return &Client{
		hub:          hub,
		conn:         conn,
		send:         make(chan []byte, 256),
		connID:       connID,
		session:      session,
		rateLimiter:  NewClientRateLimiter(),
		lastActivity: time.Now(),
		logger:       logger,
	}
}

func (c *Client) startPumps() {
	go c.writePump()
	go c.readPump()
}

func (c *Client) closeConn() {
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.closeConn()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.lastActivity = time.Now()
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("websocket unexpected close", c.session.UserID, c.connID, err)
			}
			break
		}

		raw = bytes.TrimSpace(bytes.Replace(raw, newline, space, -1))
		c.lastActivity = time.Now()

		c.handleInbound(raw)
	}
}

// handleInbound dispatches one client event. Failures are reported back
// to this connection only and never interrupt the read loop: one
// connection's error must not affect any other.
func (c *Client) handleInbound(raw []byte) {
	var evt ClientEvent
	if err := json.Unmarshal(raw, &evt); err != nil {
		c.reportError(civichat_errors.ErrValidation)
		return
	}

	if !c.rateLimiter.Allow(evt.Type) {
		c.logger.Warn("rate limit exceeded", c.session.UserID, c.connID, zap.String("event_type", evt.Type))
		return
	}

	if evt.Type == ClientPing {
		select {
		case c.send <- []byte(`{"type":"pong"}`):
		default:
		}
		return
	}

	if c.hub.router == nil {
		return
	}
	if err := c.hub.router.HandleClientEvent(context.Background(), c.session, c.connID, evt); err != nil {
		c.logger.Warn("client event rejected", c.session.UserID, c.connID,
			zap.String("event_type", evt.Type), zap.String("reason", err.Error()))
		c.reportError(err)
	}
}

func (c *Client) reportError(err error) {
	code := "INTERNAL"
	msg := "request failed"
	switch {
	case errors.Is(err, civichat_errors.ErrNotParticipant):
		code, msg = "NOT_PARTICIPANT", "not a conversation participant"
	case errors.Is(err, civichat_errors.ErrForbidden):
		code, msg = "FORBIDDEN", "forbidden"
	case errors.Is(err, civichat_errors.ErrNotFound):
		code, msg = "NOT_FOUND", "not found"
	case errors.Is(err, civichat_errors.ErrInvalidCallState):
		code, msg = "INVALID_CALL_STATE", "invalid call state"
	case errors.Is(err, civichat_errors.ErrValidation):
		code, msg = "VALIDATION_FAILED", "validation failed"
	case errors.Is(err, civichat_errors.ErrUnavailable):
		code, msg = "UNAVAILABLE", "service unavailable"
	}

	data, err := marshalEvent(Event{Type: EventError, Data: ErrorData{Code: code, Message: msg}})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConn()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write(newline)
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

			if time.Since(c.lastActivity) > pongWait*2 {
				c.logger.Info("client idle timeout", c.session.UserID, c.connID)
				return
			}
		}
	}
}
