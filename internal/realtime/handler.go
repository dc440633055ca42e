package realtime

import (
	"context"
	"net/http"
	"strings"
	"time"

	"civichat/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler authenticates websocket handshakes and hands accepted
// connections to the hub. Unauthenticated handshakes are rejected
// before any event is processed.
type Handler struct {
	hub          *Hub
	verifier     *auth.Verifier
	authDeadline time.Duration
	logger       *WSLogger
}

func NewHandler(hub *Hub, verifier *auth.Verifier, authDeadline time.Duration) *Handler {
	if authDeadline == 0 {
		authDeadline = 10 * time.Second
	}
	return &Handler{
		hub:          hub,
		verifier:     verifier,
		authDeadline: authDeadline,
		logger:       NewWSLogger(),
	}
}

// Handle upgrades HTTP to websocket after the credential verifies
// within the auth deadline.
func (h *Handler) Handle(c *gin.Context) {
	token := h.extractToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.authDeadline)
	defer cancel()

	identity, err := h.verifier.Verify(ctx, token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", identity.UserID, "", err)
		return
	}

	session := Session{
		UserID:      identity.UserID,
		Email:       identity.Email,
		ConnectedAt: time.Now(),
	}
	client := NewClient(h.hub, conn, uuid.New().String(), session, h.logger)

	h.hub.register <- client
}

func (h *Handler) extractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	if cookie, err := c.Cookie("access_token"); err == nil {
		return cookie
	}

	return ""
}
