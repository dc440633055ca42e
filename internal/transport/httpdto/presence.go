package httpdto

import (
	"time"

	"github.com/google/uuid"
)

type PresenceResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}
