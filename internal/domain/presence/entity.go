package presence

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// ValidStatus reports whether s is a client-settable presence status.
// offline is excluded: it is derived from the connection set, never set
// directly.
func ValidStatus(s string) bool {
	switch s {
	case StatusOnline, StatusAway, StatusBusy:
		return true
	}
	return false
}

// Record is the checkpointed presence row. The in-memory tracker is
// authoritative; this row only carries status and last-seen across
// restarts.
type Record struct {
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	Status   string    `gorm:"default:'offline'"`
	LastSeen time.Time
}

func (Record) TableName() string {
	return "presence_records"
}
