package call

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	KindVoice = "voice"
	KindVideo = "video"
)

// Call states. Transitions are one-directional: ringing is left exactly
// once, and terminal states absorb every further attempt.
const (
	StateRinging  = "ringing"
	StateActive   = "active"
	StateEnded    = "ended"
	StateRejected = "rejected"
	StateNoAnswer = "no_answer"
)

// EndReasons carried on call:ended broadcasts.
const (
	ReasonCompleted = "completed"
	ReasonRejected  = "rejected"
	ReasonNoAnswer  = "no_answer"
)

// Call represents the calls table.
type Call struct {
	ID              uuid.UUID `gorm:"type:uuid;primaryKey"`
	ConversationID  uuid.UUID `gorm:"type:uuid;not null;index"`
	InitiatorID     uuid.UUID `gorm:"type:uuid;not null"`
	Kind            string    `gorm:"not null"`
	State           string    `gorm:"not null;default:'ringing'"`
	RoomName        string    `gorm:"uniqueIndex;not null"`
	DurationSeconds sql.NullInt32
	StartedAt       sql.NullTime
	EndedAt         sql.NullTime
	CreatedAt       time.Time

	Participants []CallParticipant `gorm:"foreignKey:CallID"`
}

// CallParticipant records who was invited to or joined a call.
type CallParticipant struct {
	CallID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey"`
	JoinedAt sql.NullTime
}

// IsTerminal reports whether no further transition may leave state.
func IsTerminal(state string) bool {
	switch state {
	case StateEnded, StateRejected, StateNoAnswer:
		return true
	}
	return false
}

func (Call) TableName() string {
	return "calls"
}

func (CallParticipant) TableName() string {
	return "call_participants"
}
