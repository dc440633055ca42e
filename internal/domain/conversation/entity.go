package conversation

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	TypeDirect = "direct"
	TypeGroup  = "group"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Conversation represents the conversations table. System conversations
// are directory-synced department groups; their membership is never
// edited by users.
type Conversation struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	Type         string         `gorm:"not null"`
	Name         sql.NullString
	Description  sql.NullString
	AvatarURL    sql.NullString
	CreatedBy    uuid.NullUUID  `gorm:"type:uuid"`
	IsActive     bool           `gorm:"default:true"`
	IsSystem     bool           `gorm:"column:is_system;default:false"`
	DepartmentID sql.NullString `gorm:"index"`
	CreatedAt    time.Time
	UpdatedAt    time.Time

	Participants []Participant
}

// Participant represents the participants table. Composite primary key
// on (conversation_id, user_id).
type Participant struct {
	ConversationID uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Role           string    `gorm:"default:'member'"`
	IsMuted        bool      `gorm:"default:false"`
	LastReadAt     sql.NullTime
	JoinedAt       time.Time
}

func (Conversation) TableName() string {
	return "conversations"
}

func (Participant) TableName() string {
	return "participants"
}
