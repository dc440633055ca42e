package message

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

const (
	TypeText   = "text"
	TypeFile   = "file"
	TypeImage  = "image"
	TypeSystem = "system"
)

// Message represents the messages table. The log is append-only per
// conversation: edits and deletes mutate flags in place so ids and
// ordering positions never change. Column names follow the existing
// schema, which this service inherits rather than owns.
type Message struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey"`
	ConversationID uuid.UUID      `gorm:"type:uuid;not null;index"`
	SenderID       uuid.UUID      `gorm:"type:uuid;not null"`
	Content        sql.NullString
	Type           string         `gorm:"default:'text'"`
	ReplyToID      uuid.NullUUID  `gorm:"type:uuid"`
	IsEdited       bool           `gorm:"column:editado;default:false"`
	IsDeleted      bool           `gorm:"column:eliminado;default:false"`
	CreatedAt      time.Time
	UpdatedAt      time.Time

	Attachments []Attachment `gorm:"foreignKey:MessageID"`
}

// Attachment represents the attachments table. Storage is an opaque
// blob behind a URL; the URL may be re-signed on read.
type Attachment struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey"`
	MessageID    uuid.UUID      `gorm:"type:uuid;not null;index"`
	FileName     string         `gorm:"not null"`
	MimeType     string
	SizeBytes    int64
	StorageKey   string         `gorm:"not null"`
	StorageURL   string
	ThumbnailURL sql.NullString
	CreatedAt    time.Time
}

func (Message) TableName() string {
	return "messages"
}

func (Attachment) TableName() string {
	return "attachments"
}
