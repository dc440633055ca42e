package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"civichat/internal/domain/call"
	"civichat/internal/domain/conversation"
	"civichat/internal/domain/message"
	"civichat/internal/domain/presence"
	"civichat/internal/domain/user"
)

type UserRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (user.User, error)
	GetByEmail(ctx context.Context, email string) (user.User, error)
}

type ConversationRepository interface {
	Create(ctx context.Context, c *conversation.Conversation) error
	GetByID(ctx context.Context, id uuid.UUID) (conversation.Conversation, error)
	Update(ctx context.Context, c conversation.Conversation) error

	GetUserConversations(ctx context.Context, userID uuid.UUID, page, limit int) ([]conversation.Conversation, int64, error)
	GetDirectConversation(ctx context.Context, userID1, userID2 uuid.UUID) (conversation.Conversation, error)
	GetSystemConversationByDepartment(ctx context.Context, departmentID string) (conversation.Conversation, error)

	AddParticipant(ctx context.Context, p *conversation.Participant) error
	RemoveParticipant(ctx context.Context, conversationID, userID uuid.UUID) error
	GetParticipants(ctx context.Context, conversationID uuid.UUID) ([]conversation.Participant, error)
	GetParticipant(ctx context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)

	// GetPeerIDs returns every distinct user sharing at least one active
	// conversation with userID. Bounds presence fan-out.
	GetPeerIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)

	UpdateLastRead(ctx context.Context, conversationID, userID uuid.UUID, at time.Time) error
}

type MessageRepository interface {
	// Create persists the message and its attachment links in one
	// transaction.
	Create(ctx context.Context, m *message.Message) error
	GetByID(ctx context.Context, id uuid.UUID) (message.Message, error)
	MarkEdited(ctx context.Context, id uuid.UUID, content string) error
	SoftDelete(ctx context.Context, id uuid.UUID) error

	GetConversationMessages(ctx context.Context, conversationID uuid.UUID, before time.Time, limit int) ([]message.Message, error)
	GetLatestMessage(ctx context.Context, conversationID uuid.UUID) (message.Message, error)

	GetAttachments(ctx context.Context, ids []uuid.UUID) ([]message.Attachment, error)
}

type CallRepository interface {
	Create(ctx context.Context, c *call.Call) error
	GetByID(ctx context.Context, id uuid.UUID) (call.Call, error)

	// TransitionState performs a compare-and-swap from one state to
	// another. ErrInvalidCallState is returned when the call is no
	// longer in fromState.
	TransitionState(ctx context.Context, id uuid.UUID, fromState, toState string) (call.Call, error)
	SetDuration(ctx context.Context, id uuid.UUID, seconds int32) error

	AddParticipant(ctx context.Context, p *call.CallParticipant) error
	MarkParticipantJoined(ctx context.Context, callID, userID uuid.UUID, at time.Time) error
	GetConversationCalls(ctx context.Context, conversationID uuid.UUID, page, limit int) ([]call.Call, int64, error)
}

type PresenceRepository interface {
	// Checkpoint stores status and last-seen for cross-restart
	// continuity. Best-effort: callers log and continue on failure.
	Checkpoint(ctx context.Context, rec presence.Record) error
	Get(ctx context.Context, userID uuid.UUID) (presence.Record, error)
}
