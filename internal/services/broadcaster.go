package services

import (
	"context"

	"civichat/internal/realtime"

	"github.com/google/uuid"
)

// Broadcaster is the slice of the hub the services need for fan-out.
type Broadcaster interface {
	BroadcastToConversation(conversationID uuid.UUID, evt realtime.Event, excludeConnID string)
	BroadcastToUsers(userIDs []uuid.UUID, evt realtime.Event)
	BroadcastToUser(userID uuid.UUID, evt realtime.Event)
	IsOnline(userID uuid.UUID) bool
}

// AttachmentPresigner re-signs storage URLs on read.
type AttachmentPresigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
}

// PushSender notifies users with no realtime connection. Best-effort.
type PushSender interface {
	Notify(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string)
}
