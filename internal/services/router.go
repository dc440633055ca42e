package services

import (
	"context"

	"civichat/internal/realtime"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
)

// PresenceSetter applies explicit client status signals.
type PresenceSetter interface {
	SetStatus(ctx context.Context, userID uuid.UUID, status string) error
}

// TypingData is relayed verbatim to the other participants; typing is
// never persisted.
type TypingData struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	IsTyping       bool      `json:"is_typing"`
}

// Router dispatches inbound realtime events to the owning service. It
// returns sentinel errors; the connection layer maps them to error
// events for the originating connection only.
type Router struct {
	messages    *MessageService
	calls       *CallService
	presence    PresenceSetter
	guard       *Guard
	broadcaster Broadcaster
}

func NewRouter(messages *MessageService, calls *CallService, presence PresenceSetter, guard *Guard, broadcaster Broadcaster) *Router {
	return &Router{
		messages:    messages,
		calls:       calls,
		presence:    presence,
		guard:       guard,
		broadcaster: broadcaster,
	}
}

func (r *Router) HandleClientEvent(ctx context.Context, sess realtime.Session, connID string, evt realtime.ClientEvent) error {
	switch evt.Type {
	case realtime.ClientMessageSend:
		if evt.ConversationID == uuid.Nil {
			return civichat_errors.ErrValidation
		}
		_, err := r.messages.Send(ctx, sess.UserID, evt.ConversationID, SendInput{
			Content:       evt.Content,
			Kind:          evt.Kind,
			AttachmentIDs: evt.AttachmentIDs,
			ReplyToID:     evt.ReplyToID,
		})
		return err

	case realtime.ClientTyping:
		if evt.ConversationID == uuid.Nil {
			return civichat_errors.ErrValidation
		}
		if err := r.guard.Require(ctx, evt.ConversationID, sess.UserID); err != nil {
			return err
		}
		// Relayed, not persisted. The sender's own connection is excluded.
		r.broadcaster.BroadcastToConversation(evt.ConversationID, realtime.Event{
			Type: realtime.EventTyping,
			Data: TypingData{ConversationID: evt.ConversationID, UserID: sess.UserID, IsTyping: evt.IsTyping},
		}, connID)
		return nil

	case realtime.ClientPresenceSet:
		return r.presence.SetStatus(ctx, sess.UserID, evt.Status)

	case realtime.ClientCallInit:
		if evt.ConversationID == uuid.Nil {
			return civichat_errors.ErrValidation
		}
		_, err := r.calls.Initiate(ctx, sess.UserID, evt.ConversationID, evt.Kind)
		return err

	case realtime.ClientCallAccept:
		if evt.CallID == uuid.Nil {
			return civichat_errors.ErrValidation
		}
		_, err := r.calls.Accept(ctx, sess.UserID, evt.CallID)
		return err

	case realtime.ClientCallReject:
		if evt.CallID == uuid.Nil {
			return civichat_errors.ErrValidation
		}
		return r.calls.Reject(ctx, sess.UserID, evt.CallID)

	case realtime.ClientCallHangup:
		if evt.CallID == uuid.Nil {
			return civichat_errors.ErrValidation
		}
		return r.calls.Hangup(ctx, sess.UserID, evt.CallID)

	default:
		return civichat_errors.ErrValidation
	}
}
