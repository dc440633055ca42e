package services

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"time"

	"civichat/internal/domain/message"
	"civichat/internal/realtime"
	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxContentLength = 8192

// SendInput is the validated payload of a send operation, from either
// the realtime router or the HTTP boundary.
type SendInput struct {
	Content       string
	Kind          string
	AttachmentIDs []uuid.UUID
	ReplyToID     uuid.UUID
}

// AttachmentData is the wire shape of an attachment with a freshly
// signed download URL.
type AttachmentData struct {
	ID           uuid.UUID `json:"id"`
	FileName     string    `json:"file_name"`
	MimeType     string    `json:"mime_type,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// MessageData is the wire shape of a message, used by both broadcasts
// and HTTP responses.
type MessageData struct {
	ID             uuid.UUID        `json:"id"`
	ConversationID uuid.UUID        `json:"conversation_id"`
	SenderID       uuid.UUID        `json:"sender_id"`
	Content        string           `json:"content"`
	Kind           string           `json:"kind"`
	ReplyToID      *uuid.UUID       `json:"reply_to_id,omitempty"`
	IsEdited       bool             `json:"is_edited"`
	IsDeleted      bool             `json:"is_deleted"`
	CreatedAt      time.Time        `json:"created_at"`
	Attachments    []AttachmentData `json:"attachments,omitempty"`
}

// MessageDeletedData carries only the id and the deletion marker so
// clients can redact locally. Content is never re-broadcast.
type MessageDeletedData struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	IsDeleted      bool      `json:"is_deleted"`
}

type MessageService struct {
	msgRepo     repository.MessageRepository
	guard       *Guard
	broadcaster Broadcaster
	presigner   AttachmentPresigner
	push        PushSender
	logger      *zap.Logger

	// convLocks serializes persist+enqueue per conversation so broadcast
	// order always equals commit order.
	convMu    sync.Mutex
	convLocks map[uuid.UUID]*sync.Mutex
}

func NewMessageService(msgRepo repository.MessageRepository, guard *Guard, broadcaster Broadcaster, presigner AttachmentPresigner, push PushSender) *MessageService {
	return &MessageService{
		msgRepo:     msgRepo,
		guard:       guard,
		broadcaster: broadcaster,
		presigner:   presigner,
		push:        push,
		logger:      zap.L().With(zap.String("component", "messages")),
		convLocks:   make(map[uuid.UUID]*sync.Mutex),
	}
}

func (s *MessageService) lockConversation(id uuid.UUID) *sync.Mutex {
	s.convMu.Lock()
	defer s.convMu.Unlock()
	mu, ok := s.convLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.convLocks[id] = mu
	}
	return mu
}

// Send persists a message atomically with its attachment links and
// broadcasts message:new in commit order. A persistence failure aborts
// before any fan-out.
func (s *MessageService) Send(ctx context.Context, senderID, conversationID uuid.UUID, in SendInput) (MessageData, error) {
	if err := s.guard.Require(ctx, conversationID, senderID); err != nil {
		return MessageData{}, err
	}

	kind := in.Kind
	if kind == "" {
		kind = message.TypeText
	}
	switch kind {
	case message.TypeText, message.TypeFile, message.TypeImage:
	default:
		return MessageData{}, civichat_errors.ErrValidation
	}

	content := strings.TrimSpace(in.Content)
	if content == "" && len(in.AttachmentIDs) == 0 {
		return MessageData{}, civichat_errors.ErrValidation
	}
	if len(content) > maxContentLength {
		return MessageData{}, civichat_errors.ErrValidation
	}

	var attachments []message.Attachment
	if len(in.AttachmentIDs) > 0 {
		var err error
		attachments, err = s.msgRepo.GetAttachments(ctx, in.AttachmentIDs)
		if err != nil {
			return MessageData{}, err
		}
		if len(attachments) != len(in.AttachmentIDs) {
			return MessageData{}, civichat_errors.ErrValidation
		}
	}

	msg := message.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        sql.NullString{String: content, Valid: content != ""},
		Type:           kind,
		Attachments:    attachments,
	}
	if in.ReplyToID != uuid.Nil {
		msg.ReplyToID = uuid.NullUUID{UUID: in.ReplyToID, Valid: true}
	}

	mu := s.lockConversation(conversationID)
	mu.Lock()
	err := s.msgRepo.Create(ctx, &msg)
	if err != nil {
		mu.Unlock()
		return MessageData{}, err
	}
	data := s.toData(ctx, msg)
	s.broadcaster.BroadcastToConversation(conversationID, realtime.Event{
		Type: realtime.EventMessageNew,
		Data: data,
	}, "")
	mu.Unlock()

	s.notifyOffline(ctx, conversationID, senderID, data)
	return data, nil
}

// Edit updates content in place. Only the original sender or an admin
// participant may edit; the id and ordering position never change.
func (s *MessageService) Edit(ctx context.Context, editorID, messageID uuid.UUID, content string) (MessageData, error) {
	content = strings.TrimSpace(content)
	if content == "" || len(content) > maxContentLength {
		return MessageData{}, civichat_errors.ErrValidation
	}

	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return MessageData{}, err
	}
	if err := s.guard.Require(ctx, msg.ConversationID, editorID); err != nil {
		return MessageData{}, err
	}
	if msg.SenderID != editorID && !s.guard.IsAdmin(ctx, msg.ConversationID, editorID) {
		return MessageData{}, civichat_errors.ErrForbidden
	}

	if err := s.msgRepo.MarkEdited(ctx, messageID, content); err != nil {
		return MessageData{}, err
	}
	msg.Content = sql.NullString{String: content, Valid: true}
	msg.IsEdited = true

	data := s.toData(ctx, msg)
	s.broadcaster.BroadcastToConversation(msg.ConversationID, realtime.Event{
		Type: realtime.EventMessageUpdated,
		Data: data,
	}, "")
	return data, nil
}

// Delete soft-deletes. Clients receive the id and the deletion marker
// only.
func (s *MessageService) Delete(ctx context.Context, requesterID, messageID uuid.UUID) error {
	msg, err := s.msgRepo.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if err := s.guard.Require(ctx, msg.ConversationID, requesterID); err != nil {
		return err
	}
	if msg.SenderID != requesterID && !s.guard.IsAdmin(ctx, msg.ConversationID, requesterID) {
		return civichat_errors.ErrForbidden
	}

	if err := s.msgRepo.SoftDelete(ctx, messageID); err != nil {
		return err
	}

	s.broadcaster.BroadcastToConversation(msg.ConversationID, realtime.Event{
		Type: realtime.EventMessageDeleted,
		Data: MessageDeletedData{ID: messageID, ConversationID: msg.ConversationID, IsDeleted: true},
	}, "")
	return nil
}

// Fetch pages backwards from the before timestamp.
func (s *MessageService) Fetch(ctx context.Context, requesterID, conversationID uuid.UUID, before time.Time, limit int) ([]MessageData, error) {
	if err := s.guard.Require(ctx, conversationID, requesterID); err != nil {
		return nil, err
	}
	if before.IsZero() {
		before = time.Now()
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	msgs, err := s.msgRepo.GetConversationMessages(ctx, conversationID, before, limit)
	if err != nil {
		return nil, err
	}
	out := make([]MessageData, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.toData(ctx, m))
	}
	return out, nil
}

func (s *MessageService) toData(ctx context.Context, m message.Message) MessageData {
	data := MessageData{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Kind:           m.Type,
		IsEdited:       m.IsEdited,
		IsDeleted:      m.IsDeleted,
		CreatedAt:      m.CreatedAt,
	}
	if m.Content.Valid && !m.IsDeleted {
		data.Content = m.Content.String
	}
	if m.ReplyToID.Valid {
		id := m.ReplyToID.UUID
		data.ReplyToID = &id
	}
	for _, a := range m.Attachments {
		ad := AttachmentData{
			ID:        a.ID,
			FileName:  a.FileName,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
			URL:       a.StorageURL,
		}
		if a.ThumbnailURL.Valid {
			ad.ThumbnailURL = a.ThumbnailURL.String
		}
		if s.presigner != nil {
			if url, err := s.presigner.PresignDownload(ctx, a.StorageKey); err == nil {
				ad.URL = url
			} else {
				s.logger.Warn("attachment presign failed", zap.String("attachment_id", a.ID.String()), zap.Error(err))
			}
		}
		data.Attachments = append(data.Attachments, ad)
	}
	return data
}

// notifyOffline web-pushes participants with no live connection.
func (s *MessageService) notifyOffline(ctx context.Context, conversationID, senderID uuid.UUID, data MessageData) {
	if s.push == nil {
		return
	}
	ids, err := s.guard.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return
	}
	for _, id := range ids {
		if id == senderID || s.broadcaster.IsOnline(id) {
			continue
		}
		s.push.Notify(ctx, id, "New message", data.Content, map[string]string{
			"conversation_id": conversationID.String(),
			"message_id":      data.ID.String(),
		})
	}
}
