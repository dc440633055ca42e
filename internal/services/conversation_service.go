package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"civichat/internal/domain/conversation"
	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
)

type ConversationService struct {
	repo  repository.ConversationRepository
	guard *Guard
}

func NewConversationService(repo repository.ConversationRepository, guard *Guard) *ConversationService {
	return &ConversationService{repo: repo, guard: guard}
}

// CreateDirect returns the direct conversation between the two users,
// creating it when none exists. Direct conversations are unique per
// unordered pair.
func (s *ConversationService) CreateDirect(ctx context.Context, userID, peerID uuid.UUID) (conversation.Conversation, error) {
	if userID == peerID {
		return conversation.Conversation{}, civichat_errors.ErrValidation
	}

	existing, err := s.repo.GetDirectConversation(ctx, userID, peerID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, civichat_errors.ErrNotFound) {
		return conversation.Conversation{}, err
	}

	now := time.Now()
	conv := conversation.Conversation{
		ID:        uuid.New(),
		Type:      conversation.TypeDirect,
		CreatedBy: uuid.NullUUID{UUID: userID, Valid: true},
		IsActive:  true,
		Participants: []conversation.Participant{
			{UserID: userID, Role: conversation.RoleMember, JoinedAt: now},
			{UserID: peerID, Role: conversation.RoleMember, JoinedAt: now},
		},
	}
	if err := s.repo.Create(ctx, &conv); err != nil {
		// A concurrent create for the same pair may have won.
		if errors.Is(err, civichat_errors.ErrConflict) {
			return s.repo.GetDirectConversation(ctx, userID, peerID)
		}
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// CreateGroup creates a group conversation. The creator always gets an
// explicit admin participant row.
func (s *ConversationService) CreateGroup(ctx context.Context, creatorID uuid.UUID, name, description string, memberIDs []uuid.UUID) (conversation.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return conversation.Conversation{}, civichat_errors.ErrValidation
	}

	now := time.Now()
	parts := []conversation.Participant{
		{UserID: creatorID, Role: conversation.RoleAdmin, JoinedAt: now},
	}
	for _, id := range memberIDs {
		if id == creatorID {
			continue
		}
		parts = append(parts, conversation.Participant{UserID: id, Role: conversation.RoleMember, JoinedAt: now})
	}

	conv := conversation.Conversation{
		ID:           uuid.New(),
		Type:         conversation.TypeGroup,
		Name:         sql.NullString{String: name, Valid: true},
		Description:  sql.NullString{String: description, Valid: description != ""},
		CreatedBy:    uuid.NullUUID{UUID: creatorID, Valid: true},
		IsActive:     true,
		Participants: parts,
	}
	if err := s.repo.Create(ctx, &conv); err != nil {
		return conversation.Conversation{}, err
	}
	return conv, nil
}

// List returns the caller's conversations, newest activity first.
func (s *ConversationService) List(ctx context.Context, userID uuid.UUID, page, limit int) ([]conversation.Conversation, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.repo.GetUserConversations(ctx, userID, page, limit)
}

// Get returns a single conversation the caller participates in.
func (s *ConversationService) Get(ctx context.Context, userID, conversationID uuid.UUID) (conversation.Conversation, error) {
	if err := s.guard.Require(ctx, conversationID, userID); err != nil {
		return conversation.Conversation{}, err
	}
	return s.repo.GetByID(ctx, conversationID)
}

// MarkRead stamps the caller's last-read position.
func (s *ConversationService) MarkRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	if err := s.guard.Require(ctx, conversationID, userID); err != nil {
		return err
	}
	return s.repo.UpdateLastRead(ctx, conversationID, userID, time.Now())
}
