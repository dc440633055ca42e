package services

import (
	"context"

	"civichat/internal/domain/conversation"
	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Guard answers membership questions for every mutating or broadcasting
// operation. It fails closed: any storage error denies, the underlying
// cause goes to the log, never to the caller.
type Guard struct {
	convRepo repository.ConversationRepository
	logger   *zap.Logger
}

func NewGuard(convRepo repository.ConversationRepository) *Guard {
	return &Guard{
		convRepo: convRepo,
		logger:   zap.L().With(zap.String("component", "guard")),
	}
}

// Require denies with ErrNotParticipant unless userID holds an active
// participant row in the conversation.
func (g *Guard) Require(ctx context.Context, conversationID, userID uuid.UUID) error {
	ok, err := g.convRepo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		g.logger.Warn("membership check failed, denying",
			zap.String("conversation_id", conversationID.String()),
			zap.String("user_id", userID.String()),
			zap.Error(err))
		return civichat_errors.ErrNotParticipant
	}
	if !ok {
		return civichat_errors.ErrNotParticipant
	}
	return nil
}

// RequireAdmin denies unless userID is a participant with the admin
// role.
func (g *Guard) RequireAdmin(ctx context.Context, conversationID, userID uuid.UUID) error {
	p, err := g.convRepo.GetParticipant(ctx, conversationID, userID)
	if err != nil {
		return civichat_errors.ErrNotParticipant
	}
	if p.Role != conversation.RoleAdmin {
		return civichat_errors.ErrForbidden
	}
	return nil
}

// IsAdmin reports the admin role without mapping absence to an error.
func (g *Guard) IsAdmin(ctx context.Context, conversationID, userID uuid.UUID) bool {
	p, err := g.convRepo.GetParticipant(ctx, conversationID, userID)
	return err == nil && p.Role == conversation.RoleAdmin
}

// ParticipantIDs resolves the authorized audience of a conversation.
// Used by the hub at broadcast time so membership changes take effect
// immediately.
func (g *Guard) ParticipantIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	parts, err := g.convRepo.GetParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(parts))
	for _, p := range parts {
		ids = append(ids, p.UserID)
	}
	return ids, nil
}
