package httpdto

import (
	"time"

	"civichat/internal/domain/conversation"

	"github.com/google/uuid"
)

type CreateDirectRequest struct {
	PeerID string `json:"peer_id" binding:"required"`
}

type CreateGroupRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	MemberIDs   []string `json:"member_ids"`
}

type ParticipantResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type ConversationResponse struct {
	ID           uuid.UUID             `json:"id"`
	Type         string                `json:"type"`
	Name         string                `json:"name,omitempty"`
	Description  string                `json:"description,omitempty"`
	IsSystem     bool                  `json:"is_system"`
	DepartmentID string                `json:"department_id,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	Participants []ParticipantResponse `json:"participants,omitempty"`
}

func ToConversationResponse(c conversation.Conversation) ConversationResponse {
	resp := ConversationResponse{
		ID:        c.ID,
		Type:      c.Type,
		IsSystem:  c.IsSystem,
		CreatedAt: c.CreatedAt,
	}
	if c.Name.Valid {
		resp.Name = c.Name.String
	}
	if c.Description.Valid {
		resp.Description = c.Description.String
	}
	if c.DepartmentID.Valid {
		resp.DepartmentID = c.DepartmentID.String
	}
	for _, p := range c.Participants {
		resp.Participants = append(resp.Participants, ParticipantResponse{
			UserID:   p.UserID,
			Role:     p.Role,
			JoinedAt: p.JoinedAt,
		})
	}
	return resp
}
