package httpdto

import (
	"time"

	"civichat/internal/domain/call"

	"github.com/google/uuid"
)

type CallResponse struct {
	ID              uuid.UUID  `json:"id"`
	ConversationID  uuid.UUID  `json:"conversation_id"`
	InitiatorID     uuid.UUID  `json:"initiator_id"`
	Kind            string     `json:"kind"`
	State           string     `json:"state"`
	RoomName        string     `json:"room_name"`
	DurationSeconds int32      `json:"duration_seconds,omitempty"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

func ToCallResponse(c call.Call) CallResponse {
	resp := CallResponse{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		InitiatorID:    c.InitiatorID,
		Kind:           c.Kind,
		State:          c.State,
		RoomName:       c.RoomName,
		CreatedAt:      c.CreatedAt,
	}
	if c.DurationSeconds.Valid {
		resp.DurationSeconds = c.DurationSeconds.Int32
	}
	if c.StartedAt.Valid {
		t := c.StartedAt.Time
		resp.StartedAt = &t
	}
	if c.EndedAt.Valid {
		t := c.EndedAt.Time
		resp.EndedAt = &t
	}
	return resp
}
