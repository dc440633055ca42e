package realtime

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Outbound event types (server -> client).
const (
	EventMessageNew      = "message:new"
	EventMessageUpdated  = "message:updated"
	EventMessageDeleted  = "message:deleted"
	EventPresenceChanged = "presence:changed"
	EventTyping          = "typing"
	EventCallIncoming    = "call:incoming"
	EventCallAccepted    = "call:accepted"
	EventCallEnded       = "call:ended"
	EventError           = "error"
)

// Inbound event types (client -> server).
const (
	ClientMessageSend = "message:send"
	ClientTyping      = "typing"
	ClientPresenceSet = "presence:set"
	ClientCallInit    = "call:initiate"
	ClientCallAccept  = "call:accept"
	ClientCallReject  = "call:reject"
	ClientCallHangup  = "call:hangup"
	ClientPing        = "ping"
)

// Event is the outbound envelope written to websocket connections.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// ClientEvent is the flat inbound envelope. Fields are populated
// depending on Type.
type ClientEvent struct {
	Type           string      `json:"type"`
	ConversationID uuid.UUID   `json:"conversation_id,omitempty"`
	CallID         uuid.UUID   `json:"call_id,omitempty"`
	Content        string      `json:"content,omitempty"`
	Kind           string      `json:"kind,omitempty"`
	AttachmentIDs  []uuid.UUID `json:"attachment_ids,omitempty"`
	ReplyToID      uuid.UUID   `json:"reply_to_id,omitempty"`
	Status         string      `json:"status,omitempty"`
	IsTyping       bool        `json:"is_typing,omitempty"`
}

// Session is the per-connection context record, created once at
// handshake and never mutated afterwards.
type Session struct {
	UserID      uuid.UUID
	Email       string
	ConnectedAt time.Time
}

// ErrorData is the payload of error events reported back to the
// originating connection only.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func marshalEvent(evt Event) ([]byte, error) {
	return json.Marshal(evt)
}
