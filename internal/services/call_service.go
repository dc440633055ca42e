package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"civichat/internal/domain/call"
	"civichat/internal/media"
	"civichat/internal/realtime"
	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// JoinTokenIssuer signs room-scoped media bridge credentials.
type JoinTokenIssuer interface {
	JoinToken(roomName string, userID uuid.UUID, displayName string) (media.JoinToken, error)
}

// CallData is the wire shape of a call on signaling broadcasts.
type CallData struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	InitiatorID    uuid.UUID `json:"initiator_id"`
	Kind           string    `json:"kind"`
	State          string    `json:"state"`
	RoomName       string    `json:"room_name"`
	CreatedAt      time.Time `json:"created_at"`
}

// CallAcceptedData announces the transition to active.
type CallAcceptedData struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	AcceptedBy     uuid.UUID `json:"accepted_by"`
}

// CallEndedData announces a terminal transition with its reason.
type CallEndedData struct {
	ID              uuid.UUID `json:"id"`
	ConversationID  uuid.UUID `json:"conversation_id"`
	Reason          string    `json:"reason"`
	DurationSeconds int32     `json:"duration_seconds,omitempty"`
}

// CallService drives the signaling state machine. Every transition is
// a compare-and-swap in storage, so competing accept/reject/timeout
// attempts on the same call resolve to exactly one winner.
type CallService struct {
	callRepo    repository.CallRepository
	userRepo    repository.UserRepository
	guard       *Guard
	broadcaster Broadcaster
	tokens      JoinTokenIssuer
	ringWindow  time.Duration
	logger      *zap.Logger

	// ringTimers holds the pending no-answer cancellation per ringing
	// call. Cancelled on any terminal transition; a timer that fires
	// after the call left ringing loses the CAS and does nothing.
	timerMu    sync.Mutex
	ringTimers map[uuid.UUID]*time.Timer
}

func NewCallService(callRepo repository.CallRepository, userRepo repository.UserRepository, guard *Guard, broadcaster Broadcaster, tokens JoinTokenIssuer, ringWindow time.Duration) *CallService {
	if ringWindow <= 0 {
		ringWindow = 30 * time.Second
	}
	return &CallService{
		callRepo:    callRepo,
		userRepo:    userRepo,
		guard:       guard,
		broadcaster: broadcaster,
		tokens:      tokens,
		ringWindow:  ringWindow,
		logger:      zap.L().With(zap.String("component", "calls")),
		ringTimers:  make(map[uuid.UUID]*time.Timer),
	}
}

func toCallData(c call.Call) CallData {
	return CallData{
		ID:             c.ID,
		ConversationID: c.ConversationID,
		InitiatorID:    c.InitiatorID,
		Kind:           c.Kind,
		State:          c.State,
		RoomName:       c.RoomName,
		CreatedAt:      c.CreatedAt,
	}
}

// Initiate creates a ringing call, invites every current conversation
// participant, arms the no-answer timer and broadcasts call:incoming to
// everyone but the initiator.
func (s *CallService) Initiate(ctx context.Context, initiatorID, conversationID uuid.UUID, kind string) (CallData, error) {
	if err := s.guard.Require(ctx, conversationID, initiatorID); err != nil {
		return CallData{}, err
	}
	switch kind {
	case call.KindVoice, call.KindVideo:
	default:
		return CallData{}, civichat_errors.ErrValidation
	}

	participantIDs, err := s.guard.ParticipantIDs(ctx, conversationID)
	if err != nil {
		return CallData{}, civichat_errors.ErrUnavailable
	}

	c := call.Call{
		ID:             uuid.New(),
		ConversationID: conversationID,
		InitiatorID:    initiatorID,
		Kind:           kind,
		State:          call.StateRinging,
	}
	c.RoomName = "call-" + c.ID.String()

	now := time.Now()
	for _, id := range participantIDs {
		p := call.CallParticipant{CallID: c.ID, UserID: id}
		if id == initiatorID {
			p.JoinedAt = sql.NullTime{Time: now, Valid: true}
		}
		c.Participants = append(c.Participants, p)
	}

	if err := s.callRepo.Create(ctx, &c); err != nil {
		return CallData{}, err
	}

	s.armRingTimer(c.ID, conversationID)

	invited := make([]uuid.UUID, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != initiatorID {
			invited = append(invited, id)
		}
	}
	s.broadcaster.BroadcastToUsers(invited, realtime.Event{
		Type: realtime.EventCallIncoming,
		Data: toCallData(c),
	})

	return toCallData(c), nil
}

// Accept transitions ringing to active. A concurrent reject or the ring
// timeout may win instead; the loser gets ErrInvalidCallState and no
// broadcast happens for it.
func (s *CallService) Accept(ctx context.Context, userID, callID uuid.UUID) (CallData, error) {
	c, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return CallData{}, err
	}
	if err := s.guard.Require(ctx, c.ConversationID, userID); err != nil {
		return CallData{}, err
	}

	updated, err := s.callRepo.TransitionState(ctx, callID, call.StateRinging, call.StateActive)
	if err != nil {
		return CallData{}, err
	}
	s.cancelRingTimer(callID)

	if err := s.callRepo.MarkParticipantJoined(ctx, callID, userID, time.Now()); err != nil {
		s.logger.Warn("marking call participant joined failed",
			zap.String("call_id", callID.String()), zap.Error(err))
	}

	s.broadcaster.BroadcastToConversation(c.ConversationID, realtime.Event{
		Type: realtime.EventCallAccepted,
		Data: CallAcceptedData{ID: callID, ConversationID: c.ConversationID, AcceptedBy: userID},
	}, "")

	return toCallData(updated), nil
}

// Reject transitions ringing to rejected and ends the call for everyone.
func (s *CallService) Reject(ctx context.Context, userID, callID uuid.UUID) error {
	c, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if err := s.guard.Require(ctx, c.ConversationID, userID); err != nil {
		return err
	}

	if _, err := s.callRepo.TransitionState(ctx, callID, call.StateRinging, call.StateRejected); err != nil {
		return err
	}
	s.cancelRingTimer(callID)

	s.broadcaster.BroadcastToConversation(c.ConversationID, realtime.Event{
		Type: realtime.EventCallEnded,
		Data: CallEndedData{ID: callID, ConversationID: c.ConversationID, Reason: call.ReasonRejected},
	}, "")
	return nil
}

// Hangup transitions active to ended and stamps the duration.
func (s *CallService) Hangup(ctx context.Context, userID, callID uuid.UUID) error {
	c, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return err
	}
	if err := s.guard.Require(ctx, c.ConversationID, userID); err != nil {
		return err
	}

	updated, err := s.callRepo.TransitionState(ctx, callID, call.StateActive, call.StateEnded)
	if err != nil {
		return err
	}
	s.cancelRingTimer(callID)

	var duration int32
	if updated.StartedAt.Valid && updated.EndedAt.Valid {
		duration = int32(updated.EndedAt.Time.Sub(updated.StartedAt.Time) / time.Second)
	}
	if duration > 0 {
		if err := s.callRepo.SetDuration(ctx, callID, duration); err != nil {
			s.logger.Warn("storing call duration failed",
				zap.String("call_id", callID.String()), zap.Error(err))
		}
	}

	s.broadcaster.BroadcastToConversation(c.ConversationID, realtime.Event{
		Type: realtime.EventCallEnded,
		Data: CallEndedData{ID: callID, ConversationID: c.ConversationID, Reason: call.ReasonCompleted, DurationSeconds: duration},
	}, "")
	return nil
}

// JoinToken issues a media bridge credential for a participant of a
// call that is still ringing or already active.
func (s *CallService) JoinToken(ctx context.Context, userID, callID uuid.UUID) (media.JoinToken, error) {
	c, err := s.callRepo.GetByID(ctx, callID)
	if err != nil {
		return media.JoinToken{}, err
	}
	if err := s.guard.Require(ctx, c.ConversationID, userID); err != nil {
		return media.JoinToken{}, err
	}
	if c.State != call.StateRinging && c.State != call.StateActive {
		return media.JoinToken{}, civichat_errors.ErrInvalidCallState
	}

	displayName := ""
	if u, err := s.userRepo.GetByID(ctx, userID); err == nil {
		displayName = u.DisplayName
	}
	return s.tokens.JoinToken(c.RoomName, userID, displayName)
}

// History lists a conversation's calls, newest first.
func (s *CallService) History(ctx context.Context, userID, conversationID uuid.UUID, page, limit int) ([]call.Call, int64, error) {
	if err := s.guard.Require(ctx, conversationID, userID); err != nil {
		return nil, 0, err
	}
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.callRepo.GetConversationCalls(ctx, conversationID, page, limit)
}

func (s *CallService) armRingTimer(callID, conversationID uuid.UUID) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.ringTimers[callID] = time.AfterFunc(s.ringWindow, func() {
		s.ringTimeout(callID, conversationID)
	})
}

func (s *CallService) cancelRingTimer(callID uuid.UUID) {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if t, ok := s.ringTimers[callID]; ok {
		t.Stop()
		delete(s.ringTimers, callID)
	}
}

// ringTimeout fires after the ring window. It races any in-flight
// accept or reject through the same CAS, so no_answer is applied at
// most once and never after the call left ringing.
func (s *CallService) ringTimeout(callID, conversationID uuid.UUID) {
	s.timerMu.Lock()
	delete(s.ringTimers, callID)
	s.timerMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := s.callRepo.TransitionState(ctx, callID, call.StateRinging, call.StateNoAnswer); err != nil {
		return
	}

	s.broadcaster.BroadcastToConversation(conversationID, realtime.Event{
		Type: realtime.EventCallEnded,
		Data: CallEndedData{ID: callID, ConversationID: conversationID, Reason: call.ReasonNoAnswer},
	}, "")
}

// Stop cancels all pending ring timers. Called on shutdown.
func (s *CallService) Stop() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	for id, t := range s.ringTimers {
		t.Stop()
		delete(s.ringTimers, id)
	}
}
