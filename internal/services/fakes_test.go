package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"civichat/internal/domain/call"
	"civichat/internal/domain/conversation"
	"civichat/internal/domain/message"
	"civichat/internal/domain/user"
	"civichat/internal/media"
	"civichat/internal/realtime"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
)

var errStorage = errors.New("storage down")

// fakeConvRepo is an in-memory ConversationRepository.
type fakeConvRepo struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]conversation.Conversation
	participants  map[uuid.UUID]map[uuid.UUID]conversation.Participant
	failAll       bool
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		conversations: make(map[uuid.UUID]conversation.Conversation),
		participants:  make(map[uuid.UUID]map[uuid.UUID]conversation.Participant),
	}
}

func (f *fakeConvRepo) addMember(convID, userID uuid.UUID, role string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.conversations[convID]; !ok {
		f.conversations[convID] = conversation.Conversation{ID: convID, Type: conversation.TypeGroup, IsActive: true}
	}
	if f.participants[convID] == nil {
		f.participants[convID] = make(map[uuid.UUID]conversation.Participant)
	}
	f.participants[convID][userID] = conversation.Participant{
		ConversationID: convID, UserID: userID, Role: role, JoinedAt: time.Now(),
	}
}

func (f *fakeConvRepo) Create(_ context.Context, c *conversation.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return errStorage
	}
	f.conversations[c.ID] = *c
	if f.participants[c.ID] == nil {
		f.participants[c.ID] = make(map[uuid.UUID]conversation.Participant)
	}
	for _, p := range c.Participants {
		p.ConversationID = c.ID
		f.participants[c.ID][p.UserID] = p
	}
	return nil
}

func (f *fakeConvRepo) GetByID(_ context.Context, id uuid.UUID) (conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return conversation.Conversation{}, errStorage
	}
	c, ok := f.conversations[id]
	if !ok {
		return conversation.Conversation{}, civichat_errors.ErrNotFound
	}
	return c, nil
}

func (f *fakeConvRepo) Update(_ context.Context, c conversation.Conversation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeConvRepo) GetUserConversations(_ context.Context, userID uuid.UUID, _, _ int) ([]conversation.Conversation, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []conversation.Conversation
	for id, members := range f.participants {
		if _, ok := members[userID]; ok {
			out = append(out, f.conversations[id])
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeConvRepo) GetDirectConversation(_ context.Context, a, b uuid.UUID) (conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, members := range f.participants {
		c := f.conversations[id]
		if c.Type != conversation.TypeDirect || len(members) != 2 {
			continue
		}
		if _, ok := members[a]; !ok {
			continue
		}
		if _, ok := members[b]; ok {
			return c, nil
		}
	}
	return conversation.Conversation{}, civichat_errors.ErrNotFound
}

func (f *fakeConvRepo) GetSystemConversationByDepartment(_ context.Context, departmentID string) (conversation.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.IsSystem && c.DepartmentID.Valid && c.DepartmentID.String == departmentID {
			return c, nil
		}
	}
	return conversation.Conversation{}, civichat_errors.ErrNotFound
}

func (f *fakeConvRepo) AddParticipant(_ context.Context, p *conversation.Participant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.participants[p.ConversationID] == nil {
		f.participants[p.ConversationID] = make(map[uuid.UUID]conversation.Participant)
	}
	f.participants[p.ConversationID][p.UserID] = *p
	return nil
}

func (f *fakeConvRepo) RemoveParticipant(_ context.Context, conversationID, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.participants[conversationID], userID)
	return nil
}

func (f *fakeConvRepo) GetParticipants(_ context.Context, conversationID uuid.UUID) ([]conversation.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, errStorage
	}
	var out []conversation.Participant
	for _, p := range f.participants[conversationID] {
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeConvRepo) GetParticipant(_ context.Context, conversationID, userID uuid.UUID) (conversation.Participant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return conversation.Participant{}, errStorage
	}
	p, ok := f.participants[conversationID][userID]
	if !ok {
		return conversation.Participant{}, civichat_errors.ErrNotFound
	}
	return p, nil
}

func (f *fakeConvRepo) IsParticipant(_ context.Context, conversationID, userID uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return false, errStorage
	}
	_, ok := f.participants[conversationID][userID]
	return ok, nil
}

func (f *fakeConvRepo) GetPeerIDs(_ context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[uuid.UUID]bool)
	for _, members := range f.participants {
		if _, ok := members[userID]; !ok {
			continue
		}
		for id := range members {
			if id != userID {
				seen[id] = true
			}
		}
	}
	out := make([]uuid.UUID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out, nil
}

func (f *fakeConvRepo) UpdateLastRead(_ context.Context, conversationID, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.participants[conversationID][userID]
	if !ok {
		return civichat_errors.ErrNotFound
	}
	p.LastReadAt.Time = at
	p.LastReadAt.Valid = true
	f.participants[conversationID][userID] = p
	return nil
}

// fakeBroadcaster records fan-out calls.
type fakeBroadcaster struct {
	mu     sync.Mutex
	events []broadcastRecord
	online map[uuid.UUID]bool
}

type broadcastRecord struct {
	ConversationID uuid.UUID
	UserIDs        []uuid.UUID
	ExcludeConnID  string
	Event          realtime.Event
}

func newFakeBroadcaster() *fakeBroadcaster {
	return &fakeBroadcaster{online: make(map[uuid.UUID]bool)}
}

func (f *fakeBroadcaster) BroadcastToConversation(conversationID uuid.UUID, evt realtime.Event, excludeConnID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastRecord{ConversationID: conversationID, Event: evt, ExcludeConnID: excludeConnID})
}

func (f *fakeBroadcaster) BroadcastToUsers(userIDs []uuid.UUID, evt realtime.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, broadcastRecord{UserIDs: userIDs, Event: evt})
}

func (f *fakeBroadcaster) BroadcastToUser(userID uuid.UUID, evt realtime.Event) {
	f.BroadcastToUsers([]uuid.UUID{userID}, evt)
}

func (f *fakeBroadcaster) IsOnline(userID uuid.UUID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online[userID]
}

func (f *fakeBroadcaster) recorded() []broadcastRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]broadcastRecord, len(f.events))
	copy(out, f.events)
	return out
}

func (f *fakeBroadcaster) ofType(eventType string) []broadcastRecord {
	var out []broadcastRecord
	for _, r := range f.recorded() {
		if r.Event.Type == eventType {
			out = append(out, r)
		}
	}
	return out
}

// fakeMsgRepo is an in-memory MessageRepository preserving insertion
// order per conversation.
type fakeMsgRepo struct {
	mu       sync.Mutex
	messages map[uuid.UUID]message.Message
	order    map[uuid.UUID][]uuid.UUID
	failNext bool
}

func newFakeMsgRepo() *fakeMsgRepo {
	return &fakeMsgRepo{
		messages: make(map[uuid.UUID]message.Message),
		order:    make(map[uuid.UUID][]uuid.UUID),
	}
}

func (f *fakeMsgRepo) Create(_ context.Context, m *message.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext {
		f.failNext = false
		return errStorage
	}
	m.CreatedAt = time.Now()
	f.messages[m.ID] = *m
	f.order[m.ConversationID] = append(f.order[m.ConversationID], m.ID)
	return nil
}

func (f *fakeMsgRepo) GetByID(_ context.Context, id uuid.UUID) (message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return message.Message{}, civichat_errors.ErrNotFound
	}
	return m, nil
}

func (f *fakeMsgRepo) MarkEdited(_ context.Context, id uuid.UUID, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.IsDeleted {
		return civichat_errors.ErrNotFound
	}
	m.Content.String = content
	m.Content.Valid = true
	m.IsEdited = true
	f.messages[id] = m
	return nil
}

func (f *fakeMsgRepo) SoftDelete(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || m.IsDeleted {
		return civichat_errors.ErrNotFound
	}
	m.IsDeleted = true
	f.messages[id] = m
	return nil
}

func (f *fakeMsgRepo) GetConversationMessages(_ context.Context, conversationID uuid.UUID, _ time.Time, limit int) ([]message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.order[conversationID]
	var out []message.Message
	for i := len(ids) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.messages[ids[i]])
	}
	return out, nil
}

func (f *fakeMsgRepo) GetLatestMessage(_ context.Context, conversationID uuid.UUID) (message.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := f.order[conversationID]
	if len(ids) == 0 {
		return message.Message{}, civichat_errors.ErrNotFound
	}
	return f.messages[ids[len(ids)-1]], nil
}

func (f *fakeMsgRepo) GetAttachments(_ context.Context, ids []uuid.UUID) ([]message.Attachment, error) {
	out := make([]message.Attachment, 0, len(ids))
	for _, id := range ids {
		out = append(out, message.Attachment{ID: id, FileName: "file.pdf", StorageKey: "key-" + id.String()})
	}
	return out, nil
}

// fakeCallRepo implements the CAS transition semantics in memory.
type fakeCallRepo struct {
	mu    sync.Mutex
	calls map[uuid.UUID]call.Call
}

func newFakeCallRepo() *fakeCallRepo {
	return &fakeCallRepo{calls: make(map[uuid.UUID]call.Call)}
}

func (f *fakeCallRepo) Create(_ context.Context, c *call.Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.CreatedAt = time.Now()
	f.calls[c.ID] = *c
	return nil
}

func (f *fakeCallRepo) GetByID(_ context.Context, id uuid.UUID) (call.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return call.Call{}, civichat_errors.ErrNotFound
	}
	return c, nil
}

func (f *fakeCallRepo) TransitionState(_ context.Context, id uuid.UUID, fromState, toState string) (call.Call, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return call.Call{}, civichat_errors.ErrNotFound
	}
	if c.State != fromState {
		return call.Call{}, civichat_errors.ErrInvalidCallState
	}
	c.State = toState
	now := time.Now()
	switch toState {
	case call.StateActive:
		c.StartedAt.Time = now
		c.StartedAt.Valid = true
	case call.StateEnded, call.StateRejected, call.StateNoAnswer:
		c.EndedAt.Time = now
		c.EndedAt.Valid = true
	}
	f.calls[id] = c
	return c, nil
}

func (f *fakeCallRepo) SetDuration(_ context.Context, id uuid.UUID, seconds int32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[id]
	if !ok {
		return civichat_errors.ErrNotFound
	}
	c.DurationSeconds.Int32 = seconds
	c.DurationSeconds.Valid = true
	f.calls[id] = c
	return nil
}

func (f *fakeCallRepo) AddParticipant(_ context.Context, _ *call.CallParticipant) error {
	return nil
}

func (f *fakeCallRepo) MarkParticipantJoined(_ context.Context, callID, userID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.calls[callID]
	if !ok {
		return civichat_errors.ErrNotFound
	}
	for i, p := range c.Participants {
		if p.UserID == userID {
			c.Participants[i].JoinedAt.Time = at
			c.Participants[i].JoinedAt.Valid = true
		}
	}
	f.calls[callID] = c
	return nil
}

func (f *fakeCallRepo) GetConversationCalls(_ context.Context, conversationID uuid.UUID, _, _ int) ([]call.Call, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call.Call
	for _, c := range f.calls {
		if c.ConversationID == conversationID {
			out = append(out, c)
		}
	}
	return out, int64(len(out)), nil
}

// fakeUserRepo returns a fixed display name for any id.
type fakeUserRepo struct{}

func (fakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (user.User, error) {
	return user.User{ID: id, DisplayName: "Funcionaria Prueba", IsActive: true}, nil
}

func (fakeUserRepo) GetByEmail(_ context.Context, _ string) (user.User, error) {
	return user.User{}, civichat_errors.ErrNotFound
}

// fakeTokenIssuer hands back deterministic tokens.
type fakeTokenIssuer struct{}

func (fakeTokenIssuer) JoinToken(roomName string, userID uuid.UUID, _ string) (media.JoinToken, error) {
	return media.JoinToken{
		Token:     "token-" + roomName + "-" + userID.String(),
		RoomName:  roomName,
		ExpiresAt: time.Now().Add(15 * time.Minute),
	}, nil
}
