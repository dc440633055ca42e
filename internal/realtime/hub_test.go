package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

type fakeResolver struct {
	mu           sync.Mutex
	participants map[uuid.UUID][]uuid.UUID
	fail         bool
}

func (f *fakeResolver) ParticipantIDs(_ context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("membership unavailable")
	}
	return f.participants[conversationID], nil
}

type sinkCall struct {
	op     string
	userID uuid.UUID
	connID string
}

type fakeSink struct {
	mu    sync.Mutex
	calls []sinkCall
}

func (f *fakeSink) HandleConnect(_ context.Context, userID uuid.UUID, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sinkCall{"connect", userID, connID})
}

func (f *fakeSink) HandleDisconnect(_ context.Context, userID uuid.UUID, connID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, sinkCall{"disconnect", userID, connID})
}

// addTestClient places a client in the hub map without a socket; write
// pumps never start, deliveries land in the send channel.
func addTestClient(h *Hub, userID uuid.UUID, connID string) *Client {
	client := &Client{
		hub:    h,
		send:   make(chan []byte, 16),
		connID: connID,
		session: Session{
			UserID:      userID,
			ConnectedAt: time.Now(),
		},
	}
	h.mu.Lock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[string]*Client)
	}
	h.clients[userID][connID] = client
	h.mu.Unlock()
	return client
}

func recvEvent(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case data := <-c.send:
		var evt Event
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("bad event payload: %v", err)
		}
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
		return Event{}
	}
}

func assertNoEvent(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected delivery: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastToConversationFanOut(t *testing.T) {
	convID := uuid.New()
	userA, userB, userC := uuid.New(), uuid.New(), uuid.New()
	resolver := &fakeResolver{participants: map[uuid.UUID][]uuid.UUID{
		convID: {userA, userB},
	}}

	h := NewHub(resolver)
	go h.Run()
	defer h.Stop()

	a1 := addTestClient(h, userA, "a1")
	a2 := addTestClient(h, userA, "a2")
	b1 := addTestClient(h, userB, "b1")
	c1 := addTestClient(h, userC, "c1")

	h.BroadcastToConversation(convID, Event{Type: EventMessageNew, Data: map[string]string{"k": "v"}}, "")

	for _, c := range []*Client{a1, a2, b1} {
		evt := recvEvent(t, c)
		if evt.Type != EventMessageNew {
			t.Errorf("conn %s got %q", c.connID, evt.Type)
		}
	}
	// userC is no participant: nothing arrives even though connected.
	assertNoEvent(t, c1)
}

func TestBroadcastExcludesOriginConnection(t *testing.T) {
	convID := uuid.New()
	userA := uuid.New()
	resolver := &fakeResolver{participants: map[uuid.UUID][]uuid.UUID{
		convID: {userA},
	}}

	h := NewHub(resolver)
	go h.Run()
	defer h.Stop()

	origin := addTestClient(h, userA, "origin")
	other := addTestClient(h, userA, "other")

	h.BroadcastToConversation(convID, Event{Type: EventTyping}, "origin")

	recvEvent(t, other)
	assertNoEvent(t, origin)
}

func TestBroadcastFailsClosedOnResolverError(t *testing.T) {
	convID := uuid.New()
	userA := uuid.New()
	resolver := &fakeResolver{participants: map[uuid.UUID][]uuid.UUID{
		convID: {userA},
	}}

	h := NewHub(resolver)
	go h.Run()
	defer h.Stop()

	a1 := addTestClient(h, userA, "a1")
	resolver.mu.Lock()
	resolver.fail = true
	resolver.mu.Unlock()

	h.BroadcastToConversation(convID, Event{Type: EventMessageNew}, "")
	assertNoEvent(t, a1)
}

func TestBroadcastSkipsOfflineUsers(t *testing.T) {
	userA, offline := uuid.New(), uuid.New()
	h := NewHub(&fakeResolver{})
	go h.Run()
	defer h.Stop()

	a1 := addTestClient(h, userA, "a1")

	// Fan-out to a fixed set: the connected user receives, the offline
	// one is skipped without error.
	h.BroadcastToUsers([]uuid.UUID{userA, offline}, Event{Type: EventPresenceChanged})
	recvEvent(t, a1)

	if h.IsOnline(offline) {
		t.Error("offline user reported online")
	}
	if !h.IsOnline(userA) {
		t.Error("connected user reported offline")
	}
}

func TestEvictionReportsDisconnect(t *testing.T) {
	userA := uuid.New()
	sink := &fakeSink{}
	h := NewHub(&fakeResolver{})
	h.BindPresence(sink)

	base := time.Now()
	var oldest *Client
	for i := 0; i < maxConnectionsPerUser; i++ {
		c := &Client{
			hub:    h,
			send:   make(chan []byte, 16),
			connID: fmt.Sprintf("c%d", i),
			session: Session{
				UserID:      userA,
				ConnectedAt: base.Add(time.Duration(i) * time.Second),
			},
		}
		if !h.addClient(c) {
			t.Fatalf("connection %d refused under the cap", i)
		}
		if i == 0 {
			oldest = c
		}
	}

	over := &Client{
		hub:    h,
		send:   make(chan []byte, 16),
		connID: "over",
		session: Session{
			UserID:      userA,
			ConnectedAt: base.Add(time.Hour),
		},
	}
	if !h.addClient(over) {
		t.Fatal("connection above the cap refused instead of evicting")
	}

	sink.mu.Lock()
	var connects, disconnects int
	var evictedConn string
	for _, call := range sink.calls {
		switch call.op {
		case "connect":
			connects++
		case "disconnect":
			disconnects++
			evictedConn = call.connID
		}
	}
	sink.mu.Unlock()

	if connects != maxConnectionsPerUser+1 {
		t.Errorf("presence saw %d connects, want %d", connects, maxConnectionsPerUser+1)
	}
	if disconnects != 1 || evictedConn != oldest.connID {
		t.Fatalf("presence saw %d disconnects (last %q), want 1 for %q", disconnects, evictedConn, oldest.connID)
	}

	// The evicted read pump's own unregister finds nothing in the map
	// and must stay silent; every connect still has exactly one
	// matching disconnect.
	h.handleUnregister(oldest)
	sink.mu.Lock()
	total := len(sink.calls)
	sink.mu.Unlock()
	if total != maxConnectionsPerUser+2 {
		t.Errorf("late unregister reported a second disconnect, %d calls total", total)
	}

	if got := len(h.ConnectionsOf(userA)); got != maxConnectionsPerUser {
		t.Errorf("%d connections registered, want %d", got, maxConnectionsPerUser)
	}
}

func TestUnregisterNotifiesPresenceOnce(t *testing.T) {
	userA := uuid.New()
	sink := &fakeSink{}

	h := NewHub(&fakeResolver{})
	h.BindPresence(sink)

	c1 := addTestClient(h, userA, "c1")
	addTestClient(h, userA, "c2")

	h.handleUnregister(c1)
	// Duplicate unregister for the same connection is a no-op.
	h.handleUnregister(c1)

	sink.mu.Lock()
	calls := len(sink.calls)
	sink.mu.Unlock()
	if calls != 1 {
		t.Fatalf("presence notified %d times, want 1", calls)
	}
	if got := len(h.ConnectionsOf(userA)); got != 1 {
		t.Errorf("%d connections left, want 1", got)
	}
}

func TestSendToConnectionIsTargeted(t *testing.T) {
	userA := uuid.New()
	h := NewHub(&fakeResolver{})

	target := addTestClient(h, userA, "target")
	other := addTestClient(h, userA, "other")

	h.SendToConnection(userA, "target", Event{Type: EventError, Data: ErrorData{Code: "NOT_PARTICIPANT"}})

	evt := recvEvent(t, target)
	if evt.Type != EventError {
		t.Errorf("got %q", evt.Type)
	}
	assertNoEvent(t, other)
}

func TestConnRateLimiterWindow(t *testing.T) {
	rl := NewConnRateLimiter()
	userID := uuid.New()

	for i := 0; i < maxHandshakesPerMinute; i++ {
		if !rl.AllowConnection(userID) {
			t.Fatalf("connection %d refused inside the window budget", i)
		}
	}
	if rl.AllowConnection(userID) {
		t.Error("connection above the window budget allowed")
	}
	// Budgets are per user.
	if !rl.AllowConnection(uuid.New()) {
		t.Error("other user's first connection refused")
	}
}
