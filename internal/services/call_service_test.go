package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"civichat/internal/domain/call"
	"civichat/internal/domain/conversation"
	"civichat/internal/realtime"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
)

type callFixture struct {
	svc      *CallService
	convRepo *fakeConvRepo
	callRepo *fakeCallRepo
	bc       *fakeBroadcaster
	convID   uuid.UUID
	userA    uuid.UUID
	userB    uuid.UUID
}

func newCallFixture(ringWindow time.Duration) *callFixture {
	f := &callFixture{
		convRepo: newFakeConvRepo(),
		callRepo: newFakeCallRepo(),
		bc:       newFakeBroadcaster(),
		convID:   uuid.New(),
		userA:    uuid.New(),
		userB:    uuid.New(),
	}
	f.convRepo.addMember(f.convID, f.userA, conversation.RoleMember)
	f.convRepo.addMember(f.convID, f.userB, conversation.RoleMember)
	f.svc = NewCallService(f.callRepo, fakeUserRepo{}, NewGuard(f.convRepo), f.bc, fakeTokenIssuer{}, ringWindow)
	return f
}

func TestInitiateRingsOthers(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Stop()

	data, err := f.svc.Initiate(context.Background(), f.userA, f.convID, call.KindVideo)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	if data.State != call.StateRinging {
		t.Errorf("state = %q, want ringing", data.State)
	}
	if !strings.HasPrefix(data.RoomName, "call-") {
		t.Errorf("room name = %q", data.RoomName)
	}

	incoming := f.bc.ofType(realtime.EventCallIncoming)
	if len(incoming) != 1 {
		t.Fatalf("got %d call:incoming, want 1", len(incoming))
	}
	if len(incoming[0].UserIDs) != 1 || incoming[0].UserIDs[0] != f.userB {
		t.Errorf("call:incoming addressed to %v, want only the callee", incoming[0].UserIDs)
	}

	outsider := uuid.New()
	if _, err := f.svc.Initiate(context.Background(), outsider, f.convID, call.KindVoice); !errors.Is(err, civichat_errors.ErrNotParticipant) {
		t.Errorf("initiate by outsider error = %v, want ErrNotParticipant", err)
	}
	if _, err := f.svc.Initiate(context.Background(), f.userA, f.convID, "telepathy"); !errors.Is(err, civichat_errors.ErrValidation) {
		t.Errorf("bad kind error = %v, want ErrValidation", err)
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		op      string
		wantErr bool
	}{
		{"accept from ringing", call.StateRinging, "accept", false},
		{"reject from ringing", call.StateRinging, "reject", false},
		{"hangup from ringing", call.StateRinging, "hangup", true},
		{"accept from active", call.StateActive, "accept", true},
		{"reject from active", call.StateActive, "reject", true},
		{"hangup from active", call.StateActive, "hangup", false},
		{"accept from ended", call.StateEnded, "accept", true},
		{"reject from rejected", call.StateRejected, "reject", true},
		{"hangup from no_answer", call.StateNoAnswer, "hangup", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCallFixture(time.Minute)
			defer f.svc.Stop()

			c := call.Call{
				ID:             uuid.New(),
				ConversationID: f.convID,
				InitiatorID:    f.userA,
				Kind:           call.KindVoice,
				State:          tt.from,
				RoomName:       "call-" + uuid.NewString(),
			}
			if tt.from == call.StateActive {
				c.StartedAt.Time = time.Now().Add(-time.Minute)
				c.StartedAt.Valid = true
			}
			if err := f.callRepo.Create(context.Background(), &c); err != nil {
				t.Fatal(err)
			}

			var err error
			switch tt.op {
			case "accept":
				_, err = f.svc.Accept(context.Background(), f.userB, c.ID)
			case "reject":
				err = f.svc.Reject(context.Background(), f.userB, c.ID)
			case "hangup":
				err = f.svc.Hangup(context.Background(), f.userB, c.ID)
			}

			if tt.wantErr {
				if !errors.Is(err, civichat_errors.ErrInvalidCallState) {
					t.Errorf("error = %v, want ErrInvalidCallState", err)
				}
				stored, _ := f.callRepo.GetByID(context.Background(), c.ID)
				if stored.State != tt.from {
					t.Errorf("failed transition mutated state to %q", stored.State)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestHangupComputesDuration(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Stop()

	data, err := f.svc.Initiate(context.Background(), f.userA, f.convID, call.KindVoice)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Accept(context.Background(), f.userB, data.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// Backdate the start so the duration is nonzero.
	f.callRepo.mu.Lock()
	c := f.callRepo.calls[data.ID]
	c.StartedAt.Time = time.Now().Add(-90 * time.Second)
	f.callRepo.calls[data.ID] = c
	f.callRepo.mu.Unlock()

	if err := f.svc.Hangup(context.Background(), f.userA, data.ID); err != nil {
		t.Fatalf("Hangup: %v", err)
	}

	stored, _ := f.callRepo.GetByID(context.Background(), data.ID)
	if stored.State != call.StateEnded {
		t.Errorf("state = %q, want ended", stored.State)
	}
	if !stored.DurationSeconds.Valid || stored.DurationSeconds.Int32 < 89 {
		t.Errorf("duration = %+v, want about 90s", stored.DurationSeconds)
	}

	ended := f.bc.ofType(realtime.EventCallEnded)
	if len(ended) != 1 {
		t.Fatalf("got %d call:ended, want 1", len(ended))
	}
	payload := ended[0].Event.Data.(CallEndedData)
	if payload.Reason != call.ReasonCompleted {
		t.Errorf("reason = %q, want completed", payload.Reason)
	}
}

func TestRingTimeoutWinsExactlyOnce(t *testing.T) {
	f := newCallFixture(20 * time.Millisecond)
	defer f.svc.Stop()

	data, err := f.svc.Initiate(context.Background(), f.userA, f.convID, call.KindVoice)
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		stored, _ := f.callRepo.GetByID(context.Background(), data.ID)
		if stored.State == call.StateNoAnswer {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout never fired, state still %q", stored.State)
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The late accept loses against the already-applied timeout.
	if _, err := f.svc.Accept(context.Background(), f.userB, data.ID); !errors.Is(err, civichat_errors.ErrInvalidCallState) {
		t.Errorf("late accept error = %v, want ErrInvalidCallState", err)
	}

	ended := f.bc.ofType(realtime.EventCallEnded)
	if len(ended) != 1 {
		t.Fatalf("got %d call:ended, want exactly 1", len(ended))
	}
	if reason := ended[0].Event.Data.(CallEndedData).Reason; reason != call.ReasonNoAnswer {
		t.Errorf("reason = %q, want no_answer", reason)
	}
	if got := len(f.bc.ofType(realtime.EventCallAccepted)); got != 0 {
		t.Errorf("losing accept still broadcast %d call:accepted", got)
	}
}

func TestConcurrentAcceptRejectOneWinner(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Stop()

	data, err := f.svc.Initiate(context.Background(), f.userA, f.convID, call.KindVoice)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	var acceptErr, rejectErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = f.svc.Accept(context.Background(), f.userB, data.ID)
	}()
	go func() {
		defer wg.Done()
		rejectErr = f.svc.Reject(context.Background(), f.userB, data.ID)
	}()
	wg.Wait()

	wins := 0
	if acceptErr == nil {
		wins++
	} else if !errors.Is(acceptErr, civichat_errors.ErrInvalidCallState) {
		t.Errorf("accept error = %v", acceptErr)
	}
	if rejectErr == nil {
		wins++
	} else if !errors.Is(rejectErr, civichat_errors.ErrInvalidCallState) {
		t.Errorf("reject error = %v", rejectErr)
	}
	if wins != 1 {
		t.Fatalf("%d transitions out of ringing won, want exactly 1", wins)
	}
}

func TestJoinTokenStateAndMembership(t *testing.T) {
	f := newCallFixture(time.Minute)
	defer f.svc.Stop()

	data, err := f.svc.Initiate(context.Background(), f.userA, f.convID, call.KindVideo)
	if err != nil {
		t.Fatal(err)
	}

	// Ringing: participants can already fetch a token.
	tok, err := f.svc.JoinToken(context.Background(), f.userB, data.ID)
	if err != nil {
		t.Fatalf("JoinToken while ringing: %v", err)
	}
	if tok.RoomName != data.RoomName {
		t.Errorf("token room = %q, want %q", tok.RoomName, data.RoomName)
	}

	if _, err := f.svc.JoinToken(context.Background(), uuid.New(), data.ID); !errors.Is(err, civichat_errors.ErrNotParticipant) {
		t.Errorf("token for outsider error = %v, want ErrNotParticipant", err)
	}

	if _, err := f.svc.Accept(context.Background(), f.userB, data.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.JoinToken(context.Background(), f.userA, data.ID); err != nil {
		t.Errorf("JoinToken while active: %v", err)
	}

	if err := f.svc.Hangup(context.Background(), f.userA, data.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.JoinToken(context.Background(), f.userA, data.ID); !errors.Is(err, civichat_errors.ErrInvalidCallState) {
		t.Errorf("token after end error = %v, want ErrInvalidCallState", err)
	}
}
