package presence

import (
	"context"
	"sync"
	"time"

	"civichat/internal/domain/presence"
	"civichat/internal/realtime"
	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broadcaster is the slice of the hub the tracker needs for fan-out.
type Broadcaster interface {
	BroadcastToUsers(userIDs []uuid.UUID, evt realtime.Event)
}

// ChangeData is the payload of presence:changed events.
type ChangeData struct {
	UserID   uuid.UUID `json:"user_id"`
	Status   string    `json:"status"`
	LastSeen time.Time `json:"last_seen"`
}

// record is one user's live presence state. All access is serialized by
// the per-record mutex; records for different users never contend.
type record struct {
	mu       sync.Mutex
	status   string
	lastSeen time.Time
	conns    map[string]struct{}
	// explicit is true while an away/busy status set by the client is
	// in effect. It survives as long as at least one connection
	// remains.
	explicit bool
	// seq orders this user's transitions. A checkpoint or broadcast
	// carrying a lower seq than the record's current one is stale and
	// dropped.
	seq uint64
}

// Tracker owns live presence state. It is authoritative; the repository
// only checkpoints status and last-seen for cross-restart continuity.
type Tracker struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*record

	convRepo    repository.ConversationRepository
	presRepo    repository.PresenceRepository
	broadcaster Broadcaster
	logger      *zap.Logger
}

func NewTracker(convRepo repository.ConversationRepository, presRepo repository.PresenceRepository) *Tracker {
	return &Tracker{
		records:  make(map[uuid.UUID]*record),
		convRepo: convRepo,
		presRepo: presRepo,
		logger:   zap.L().With(zap.String("component", "presence")),
	}
}

// BindBroadcaster attaches the fan-out sink. Must be called before the
// hub starts accepting connections.
func (t *Tracker) BindBroadcaster(b Broadcaster) {
	t.broadcaster = b
}

func (t *Tracker) getOrCreate(userID uuid.UUID) *record {
	t.mu.RLock()
	rec, ok := t.records[userID]
	t.mu.RUnlock()
	if ok {
		return rec
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok = t.records[userID]; ok {
		return rec
	}
	rec = &record{
		status: presence.StatusOffline,
		conns:  make(map[string]struct{}),
	}
	t.records[userID] = rec
	return rec
}

// HandleConnect registers a connection for the user. The first
// connection transitions the user to online unless an explicit
// away/busy override is still in effect on another connection.
func (t *Tracker) HandleConnect(ctx context.Context, userID uuid.UUID, connID string) {
	rec := t.getOrCreate(userID)

	rec.mu.Lock()
	hadConns := len(rec.conns) > 0
	rec.conns[connID] = struct{}{}

	newStatus := rec.status
	if !hadConns {
		// Nothing survived the offline gap, overrides included.
		newStatus = presence.StatusOnline
		rec.explicit = false
	} else if !rec.explicit {
		newStatus = presence.StatusOnline
	}

	changed := newStatus != rec.status
	rec.status = newStatus
	rec.lastSeen = time.Now()
	rec.seq++
	seq := rec.seq
	snapshot := t.snapshotLocked(userID, rec)
	rec.mu.Unlock()

	if changed {
		t.publish(ctx, userID, rec, seq, snapshot)
	} else {
		t.checkpoint(ctx, rec, seq, snapshot)
	}
}

// HandleDisconnect removes a connection. Losing the last connection
// transitions the user to offline and stamps last-seen.
func (t *Tracker) HandleDisconnect(ctx context.Context, userID uuid.UUID, connID string) {
	rec := t.getOrCreate(userID)

	rec.mu.Lock()
	delete(rec.conns, connID)

	changed := false
	if len(rec.conns) == 0 && rec.status != presence.StatusOffline {
		rec.status = presence.StatusOffline
		rec.explicit = false
		changed = true
	}
	rec.lastSeen = time.Now()
	rec.seq++
	seq := rec.seq
	snapshot := t.snapshotLocked(userID, rec)
	rec.mu.Unlock()

	if changed {
		t.publish(ctx, userID, rec, seq, snapshot)
	} else {
		t.checkpoint(ctx, rec, seq, snapshot)
	}
}

// SetStatus applies an explicit client status signal. Ignored with an
// error when the user has no active connection: offline is derived
// state, never set.
func (t *Tracker) SetStatus(ctx context.Context, userID uuid.UUID, status string) error {
	if !presence.ValidStatus(status) {
		return civichat_errors.ErrValidation
	}

	t.mu.RLock()
	rec, ok := t.records[userID]
	t.mu.RUnlock()
	if !ok {
		return civichat_errors.ErrNotFound
	}

	rec.mu.Lock()
	if len(rec.conns) == 0 {
		rec.mu.Unlock()
		return civichat_errors.ErrNotFound
	}

	changed := status != rec.status
	rec.status = status
	rec.explicit = status != presence.StatusOnline
	rec.lastSeen = time.Now()
	rec.seq++
	seq := rec.seq
	snapshot := t.snapshotLocked(userID, rec)
	rec.mu.Unlock()

	if changed {
		t.publish(ctx, userID, rec, seq, snapshot)
	}
	return nil
}

// StatusOf returns live state when the tracker knows the user, falling
// back to the checkpoint store for users not seen since restart.
func (t *Tracker) StatusOf(ctx context.Context, userID uuid.UUID) (presence.Record, error) {
	t.mu.RLock()
	rec, ok := t.records[userID]
	t.mu.RUnlock()
	if ok {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return presence.Record{UserID: userID, Status: rec.status, LastSeen: rec.lastSeen}, nil
	}

	stored, err := t.presRepo.Get(ctx, userID)
	if err != nil {
		return presence.Record{UserID: userID, Status: presence.StatusOffline}, nil
	}
	// A checkpoint can claim online from before a crash; without a live
	// connection it is offline.
	if stored.Status != presence.StatusOffline {
		stored.Status = presence.StatusOffline
	}
	return stored, nil
}

// ConnectionCount reports the live connection-set size.
func (t *Tracker) ConnectionCount(userID uuid.UUID) int {
	t.mu.RLock()
	rec, ok := t.records[userID]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.conns)
}

func (t *Tracker) snapshotLocked(userID uuid.UUID, rec *record) presence.Record {
	return presence.Record{UserID: userID, Status: rec.status, LastSeen: rec.lastSeen}
}

// publish fans the change out to every user sharing at least one
// conversation with the subject, plus the subject's own devices, then
// checkpoints.
func (t *Tracker) publish(ctx context.Context, userID uuid.UUID, rec *record, seq uint64, snapshot presence.Record) {
	if t.broadcaster != nil {
		peers, err := t.convRepo.GetPeerIDs(ctx, userID)
		if err != nil {
			t.logger.Warn("presence peer resolution failed", zap.String("user_id", userID.String()), zap.Error(err))
		} else {
			targets := append(peers, userID)
			t.broadcaster.BroadcastToUsers(targets, realtime.Event{
				Type: realtime.EventPresenceChanged,
				Data: ChangeData{UserID: userID, Status: snapshot.Status, LastSeen: snapshot.LastSeen},
			})
		}
	}

	t.checkpoint(ctx, rec, seq, snapshot)
}

// checkpoint persists status/last-seen best-effort. A write is skipped
// when a newer transition has already been applied to the record.
func (t *Tracker) checkpoint(ctx context.Context, rec *record, seq uint64, snapshot presence.Record) {
	rec.mu.Lock()
	stale := seq < rec.seq
	rec.mu.Unlock()
	if stale {
		return
	}

	if err := t.presRepo.Checkpoint(ctx, snapshot); err != nil {
		t.logger.Warn("presence checkpoint failed", zap.String("user_id", snapshot.UserID.String()), zap.Error(err))
	}
}
