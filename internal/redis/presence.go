package redis

import (
	"encoding/json"
	"time"

	"context"

	"civichat/internal/domain/presence"
	civichat_errors "civichat/pkg/errors"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const presenceKeyPrefix = "presence:"

// offline records are kept long enough to answer last-seen queries
// across restarts.
const offlineTTL = 30 * 24 * time.Hour

// PresenceStore checkpoints presence status and last-seen. The
// in-memory tracker is authoritative; this store only provides
// cross-restart continuity.
type PresenceStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewPresenceStore(client *goredis.Client, ttl time.Duration) *PresenceStore {
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &PresenceStore{client: client, ttl: ttl}
}

func (p *PresenceStore) Checkpoint(ctx context.Context, rec presence.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := p.ttl
	if rec.Status == presence.StatusOffline {
		ttl = offlineTTL
	}
	return p.client.Set(ctx, presenceKeyPrefix+rec.UserID.String(), data, ttl).Err()
}

func (p *PresenceStore) Get(ctx context.Context, userID uuid.UUID) (presence.Record, error) {
	data, err := p.client.Get(ctx, presenceKeyPrefix+userID.String()).Result()
	if err == goredis.Nil {
		return presence.Record{}, civichat_errors.ErrNotFound
	}
	if err != nil {
		return presence.Record{}, err
	}

	var rec presence.Record
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return presence.Record{}, err
	}
	return rec, nil
}
