package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter shared across instances.
type RateLimiter struct {
	client *goredis.Client

	messageLimit  int64
	messageWindow time.Duration
}

func NewRateLimiter(client *goredis.Client) *RateLimiter {
	return &RateLimiter{
		client:        client,
		messageLimit:  60,
		messageWindow: time.Minute,
	}
}

// AllowMessage reports whether the user may send another message in the
// current window.
func (r *RateLimiter) AllowMessage(ctx context.Context, userID string) (bool, error) {
	key := fmt.Sprintf("ratelimit:msg:%s:%d", userID, time.Now().Unix()/int64(r.messageWindow.Seconds()))

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.client.Expire(ctx, key, r.messageWindow)
	}
	return count <= r.messageLimit, nil
}
