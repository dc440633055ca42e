package push

import (
	"context"
	"encoding/json"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Subscription is a browser web-push subscription stored per user.
type Subscription struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index"`
	Endpoint  string    `gorm:"uniqueIndex;not null"`
	P256dh    string    `gorm:"not null"`
	Auth      string    `gorm:"not null"`
	CreatedAt time.Time
}

func (Subscription) TableName() string {
	return "push_subscriptions"
}

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

// Notifier sends web-push notifications to users with no active
// realtime connection. Empty VAPID keys disable it entirely.
type Notifier struct {
	db     *gorm.DB
	cfg    VAPIDConfig
	logger *zap.Logger
}

func NewNotifier(db *gorm.DB, cfg VAPIDConfig) *Notifier {
	return &Notifier{
		db:     db,
		cfg:    cfg,
		logger: zap.L().With(zap.String("component", "push")),
	}
}

func (n *Notifier) enabled() bool {
	return n != nil && n.cfg.PublicKey != "" && n.cfg.PrivateKey != ""
}

// Subscribe stores a browser subscription for the user.
func (n *Notifier) Subscribe(ctx context.Context, userID uuid.UUID, endpoint, p256dh, auth string) error {
	sub := Subscription{
		ID:       uuid.New(),
		UserID:   userID,
		Endpoint: endpoint,
		P256dh:   p256dh,
		Auth:     auth,
	}
	return n.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		FirstOrCreate(&sub).Error
}

// Notify delivers a notification to every subscription of the user.
// Failures are logged and swallowed: push is best-effort by design of
// the transport itself.
func (n *Notifier) Notify(ctx context.Context, userID uuid.UUID, title, body string, data map[string]string) {
	if !n.enabled() {
		return
	}

	var subs []Subscription
	if err := n.db.WithContext(ctx).Where("user_id = ?", userID).Find(&subs).Error; err != nil {
		n.logger.Warn("push subscription lookup failed", zap.String("user_id", userID.String()), zap.Error(err))
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"title": title,
		"body":  body,
		"data":  data,
	})
	if err != nil {
		return
	}

	for _, sub := range subs {
		resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
			Endpoint: sub.Endpoint,
			Keys: webpush.Keys{
				P256dh: sub.P256dh,
				Auth:   sub.Auth,
			},
		}, &webpush.Options{
			Subscriber:      n.cfg.Subject,
			VAPIDPublicKey:  n.cfg.PublicKey,
			VAPIDPrivateKey: n.cfg.PrivateKey,
			TTL:             60,
		})
		if err != nil {
			n.logger.Warn("push delivery failed", zap.String("endpoint", sub.Endpoint), zap.Error(err))
			continue
		}
		// Gone means the browser dropped the subscription.
		if resp.StatusCode == 404 || resp.StatusCode == 410 {
			n.db.WithContext(ctx).Delete(&Subscription{}, "id = ?", sub.ID)
		}
		resp.Body.Close()
	}
}
