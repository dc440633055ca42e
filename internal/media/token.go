package media

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JoinToken is handed to a client to authenticate directly against the
// external media bridge. This service never proxies media.
type JoinToken struct {
	Token     string    `json:"token"`
	RoomName  string    `json:"room_name"`
	BridgeURL string    `json:"bridge_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GrantClaims is the room-scoped grant shape the media bridge verifies.
type GrantClaims struct {
	RoomName string `json:"room"`
	RoomJoin bool   `json:"room_join"`
	Identity string `json:"identity"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenProvider signs short-lived, room-scoped join tokens with the
// media bridge API credentials.
type TokenProvider struct {
	bridgeURL string
	apiKey    string
	apiSecret []byte
	ttl       time.Duration
}

func NewTokenProvider(bridgeURL, apiKey, apiSecret string, ttl time.Duration) *TokenProvider {
	if ttl == 0 {
		ttl = 15 * time.Minute
	}
	return &TokenProvider{
		bridgeURL: bridgeURL,
		apiKey:    apiKey,
		apiSecret: []byte(apiSecret),
		ttl:       ttl,
	}
}

// JoinToken issues a credential scoped to a single room and identity.
func (p *TokenProvider) JoinToken(roomName string, userID uuid.UUID, displayName string) (JoinToken, error) {
	now := time.Now()
	expiresAt := now.Add(p.ttl)

	claims := GrantClaims{
		RoomName: roomName,
		RoomJoin: true,
		Identity: userID.String(),
		Name:     displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.apiKey,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.apiSecret)
	if err != nil {
		return JoinToken{}, err
	}

	return JoinToken{
		Token:     signed,
		RoomName:  roomName,
		BridgeURL: p.bridgeURL,
		ExpiresAt: expiresAt,
	}, nil
}
