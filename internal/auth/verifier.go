package auth

import (
	"context"
	"errors"
	"time"

	"civichat/internal/repository"
	civichat_errors "civichat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Identity is the verified result of a credential check. It is created
// once per connection or request and never mutated.
type Identity struct {
	UserID uuid.UUID
	Email  string
}

// AccessClaims are the claims the identity service puts into access
// tokens. This service only verifies them.
type AccessClaims struct {
	UserID string `json:"sub"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates bearer credentials issued by the identity service
// and resolves them against the user table.
type Verifier struct {
	secret   []byte
	userRepo repository.UserRepository
}

func NewVerifier(secret string, userRepo repository.UserRepository) *Verifier {
	return &Verifier{secret: []byte(secret), userRepo: userRepo}
}

// ParseToken validates the token signature and expiry and returns the
// embedded claims. No storage access.
func (v *Verifier) ParseToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, civichat_errors.ErrUnauthenticated
	}

	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !parsed.Valid {
		return nil, civichat_errors.ErrUnauthenticated
	}
	return claims, nil
}

// Verify parses the token and confirms the subject is an active user.
// Every failure collapses to ErrUnauthenticated; callers never learn
// why a credential was refused.
func (v *Verifier) Verify(ctx context.Context, token string) (Identity, error) {
	claims, err := v.ParseToken(token)
	if err != nil {
		return Identity{}, err
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return Identity{}, civichat_errors.ErrUnauthenticated
	}

	u, err := v.userRepo.GetByID(ctx, userID)
	if err != nil || !u.IsActive {
		return Identity{}, civichat_errors.ErrUnauthenticated
	}

	email := claims.Email
	if email == "" {
		email = u.Email
	}
	return Identity{UserID: u.ID, Email: email}, nil
}

// SignToken issues a token with the given claims. Used by tests and
// local tooling; production tokens come from the identity service.
func SignToken(secret string, userID uuid.UUID, email string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		UserID: userID.String(),
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
