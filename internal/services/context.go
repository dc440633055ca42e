package services

import (
	"context"

	"civichat/internal/auth"
	civichat_errors "civichat/pkg/errors"
)

type ctxKey int

const identityKey ctxKey = iota

// WithIdentity stores the verified caller identity for downstream
// handlers and services.
func WithIdentity(ctx context.Context, id auth.Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom retrieves the verified caller identity.
func IdentityFrom(ctx context.Context) (auth.Identity, error) {
	id, ok := ctx.Value(identityKey).(auth.Identity)
	if !ok {
		return auth.Identity{}, civichat_errors.ErrUnauthenticated
	}
	return id, nil
}
