package auth

import (
	"context"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
)

type ctxKey struct{}

// WithUser attaches the authenticated user to ctx.
func WithUser(ctx context.Context, u *entity.PublicUser) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user set by the authenticator, if any.
func UserFromContext(ctx context.Context) (*entity.PublicUser, bool) {
	u, ok := ctx.Value(ctxKey{}).(*entity.PublicUser)
	return u, ok && u != nil
}
