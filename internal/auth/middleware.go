package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/repo"
)

const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// UserLoader resolves the subject of an access token.
type UserLoader interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// Authenticator turns an access token on the request into a user.
type Authenticator struct {
	users  UserLoader
	codec  *Codec
	secret []byte
	logger *zap.SugaredLogger
}

func NewAuthenticator(users UserLoader, codec *Codec, tokens TokenConfig, logger *zap.SugaredLogger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Authenticator{users: users, codec: codec, secret: tokens.AccessSecret, logger: logger}
}

// TokenFromRequest reads the access token: cookie first, then the
// Authorization bearer header.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(AccessCookie); err == nil && c.Value != "" {
		return c.Value
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Authenticate verifies the request's access token and loads its user.
func (a *Authenticator) Authenticate(r *http.Request) (*entity.PublicUser, error) {
	token := TokenFromRequest(r)
	if token == "" {
		return nil, apierr.Unauthorized("unauthorized request")
	}
	var claims AccessClaims
	if err := a.codec.Verify(token, a.secret, &claims); err != nil {
		if errors.Is(err, ErrMissingSecret) {
			return nil, apierr.Internal("access token secret is not configured", err)
		}
		return nil, apierr.UnauthorizedCause("invalid access token", err)
	}
	u, err := a.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, apierr.Unauthorized("invalid access token")
		}
		return nil, storeError("failed to load user", err)
	}
	return entity.NewPublicUser(u), nil
}

// Middleware rejects requests without a valid access token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r)
		if err != nil {
			a.logger.Debugw("authentication failed", "path", r.URL.Path, "err", err)
			httpx.Error(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}

// Optional attaches the user when a valid token is present and otherwise
// serves the request anonymously. Store outages still fail the request.
func (a *Authenticator) Optional(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, err := a.Authenticate(r)
		if err != nil {
			if s := apierr.Status(err); s != http.StatusUnauthorized {
				httpx.Error(w, err)
				return
			}
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
