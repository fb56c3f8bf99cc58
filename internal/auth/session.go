package auth

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/observability"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/repo"
)

// UserStore is the slice of the user repository the session lifecycle needs.
type UserStore interface {
	GetByID(ctx context.Context, id string) (*entity.User, error)
	GetByLogin(ctx context.Context, username, email string) (*entity.User, error)
	SetRefreshToken(ctx context.Context, id, token string) error
	SwapRefreshToken(ctx context.Context, id, current, next string) (bool, error)
	UpdatePassword(ctx context.Context, id, hash string) error
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginResult struct {
	User *entity.PublicUser `json:"user"`
	TokenPair
}

type LoginInput struct {
	Username string
	Email    string
	Password string
}

// SessionManager owns credential checks and the access/refresh token lifecycle.
type SessionManager struct {
	store   UserStore
	hasher  PasswordHasher
	codec   *Codec
	tokens  TokenConfig
	logger  *zap.SugaredLogger
	metrics *observability.Metrics
}

func NewSessionManager(store UserStore, hasher PasswordHasher, codec *Codec, tokens TokenConfig, logger *zap.SugaredLogger, metrics *observability.Metrics) *SessionManager {
	if hasher == nil {
		hasher = BcryptHasher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &SessionManager{store: store, hasher: hasher, codec: codec, tokens: tokens, logger: logger, metrics: metrics}
}

func invalidCredentials() *apierr.Error {
	return apierr.Unauthorized("invalid user credentials")
}

func staleRefresh() *apierr.Error {
	return apierr.Unauthorized("refresh token is expired or used")
}

// storeError maps a repository failure that is not ErrNotFound.
func storeError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.Unavailable("service temporarily unavailable", err)
	}
	return apierr.Internal(msg, err)
}

// Login verifies credentials and starts a new session. The stored refresh
// token is overwritten, so any earlier refresh token stops working.
func (s *SessionManager) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := entity.NormalizeHandle(in.Username)
	email := entity.NormalizeHandle(in.Email)
	if username == "" && email == "" {
		return nil, apierr.BadRequest("username or email is required")
	}
	if in.Password == "" {
		return nil, apierr.BadRequest("password is required")
	}

	u, err := s.store.GetByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.metrics.AuthEvent("login", "invalid_credentials")
			return nil, invalidCredentials() // avoid user enumeration
		}
		return nil, storeError("failed to load user", err)
	}
	if !s.hasher.Verify(u.PasswordHash, in.Password) {
		s.metrics.AuthEvent("login", "invalid_credentials")
		s.logger.Infow("login rejected", "user_id", u.ID, "reason", "password mismatch")
		return nil, invalidCredentials()
	}

	pair, err := s.mint(u)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetRefreshToken(ctx, u.ID, pair.RefreshToken); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, storeError("failed to persist session", err)
	}

	s.metrics.AuthEvent("login", "success")
	s.logger.Infow("user logged in", "user_id", u.ID)
	return &LoginResult{User: entity.NewPublicUser(u), TokenPair: *pair}, nil
}

// Refresh rotates the session: the presented refresh token must be the one
// on record, and is replaced atomically so a token can be used only once.
func (s *SessionManager) Refresh(ctx context.Context, presented string) (*TokenPair, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, apierr.Unauthorized("unauthorized request")
	}

	var claims RefreshClaims
	if err := s.codec.Verify(presented, s.tokens.RefreshSecret, &claims); err != nil {
		if errors.Is(err, ErrMissingSecret) {
			return nil, apierr.Internal("refresh token secret is not configured", err)
		}
		s.metrics.AuthEvent("refresh", "invalid")
		return nil, apierr.UnauthorizedCause("invalid refresh token", err)
	}

	u, err := s.store.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			s.metrics.AuthEvent("refresh", "invalid")
			return nil, apierr.Unauthorized("invalid refresh token")
		}
		return nil, storeError("failed to load user", err)
	}
	if !entity.HasRefreshToken(u, presented) {
		s.metrics.AuthEvent("refresh", "replayed")
		s.logger.Warnw("refresh token does not match stored session", "user_id", u.ID)
		return nil, staleRefresh()
	}

	pair, err := s.mint(u)
	if err != nil {
		return nil, err
	}
	swapped, err := s.store.SwapRefreshToken(ctx, u.ID, presented, pair.RefreshToken)
	if err != nil {
		return nil, storeError("failed to rotate session", err)
	}
	if !swapped {
		// a concurrent refresh or login won the race
		s.metrics.AuthEvent("refresh", "replayed")
		return nil, staleRefresh()
	}

	s.metrics.AuthEvent("refresh", "success")
	return pair, nil
}

// Logout clears the stored refresh token. It is idempotent.
func (s *SessionManager) Logout(ctx context.Context, userID string) error {
	if err := s.store.SetRefreshToken(ctx, userID, ""); err != nil && !errors.Is(err, repo.ErrNotFound) {
		return storeError("failed to end session", err)
	}
	s.metrics.AuthEvent("logout", "success")
	s.logger.Infow("user logged out", "user_id", userID)
	return nil
}

// ChangePassword replaces the password hash after checking the current one.
// Issued tokens stay valid.
func (s *SessionManager) ChangePassword(ctx context.Context, userID, current, next string) error {
	if current == "" || next == "" {
		return apierr.BadRequest("current and new password are required")
	}
	if current == next {
		return apierr.BadRequest("new password must differ from the current password")
	}
	if err := CheckPasswordLength(next); err != nil {
		return err
	}

	u, err := s.store.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apierr.Unauthorized("invalid access token")
		}
		return storeError("failed to load user", err)
	}
	if !s.hasher.Verify(u.PasswordHash, current) {
		s.metrics.AuthEvent("change_password", "invalid_credentials")
		return apierr.BadRequest("invalid current password")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return HashError(err)
	}
	if err := s.store.UpdatePassword(ctx, u.ID, hash); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return apierr.Unauthorized("invalid access token")
		}
		return storeError("failed to update password", err)
	}

	s.metrics.AuthEvent("change_password", "success")
	s.logger.Infow("password changed", "user_id", u.ID)
	return nil
}

func (s *SessionManager) mint(u *entity.User) (*TokenPair, error) {
	access, err := s.codec.Issue(&AccessClaims{
		UserID:   u.ID,
		Username: u.Username,
		FullName: u.FullName,
		Email:    u.Email,
	}, s.tokens.AccessSecret, s.tokens.AccessTTL)
	if err != nil {
		return nil, apierr.Internal("something went wrong while generating access and refresh token", err)
	}
	refresh, err := s.codec.Issue(&RefreshClaims{UserID: u.ID}, s.tokens.RefreshSecret, s.tokens.RefreshTTL)
	if err != nil {
		return nil, apierr.Internal("something went wrong while generating access and refresh token", err)
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
