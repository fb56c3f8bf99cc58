package user

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-tube-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/utilities"
)

// Store is the user persistence the service needs.
type Store interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
	ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, error)
	UpdateProfile(ctx context.Context, id, username, email, fullName string) (*entity.User, error)
	UpdateAvatar(ctx context.Context, id, url string) (*entity.User, error)
	UpdateCoverImage(ctx context.Context, id, url string) (*entity.User, error)
}

// UserService orchestrates registration and profile updates.
type UserService struct {
	store    Store
	hasher   auth.PasswordHasher
	uploader media.Uploader
	logger   *zap.SugaredLogger
}

func NewUserService(store Store, hasher auth.PasswordHasher, uploader media.Uploader, logger *zap.SugaredLogger) *UserService {
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &UserService{store: store, hasher: hasher, uploader: uploader, logger: logger}
}

type RegisterInput struct {
	FullName   string
	Email      string
	Username   string
	Password   string
	Avatar     *media.File
	CoverImage *media.File
}

type ProfileInput struct {
	Username string
	FullName string
	Email    string
}

const msgDuplicateUser = "User already exists with this email or username"

func failure(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.Unavailable("service temporarily unavailable", err)
	}
	return apierr.Internal(msg, err)
}

// Register creates an account. Uniqueness is checked before anything is
// uploaded, and no record is written when the avatar cannot be stored.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*entity.PublicUser, error) {
	in.Username = entity.NormalizeHandle(in.Username)
	in.Email = entity.NormalizeHandle(in.Email)
	in.FullName = strings.TrimSpace(in.FullName)
	if in.Username == "" || in.Email == "" || in.FullName == "" || strings.TrimSpace(in.Password) == "" {
		return nil, apierr.BadRequest("All fields are required")
	}
	if err := auth.CheckPasswordLength(in.Password); err != nil {
		return nil, err
	}

	exists, err := s.store.ExistsByUsernameOrEmail(ctx, in.Username, in.Email, "")
	if err != nil {
		return nil, failure("failed to check existing users", err)
	}
	if exists {
		return nil, apierr.Conflict(msgDuplicateUser)
	}

	if in.Avatar == nil {
		return nil, apierr.BadRequest("Avatar file is required")
	}
	// hash before uploading so a rejected password leaves nothing in storage
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, auth.HashError(err)
	}
	avatar, err := s.uploader.Upload(ctx, *in.Avatar)
	if err != nil {
		s.logger.Warnw("avatar upload failed", "username", in.Username, "err", err)
		return nil, uploadError("Avatar image is required, upload failed", err)
	}
	var cover string
	if in.CoverImage != nil {
		if asset, err := s.uploader.Upload(ctx, *in.CoverImage); err != nil {
			s.logger.Warnw("cover image upload failed, continuing without it", "username", in.Username, "err", err)
		} else {
			cover = asset.URL
		}
	}

	u := &entity.User{
		ID:           utilities.NewSnowflakeID(),
		Username:     in.Username,
		Email:        in.Email,
		FullName:     in.FullName,
		Avatar:       avatar.URL,
		CoverImage:   cover,
		PasswordHash: hash,
	}
	if err := s.store.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicate) {
			return nil, apierr.Conflict(msgDuplicateUser)
		}
		return nil, failure("Something went wrong while registering user", err)
	}

	created, err := s.store.GetByID(ctx, u.ID)
	if err != nil {
		return nil, apierr.Internal("Something went wrong while registering user", err)
	}
	s.logger.Infow("user registered", "user_id", created.ID, "username", created.Username)
	return entity.NewPublicUser(created), nil
}

// UpdateProfile replaces username, email and full name.
func (s *UserService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*entity.PublicUser, error) {
	username := entity.NormalizeHandle(in.Username)
	email := entity.NormalizeHandle(in.Email)
	fullName := strings.TrimSpace(in.FullName)
	if username == "" || email == "" || fullName == "" {
		return nil, apierr.BadRequest("All fields are required")
	}

	exists, err := s.store.ExistsByUsernameOrEmail(ctx, username, email, id)
	if err != nil {
		return nil, failure("failed to check existing users", err)
	}
	if exists {
		return nil, apierr.Conflict(msgDuplicateUser)
	}
	u, err := s.store.UpdateProfile(ctx, id, username, email, fullName)
	if err != nil {
		return nil, s.updateError(err)
	}
	return entity.NewPublicUser(u), nil
}

func (s *UserService) UpdateAvatar(ctx context.Context, id string, f *media.File) (*entity.PublicUser, error) {
	if f == nil {
		return nil, apierr.BadRequest("Avatar file is missing")
	}
	asset, err := s.uploader.Upload(ctx, *f)
	if err != nil {
		s.logger.Warnw("avatar upload failed", "user_id", id, "err", err)
		return nil, uploadError("Error while uploading avatar", err)
	}
	u, err := s.store.UpdateAvatar(ctx, id, asset.URL)
	if err != nil {
		return nil, s.updateError(err)
	}
	return entity.NewPublicUser(u), nil
}

func (s *UserService) UpdateCoverImage(ctx context.Context, id string, f *media.File) (*entity.PublicUser, error) {
	if f == nil {
		return nil, apierr.BadRequest("Cover image file is missing")
	}
	asset, err := s.uploader.Upload(ctx, *f)
	if err != nil {
		s.logger.Warnw("cover image upload failed", "user_id", id, "err", err)
		return nil, uploadError("Error while uploading cover image", err)
	}
	u, err := s.store.UpdateCoverImage(ctx, id, asset.URL)
	if err != nil {
		return nil, s.updateError(err)
	}
	return entity.NewPublicUser(u), nil
}

func (s *UserService) updateError(err error) error {
	switch {
	case errors.Is(err, userrepo.ErrDuplicate):
		return apierr.Conflict(msgDuplicateUser)
	case errors.Is(err, userrepo.ErrNotFound):
		return apierr.Unauthorized("invalid access token")
	}
	return failure("failed to update user", err)
}

func uploadError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.Unavailable("service temporarily unavailable", err)
	}
	return apierr.BadRequestCause(msg, err)
}
