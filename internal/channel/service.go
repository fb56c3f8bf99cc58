package channel

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/channel/entity"
	channelrepo "github.com/ovaphlow/pitchfork/service-tube-go/internal/channel/repo"
	userentity "github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-tube-go/internal/user/repo"
)

type UserFinder interface {
	GetByUsername(ctx context.Context, username string) (*userentity.User, error)
}

type SubscriptionStore interface {
	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	Stats(ctx context.Context, channelID, viewerID string) (*entity.Stats, error)
}

// Service serves channel pages and manages subscriptions.
type Service struct {
	users  UserFinder
	subs   SubscriptionStore
	logger *zap.SugaredLogger
}

func NewService(users UserFinder, subs SubscriptionStore, logger *zap.SugaredLogger) *Service {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{users: users, subs: subs, logger: logger}
}

func failure(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apierr.Unavailable("service temporarily unavailable", err)
	}
	return apierr.Internal(msg, err)
}

func (s *Service) owner(ctx context.Context, username string) (*userentity.User, error) {
	username = userentity.NormalizeHandle(username)
	if username == "" {
		return nil, apierr.BadRequest("username is missing")
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, userrepo.ErrNotFound) {
			return nil, apierr.NotFound("channel does not exist")
		}
		return nil, failure("failed to load channel", err)
	}
	return u, nil
}

// Profile returns the channel page of username. viewerID is empty for
// anonymous requests.
func (s *Service) Profile(ctx context.Context, username, viewerID string) (*entity.Profile, error) {
	u, err := s.owner(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.profile(ctx, u, viewerID)
}

func (s *Service) Subscribe(ctx context.Context, viewerID, username string) (*entity.Profile, error) {
	u, err := s.owner(ctx, username)
	if err != nil {
		return nil, err
	}
	if u.ID == viewerID {
		return nil, apierr.BadRequest("cannot subscribe to your own channel")
	}
	if err := s.subs.Subscribe(ctx, viewerID, u.ID); err != nil {
		if errors.Is(err, channelrepo.ErrUnknownUser) {
			return nil, apierr.NotFound("channel does not exist")
		}
		return nil, failure("failed to subscribe", err)
	}
	s.logger.Infow("subscribed", "subscriber_id", viewerID, "channel_id", u.ID)
	return s.profile(ctx, u, viewerID)
}

func (s *Service) Unsubscribe(ctx context.Context, viewerID, username string) (*entity.Profile, error) {
	u, err := s.owner(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := s.subs.Unsubscribe(ctx, viewerID, u.ID); err != nil {
		return nil, failure("failed to unsubscribe", err)
	}
	s.logger.Infow("unsubscribed", "subscriber_id", viewerID, "channel_id", u.ID)
	return s.profile(ctx, u, viewerID)
}

func (s *Service) profile(ctx context.Context, u *userentity.User, viewerID string) (*entity.Profile, error) {
	stats, err := s.subs.Stats(ctx, u.ID, viewerID)
	if err != nil {
		return nil, failure("failed to load channel stats", err)
	}
	return &entity.Profile{
		ID:                        u.ID,
		Username:                  u.Username,
		FullName:                  u.FullName,
		Avatar:                    u.Avatar,
		CoverImage:                u.CoverImage,
		SubscribersCount:          stats.Subscribers,
		ChannelsSubscribedToCount: stats.SubscribedTo,
		IsSubscribed:              stats.IsSubscribed,
	}, nil
}
