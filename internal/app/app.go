// Package app wires configuration, stores and handlers into one http.Handler.
package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/channel"
	channelrepo "github.com/ovaphlow/pitchfork/service-tube-go/internal/channel/repo"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/observability"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/router"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-tube-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/utilities"
)

// userStore is what every consumer of the user table needs, satisfied by
// both the postgres and the memory repository.
type userStore interface {
	auth.UserStore
	user.Store
	channel.UserFinder
}

type App struct {
	Handler http.Handler
	Metrics *observability.Metrics
	db      *sqlx.DB
}

type Option func(*options)

type options struct {
	uploader media.Uploader
}

// WithUploader replaces the uploader built from the media config.
func WithUploader(u media.Uploader) Option {
	return func(o *options) { o.uploader = u }
}

// New builds the service. With the postgres driver it connects and applies
// pending migrations.
func New(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger, opts ...Option) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if err := utilities.SetSnowflakeNode(cfg.SnowflakeNode); err != nil {
		return nil, fmt.Errorf("snowflake node: %w", err)
	}

	a := &App{Metrics: observability.NewMetrics()}

	var (
		users userStore
		subs  channel.SubscriptionStore
		ready func(context.Context) error
	)
	switch cfg.Store.Driver {
	case config.DriverMemory:
		logger.Warn("using in-memory store; data is lost on restart")
		users = userrepo.NewMemoryUserRepo()
		subs = channelrepo.NewMemorySubscriptionRepo()
	default:
		db, err := database.Connect(cfg.Database())
		if err != nil {
			return nil, fmt.Errorf("db connect: %w", err)
		}
		if err := database.Migrate(ctx, db.DB); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		users = userrepo.NewUserRepo(db)
		subs = channelrepo.NewSubscriptionRepo(db)
		ready = db.PingContext
	}

	uploader := o.uploader
	if uploader == nil {
		var err error
		if uploader, err = newUploader(ctx, cfg, logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	tokens := auth.TokenConfig{
		AccessSecret:  []byte(cfg.Token.AccessSecret),
		AccessTTL:     cfg.Token.AccessTTL,
		RefreshSecret: []byte(cfg.Token.RefreshSecret),
		RefreshTTL:    cfg.Token.RefreshTTL,
		Issuer:        cfg.Token.Issuer,
	}
	hasher := auth.BcryptHasher{Cost: cfg.BcryptCost}
	codec := auth.NewCodec(tokens.Issuer)
	sessions := auth.NewSessionManager(users, hasher, codec, tokens, logger.Named("auth"), a.Metrics)

	a.Handler = router.RegisterRoutes(router.Deps{
		Config:  cfg,
		Logger:  logger.Named("http"),
		Metrics: a.Metrics,
		Auth:    auth.NewAuthenticator(users, codec, tokens, logger.Named("auth")),
		Sessions: auth.NewHandler(sessions, auth.CookieConfig{
			Secure:     cfg.CookieSecure(),
			SameSite:   cfg.CookieSameSite(),
			AccessTTL:  tokens.AccessTTL,
			RefreshTTL: tokens.RefreshTTL,
		}, logger.Named("auth")),
		Users:    user.NewHandler(user.NewUserService(users, hasher, uploader, logger.Named("user")), logger.Named("user")),
		Channels: channel.NewHandler(channel.NewService(users, subs, logger.Named("channel")), logger.Named("channel")),
		Ready:    ready,
	})
	return a, nil
}

func newUploader(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (media.Uploader, error) {
	if cfg.Media.Endpoint == "" && cfg.Media.AccessKey == "" {
		logger.Warn("media storage not configured; uploads are kept in memory")
		return media.NewMemoryUploader(cfg.Media.PublicBaseURL), nil
	}
	u, err := media.NewS3Uploader(ctx, media.Config{
		Endpoint:      cfg.Media.Endpoint,
		Region:        cfg.Media.Region,
		AccessKey:     cfg.Media.AccessKey,
		SecretKey:     cfg.Media.SecretKey,
		Bucket:        cfg.Media.Bucket,
		Folder:        cfg.Media.Folder,
		PublicBaseURL: cfg.Media.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("media uploader: %w", err)
	}
	return u, nil
}

// Ping checks the database; the memory store is always reachable.
func (a *App) Ping(ctx context.Context) error {
	if a.db == nil {
		return nil
	}
	return a.db.PingContext(ctx)
}

// Close releases the database pool.
func (a *App) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
