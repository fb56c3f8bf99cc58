package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/channel/entity"
)

// ErrUnknownUser is returned when either side of a subscription does not exist.
var ErrUnknownUser = errors.New("unknown user")

type SubscriptionRepo struct {
	db *sqlx.DB
}

func NewSubscriptionRepo(db *sqlx.DB) *SubscriptionRepo {
	return &SubscriptionRepo{db: db}
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

// Subscribe is idempotent.
func (r *SubscriptionRepo) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	const q = `INSERT INTO subscriptions (subscriber_id, channel_id) VALUES ($1, $2)
		ON CONFLICT (subscriber_id, channel_id) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, q, subscriberID, channelID); err != nil {
		if isForeignKeyViolation(err) {
			return ErrUnknownUser
		}
		return err
	}
	return nil
}

// Unsubscribe is idempotent.
func (r *SubscriptionRepo) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE subscriber_id = $1 AND channel_id = $2`, subscriberID, channelID)
	return err
}

// Stats counts the channel's subscribers and subscriptions; viewerID may be
// empty for anonymous viewers.
func (r *SubscriptionRepo) Stats(ctx context.Context, channelID, viewerID string) (*entity.Stats, error) {
	const q = `SELECT
		(SELECT COUNT(*) FROM subscriptions WHERE channel_id = $1) AS subscribers,
		(SELECT COUNT(*) FROM subscriptions WHERE subscriber_id = $1) AS subscribed_to,
		EXISTS (SELECT 1 FROM subscriptions WHERE channel_id = $1 AND subscriber_id = $2) AS is_subscribed`
	var s entity.Stats
	if err := r.db.GetContext(ctx, &s, q, channelID, viewerID); err != nil {
		return nil, err
	}
	return &s, nil
}
