package entity

import "time"

// Subscription links a subscriber to the channel (user) they follow.
type Subscription struct {
	SubscriberID string    `db:"subscriber_id"`
	ChannelID    string    `db:"channel_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// Stats are the subscription counters of one channel as seen by a viewer.
type Stats struct {
	Subscribers  int64 `db:"subscribers"`
	SubscribedTo int64 `db:"subscribed_to"`
	IsSubscribed bool  `db:"is_subscribed"`
}

// Profile is the public channel page.
type Profile struct {
	ID                        string `json:"_id"`
	Username                  string `json:"username"`
	FullName                  string `json:"fullname"`
	Avatar                    string `json:"avatar"`
	CoverImage                string `json:"coverImage"`
	SubscribersCount          int64  `json:"subscribersCount"`
	ChannelsSubscribedToCount int64  `json:"channelsSubscribedToCount"`
	IsSubscribed              bool   `json:"isSubscribed"`
}
