package repo

import (
	"context"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/channel/entity"
)

type subKey struct{ subscriber, channel string }

// MemorySubscriptionRepo backs STORE_DRIVER=memory.
type MemorySubscriptionRepo struct {
	mu   sync.RWMutex
	subs map[subKey]time.Time
}

func NewMemorySubscriptionRepo() *MemorySubscriptionRepo {
	return &MemorySubscriptionRepo{subs: make(map[subKey]time.Time)}
}

func (r *MemorySubscriptionRepo) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := subKey{subscriberID, channelID}
	if _, ok := r.subs[k]; !ok {
		r.subs[k] = time.Now().UTC()
	}
	return nil
}

func (r *MemorySubscriptionRepo) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, subKey{subscriberID, channelID})
	return nil
}

func (r *MemorySubscriptionRepo) Stats(ctx context.Context, channelID, viewerID string) (*entity.Stats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var s entity.Stats
	for k := range r.subs {
		if k.channel == channelID {
			s.Subscribers++
			if viewerID != "" && k.subscriber == viewerID {
				s.IsSubscribed = true
			}
		}
		if k.subscriber == channelID {
			s.SubscribedTo++
		}
	}
	return &s, nil
}
