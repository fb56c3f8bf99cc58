package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
)

// MemoryUserRepo is a process-local user store used for STORE_DRIVER=memory
// and tests. It honours the same uniqueness and compare-and-set rules as the
// postgres repository.
type MemoryUserRepo struct {
	mu    sync.RWMutex
	users map[string]*entity.User
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{users: make(map[string]*entity.User)}
}

func clone(u *entity.User) *entity.User {
	c := *u
	if u.RefreshToken != nil {
		t := *u.RefreshToken
		c.RefreshToken = &t
	}
	return &c
}

func (r *MemoryUserRepo) taken(username, email, excludeID string) bool {
	for id, u := range r.users {
		if id == excludeID {
			continue
		}
		if u.Username == username || u.Email == email {
			return true
		}
	}
	return false
}

func (r *MemoryUserRepo) Create(ctx context.Context, u *entity.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[u.ID]; ok || r.taken(u.Username, u.Email, "") {
		return ErrDuplicate
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	u.UpdatedAt = u.CreatedAt
	stored := clone(u)
	stored.RefreshToken = nil
	r.users[u.ID] = stored
	return nil
}

func (r *MemoryUserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(u), nil
}

func (r *MemoryUserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.find(ctx, func(u *entity.User) bool { return u.Username == username })
}

func (r *MemoryUserRepo) GetByLogin(ctx context.Context, username, email string) (*entity.User, error) {
	return r.find(ctx, func(u *entity.User) bool {
		return (username != "" && u.Username == username) || (email != "" && u.Email == email)
	})
}

// find returns the oldest matching user, mirroring ORDER BY created_at.
func (r *MemoryUserRepo) find(ctx context.Context, match func(*entity.User) bool) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var hits []*entity.User
	for _, u := range r.users {
		if match(u) {
			hits = append(hits, u)
		}
	}
	if len(hits) == 0 {
		return nil, ErrNotFound
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].CreatedAt.Before(hits[j].CreatedAt) })
	return clone(hits[0]), nil
}

func (r *MemoryUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.taken(username, email, excludeID), nil
}

func (r *MemoryUserRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	return r.mutate(ctx, id, func(u *entity.User) error {
		if token == "" {
			u.RefreshToken = nil
			return nil
		}
		u.RefreshToken = &token
		return nil
	})
}

func (r *MemoryUserRepo) SwapRefreshToken(ctx context.Context, id, current, next string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok || !entity.HasRefreshToken(u, current) {
		return false, nil
	}
	u.RefreshToken = &next
	u.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryUserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	return r.mutate(ctx, id, func(u *entity.User) error {
		u.PasswordHash = hash
		return nil
	})
}

func (r *MemoryUserRepo) UpdateProfile(ctx context.Context, id, username, email, fullName string) (*entity.User, error) {
	return r.mutateGet(ctx, id, func(u *entity.User) error {
		if r.taken(username, email, id) {
			return ErrDuplicate
		}
		u.Username, u.Email, u.FullName = username, email, fullName
		return nil
	})
}

func (r *MemoryUserRepo) UpdateAvatar(ctx context.Context, id, url string) (*entity.User, error) {
	return r.mutateGet(ctx, id, func(u *entity.User) error {
		u.Avatar = url
		return nil
	})
}

func (r *MemoryUserRepo) UpdateCoverImage(ctx context.Context, id, url string) (*entity.User, error) {
	return r.mutateGet(ctx, id, func(u *entity.User) error {
		u.CoverImage = url
		return nil
	})
}

// Delete removes a user; deleting an unknown id is a no-op.
func (r *MemoryUserRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepo) mutate(ctx context.Context, id string, fn func(*entity.User) error) error {
	_, err := r.mutateGet(ctx, id, fn)
	return err
}

func (r *MemoryUserRepo) mutateGet(ctx context.Context, id string, fn func(*entity.User) error) (*entity.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := clone(u)
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	r.users[id] = next
	return clone(next), nil
}
