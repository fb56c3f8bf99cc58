package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
)

var (
	ErrNotFound  = errors.New("user not found")
	ErrDuplicate = errors.New("username or email already taken")
)

const userColumns = `id, username, email, full_name, avatar, cover_image, password_hash, refresh_token, created_at, updated_at`

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db *sqlx.DB
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db} }

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// Create inserts a new user row. Username and email are expected normalized.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = u.CreatedAt
	const q = `INSERT INTO users (id, username, email, full_name, avatar, cover_image, password_hash, created_at, updated_at)
		VALUES (:id, :username, :email, :full_name, :avatar, :cover_image, :password_hash, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, u); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetByUsername fetches by normalized username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (*entity.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username)
}

// GetByLogin matches a user by username OR email; empty values never match.
func (r *UserRepo) GetByLogin(ctx context.Context, username, email string) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
		WHERE ($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)
		ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, q, username, email)
}

// ExistsByUsernameOrEmail reports whether another user (not excludeID) holds
// the username or email.
func (r *UserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email, excludeID string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM users WHERE (username = $1 OR email = $2) AND id <> $3)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, q, username, email, excludeID); err != nil {
		return false, err
	}
	return exists, nil
}

// SetRefreshToken overwrites the refresh token slot; an empty token clears it.
func (r *UserRepo) SetRefreshToken(ctx context.Context, id, token string) error {
	const q = `UPDATE users SET refresh_token = NULLIF($2, ''), updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, token)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// SwapRefreshToken replaces the stored refresh token only if it still equals
// current. It reports false when another writer got there first.
func (r *UserRepo) SwapRefreshToken(ctx context.Context, id, current, next string) (bool, error) {
	const q = `UPDATE users SET refresh_token = $3, updated_at = NOW() WHERE id = $1 AND refresh_token = $2`
	res, err := r.db.ExecContext(ctx, q, id, current, next)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// UpdatePassword stores a new password hash.
func (r *UserRepo) UpdatePassword(ctx context.Context, id, hash string) error {
	const q = `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	res, err := r.db.ExecContext(ctx, q, id, hash)
	if err != nil {
		return err
	}
	return expectRow(res)
}

// UpdateProfile changes username, email and full name and returns the new row.
func (r *UserRepo) UpdateProfile(ctx context.Context, id, username, email, fullName string) (*entity.User, error) {
	const q = `UPDATE users SET username = $2, email = $3, full_name = $4, updated_at = NOW()
		WHERE id = $1 RETURNING ` + userColumns
	u, err := r.getOne(ctx, q, id, username, email, fullName)
	if err != nil && isUniqueViolation(err) {
		return nil, ErrDuplicate
	}
	return u, err
}

// UpdateAvatar sets the avatar URL and returns the new row.
func (r *UserRepo) UpdateAvatar(ctx context.Context, id, url string) (*entity.User, error) {
	return r.getOne(ctx, `UPDATE users SET avatar = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, url)
}

// UpdateCoverImage sets the cover image URL and returns the new row.
func (r *UserRepo) UpdateCoverImage(ctx context.Context, id, url string) (*entity.User, error) {
	return r.getOne(ctx, `UPDATE users SET cover_image = $2, updated_at = NOW() WHERE id = $1 RETURNING `+userColumns, id, url)
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
