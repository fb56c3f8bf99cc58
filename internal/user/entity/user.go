package entity

import (
	"strings"
	"time"
)

// User represents an account row in the `users` table.
// PasswordHash always holds a bcrypt hash; RefreshToken is the single active
// refresh token slot (nil when logged out).
type User struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	Email        string    `db:"email"`
	FullName     string    `db:"full_name"`
	Avatar       string    `db:"avatar"`
	CoverImage   string    `db:"cover_image"`
	PasswordHash string    `db:"password_hash"`
	RefreshToken *string   `db:"refresh_token"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// PublicUser is the sanitized projection returned to clients and attached to
// authenticated requests. It never carries the password hash or refresh token.
type PublicUser struct {
	ID         string    `json:"_id"`
	Username   string    `json:"username"`
	Email      string    `json:"email"`
	FullName   string    `json:"fullname"`
	Avatar     string    `json:"avatar"`
	CoverImage string    `json:"coverImage"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// NewPublicUser projects u; nil stays nil.
func NewPublicUser(u *User) *PublicUser {
	if u == nil {
		return nil
	}
	return &PublicUser{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		FullName:   u.FullName,
		Avatar:     u.Avatar,
		CoverImage: u.CoverImage,
		CreatedAt:  u.CreatedAt,
		UpdatedAt:  u.UpdatedAt,
	}
}

// NormalizeHandle trims and lowercases a username or email. Both are stored
// this way, so lookups must normalize too.
func NormalizeHandle(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// HasRefreshToken reports whether token is the stored refresh token.
func HasRefreshToken(u *User, token string) bool {
	return u != nil && token != "" && u.RefreshToken != nil && *u.RefreshToken == token
}
