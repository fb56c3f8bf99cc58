package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

var ErrPasswordTooLong = bcrypt.ErrPasswordTooLong

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	if len(pw) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// HashError maps a Hash failure to an API error; an over-long password is
// the client's fault.
func HashError(err error) error {
	if errors.Is(err, ErrPasswordTooLong) {
		return apierr.BadRequest(passwordTooLong)
	}
	return apierr.Internal("failed to hash password", err)
}

const passwordTooLong = "password must be at most 72 bytes"

// CheckPasswordLength rejects passwords bcrypt cannot hash.
func CheckPasswordLength(pw string) error {
	if len(pw) > MaxPasswordBytes {
		return apierr.BadRequest(passwordTooLong)
	}
	return nil
}
