package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ovaphlow/pitchfork/service-tube-go/pkg/utilities"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingSecret = errors.New("signing secret is not configured")
)

// Claims is implemented by the token payloads; Registered exposes the
// standard part so the codec can stamp issuer, id and expiry.
type Claims interface {
	jwt.Claims
	Registered() *jwt.RegisteredClaims
}

// AccessClaims identify the user on every protected request.
type AccessClaims struct {
	UserID   string `json:"_id"`
	Username string `json:"username"`
	FullName string `json:"fullname"`
	Email    string `json:"email"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) Registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// RefreshClaims carry only the user id.
type RefreshClaims struct {
	UserID string `json:"_id"`
	jwt.RegisteredClaims
}

func (c *RefreshClaims) Registered() *jwt.RegisteredClaims { return &c.RegisteredClaims }

// TokenConfig holds the two independent signing secrets and lifetimes.
type TokenConfig struct {
	AccessSecret  []byte
	AccessTTL     time.Duration
	RefreshSecret []byte
	RefreshTTL    time.Duration
	Issuer        string
}

// Codec signs and verifies HS256 tokens.
type Codec struct {
	issuer string
	now    func() time.Time
}

func NewCodec(issuer string) *Codec {
	return &Codec{issuer: issuer, now: time.Now}
}

// WithClock returns a copy of the codec reading time from now.
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

// Issue signs claims with secret. Every token gets a fresh jti so two tokens
// minted in the same second for the same user still differ.
func (c *Codec) Issue(claims Claims, secret []byte, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	now := c.now()
	reg := claims.Registered()
	reg.ID = utilities.NewKSUID()
	reg.Issuer = c.issuer
	reg.IssuedAt = jwt.NewNumericDate(now)
	reg.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses token into claims. Any failure (bad signature, malformed
// input, foreign algorithm or issuer, missing or past expiry) wraps ErrInvalidToken.
func (c *Codec) Verify(token string, secret []byte, claims Claims) error {
	if len(secret) == 0 {
		return ErrMissingSecret
	}
	if token == "" {
		return ErrInvalidToken
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, opts...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return ErrInvalidToken
	}
	return nil
}

// IsExpired reports whether a Verify error was caused by expiry.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
