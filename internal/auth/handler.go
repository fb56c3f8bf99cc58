package auth

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/httpx"
)

// CookieConfig controls the session cookie attributes.
type CookieConfig struct {
	Secure     bool
	SameSite   http.SameSite
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Handler exposes the session endpoints.
type Handler struct {
	sessions *SessionManager
	cookies  CookieConfig
	logger   *zap.SugaredLogger
}

func NewHandler(sessions *SessionManager, cookies CookieConfig, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{sessions: sessions, cookies: cookies, logger: logger}
}

// LoginRequest login payload; either username or email identifies the user.
type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email"`
	Password string `json:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,max=72"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.sessions.Login(r.Context(), LoginInput{Username: req.Username, Email: req.Email, Password: req.Password})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSession(w, res.TokenPair)
	httpx.Success(w, http.StatusOK, "User logged in successfully", res)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	if err := h.sessions.Logout(r.Context(), u.ID); err != nil {
		h.fail(w, r, err)
		return
	}
	h.clearSession(w)
	httpx.Success(w, http.StatusOK, "User logged out successfully", struct{}{})
}

// RefreshAccessToken takes the refresh token from its cookie, falling back to
// the JSON body.
func (h *Handler) RefreshAccessToken(w http.ResponseWriter, r *http.Request) {
	var presented string
	if c, err := r.Cookie(RefreshCookie); err == nil {
		presented = c.Value
	}
	if presented == "" {
		var req RefreshRequest
		if err := httpx.DecodeJSON(r, &req, true); err != nil {
			h.fail(w, r, err)
			return
		}
		presented = req.RefreshToken
	}
	pair, err := h.sessions.Refresh(r.Context(), presented)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.setSession(w, *pair)
	httpx.Success(w, http.StatusOK, "Access token refreshed", pair)
}

func (h *Handler) ChangeCurrentPassword(w http.ResponseWriter, r *http.Request) {
	u, ok := UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	var req ChangePasswordRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.sessions.ChangePassword(r.Context(), u.ID, req.CurrentPassword, req.NewPassword); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Password changed successfully", struct{}{})
}

func (h *Handler) setSession(w http.ResponseWriter, pair TokenPair) {
	http.SetCookie(w, h.cookie(AccessCookie, pair.AccessToken, h.cookies.AccessTTL))
	http.SetCookie(w, h.cookie(RefreshCookie, pair.RefreshToken, h.cookies.RefreshTTL))
}

func (h *Handler) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, h.cookie(AccessCookie, "", -1))
	http.SetCookie(w, h.cookie(RefreshCookie, "", -1))
}

// cookie builds a session cookie; a negative ttl expires it.
func (h *Handler) cookie(name, value string, ttl time.Duration) *http.Cookie {
	maxAge := int(ttl / time.Second)
	if ttl < 0 {
		maxAge = -1
	}
	sameSite := h.cookies.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteLaxMode
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: sameSite,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apierr.Status(err) >= http.StatusInternalServerError {
		h.logger.Errorw("session request failed", "path", r.URL.Path, "err", err)
	} else {
		h.logger.Debugw("session request rejected", "path", r.URL.Path, "err", err)
	}
	httpx.Error(w, err)
}
