package channel

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/httpx"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// GetChannel serves GET /channel/{username}; authentication is optional.
func (h *Handler) GetChannel(w http.ResponseWriter, r *http.Request) {
	var viewerID string
	if u, ok := auth.UserFromContext(r.Context()); ok {
		viewerID = u.ID
	}
	p, err := h.svc.Profile(r.Context(), chi.URLParam(r, "username"), viewerID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Channel fetched successfully", p)
}

func (h *Handler) Subscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	p, err := h.svc.Subscribe(r.Context(), u.ID, chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Subscribed successfully", p)
}

func (h *Handler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	p, err := h.svc.Unsubscribe(r.Context(), u.ID, chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Unsubscribed successfully", p)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apierr.Status(err) >= http.StatusInternalServerError {
		h.logger.Errorw("channel request failed", "path", r.URL.Path, "err", err)
	}
	httpx.Error(w, err)
}
