package user

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/httpx"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
)

// multipart parts above this stay on disk instead of memory
const formMemory = 1 << 20

// Handler exposes HTTP endpoints for registration and the current user's profile.
type Handler struct {
	svc    *UserService
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, logger *zap.SugaredLogger) *Handler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Handler{svc: svc, logger: logger}
}

// RegisterForm holds the text fields of the multipart registration form.
type RegisterForm struct {
	FullName string `form:"fullname" validate:"required"`
	Email    string `form:"email" validate:"required,email"`
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required,max=72"`
}

// UpdateUserRequest is the body of update-user-data.
type UpdateUserRequest struct {
	Username string `json:"username" validate:"required"`
	FullName string `json:"fullname" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if err := parseMultipart(r); err != nil {
		h.fail(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := RegisterForm{
		FullName: r.FormValue("fullname"),
		Email:    r.FormValue("email"),
		Username: r.FormValue("username"),
		Password: r.FormValue("password"),
	}
	if err := httpx.Validate(form); err != nil {
		h.fail(w, r, err)
		return
	}

	avatar, closeAvatar, err := formFile(r, "avatar")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer closeAvatar()
	cover, closeCover, err := formFile(r, "coverImage")
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer closeCover()

	u, err := h.svc.Register(r.Context(), RegisterInput{
		FullName:   form.FullName,
		Email:      form.Email,
		Username:   form.Username,
		Password:   form.Password,
		Avatar:     avatar,
		CoverImage: cover,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusCreated, "User registered successfully", u)
}

func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	httpx.Success(w, http.StatusOK, "Current user fetched successfully", u)
}

func (h *Handler) UpdateUserData(w http.ResponseWriter, r *http.Request) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	var req UpdateUserRequest
	if err := httpx.DecodeJSON(r, &req, false); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := httpx.Validate(req); err != nil {
		h.fail(w, r, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), current.ID, ProfileInput{Username: req.Username, FullName: req.FullName, Email: req.Email})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, "Account details updated successfully", u)
}

func (h *Handler) UpdateAvatarImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.svc.UpdateAvatar, "Avatar image updated successfully")
}

func (h *Handler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.svc.UpdateCoverImage, "Cover image updated successfully")
}

type imageUpdater func(ctx context.Context, id string, f *media.File) (*entity.PublicUser, error)

func (h *Handler) updateImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdater, msg string) {
	current, ok := auth.UserFromContext(r.Context())
	if !ok {
		h.fail(w, r, apierr.Unauthorized("unauthorized request"))
		return
	}
	if err := parseMultipart(r); err != nil {
		h.fail(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, closeFile, err := formFile(r, field)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer closeFile()

	u, err := update(r.Context(), current.ID, f)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.Success(w, http.StatusOK, msg, u)
}

func parseMultipart(r *http.Request) error {
	err := r.ParseMultipartForm(formMemory)
	if err == nil {
		return nil
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return apierr.BadRequest("file too large")
	}
	return apierr.BadRequest("invalid multipart form")
}

// formFile opens the named part. A missing part yields a nil file.
func formFile(r *http.Request, field string) (*media.File, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apierr.BadRequest("invalid " + field + " file")
	}
	return fileFromPart(file, header), func() { _ = file.Close() }, nil
}

func fileFromPart(file multipart.File, header *multipart.FileHeader) *media.File {
	return &media.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if apierr.Status(err) >= http.StatusInternalServerError {
		h.logger.Errorw("user request failed", "path", r.URL.Path, "err", err)
	} else {
		h.logger.Debugw("user request rejected", "path", r.URL.Path, "err", err)
	}
	httpx.Error(w, err)
}
