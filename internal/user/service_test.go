package user

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/apierr"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/media"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-tube-go/internal/user/repo"
)

// flakyUploader fails uploads whose file name contains "bad".
type flakyUploader struct {
	inner *media.MemoryUploader
	calls int
}

func (f *flakyUploader) Upload(ctx context.Context, file media.File) (*media.Asset, error) {
	f.calls++
	if strings.Contains(file.Name, "bad") {
		return nil, errors.New("storage unavailable")
	}
	return f.inner.Upload(ctx, file)
}

type svcFixture struct {
	store    *userrepo.MemoryUserRepo
	uploader *flakyUploader
	svc      *UserService
}

func newSvcFixture() *svcFixture {
	store := userrepo.NewMemoryUserRepo()
	up := &flakyUploader{inner: media.NewMemoryUploader("http://media.local")}
	return &svcFixture{
		store:    store,
		uploader: up,
		svc:      NewUserService(store, auth.BcryptHasher{Cost: bcrypt.MinCost}, up, nil),
	}
}

func image(name string) *media.File {
	return &media.File{Name: name, Body: strings.NewReader("\x89PNG\r\n\x1a\nimage")}
}

func validInput() RegisterInput {
	return RegisterInput{
		FullName: " Alice Liddell ",
		Email:    "Alice@Example.com",
		Username: " Alice ",
		Password: "Secr3t!",
		Avatar:   image("a.png"),
	}
}

func TestUserService_Register(t *testing.T) {
	f := newSvcFixture()
	in := validInput()
	in.CoverImage = image("c.png")

	u, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)

	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, "Alice Liddell", u.FullName)
	assert.True(t, strings.HasPrefix(u.Avatar, "http://media.local/"))
	assert.True(t, strings.HasPrefix(u.CoverImage, "http://media.local/"))

	stored, err := f.store.GetByID(context.Background(), u.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "Secr3t!", stored.PasswordHash)
	assert.True(t, auth.BcryptHasher{}.Verify(stored.PasswordHash, "Secr3t!"))
	assert.Nil(t, stored.RefreshToken)
}

func TestUserService_RegisterDuplicate(t *testing.T) {
	f := newSvcFixture()
	_, err := f.svc.Register(context.Background(), validInput())
	require.NoError(t, err)
	calls := f.uploader.calls

	in := validInput()
	in.Username = "someone-else"
	in.Email = "ALICE@example.com"
	_, err = f.svc.Register(context.Background(), in)
	assert.Equal(t, http.StatusConflict, apierr.Status(err))
	assert.Equal(t, calls, f.uploader.calls, "no upload for a duplicate")

	in = validInput()
	in.Email = "other@example.com"
	_, err = f.svc.Register(context.Background(), in)
	assert.Equal(t, http.StatusConflict, apierr.Status(err))
}

func TestUserService_RegisterRejects(t *testing.T) {
	f := newSvcFixture()

	missing := validInput()
	missing.FullName = "   "
	_, err := f.svc.Register(context.Background(), missing)
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))

	noAvatar := validInput()
	noAvatar.Avatar = nil
	_, err = f.svc.Register(context.Background(), noAvatar)
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))

	badAvatar := validInput()
	badAvatar.Avatar = image("bad.png")
	_, err = f.svc.Register(context.Background(), badAvatar)
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))

	_, err = f.store.GetByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, userrepo.ErrNotFound)
}

func TestUserService_RegisterLongPasswordUploadsNothing(t *testing.T) {
	f := newSvcFixture()
	in := validInput()
	in.Password = strings.Repeat("p", 73)
	in.CoverImage = image("c.png")

	_, err := f.svc.Register(context.Background(), in)
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))
	assert.Zero(t, f.uploader.calls)
	assert.Zero(t, f.uploader.inner.Len())

	_, err = f.store.GetByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, userrepo.ErrNotFound)
}

// failingHasher rejects every password.
type failingHasher struct{}

func (failingHasher) Hash(string) (string, error) { return "", errors.New("hash failed") }
func (failingHasher) Verify(string, string) bool { return false }

func TestUserService_RegisterHashesBeforeUpload(t *testing.T) {
	f := newSvcFixture()
	svc := NewUserService(f.store, failingHasher{}, f.uploader, nil)

	_, err := svc.Register(context.Background(), validInput())
	assert.Equal(t, http.StatusInternalServerError, apierr.Status(err))
	assert.Zero(t, f.uploader.calls)
}

func TestUserService_RegisterCoverFailureIsTolerated(t *testing.T) {
	f := newSvcFixture()
	in := validInput()
	in.CoverImage = image("bad-cover.png")

	u, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	assert.Empty(t, u.CoverImage)
}

func seedUser(t *testing.T, f *svcFixture, username, email string) *entity.PublicUser {
	t.Helper()
	in := validInput()
	in.Username, in.Email = username, email
	u, err := f.svc.Register(context.Background(), in)
	require.NoError(t, err)
	return u
}

func TestUserService_UpdateProfile(t *testing.T) {
	f := newSvcFixture()
	alice := seedUser(t, f, "alice", "alice@example.com")
	seedUser(t, f, "bob", "bob@example.com")
	ctx := context.Background()

	u, err := f.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "Alice2", FullName: "Alice L", Email: "A2@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "alice2", u.Username)
	assert.Equal(t, "a2@example.com", u.Email)
	assert.Equal(t, "Alice L", u.FullName)

	// keeping your own username is not a conflict
	_, err = f.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "alice2", FullName: "Alice", Email: "a2@example.com"})
	assert.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "bob", FullName: "Alice", Email: "a2@example.com"})
	assert.Equal(t, http.StatusConflict, apierr.Status(err))

	_, err = f.svc.UpdateProfile(ctx, alice.ID, ProfileInput{Username: "alice2", Email: "a2@example.com"})
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))
}

func TestUserService_UpdateImages(t *testing.T) {
	f := newSvcFixture()
	alice := seedUser(t, f, "alice", "alice@example.com")
	ctx := context.Background()

	u, err := f.svc.UpdateAvatar(ctx, alice.ID, image("new.png"))
	require.NoError(t, err)
	assert.NotEqual(t, alice.Avatar, u.Avatar)

	u, err = f.svc.UpdateCoverImage(ctx, alice.ID, image("cover.png"))
	require.NoError(t, err)
	assert.NotEmpty(t, u.CoverImage)

	_, err = f.svc.UpdateAvatar(ctx, alice.ID, nil)
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))
	_, err = f.svc.UpdateCoverImage(ctx, alice.ID, image("bad.png"))
	assert.Equal(t, http.StatusBadRequest, apierr.Status(err))

	stored, err := f.store.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, u.CoverImage, stored.CoverImage)
}
