package repo

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/user/entity"
)

func newMockRepo(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(sqlx.NewDb(db, "postgres")), mock
}

var userCols = []string{"id", "username", "email", "full_name", "avatar", "cover_image", "password_hash", "refresh_token", "created_at", "updated_at"}

func TestUserRepo_GetByID(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("42", "alice", "alice@example.com", "Alice", "a.png", "", "hash", "rt", now, now))

	u, err := r.GetByID(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	require.NotNil(t, u.RefreshToken)
	assert.Equal(t, "rt", *u.RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByID_NotFound(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("404").
		WillReturnRows(sqlmock.NewRows(userCols))

	_, err := r.GetByID(context.Background(), "404")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_GetByLogin(t *testing.T) {
	r, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("($1 <> '' AND username = $1) OR ($2 <> '' AND email = $2)")).
		WithArgs("", "alice@example.com").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow("42", "alice", "alice@example.com", "Alice", "a.png", "", "hash", nil, now, now))

	u, err := r.GetByLogin(context.Background(), "", "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, "42", u.ID)
	assert.Nil(t, u.RefreshToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create_Duplicate(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	err := r.Create(context.Background(), &entity.User{ID: "1", Username: "alice", Email: "alice@example.com"})
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_Create(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO users")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	u := &entity.User{ID: "1", Username: "alice", Email: "alice@example.com"}
	require.NoError(t, r.Create(context.Background(), u))
	assert.False(t, u.CreatedAt.IsZero())
	assert.Equal(t, u.CreatedAt, u.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SwapRefreshToken(t *testing.T) {
	r, mock := newMockRepo(t)
	q := regexp.QuoteMeta("UPDATE users SET refresh_token = $3, updated_at = NOW() WHERE id = $1 AND refresh_token = $2")

	mock.ExpectExec(q).WithArgs("1", "old", "new").WillReturnResult(sqlmock.NewResult(0, 1))
	ok, err := r.SwapRefreshToken(context.Background(), "1", "old", "new")
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(q).WithArgs("1", "old", "newer").WillReturnResult(sqlmock.NewResult(0, 0))
	ok, err = r.SwapRefreshToken(context.Background(), "1", "old", "newer")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_SetRefreshToken(t *testing.T) {
	r, mock := newMockRepo(t)
	q := regexp.QuoteMeta("UPDATE users SET refresh_token = NULLIF($2, '')")

	mock.ExpectExec(q).WithArgs("1", "").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, r.SetRefreshToken(context.Background(), "1", ""))

	mock.ExpectExec(q).WithArgs("404", "t").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, r.SetRefreshToken(context.Background(), "404", "t"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_UpdateProfile_Duplicate(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users SET username = $2")).
		WithArgs("1", "bob", "bob@example.com", "Bob").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := r.UpdateProfile(context.Background(), "1", "bob", "bob@example.com", "Bob")
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepo_ExistsByUsernameOrEmail(t *testing.T) {
	r, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("alice", "alice@example.com", "").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := r.ExistsByUsernameOrEmail(context.Background(), "alice", "alice@example.com", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, isUniqueViolation(&pq.Error{Code: "23505"}))
	assert.False(t, isUniqueViolation(&pq.Error{Code: "23503"}))
	assert.False(t, isUniqueViolation(errors.New("boom")))
}
