package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-tube-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-tube-go/internal/media"
)

const base = "/api/v1/users"

func testConfig() *config.Config {
	cfg := &config.Config{
		AppEnv:         "test",
		BasePath:       base,
		RequestTimeout: 5 * time.Second,
		BodyLimit:      16384,
		BcryptCost:     4,
		SnowflakeNode:  1,
	}
	cfg.Token = config.Token{
		AccessSecret:  "access-secret",
		AccessTTL:     time.Hour,
		RefreshSecret: "refresh-secret",
		RefreshTTL:    240 * time.Hour,
		Issuer:        "tube-test",
	}
	cfg.Store.Driver = config.DriverMemory
	cfg.Media.MaxFileSize = 1 << 20
	return cfg
}

type client struct {
	t       *testing.T
	handler http.Handler
}

func newClient(t *testing.T) *client {
	t.Helper()
	a, err := New(context.Background(), testConfig(), nil, WithUploader(media.NewMemoryUploader("http://media.test")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return &client{t: t, handler: a.Handler}
}

type result struct {
	code    int
	body    map[string]any
	cookies map[string]*http.Cookie
}

func (r result) data() map[string]any {
	d, _ := r.body["data"].(map[string]any)
	return d
}

func (c *client) do(r *http.Request) result {
	c.t.Helper()
	w := httptest.NewRecorder()
	c.handler.ServeHTTP(w, r)
	res := result{code: w.Code, cookies: map[string]*http.Cookie{}}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &res.body))
	}
	for _, ck := range w.Result().Cookies() {
		res.cookies[ck.Name] = ck
	}
	return res
}

func (c *client) json(method, path, body, token string) result {
	c.t.Helper()
	r := httptest.NewRequest(method, base+path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return c.do(r)
}

func (c *client) register(username, email string) result {
	c.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range map[string]string{"fullname": "Test " + username, "email": email, "username": username, "password": "Secr3t!"} {
		require.NoError(c.t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(c.t, err)
	_, _ = io.WriteString(fw, "\x89PNG\r\n\x1a\navatar")
	require.NoError(c.t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, base+"/register", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(r)
}

func (c *client) login(username string) (access, refresh string) {
	c.t.Helper()
	res := c.json(http.MethodPost, "/login", `{"username":"`+username+`","password":"Secr3t!"}`, "")
	require.Equal(c.t, http.StatusOK, res.code, res.body)
	return res.data()["accessToken"].(string), res.data()["refreshToken"].(string)
}

func TestApp_Health(t *testing.T) {
	c := newClient(t)
	res := c.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, res.code)

	res = c.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, res.code)

	res = c.do(httptest.NewRequest(http.MethodGet, base+"/nope", nil))
	assert.Equal(t, http.StatusNotFound, res.code)
	assert.Equal(t, false, res.body["success"])
}

func TestApp_SessionLifecycle(t *testing.T) {
	c := newClient(t)
	reg := c.register("alice", "alice@example.com")
	require.Equal(t, http.StatusCreated, reg.code, reg.body)
	assert.Equal(t, "alice", reg.data()["username"])

	dup := c.register("Alice", "other@example.com")
	assert.Equal(t, http.StatusConflict, dup.code)

	access, refresh := c.login("alice")

	me := c.json(http.MethodGet, "/get-current-user", "", access)
	require.Equal(t, http.StatusOK, me.code)
	assert.Equal(t, "alice@example.com", me.data()["email"])

	noAuth := c.json(http.MethodGet, "/get-current-user", "", "")
	assert.Equal(t, http.StatusUnauthorized, noAuth.code)
	assert.Equal(t, "unauthorized request", noAuth.body["message"])

	rotated := c.json(http.MethodPost, "/refresh-access-token", `{"refreshToken":"`+refresh+`"}`, "")
	require.Equal(t, http.StatusOK, rotated.code, rotated.body)
	newRefresh := rotated.data()["refreshToken"].(string)
	assert.NotEqual(t, refresh, newRefresh)
	assert.NotEmpty(t, rotated.cookies["accessToken"].Value)

	replay := c.json(http.MethodPost, "/refresh-access-token", `{"refreshToken":"`+refresh+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, replay.code)

	out := c.json(http.MethodPost, "/logout", "", access)
	require.Equal(t, http.StatusOK, out.code)
	after := c.json(http.MethodPost, "/refresh-access-token", `{"refreshToken":"`+newRefresh+`"}`, "")
	assert.Equal(t, http.StatusUnauthorized, after.code)
}

func TestApp_CookieAuth(t *testing.T) {
	c := newClient(t)
	require.Equal(t, http.StatusCreated, c.register("alice", "alice@example.com").code)

	res := c.json(http.MethodPost, "/login", `{"email":"ALICE@example.com","password":"Secr3t!"}`, "")
	require.Equal(t, http.StatusOK, res.code)
	access := res.cookies["accessToken"]
	require.NotNil(t, access)
	assert.True(t, access.HttpOnly)

	r := httptest.NewRequest(http.MethodGet, base+"/get-current-user", nil)
	r.AddCookie(access)
	assert.Equal(t, http.StatusOK, c.do(r).code)
}

func TestApp_ProfileAndPassword(t *testing.T) {
	c := newClient(t)
	require.Equal(t, http.StatusCreated, c.register("alice", "alice@example.com").code)
	require.Equal(t, http.StatusCreated, c.register("bob", "bob@example.com").code)
	access, _ := c.login("alice")

	res := c.json(http.MethodPatch, "/update-user-data", `{"username":"bob","fullname":"A","email":"a@example.com"}`, access)
	assert.Equal(t, http.StatusConflict, res.code)

	res = c.json(http.MethodPatch, "/update-user-data", `{"username":"alicia","fullname":"Alicia","email":"alicia@example.com"}`, access)
	require.Equal(t, http.StatusOK, res.code, res.body)
	assert.Equal(t, "alicia", res.data()["username"])

	res = c.json(http.MethodPatch, "/change-current-password", `{"currentPassword":"nope","newPassword":"N3w!"}`, access)
	assert.Equal(t, http.StatusBadRequest, res.code)
	res = c.json(http.MethodPost, "/change-current-password", `{"currentPassword":"Secr3t!","newPassword":"N3w!"}`, access)
	require.Equal(t, http.StatusOK, res.code, res.body)

	res = c.json(http.MethodPost, "/login", `{"username":"alicia","password":"N3w!"}`, "")
	assert.Equal(t, http.StatusOK, res.code)
}

func TestApp_Channel(t *testing.T) {
	c := newClient(t)
	require.Equal(t, http.StatusCreated, c.register("alice", "alice@example.com").code)
	require.Equal(t, http.StatusCreated, c.register("bob", "bob@example.com").code)
	bob, _ := c.login("bob")

	res := c.json(http.MethodPost, "/channel/alice/subscription", "", bob)
	require.Equal(t, http.StatusOK, res.code, res.body)

	anon := c.json(http.MethodGet, "/channel/alice", "", "")
	require.Equal(t, http.StatusOK, anon.code)
	assert.EqualValues(t, 1, anon.data()["subscribersCount"])
	assert.Equal(t, false, anon.data()["isSubscribed"])

	seen := c.json(http.MethodGet, "/channel/alice", "", bob)
	assert.Equal(t, true, seen.data()["isSubscribed"])

	res = c.json(http.MethodPost, "/channel/alice/subscription", "", "")
	assert.Equal(t, http.StatusUnauthorized, res.code)
}

func TestApp_BodyLimit(t *testing.T) {
	c := newClient(t)
	big := `{"username":"` + strings.Repeat("a", 20000) + `","password":"x"}`
	res := c.json(http.MethodPost, "/login", big, "")
	assert.Equal(t, http.StatusBadRequest, res.code)
	assert.Equal(t, "request body too large", res.body["message"])
}
