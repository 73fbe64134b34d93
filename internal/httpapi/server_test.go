package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openmatchmaking/auth/internal/password"
	"github.com/openmatchmaking/auth/internal/permissions"
	"github.com/openmatchmaking/auth/internal/refresh"
	"github.com/openmatchmaking/auth/internal/storage/memory"
	"github.com/openmatchmaking/auth/internal/token"
	"github.com/openmatchmaking/auth/internal/users"
)

type apiFixture struct {
	server  *httptest.Server
	tokens  *token.Manager
	users   *users.Service
	storage *memory.Store
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	codec, err := token.NewCodec("test-secret", 30*time.Minute)
	require.NoError(t, err)

	memStore := memory.NewStore()
	stores := memStore.Stores()
	hasher := password.NewHasher()
	resolver := permissions.NewResolver(stores.Groups, stores.Permissions)

	tokens := token.NewManager(codec, stores.Users, refresh.NewStore(client, "refresh_token"), hasher, token.ManagerConfig{})
	userService := users.NewService(stores.Users, stores.Groups, resolver, hasher, "Game client")

	server := httptest.NewServer(NewServer(tokens, userService, "Authorization", nil).Handler())
	t.Cleanup(server.Close)

	return &apiFixture{server: server, tokens: tokens, users: userService, storage: memStore}
}

func (f *apiFixture) register(t *testing.T, username, pass string) {
	t.Helper()

	status, _ := f.request(t, http.MethodPost, "/users/register", "",
		`{"username":"`+username+`","password":"`+pass+`","confirm_password":"`+pass+`"}`)
	require.Equal(t, http.StatusCreated, status)
}

func (f *apiFixture) request(t *testing.T, method, path, authHeader, body string) (int, map[string]any) {
	t.Helper()

	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("{}")
	}
	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	}
	return resp.StatusCode, decoded
}

func TestTokenNewReturnsPair(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	status, body := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"secret1"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.Len(t, body, 2)
}

func TestTokenNewWrongPassword(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	status, body := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"wrongpass"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "NotFoundError", envelope["type"])
	assert.Equal(t, "User wasn't found or specified an invalid password.", envelope["message"])
}

func TestTokenVerify(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	_, pair := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"secret1"}`)
	access := pair["access_token"].(string)

	status, body := f.request(t, http.MethodPost, "/token/verify", "JWT "+access, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["is_valid"])
}

func TestTokenVerifyTamperedSignature(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	_, pair := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"secret1"}`)
	access := pair["access_token"].(string)

	status, body := f.request(t, http.MethodPost, "/token/verify", "JWT "+access[:len(access)-2], "")
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TokenError", envelope["type"])
}

func TestTokenVerifyMissingHeader(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.request(t, http.MethodPost, "/token/verify", "", "")
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "AuthorizationError", envelope["type"])
}

func TestTokenVerifyWrongHeaderPrefix(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.request(t, http.MethodPost, "/token/verify", "Bearer whatever", "")
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "HeaderError", envelope["type"])
}

func TestTokenRefresh(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	_, pair := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"secret1"}`)
	access := pair["access_token"].(string)
	refreshToken := pair["refresh_token"].(string)

	status, body := f.request(t, http.MethodPost, "/token/refresh", "JWT "+access,
		`{"refresh_token":"`+refreshToken+`"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["access_token"])
	assert.Len(t, body, 1)
}

func TestTokenRefreshInvalidToken(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	_, pair := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"secret1"}`)
	access := pair["access_token"].(string)

	status, body := f.request(t, http.MethodPost, "/token/refresh", "JWT "+access,
		`{"refresh_token":"00000000000000000000000000000000"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "TokenError", envelope["type"])
	assert.Equal(t, "Specified an invalid `refresh_token`.", envelope["message"])
}

func TestUsersRegisterValidationEnvelope(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.request(t, http.MethodPost, "/users/register", "",
		`{"username":"","password":"secret1","confirm_password":"secret2"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ValidationError", envelope["type"])

	fields, ok := envelope["message"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "username")
}

func TestUsersRegisterReturnsIDAndUsername(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.request(t, http.MethodPost, "/users/register", "",
		`{"username":"alice","password":"secret1","confirm_password":"secret1"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.NotEmpty(t, body["id"])
	assert.Equal(t, "alice", body["username"])
	assert.Len(t, body, 2)
}

func TestUsersMe(t *testing.T) {
	f := newAPIFixture(t)
	f.register(t, "alice", "secret1")

	_, pair := f.request(t, http.MethodPost, "/token/new", "", `{"username":"alice","password":"secret1"}`)
	access := pair["access_token"].(string)

	status, body := f.request(t, http.MethodGet, "/users/me", "JWT "+access, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "alice", body["username"])
	assert.NotEmpty(t, body["id"])

	perms, ok := body["permissions"].([]any)
	require.True(t, ok)
	assert.Empty(t, perms)
}

func TestMalformedBodyIsValidationError(t *testing.T) {
	f := newAPIFixture(t)

	status, body := f.request(t, http.MethodPost, "/token/new", "", `{"username":`)
	assert.Equal(t, http.StatusBadRequest, status)

	envelope, ok := body["error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "ValidationError", envelope["type"])
}

func TestWrongMethodIsRejected(t *testing.T) {
	f := newAPIFixture(t)

	status, _ := f.request(t, http.MethodGet, "/token/new", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)

	status, _ = f.request(t, http.MethodPost, "/users/me", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestHealthCheck(t *testing.T) {
	f := newAPIFixture(t)

	resp, err := f.server.Client().Get(f.server.URL + "/health-check")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	buf := make([]byte, 2)
	_, err = resp.Body.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(buf))
}
