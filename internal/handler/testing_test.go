package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"tlu-support/internal/models"
	"tlu-support/internal/realtime"
	"tlu-support/internal/repository"
	"tlu-support/internal/services"
	"tlu-support/internal/utils"
)

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (c *memCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = b
	return nil
}

func (c *memCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	b, ok := c.data[key]
	c.mu.Unlock()
	if !ok {
		return utils.ErrCacheMiss
	}
	return json.Unmarshal(b, dest)
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

func (c *memCache) Exists(_ context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

type memStorage struct{}

func (memStorage) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	return "http://cdn.test/support/" + key, nil
}

type nopMailer struct{}

func (nopMailer) SendTemporaryPassword(string, string) error { return nil }

type testApp struct {
	store  *repository.MemoryStore
	jwt    *utils.JWTUtil
	hub    *realtime.Hub
	router *gin.Engine
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := zerolog.Nop()
	store := repository.NewMemoryStore()
	cache := &memCache{data: map[string][]byte{}}
	jwt := utils.NewJWTUtil("test-secret", time.Hour)
	hub := realtime.NewHub(log)
	media := services.NewMediaService(memStorage{}, 1<<20, log)

	router := SetupRouter(Deps{
		Auth:      services.NewAuthService(store, store, store, jwt, cache, nopMailer{}, log),
		Students:  services.NewStudentService(store, store, media, cache, time.Minute, log),
		Chat:      services.NewChatService(store, store, store, store, hub, services.NewSupportNotifier(nil, "support_events", log), services.ChatServiceOptions{MaxRetries: 3}, log),
		Lifecycle: services.NewLifecycleService(store, store, hub, 3, log),
		Media:     media,
		Hub:       hub,
		JWT:       jwt,
		Blacklist: cache,
		Log:       log,
	})
	t.Cleanup(func() { _ = hub.Shutdown(context.Background()) })

	return &testApp{store: store, jwt: jwt, hub: hub, router: router}
}

// addUser stores an active user and returns a bearer token for it.
func (a *testApp) addUser(t *testing.T, id string, role models.Role) string {
	t.Helper()
	require.NoError(t, a.store.CreateUser(context.Background(), &models.User{
		ID: id, Email: id + "@uni.test", FullName: id, Role: role, IsActive: true,
	}))
	token, err := a.jwt.GenerateToken(id, string(role))
	require.NoError(t, err)
	return token
}

func (a *testApp) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func errorType(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body utils.HTTPErrorResponse
	decode(t, w, &body)
	require.NotNil(t, body.Error)
	return body.Error.Type
}
