package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shelfd.org/internal/auth"
	"shelfd.org/internal/catalog"
	"shelfd.org/internal/ids"
)

type stubEmbedder struct {
	vec []float64
	err error
}

func (s *stubEmbedder) Embed(context.Context, string) ([]float64, error) {
	return s.vec, s.err
}

type testEnv struct {
	api     *API
	handler http.Handler
	store   *auth.InMemoryStore
	cat     *catalog.InMemory
	emb     *stubEmbedder
	now     *time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	now := time.Now().UTC()
	env := &testEnv{now: &now}

	codec, err := auth.NewCodec(
		[]byte("0123456789abcdef0123456789abcdef"),
		auth.WithCodecClock(func() time.Time { return *env.now }),
	)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	env.store = auth.NewInMemoryStore()
	env.cat = catalog.NewInMemory()
	env.emb = &stubEmbedder{vec: []float64{1, 0}}

	svc := auth.NewService(env.store, codec)
	env.api = New(svc, env.store, env.cat, env.emb, ReadyProbe{}, "test")
	env.handler = RequestID(env.api.Handler())
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return out
}

func (e *testEnv) register(t *testing.T, username, email string) auth.Profile {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/register", "", map[string]any{
		"username": username,
		"email":    email,
		"password": "pw123456",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", username, rr.Code, rr.Body.String())
	}
	return decodeBody[auth.Profile](t, rr)
}

func (e *testEnv) login(t *testing.T, username string) sessionResponse {
	t.Helper()
	rr := e.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username": username,
		"password": "pw123456",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", username, rr.Code, rr.Body.String())
	}
	return decodeBody[sessionResponse](t, rr)
}

// seedAdmin creates an admin account directly in the store; password is the
// shared test password.
func (e *testEnv) seedAdmin(t *testing.T, username string) *auth.User {
	t.Helper()
	ctx := context.Background()
	hash, err := auth.HashPassword("pw123456")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	for _, role := range []string{auth.RoleUser, auth.RoleAdmin} {
		if _, err := e.store.Roles().Ensure(ctx, role, ""); err != nil {
			t.Fatalf("ensure role %s: %v", role, err)
		}
	}
	now := time.Now().UTC()
	u := &auth.User{
		ID:           ids.New(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: hash,
		Active:       true,
		Roles:        []string{auth.RoleUser, auth.RoleAdmin},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := e.store.Users().Create(ctx, u); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	return u
}

// TestSessionLifecycle walks the full flow: register, login, hit a
// role-guarded route, expire the access token, refresh, retry.
func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t)

	profile := env.register(t, "alice", "alice@example.com")
	if len(profile.Roles) != 1 || profile.Roles[0] != auth.RoleUser {
		t.Fatalf("expected default USER role, got %v", profile.Roles)
	}

	session := env.login(t, "alice")
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatalf("expected token pair")
	}
	if !session.AccessExpiresAt.Before(session.RefreshExpiresAt) {
		t.Fatalf("access token should expire before refresh token")
	}

	// admin-only route stays closed for a plain user
	rr := env.do(t, http.MethodGet, "/users", session.AccessToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on admin route, got %d", rr.Code)
	}

	// user-level write succeeds
	rr = env.do(t, http.MethodPost, "/products", session.AccessToken, map[string]any{
		"name": "Widget", "price": 1999, "category": "tools", "stockQuantity": 3,
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %s", rr.Code, rr.Body.String())
	}

	// expire the access token; the protected route now rejects
	*env.now = env.now.Add(16 * time.Minute)
	rr = env.do(t, http.MethodGet, "/users/me", session.AccessToken, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with expired access token, got %d", rr.Code)
	}

	// refresh still works and yields a usable pair
	rr = env.do(t, http.MethodPost, "/auth/refresh", "", map[string]any{
		"refreshToken": session.RefreshToken,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rr.Code, rr.Body.String())
	}
	renewed := decodeBody[sessionResponse](t, rr)

	rr = env.do(t, http.MethodGet, "/users/me", renewed.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 after refresh, got %d body %s", rr.Code, rr.Body.String())
	}
	me := decodeBody[auth.Profile](t, rr)
	if me.Username != "alice" {
		t.Fatalf("unexpected profile: %+v", me)
	}
}
