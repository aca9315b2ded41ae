package httpapi

import (
	"net/http"
	"testing"

	"shelfd.org/internal/auth"
)

func TestCurrentUserProfile(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")
	session := env.login(t, "alice")

	rr := env.do(t, http.MethodGet, "/users/me", session.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me: status %d", rr.Code)
	}
	me := decodeBody[auth.Profile](t, rr)
	if me.Username != "alice" || me.Email != "alice@example.com" {
		t.Fatalf("unexpected profile: %+v", me)
	}

	first := "Alice"
	rr = env.do(t, http.MethodPut, "/users/me", session.AccessToken, map[string]any{
		"firstName": first,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update me: status %d body %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[auth.Profile](t, rr); got.FirstName != first {
		t.Fatalf("first name not updated: %+v", got)
	}

	rr = env.do(t, http.MethodPut, "/users/me", session.AccessToken, map[string]any{})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty update, got %d", rr.Code)
	}
}

func TestUserResourceAccessControl(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@example.com")
	bob := env.register(t, "bob", "bob@example.com")
	aliceSession := env.login(t, "alice")

	// self read works
	rr := env.do(t, http.MethodGet, "/users/"+alice.ID, aliceSession.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("self read: status %d", rr.Code)
	}

	// reading another account requires ADMIN
	rr = env.do(t, http.MethodGet, "/users/"+bob.ID, aliceSession.AccessToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 reading another user, got %d", rr.Code)
	}

	admin := env.seedAdmin(t, "root")
	adminSession := env.login(t, admin.Username)
	rr = env.do(t, http.MethodGet, "/users/"+bob.ID, adminSession.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("admin read: status %d", rr.Code)
	}
}

func TestAdminUserListings(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "alice@example.com")
	env.register(t, "bob", "bob@example.com")
	aliceSession := env.login(t, "alice")

	admin := env.seedAdmin(t, "root")
	adminSession := env.login(t, admin.Username)

	// plain users are shut out of every admin listing
	for _, path := range []string{"/users", "/users/search?name=a", "/users/count", "/users/by-role?role=USER"} {
		rr := env.do(t, http.MethodGet, path, aliceSession.AccessToken, nil)
		if rr.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for plain user, got %d", path, rr.Code)
		}
	}

	rr := env.do(t, http.MethodGet, "/users?page=0&size=10", adminSession.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list users: status %d", rr.Code)
	}
	page := decodeBody[userPageResponse](t, rr)
	if page.TotalItems != 3 {
		t.Fatalf("expected 3 users, got %+v", page)
	}

	rr = env.do(t, http.MethodGet, "/users?active=true", adminSession.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("active users: status %d", rr.Code)
	}

	rr = env.do(t, http.MethodGet, "/users/search?name=ali", adminSession.AccessToken, nil)
	if got := decodeBody[[]auth.Profile](t, rr); len(got) != 1 || got[0].Username != "alice" {
		t.Fatalf("unexpected search results: %+v", got)
	}

	rr = env.do(t, http.MethodGet, "/users/count", adminSession.AccessToken, nil)
	counts := decodeBody[map[string]int64](t, rr)
	if counts["total"] != 3 || counts["active"] != 3 {
		t.Fatalf("unexpected counts: %v", counts)
	}

	rr = env.do(t, http.MethodGet, "/users/by-role?role=ADMIN", adminSession.AccessToken, nil)
	if got := decodeBody[[]auth.Profile](t, rr); len(got) != 1 || got[0].Username != "root" {
		t.Fatalf("unexpected by-role results: %+v", got)
	}
}

func TestActivateDeactivate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.register(t, "alice", "alice@example.com")
	aliceSession := env.login(t, "alice")

	admin := env.seedAdmin(t, "root")
	adminSession := env.login(t, admin.Username)

	// only admins flip account state
	rr := env.do(t, http.MethodPatch, "/users/"+alice.ID+"/deactivate", aliceSession.AccessToken, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for self-deactivate, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPatch, "/users/"+alice.ID+"/deactivate", adminSession.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("deactivate: status %d body %s", rr.Code, rr.Body.String())
	}
	if got := decodeBody[auth.Profile](t, rr); got.Active {
		t.Fatalf("expected inactive profile, got %+v", got)
	}

	// deactivated accounts cannot log in
	rr = env.do(t, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "alice", "password": "pw123456",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for deactivated login, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/users/"+alice.ID+"/activate", adminSession.AccessToken, nil)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPatch, "/users/"+alice.ID+"/activate", adminSession.AccessToken, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("activate: status %d", rr.Code)
	}
	if got := decodeBody[auth.Profile](t, rr); !got.Active {
		t.Fatalf("expected active profile, got %+v", got)
	}

	env.login(t, "alice")
}

func TestUnknownUser(t *testing.T) {
	env := newTestEnv(t)
	admin := env.seedAdmin(t, "root")
	adminSession := env.login(t, admin.Username)

	rr := env.do(t, http.MethodGet, "/users/missing-id", adminSession.AccessToken, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}
