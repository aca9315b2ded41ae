package auth

import (
	"context"
	"errors"
	"testing"
)

func seedUser(t *testing.T, store *InMemoryStore, username, email string) *User {
	t.Helper()
	u := &User{
		Username: username,
		Email:    email,
		Active:   true,
		Roles:    []string{RoleUser},
	}
	if err := store.Users().Create(context.Background(), u); err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return u
}

func TestMemoryUpdateNormalizesEmail(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	u := seedUser(t, store, "alice", "alice@example.com")

	email := "  Alice.New@Example.COM  "
	updated, err := store.Users().Update(ctx, u.ID, UserUpdate{Email: &email})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Email != "alice.new@example.com" {
		t.Fatalf("expected normalized email, got %q", updated.Email)
	}

	// the index follows the stored value
	if ok, _ := store.Users().ExistsByEmail(ctx, "alice.new@example.com"); !ok {
		t.Fatalf("updated email not indexed")
	}
	if ok, _ := store.Users().ExistsByEmail(ctx, "alice@example.com"); ok {
		t.Fatalf("old email still indexed")
	}

	other := seedUser(t, store, "bob", "bob@example.com")
	taken := "alice.new@example.com"
	if _, err := store.Users().Update(ctx, other.ID, UserUpdate{Email: &taken}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for taken email, got %v", err)
	}
}
