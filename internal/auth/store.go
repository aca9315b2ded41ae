package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
// Implementations must enforce username/email uniqueness: a registration race
// surfaces as ErrConflict from Create, never as a silent duplicate.
type Store interface {
	Users() UserStore
	Roles() RoleStore
}

// UserStore manages account records. Find methods return users with their
// role names resolved.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	FindByID(ctx context.Context, id string) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]*User, error)
	ListPage(ctx context.Context, offset, limit int) ([]*User, int, error)
	ListActive(ctx context.Context) ([]*User, error)
	SearchByName(ctx context.Context, name string) ([]*User, error)
	ListByRole(ctx context.Context, role string) ([]*User, error)
	ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*User, error)
	CountActive(ctx context.Context) (int64, error)
	Update(ctx context.Context, id string, upd UserUpdate) (*User, error)
	SetActive(ctx context.Context, id string, active bool) error
	Count(ctx context.Context) (int64, error)
}

// RoleStore manages the role catalog. Ensure is an idempotent upsert: two
// concurrent calls for the same name both succeed and observe one role.
type RoleStore interface {
	Ensure(ctx context.Context, name, description string) (Role, error)
	ForUser(ctx context.Context, userID string) ([]string, error)
}
