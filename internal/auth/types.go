package auth

import "time"

// Built-in role names. RoleUser is assigned to every account at registration,
// so a registered user's role set is never empty.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User is a stored account record. PasswordHash never leaves this package;
// external responses use Profile.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Active       bool
	Roles        []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Role groups users for coarse-grained authorization.
type Role struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
}

// Profile is the public projection of a User.
type Profile struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Active    bool      `json:"active"`
	Roles     []string  `json:"roles"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserUpdate carries mutable account fields; nil means keep current value.
type UserUpdate struct {
	Email     *string
	FirstName *string
	LastName  *string
}

func (u *User) Profile() Profile {
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return Profile{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Active:    u.Active,
		Roles:     roles,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}
