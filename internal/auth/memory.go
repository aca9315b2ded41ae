package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"shelfd.org/internal/ids"
)

// InMemoryStore implements Store with in-process concurrency safety. It backs
// development mode and tests; production deployments use the Postgres store.
type InMemoryStore struct {
	mu      sync.RWMutex
	users   map[string]*User // keyed by id
	byName  map[string]string
	byEmail map[string]string
	roles   map[string]Role // keyed by upper-cased name
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:   make(map[string]*User),
		byName:  make(map[string]string),
		byEmail: make(map[string]string),
		roles:   make(map[string]Role),
	}
}

func (s *InMemoryStore) Users() UserStore { return (*memUserStore)(s) }
func (s *InMemoryStore) Roles() RoleStore { return (*memRoleStore)(s) }

type memUserStore InMemoryStore

func (s *memUserStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = ids.New()
	}
	nameKey := strings.ToLower(u.Username)
	emailKey := strings.ToLower(u.Email)
	if _, ok := s.byName[nameKey]; ok {
		return fmt.Errorf("%w: username %s", ErrConflict, u.Username)
	}
	if _, ok := s.byEmail[emailKey]; ok {
		return fmt.Errorf("%w: email %s", ErrConflict, u.Email)
	}
	cp := cloneUser(u)
	s.users[u.ID] = cp
	s.byName[nameKey] = u.ID
	s.byEmail[emailKey] = u.ID
	return nil
}

func (s *memUserStore) FindByID(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *memUserStore) FindByUsername(ctx context.Context, username string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byName[strings.ToLower(username)]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(s.users[id]), nil
}

func (s *memUserStore) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byName[strings.ToLower(username)]
	return ok, nil
}

func (s *memUserStore) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byEmail[strings.ToLower(email)]
	return ok, nil
}

func (s *memUserStore) List(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(*User) bool { return true }), nil
}

func (s *memUserStore) ListPage(ctx context.Context, offset, limit int) ([]*User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.collect(func(*User) bool { return true })
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *memUserStore) ListActive(ctx context.Context) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(u *User) bool { return u.Active }), nil
}

func (s *memUserStore) SearchByName(ctx context.Context, name string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	needle := strings.ToLower(strings.TrimSpace(name))
	return s.collect(func(u *User) bool {
		return strings.Contains(strings.ToLower(u.FirstName), needle) ||
			strings.Contains(strings.ToLower(u.LastName), needle) ||
			strings.Contains(strings.ToLower(u.Username), needle)
	}), nil
}

func (s *memUserStore) ListByRole(ctx context.Context, role string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(u *User) bool {
		for _, r := range u.Roles {
			if strings.EqualFold(r, role) {
				return true
			}
		}
		return false
	}), nil
}

func (s *memUserStore) ListCreatedBetween(ctx context.Context, from, to time.Time) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.collect(func(u *User) bool {
		return !u.CreatedAt.Before(from) && !u.CreatedAt.After(to)
	}), nil
}

func (s *memUserStore) CountActive(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, u := range s.users {
		if u.Active {
			n++
		}
	}
	return n, nil
}

func (s *memUserStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *memUserStore) Update(ctx context.Context, id string, upd UserUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if upd.Email != nil {
		email := strings.TrimSpace(strings.ToLower(*upd.Email))
		if owner, taken := s.byEmail[email]; taken && owner != id {
			return nil, fmt.Errorf("%w: email %s", ErrConflict, email)
		}
		delete(s.byEmail, strings.ToLower(u.Email))
		u.Email = email
		s.byEmail[email] = id
	}
	if upd.FirstName != nil {
		u.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		u.LastName = strings.TrimSpace(*upd.LastName)
	}
	u.UpdatedAt = time.Now().UTC()
	return cloneUser(u), nil
}

func (s *memUserStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Active = active
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// collect returns matching users ordered by creation time. Callers hold the lock.
func (s *memUserStore) collect(match func(*User) bool) []*User {
	var out []*User
	for _, u := range s.users {
		if match(u) {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

type memRoleStore InMemoryStore

func (s *memRoleStore) Ensure(ctx context.Context, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToUpper(name)
	if role, ok := s.roles[key]; ok {
		return role, nil
	}
	role := Role{
		ID:          ids.New(),
		Name:        name,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}
	s.roles[key] = role
	return role, nil
}

func (s *memRoleStore) ForUser(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	roles := make([]string, len(u.Roles))
	copy(roles, u.Roles)
	return roles, nil
}

func cloneUser(u *User) *User {
	cp := *u
	cp.Roles = make([]string, len(u.Roles))
	copy(cp.Roles, u.Roles)
	return &cp
}
