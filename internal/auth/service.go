package auth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"shelfd.org/internal/ids"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour

	minPasswordLength = 8
)

// Service orchestrates credential verification and token issuance: the
// register, login and refresh flows.
type Service struct {
	store      Store
	codec      *Codec
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service)

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// NewService constructs the authenticator.
func NewService(store Store, codec *Codec, opts ...ServiceOption) *Service {
	svc := &Service{
		store:      store,
		codec:      codec,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// RegisterRequest carries the registration fields. All but FirstName and
// LastName are required.
type RegisterRequest struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Session is the result of a successful login or refresh: a fresh token pair
// plus the account summary, with roles snapshotted at issuance time.
type Session struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
	UserID           string
	Username         string
	Email            string
	Roles            []string
}

// Register creates an account with the default USER role. Duplicate username
// or email yields ErrConflict; the store's uniqueness constraint backs the
// optimistic pre-check, so a registration race still conflicts rather than
// duplicating.
func (s *Service) Register(ctx context.Context, req RegisterRequest) (Profile, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Username == "" || req.Email == "" {
		return Profile{}, fmt.Errorf("%w: username and email are required", ErrInvalidInput)
	}
	if len(req.Password) < minPasswordLength {
		return Profile{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}

	users := s.store.Users()
	if exists, err := users.ExistsByUsername(ctx, req.Username); err != nil {
		return Profile{}, err
	} else if exists {
		return Profile{}, fmt.Errorf("%w: username %s", ErrConflict, req.Username)
	}
	if exists, err := users.ExistsByEmail(ctx, req.Email); err != nil {
		return Profile{}, err
	} else if exists {
		return Profile{}, fmt.Errorf("%w: email %s", ErrConflict, req.Email)
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return Profile{}, err
	}
	if _, err := s.store.Roles().Ensure(ctx, RoleUser, "Default user role"); err != nil {
		return Profile{}, err
	}

	now := time.Now().UTC()
	user := &User{
		ID:           ids.New(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Active:       true,
		Roles:        []string{RoleUser},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := users.Create(ctx, user); err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// Login verifies credentials and issues an access/refresh token pair bound to
// the role set at login time. Every credential failure maps to the same
// ErrUnauthorized so the response does not disclose which field was wrong.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return Session{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByUsername(ctx, username)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	if !user.Active {
		return Session{}, ErrUnauthorized
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return Session{}, ErrUnauthorized
	}
	return s.issuePair(user)
}

// Refresh exchanges a valid refresh token for a fresh pair. The role set is
// reloaded from the store rather than taken from the old token: this
// re-authorization on every refresh is how role changes reach long-lived
// sessions. Any verification failure or a vanished/inactive subject maps to
// ErrUnauthorized.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	claims, err := s.codec.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	user, err := s.store.Users().FindByUsername(ctx, claims.Subject)
	if err != nil {
		return Session{}, ErrUnauthorized
	}
	if !user.Active {
		return Session{}, ErrUnauthorized
	}
	return s.issuePair(user)
}

// ResolvePrincipal validates an access token and loads the current principal
// by subject. Token errors pass through unwrapped so the caller can log the
// rejection reason; a missing or inactive subject maps to ErrNotFound.
func (s *Service) ResolvePrincipal(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.codec.Verify(accessToken, TokenKindAccess)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.store.Users().FindByUsername(ctx, claims.Subject)
	if err != nil {
		return Principal{}, err
	}
	if !user.Active {
		return Principal{}, ErrNotFound
	}
	return PrincipalFromUser(user), nil
}

// PeekSubject reports the unverified subject of a token, for log context on
// rejected requests. Never use the result for authorization.
func (s *Service) PeekSubject(token string) string {
	return s.codec.PeekSubject(token)
}

func (s *Service) issuePair(user *User) (Session, error) {
	access, accessExp, err := s.codec.Issue(user.Username, user.Roles, TokenKindAccess, s.accessTTL)
	if err != nil {
		return Session{}, err
	}
	refresh, refreshExp, err := s.codec.Issue(user.Username, user.Roles, TokenKindRefresh, s.refreshTTL)
	if err != nil {
		return Session{}, err
	}
	roles := make([]string, len(user.Roles))
	copy(roles, user.Roles)
	return Session{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
		UserID:           user.ID,
		Username:         user.Username,
		Email:            user.Email,
		Roles:            roles,
	}, nil
}
