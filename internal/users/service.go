package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"moneta.app/internal/auth"
	"moneta.app/internal/obs"
	"moneta.app/internal/paging"
)

const (
	MinPasswordLen = 8
	MaxNameLen     = 120
)

// TokenIssuer mints a session token and makes it the user's live one.
type TokenIssuer interface {
	Issue(ctx context.Context, email string, roles []string, userID int64) (string, error)
}

// Sessions revokes live tokens.
type Sessions interface {
	InvalidateUserToken(ctx context.Context, userID int64) error
	Revoke(ctx context.Context, token string) error
}

// Service implements account operations on top of Store.
type Service struct {
	store    Store
	hasher   auth.Hasher
	tokens   TokenIssuer
	sessions Sessions
}

func NewService(store Store, hasher auth.Hasher, tokens TokenIssuer, sessions Sessions) *Service {
	return &Service{store: store, hasher: hasher, tokens: tokens, sessions: sessions}
}

// RegisterInput carries a self-registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
}

// Register creates a USER account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	return s.create(ctx, in, auth.RoleUser)
}

func (s *Service) create(ctx context.Context, in RegisterInput, role auth.Role) (User, error) {
	email := NormalizeEmail(in.Email)
	if !strings.Contains(email, "@") {
		return User{}, fmt.Errorf("%w: email is invalid", ErrInvalidInput)
	}
	if err := checkPassword(in.Password); err != nil {
		return User{}, err
	}
	name := strings.TrimSpace(in.Name)
	if utf8.RuneCountInString(name) > MaxNameLen {
		return User{}, fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}
	return s.store.CreateUser(ctx, User{
		Email:        email,
		PasswordHash: hash,
		Name:         name,
		Role:         role,
	})
}

// Login checks credentials and issues a session token. Any earlier token of
// the same user stops validating.
func (s *Service) Login(ctx context.Context, email, password string) (string, User, error) {
	u, err := s.store.UserByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrNotFound) {
		return "", User{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", User{}, err
	}
	ok, err := s.hasher.Verify(u.PasswordHash, password)
	if err != nil {
		return "", User{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return "", User{}, ErrInvalidCredentials
	}
	if u.Blocked {
		return "", User{}, ErrBlocked
	}
	token, err := s.tokens.Issue(ctx, u.Email, []string{string(u.Role)}, u.ID)
	if err != nil {
		return "", User{}, err
	}
	return token, u, nil
}

// Logout revokes the token that authenticated the request and evicts the
// caller's live token.
func (s *Service) Logout(ctx context.Context) error {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return auth.ErrUnauthenticated
	}
	if token, ok := auth.TokenFromContext(ctx); ok {
		if err := s.sessions.Revoke(ctx, token); err != nil {
			return err
		}
	}
	return s.sessions.InvalidateUserToken(ctx, id.UserID)
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.store.UserByID(ctx, id)
}

// EmailFor resolves a notification recipient.
func (s *Service) EmailFor(ctx context.Context, id int64) (string, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Email, nil
}

// UpdateProfile changes the display name.
func (s *Service) UpdateProfile(ctx context.Context, id int64, name string, version int64) (User, error) {
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxNameLen {
		return User{}, fmt.Errorf("%w: name is too long", ErrInvalidInput)
	}
	return s.mutate(ctx, id, version, func(u *User) error {
		u.Name = name
		return nil
	})
}

// ChangePassword replaces the password and ends the current session.
func (s *Service) ChangePassword(ctx context.Context, id int64, current, next string, version int64) (User, error) {
	if err := checkPassword(next); err != nil {
		return User{}, err
	}
	return s.mutateEndingSession(ctx, id, version, func(u *User) error {
		ok, err := s.hasher.Verify(u.PasswordHash, current)
		if err != nil {
			return fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return ErrInvalidCredentials
		}
		hash, err := s.hasher.Hash(next)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		u.PasswordHash = hash
		return nil
	})
}

// List returns one page of accounts ordered by id.
func (s *Service) List(ctx context.Context, req paging.Request) (paging.Result[User], error) {
	req = req.Normalize()
	items, total, err := s.store.ListUsers(ctx, req.Offset(), req.Limit())
	if err != nil {
		return paging.Result[User]{}, err
	}
	return paging.NewResult(items, req, total), nil
}

// SetRole changes a user's role. The user's live token is invalidated so
// the new role takes effect on the next login.
func (s *Service) SetRole(ctx context.Context, id int64, role auth.Role, version int64) (User, error) {
	if role != auth.RoleUser && role != auth.RoleAdmin {
		return User{}, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	if err := forbidSelf(ctx, id); err != nil {
		return User{}, err
	}
	return s.mutateEndingSession(ctx, id, version, func(u *User) error {
		u.Role = role
		return nil
	})
}

// SetBlocked blocks or unblocks a user and invalidates the user's live token.
func (s *Service) SetBlocked(ctx context.Context, id int64, blocked bool, version int64) (User, error) {
	if err := forbidSelf(ctx, id); err != nil {
		return User{}, err
	}
	return s.mutateEndingSession(ctx, id, version, func(u *User) error {
		u.Blocked = blocked
		return nil
	})
}

// EnsureAdmin creates the bootstrap administrator, or promotes the account
// if it already exists with another role.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) (User, error) {
	u, err := s.store.UserByEmail(ctx, NormalizeEmail(email))
	switch {
	case errors.Is(err, ErrNotFound):
		return s.create(ctx, RegisterInput{Email: email, Password: password, Name: "Administrator"}, auth.RoleAdmin)
	case err != nil:
		return User{}, err
	case u.Role == auth.RoleAdmin && !u.Blocked:
		return u, nil
	}
	u.Role = auth.RoleAdmin
	u.Blocked = false
	return s.store.UpdateUser(ctx, u, u.Version)
}

func (s *Service) mutate(ctx context.Context, id, version int64, apply func(*User) error) (User, error) {
	u, err := s.prepare(ctx, id, version, apply)
	if err != nil {
		return User{}, err
	}
	return s.store.UpdateUser(ctx, u, version)
}

// mutateEndingSession is mutate for changes that must end the user's live
// session. The token is invalidated before the write, so a cache outage
// rejects the change instead of persisting it behind an error. It is
// invalidated again after the write to drop a login that raced the change.
func (s *Service) mutateEndingSession(ctx context.Context, id, version int64, apply func(*User) error) (User, error) {
	u, err := s.prepare(ctx, id, version, apply)
	if err != nil {
		return User{}, err
	}
	if err := s.sessions.InvalidateUserToken(ctx, id); err != nil {
		return User{}, err
	}
	u, err = s.store.UpdateUser(ctx, u, version)
	if err != nil {
		return User{}, err
	}
	if err := s.sessions.InvalidateUserToken(ctx, id); err != nil {
		obs.Error("session_invalidation_failed", map[string]any{"user_id": id, "err": err})
	}
	return u, nil
}

// prepare loads the user at version and applies the change to a copy.
// UpdateUser rejects the copy if the stored version moved meanwhile.
func (s *Service) prepare(ctx context.Context, id, version int64, apply func(*User) error) (User, error) {
	u, err := s.store.UserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if u.Version != version {
		return User{}, ErrVersionConflict
	}
	if err := apply(&u); err != nil {
		return User{}, err
	}
	return u, nil
}

func forbidSelf(ctx context.Context, id int64) error {
	if caller, ok := auth.UserIDFromContext(ctx); ok && caller == id {
		return fmt.Errorf("%w: administrators cannot change their own role or block status", ErrInvalidInput)
	}
	return nil
}

func checkPassword(p string) error {
	if utf8.RuneCountInString(p) < MinPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, MinPasswordLen)
	}
	return nil
}

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
