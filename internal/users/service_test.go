package users

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"moneta.app/internal/auth"
	"moneta.app/internal/paging"
)

type fixture struct {
	svc    *Service
	store  *InMemory
	tokens *auth.TokenService
	cache  *auth.TokenCache
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	cache := auth.NewTokenCache(auth.NewMemoryBackend())
	tokens, err := auth.NewTokenService(strings.Repeat("k", auth.MinSecretBytes), time.Minute, cache)
	require.NoError(t, err)
	store := NewInMemory()
	svc := NewService(store, auth.BcryptHasher{Cost: bcrypt.MinCost}, tokens, cache)
	return fixture{svc: svc, store: store, tokens: tokens, cache: cache}
}

func (f fixture) register(t *testing.T, email string) User {
	t.Helper()
	u, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: "password123", Name: "Test"})
	require.NoError(t, err)
	return u
}

func TestRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	u := f.register(t, "  Alice@Example.COM ")
	assert.Equal(t, "alice@example.com", u.Email)
	assert.Equal(t, auth.RoleUser, u.Role)
	assert.Equal(t, int64(1), u.Version)
	assert.NotEqual(t, "password123", u.PasswordHash)

	_, err := f.svc.Register(ctx, RegisterInput{Email: "alice@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrEmailTaken)

	token, got, err := f.svc.Login(ctx, "ALICE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	id, err := f.tokens.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id.UserID)
	assert.Equal(t, auth.RoleUser, id.Role)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Email: "not-an-email", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@b.c", Password: "short"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@b.c", Password: "password123", Name: strings.Repeat("n", MaxNameLen+1)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLoginFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "bob@example.com")

	_, _, err := f.svc.Login(ctx, "nobody@example.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, _, err = f.svc.Login(ctx, "bob@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.SetBlocked(ctx, u.ID, true, u.Version)
	require.NoError(t, err)
	_, _, err = f.svc.Login(ctx, "bob@example.com", "password123")
	assert.ErrorIs(t, err, ErrBlocked)
}

func TestSecondLoginSupersedesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "carol@example.com")

	first, _, err := f.svc.Login(ctx, "carol@example.com", "password123")
	require.NoError(t, err)
	second, _, err := f.svc.Login(ctx, "carol@example.com", "password123")
	require.NoError(t, err)

	_, err = f.tokens.Validate(ctx, first)
	assert.ErrorIs(t, err, auth.ErrStaleSession)
	_, err = f.tokens.Validate(ctx, second)
	assert.NoError(t, err)
}

func TestAdminChangesInvalidateSession(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "dave@example.com")
	admin, err := f.svc.EnsureAdmin(context.Background(), "root@example.com", "rootpassword")
	require.NoError(t, err)
	adminCtx := auth.ContextWithIdentity(context.Background(), admin.Identity())

	token, _, err := f.svc.Login(context.Background(), "dave@example.com", "password123")
	require.NoError(t, err)

	promoted, err := f.svc.SetRole(adminCtx, u.ID, auth.RoleAdmin, u.Version)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, promoted.Role)
	assert.Equal(t, u.Version+1, promoted.Version)

	_, err = f.tokens.Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrStaleSession)

	_, err = f.svc.SetRole(adminCtx, u.ID, auth.RoleUser, u.Version)
	assert.ErrorIs(t, err, ErrVersionConflict, "stale version must be rejected")

	_, err = f.svc.SetRole(adminCtx, u.ID, auth.Role("ROOT"), promoted.Version)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SetBlocked(adminCtx, admin.ID, true, admin.Version)
	assert.ErrorIs(t, err, ErrInvalidInput, "admins cannot block themselves")
}

func TestLogoutRevokesRequestToken(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "erin@example.com")

	token, _, err := f.svc.Login(context.Background(), "erin@example.com", "password123")
	require.NoError(t, err)

	ctx := auth.ContextWithIdentity(context.Background(), u.Identity())
	ctx = auth.ContextWithToken(ctx, token)
	require.NoError(t, f.svc.Logout(ctx))

	_, err = f.tokens.Validate(context.Background(), token)
	assert.ErrorIs(t, err, auth.ErrStaleSession)
	_, ok, _ := f.cache.CurrentToken(context.Background(), u.ID)
	assert.False(t, ok)

	assert.ErrorIs(t, f.svc.Logout(context.Background()), auth.ErrUnauthenticated)
}

func TestUpdateProfileOptimisticLock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "frank@example.com")

	updated, err := f.svc.UpdateProfile(ctx, u.ID, "Frank", u.Version)
	require.NoError(t, err)
	assert.Equal(t, "Frank", updated.Name)
	assert.Equal(t, int64(2), updated.Version)

	_, err = f.svc.UpdateProfile(ctx, u.ID, "Frankie", u.Version)
	assert.ErrorIs(t, err, ErrVersionConflict)

	_, err = f.svc.UpdateProfile(ctx, 999, "Ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentUpdatesOnlyOneWins(t *testing.T) {
	f := newFixture(t)
	u := f.register(t, "gina@example.com")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		conflicts int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.UpdateUser(context.Background(), User{ID: u.ID, Email: u.Email, Name: "x"}, u.Version)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, ErrVersionConflict) {
				conflicts++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 19, conflicts)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "hank@example.com")
	token, _, err := f.svc.Login(ctx, "hank@example.com", "password123")
	require.NoError(t, err)

	_, err = f.svc.ChangePassword(ctx, u.ID, "wrong-password", "newpassword1", u.Version)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.tokens.Validate(ctx, token)
	assert.NoError(t, err, "a rejected change keeps the session")

	_, err = f.svc.ChangePassword(ctx, u.ID, "password123", "newpassword1", u.Version)
	require.NoError(t, err)

	_, err = f.tokens.Validate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrStaleSession)
	_, _, err = f.svc.Login(ctx, "hank@example.com", "newpassword1")
	assert.NoError(t, err)
}

// failingSessions fails InvalidateUserToken on the given call numbers,
// counting from 1.
type failingSessions struct {
	Sessions
	mu     sync.Mutex
	calls  int
	failOn map[int]bool
}

func (s *failingSessions) InvalidateUserToken(ctx context.Context, userID int64) error {
	s.mu.Lock()
	s.calls++
	fail := s.failOn[s.calls]
	s.mu.Unlock()
	if fail {
		return auth.ErrCacheUnavailable
	}
	return s.Sessions.InvalidateUserToken(ctx, userID)
}

func (f fixture) withSessions(sessions Sessions) *Service {
	return NewService(f.store, auth.BcryptHasher{Cost: bcrypt.MinCost}, f.tokens, sessions)
}

func TestCacheOutageRejectsChangeBeforeWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "ivan@example.com")
	token, _, err := f.svc.Login(ctx, "ivan@example.com", "password123")
	require.NoError(t, err)

	svc := f.withSessions(&failingSessions{Sessions: f.cache, failOn: map[int]bool{1: true}})
	_, err = svc.SetRole(ctx, u.ID, auth.RoleAdmin, u.Version)
	assert.ErrorIs(t, err, auth.ErrCacheUnavailable)

	stored, err := f.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, stored.Role)
	assert.Equal(t, u.Version, stored.Version, "nothing is persisted")
	_, err = f.tokens.Validate(ctx, token)
	assert.NoError(t, err)

	svc = f.withSessions(&failingSessions{Sessions: f.cache, failOn: map[int]bool{1: true}})
	_, err = svc.ChangePassword(ctx, u.ID, "password123", "newpassword1", u.Version)
	assert.ErrorIs(t, err, auth.ErrCacheUnavailable)
	_, _, err = f.svc.Login(ctx, "ivan@example.com", "password123")
	assert.NoError(t, err, "old password still works")
}

func TestCacheOutageAfterWriteKeepsChange(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.register(t, "judy@example.com")
	token, _, err := f.svc.Login(ctx, "judy@example.com", "password123")
	require.NoError(t, err)

	svc := f.withSessions(&failingSessions{Sessions: f.cache, failOn: map[int]bool{2: true}})
	blocked, err := svc.SetBlocked(ctx, u.ID, true, u.Version)
	require.NoError(t, err)
	assert.True(t, blocked.Blocked)
	assert.Equal(t, u.Version+1, blocked.Version)

	_, err = f.tokens.Validate(ctx, token)
	assert.ErrorIs(t, err, auth.ErrStaleSession, "the session ended before the write")
}

func TestListAndEnsureAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, e := range []string{"a@x.io", "b@x.io", "c@x.io"} {
		f.register(t, e)
	}

	page, err := f.svc.List(ctx, paging.Request{Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "c@x.io", page.Items[0].Email)

	promoted, err := f.svc.EnsureAdmin(ctx, "b@x.io", "ignored-password")
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, promoted.Role)

	again, err := f.svc.EnsureAdmin(ctx, "b@x.io", "ignored-password")
	require.NoError(t, err)
	assert.Equal(t, promoted.Version, again.Version, "second call is a no-op")

	email, err := f.svc.EmailFor(ctx, promoted.ID)
	require.NoError(t, err)
	assert.Equal(t, "b@x.io", email)
}
