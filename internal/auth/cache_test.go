package auth

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"moneta.app/internal/obs"
)

func TestStoreTokenForUserIgnoresMissingArguments(t *testing.T) {
	backend := NewMemoryBackend()
	cache := NewTokenCache(backend)
	ctx := context.Background()

	if err := cache.StoreTokenForUser(ctx, 0, "token"); err != nil {
		t.Fatalf("zero user id: %v", err)
	}
	if err := cache.StoreTokenForUser(ctx, 7, ""); err != nil {
		t.Fatalf("empty token: %v", err)
	}
	if n := backend.Len(TokensTable); n != 0 {
		t.Fatalf("tokens table has %d entries, want 0", n)
	}
	if n := backend.Len(InvalidTokensTable); n != 0 {
		t.Fatalf("invalidTokens table has %d entries, want 0", n)
	}
}

func TestStoreTokenForUserBlacklistsPrevious(t *testing.T) {
	backend := NewMemoryBackend()
	cache := NewTokenCache(backend)
	ctx := context.Background()

	if err := cache.StoreTokenForUser(ctx, 1, "t1"); err != nil {
		t.Fatal(err)
	}
	if err := cache.StoreTokenForUser(ctx, 1, "t2"); err != nil {
		t.Fatal(err)
	}
	if cache.IsTokenValid(ctx, "t1") {
		t.Fatal("t1 should be blacklisted")
	}
	if !cache.IsTokenValid(ctx, "t2") {
		t.Fatal("t2 should be live")
	}
	current, ok, err := cache.CurrentToken(ctx, 1)
	if err != nil || !ok || current != "t2" {
		t.Fatalf("current = %q %v %v", current, ok, err)
	}

	// Re-storing the live token must not blacklist it.
	if err := cache.StoreTokenForUser(ctx, 1, "t2"); err != nil {
		t.Fatal(err)
	}
	if !cache.IsTokenValid(ctx, "t2") {
		t.Fatal("re-stored token became invalid")
	}
}

func TestInvalidateUserTokenWithoutLiveTokenIsNoop(t *testing.T) {
	backend := NewMemoryBackend()
	cache := NewTokenCache(backend)

	if err := cache.InvalidateUserToken(context.Background(), 99); err != nil {
		t.Fatalf("InvalidateUserToken: %v", err)
	}
	if backend.Len(TokensTable) != 0 || backend.Len(InvalidTokensTable) != 0 {
		t.Fatal("no-op invalidation mutated the cache")
	}
}

func TestInvalidateUserTokenEvictsAndBlacklists(t *testing.T) {
	backend := NewMemoryBackend()
	cache := NewTokenCache(backend)
	ctx := context.Background()

	_ = cache.StoreTokenForUser(ctx, 5, "live")
	if err := cache.InvalidateUserToken(ctx, 5); err != nil {
		t.Fatal(err)
	}
	if cache.IsTokenValid(ctx, "live") {
		t.Fatal("invalidated token still valid")
	}
	if _, ok, _ := cache.CurrentToken(ctx, 5); ok {
		t.Fatal("user mapping not evicted")
	}
}

func TestRevokeBlacklistsSpecificToken(t *testing.T) {
	cache := NewTokenCache(NewMemoryBackend())
	ctx := context.Background()

	if err := cache.Revoke(ctx, "abc"); err != nil {
		t.Fatal(err)
	}
	if cache.IsTokenValid(ctx, "abc") {
		t.Fatal("revoked token still valid")
	}
	if err := cache.Revoke(ctx, ""); err != nil {
		t.Fatalf("empty revoke: %v", err)
	}
}

func TestIsTokenValidEmptyToken(t *testing.T) {
	cache := NewTokenCache(NewMemoryBackend())
	if cache.IsTokenValid(context.Background(), "") {
		t.Fatal("empty token must be invalid")
	}
}

func TestIsTokenValidMissingLiveTable(t *testing.T) {
	cache := NewTokenCache(NewMemoryBackend(InvalidTokensTable))
	if cache.IsTokenValid(context.Background(), "anything") {
		t.Fatal("missing tokens table must report invalid")
	}
	var nilCache *TokenCache
	if nilCache.IsTokenValid(context.Background(), "anything") {
		t.Fatal("nil cache must report invalid")
	}
}

type brokenTable struct{}

func (brokenTable) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("connection refused")
}
func (brokenTable) Put(context.Context, string, string) error { return errors.New("connection refused") }
func (brokenTable) Delete(context.Context, string) error      { return errors.New("connection refused") }

type brokenBlacklist struct{ live Table }

func (b brokenBlacklist) Table(name string) Table {
	if name == TokensTable {
		return b.live
	}
	return brokenTable{}
}

func TestIsTokenValidFailsClosedAndLogs(t *testing.T) {
	l := obs.Logger()
	orig := l.Writer()
	var buf bytes.Buffer
	l.SetOutput(&buf)
	defer l.SetOutput(orig)

	cache := NewTokenCache(brokenBlacklist{live: NewMemoryBackend().Table(TokensTable)})
	if cache.IsTokenValid(context.Background(), "t") {
		t.Fatal("lookup error must deny")
	}
	if !strings.Contains(buf.String(), "token_blacklist_lookup_failed") {
		t.Fatalf("expected error log, got %q", buf.String())
	}
	if err := cache.StoreTokenForUser(context.Background(), 1, "t"); err != nil {
		t.Fatalf("first store has nothing to blacklist: %v", err)
	}
	if err := cache.InvalidateUserToken(context.Background(), 1); !errors.Is(err, ErrCacheUnavailable) {
		t.Fatalf("got %v, want ErrCacheUnavailable", err)
	}
}

func TestConcurrentLoginsLeaveOneLiveToken(t *testing.T) {
	cache := NewTokenCache(NewMemoryBackend())
	ctx := context.Background()

	tokens := make([]string, 50)
	for i := range tokens {
		tokens[i] = "tok-" + strings.Repeat("x", i+1)
	}
	var wg sync.WaitGroup
	for _, tok := range tokens {
		wg.Add(1)
		go func(tok string) {
			defer wg.Done()
			_ = cache.StoreTokenForUser(ctx, 77, tok)
		}(tok)
	}
	wg.Wait()

	live := 0
	for _, tok := range tokens {
		if cache.IsTokenValid(ctx, tok) {
			live++
		}
	}
	if live != 1 {
		t.Fatalf("%d tokens still valid, want exactly 1", live)
	}
	current, _, _ := cache.CurrentToken(ctx, 77)
	if !cache.IsTokenValid(ctx, current) {
		t.Fatal("the stored token must be the valid one")
	}
}
