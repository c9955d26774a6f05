package auth

import (
	"context"
	"fmt"
	"strconv"

	"moneta.app/internal/obs"
)

// Logical table names of the token cache.
const (
	TokensTable        = "tokens"        // userId -> live token
	InvalidTokensTable = "invalidTokens" // token -> blacklist marker
)

const blacklistMarker = "1"

// Table is one key-value table of the token cache backend.
type Table interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Swapper is implemented by tables that can replace a value and return the
// previous one in a single step.
type Swapper interface {
	Swap(ctx context.Context, key, value string) (old string, existed bool, err error)
}

// Backend hands out cache tables. Table returns nil when the named table has
// not been provisioned.
type Backend interface {
	Table(name string) Table
}

// SessionCache is what the token service needs from the cache.
type SessionCache interface {
	StoreTokenForUser(ctx context.Context, userID int64, token string) error
	IsTokenValid(ctx context.Context, token string) bool
}

// TokenCache enforces one live token per user on top of two tables.
type TokenCache struct {
	backend Backend
}

func NewTokenCache(backend Backend) *TokenCache {
	return &TokenCache{backend: backend}
}

func (c *TokenCache) table(name string) Table {
	if c == nil || c.backend == nil {
		return nil
	}
	return c.backend.Table(name)
}

// StoreTokenForUser records token as the live token of userID. A previous
// live token is blacklisted before the mapping is overwritten. Non-positive
// ids and empty tokens are ignored.
func (c *TokenCache) StoreTokenForUser(ctx context.Context, userID int64, token string) error {
	if userID <= 0 || token == "" {
		return nil
	}
	tokens, invalid := c.table(TokensTable), c.table(InvalidTokensTable)
	if tokens == nil || invalid == nil {
		return ErrCacheUnavailable
	}
	key := userKey(userID)

	prev, ok, err := tokens.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if ok && prev != token {
		if err := invalid.Put(ctx, prev, blacklistMarker); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}

	sw, atomic := tokens.(Swapper)
	if !atomic {
		if err := tokens.Put(ctx, key, token); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
		return nil
	}
	// A concurrent login may have stored its token between Get and Swap;
	// whatever we displace must not stay usable.
	displaced, existed, err := sw.Swap(ctx, key, token)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if existed && displaced != prev && displaced != token {
		if err := invalid.Put(ctx, displaced, blacklistMarker); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
		}
	}
	return nil
}

// IsTokenValid reports whether token has not been blacklisted. It fails
// closed: a missing table or a lookup error yields false.
func (c *TokenCache) IsTokenValid(ctx context.Context, token string) bool {
	if token == "" {
		return false
	}
	if c.table(TokensTable) == nil {
		return false
	}
	invalid := c.table(InvalidTokensTable)
	if invalid == nil {
		obs.Error("token_blacklist_unavailable", map[string]any{"table": InvalidTokensTable})
		return false
	}
	_, blacklisted, err := invalid.Get(ctx, token)
	if err != nil {
		obs.Error("token_blacklist_lookup_failed", map[string]any{"table": InvalidTokensTable, "err": err})
		return false
	}
	return !blacklisted
}

// InvalidateUserToken blacklists and evicts the live token of userID.
// Nothing happens when the user has no live token.
func (c *TokenCache) InvalidateUserToken(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return nil
	}
	tokens, invalid := c.table(TokensTable), c.table(InvalidTokensTable)
	if tokens == nil || invalid == nil {
		return ErrCacheUnavailable
	}
	key := userKey(userID)
	current, ok, err := tokens.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if !ok {
		return nil
	}
	if err := invalid.Put(ctx, current, blacklistMarker); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	if err := tokens.Delete(ctx, key); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// Revoke blacklists one specific token, typically the one that
// authenticated the current request.
func (c *TokenCache) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	invalid := c.table(InvalidTokensTable)
	if invalid == nil {
		return ErrCacheUnavailable
	}
	if err := invalid.Put(ctx, token, blacklistMarker); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return nil
}

// CurrentToken returns the live token stored for userID.
func (c *TokenCache) CurrentToken(ctx context.Context, userID int64) (string, bool, error) {
	tokens := c.table(TokensTable)
	if tokens == nil {
		return "", false, ErrCacheUnavailable
	}
	return tokens.Get(ctx, userKey(userID))
}

func userKey(id int64) string {
	return strconv.FormatInt(id, 10)
}
