package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"moneta.app/internal/ids"
	"moneta.app/internal/obs"
)

// MinSecretBytes is the smallest HS512 key accepted.
const MinSecretBytes = 64

// Claims is the session token payload: sub, roles, userId, iat, exp and a
// unique jti so that two tokens minted in the same second never collide.
type Claims struct {
	Roles  []string `json:"roles"`
	UserID int64    `json:"userId"`
	jwt.RegisteredClaims
}

// TokenService mints and validates session tokens and keeps the token cache
// in step with every issuance.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	cache  SessionCache
	now    func() time.Time
}

// TokenOption configures TokenService.
type TokenOption func(*TokenService) error

// WithClock overrides the time source.
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewTokenService fails when the secret is too short for HS512. The TTL is
// used as given; a non-positive TTL yields tokens that are already expired.
func NewTokenService(secret string, ttl time.Duration, cache SessionCache, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < MinSecretBytes {
		return nil, ErrWeakSecret
	}
	if cache == nil {
		return nil, errors.New("auth: token cache is required")
	}
	s := &TokenService{
		secret: []byte(secret),
		ttl:    ttl,
		cache:  cache,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// TTL is the configured token lifetime.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// Issue signs a token for the user and records it as the user's live token,
// superseding any earlier one.
func (s *TokenService) Issue(ctx context.Context, email string, roles []string, userID int64) (string, error) {
	now := s.now().UTC()
	claims := Claims{
		Roles:  dedupeRoles(roles),
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        ids.NewAt(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	if err := s.cache.StoreTokenForUser(ctx, userID, signed); err != nil {
		return "", err
	}
	obs.TokenIssued()
	return signed, nil
}

// Validate checks, in order: signature, expiry, cache liveness. An expired
// token is rejected before the cache is consulted.
func (s *TokenService) Validate(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		obs.TokenRejected("invalid")
		return Identity{}, ErrInvalidToken
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}), jwt.WithoutClaimsValidation())
	if err != nil {
		obs.TokenRejected("invalid")
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	validator := jwt.NewValidator(jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err := validator.Validate(claims); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			obs.TokenRejected("expired")
			return Identity{}, ErrTokenExpired
		}
		obs.TokenRejected("invalid")
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.UserID <= 0 || strings.TrimSpace(claims.Subject) == "" {
		obs.TokenRejected("invalid")
		return Identity{}, fmt.Errorf("%w: identity claims missing", ErrInvalidToken)
	}

	if !s.cache.IsTokenValid(ctx, token) {
		obs.TokenRejected("stale")
		return Identity{}, ErrStaleSession
	}

	id := Identity{UserID: claims.UserID, Email: claims.Subject}
	if len(claims.Roles) > 0 {
		id.Role = Role(claims.Roles[0])
	}
	return id, nil
}

// dedupeRoles drops blanks and repeats while keeping the original order,
// which matters because only the first role is consumed downstream.
func dedupeRoles(roles []string) []string {
	if len(roles) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	return out
}
