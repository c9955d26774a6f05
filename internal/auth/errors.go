package auth

import "errors"

// Token rejection kinds. Each one is a client error at the HTTP edge.
var (
	// ErrInvalidToken: the token cannot be parsed or its signature does not verify.
	ErrInvalidToken = errors.New("auth: invalid token")
	// ErrTokenExpired: the exp claim is in the past.
	ErrTokenExpired = errors.New("auth: token expired")
	// ErrStaleSession: the token was superseded or explicitly invalidated.
	ErrStaleSession = errors.New("auth: session is no longer active, re-authenticate")
)

var (
	ErrCacheUnavailable = errors.New("auth: token cache unavailable")
	ErrWeakSecret       = errors.New("auth: signing secret must be at least 64 bytes for HS512")
	ErrUnauthenticated  = errors.New("auth: unauthenticated")
	ErrForbidden        = errors.New("auth: forbidden")
	ErrInvalidInput     = errors.New("auth: invalid input")
)
