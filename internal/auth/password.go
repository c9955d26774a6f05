package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"
	"golang.org/x/crypto/bcrypt"
)

var errEmptyPassword = errors.New("password is empty")

// Hasher turns a plaintext password into a storable one-way hash and checks
// candidates against it.
type Hasher interface {
	Hash(plain string) (string, error)
	Verify(hash, plain string) (bool, error)
}

// NewHasher returns the hasher registered under name ("bcrypt" or "argon2id").
func NewHasher(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "bcrypt":
		return BcryptHasher{Cost: bcrypt.DefaultCost}, nil
	case "argon2id":
		return NewArgon2Hasher(nil), nil
	}
	return nil, fmt.Errorf("%w: unknown password hasher %q", ErrInvalidInput, name)
}

// BcryptHasher hashes with bcrypt at the configured cost.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errEmptyPassword
	}
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (h BcryptHasher) Verify(hash, plain string) (bool, error) {
	if hash == "" {
		return false, errors.New("password hash is empty")
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Argon2Hasher produces $argon2id$v=19$m=...$ encoded hashes.
type Argon2Hasher struct {
	params *argon2id.Params
}

// NewArgon2Hasher uses argon2id.DefaultParams when p is nil.
func NewArgon2Hasher(p *argon2id.Params) *Argon2Hasher {
	if p == nil {
		p = argon2id.DefaultParams
	}
	return &Argon2Hasher{params: p}
}

func (h *Argon2Hasher) Hash(plain string) (string, error) {
	if plain == "" {
		return "", errEmptyPassword
	}
	return argon2id.CreateHash(plain, h.params)
}

func (h *Argon2Hasher) Verify(hash, plain string) (bool, error) {
	if hash == "" {
		return false, errors.New("password hash is empty")
	}
	return argon2id.ComparePasswordAndHash(plain, hash)
}
