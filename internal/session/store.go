package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"trid/internal/identity"
)

// ErrNoSession is returned when a request carries no usable session key.
var ErrNoSession = errors.New("no session")

// Store persists at most one identity per session key hash. Save must replace
// any previous record atomically: readers see either the old or the new record.
type Store interface {
	Load(ctx context.Context, keyHash string) (identity.Identity, bool, error)
	Save(ctx context.Context, keyHash string, id identity.Identity, expiresAt time.Time) error
	Delete(ctx context.Context, keyHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NewKey generates a cryptographically secure session key for the browser cookie.
func NewKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashKey returns the SHA-256 hash of the key as a hex string. Stores only ever see hashes.
func HashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
