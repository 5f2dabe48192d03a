// Package auth supplies bearer tokens for replayed backend requests.
//
// The queue daemon never performs a login itself: the host app's sign-in flow
// owns credentials and drops the current access token where the daemon can
// read it.
package auth

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/dmeireles/writeback/internal/errors"
)

// TokenSource supplies the bearer token attached to replayed requests.
// An empty token means requests go out unauthenticated.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Static always returns the same token. Useful for tests and API-key setups.
type Static struct {
	token string
}

// NewStatic creates a TokenSource around a fixed token.
func NewStatic(token string) *Static {
	return &Static{token: token}
}

// Token returns the configured token.
func (s *Static) Token(ctx context.Context) (string, error) {
	return s.token, nil
}

// DefaultRefreshSkew is how long before the exp claim a cached token is
// considered stale.
const DefaultRefreshSkew = 30 * time.Second

// File reads a bearer token from a file maintained by the host app. JWTs are
// cached until shortly before their exp claim; opaque tokens are re-read on
// every call so rotations are picked up immediately.
type File struct {
	path string
	skew time.Duration

	mu         sync.Mutex
	token      string
	validUntil time.Time
}

// NewFile creates a TokenSource reading from path.
func NewFile(path string) *File {
	return &File{path: path, skew: DefaultRefreshSkew}
}

// Token returns the cached token, re-reading the file when the cache is
// stale or was never populated.
func (f *File) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.token != "" && time.Now().Before(f.validUntil) {
		return f.token, nil
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrAuth, "failed to read token file", err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", apperrors.New(apperrors.ErrAuth, "token file is empty")
	}

	f.token = token
	if exp, ok := expiryOf(token); ok {
		f.validUntil = exp.Add(-f.skew)
	} else {
		// Opaque token: no exp to key the cache off, re-read next call.
		f.validUntil = time.Time{}
	}
	return token, nil
}

// expiryOf introspects the exp claim without verifying the signature. The
// backend is the verifier; this only decides refresh timing.
func expiryOf(token string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
