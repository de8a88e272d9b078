// Package auth implements the share-password credential verifier consumed
// by the serving session's basic-auth middleware.
package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/lanshare/lanshare/internal/config"
)

// HashPassword returns a bcrypt digest suitable for AuthConfig.PasswordHash.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}

// Verifier checks credentials against the configured share password.
// A Verifier is immutable; the serving session swaps in a new one when
// the configuration changes.
type Verifier struct {
	enabled  bool
	username string
	hash     string
}

// NewVerifier builds a Verifier from the auth section of the config.
func NewVerifier(cfg config.AuthConfig) *Verifier {
	return &Verifier{
		enabled:  cfg.Enabled,
		username: cfg.Username,
		hash:     cfg.PasswordHash,
	}
}

// Enabled reports whether password protection is active. A nil Verifier
// behaves as disabled.
func (v *Verifier) Enabled() bool {
	return v != nil && v.enabled && v.hash != ""
}

// Verify checks a username/password pair. When protection is disabled it
// always succeeds.
func (v *Verifier) Verify(username, password string) bool {
	if !v.Enabled() {
		return true
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(v.username)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(v.hash), []byte(password)) == nil
	return userOK && passOK
}

// Username returns the configured username.
func (v *Verifier) Username() string {
	return v.username
}
