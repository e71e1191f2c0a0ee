package auth

import (
	"context"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// InternalAuthenticator verifies passwords against locally stored hashes.
// bcrypt is the current scheme; salted SHA-512 hashes from older accounts
// are still accepted so existing users can log in before their hash is
// upgraded on next password change.
type InternalAuthenticator struct{}

// NewInternalAuthenticator creates the internal password authenticator.
func NewInternalAuthenticator() *InternalAuthenticator {
	return &InternalAuthenticator{}
}

// AuthenticateUserAccount checks a plaintext password against the stored
// hash. A mismatch is a plain false, never an error.
func (a *InternalAuthenticator) AuthenticateUserAccount(ctx context.Context, creds Credentials, secret string) (bool, error) {
	if creds.PasswordHash == "" {
		// Account has no local credential; some other instance owns it.
		return false, ErrInstanceDeclined
	}

	if strings.HasPrefix(creds.PasswordHash, "$2") {
		err := bcrypt.CompareHashAndPassword([]byte(creds.PasswordHash), []byte(secret))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}

	// Legacy scheme: hex(sha512(salt + password)).
	sum := sha512.Sum512([]byte(creds.Salt + secret))
	computed := hex.EncodeToString(sum[:])
	match := subtle.ConstantTimeCompare([]byte(computed), []byte(creds.PasswordHash)) == 1
	return match, nil
}

// PostLogin is a no-op for internal accounts.
func (a *InternalAuthenticator) PostLogin(ctx context.Context, userID int64) error {
	return nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
