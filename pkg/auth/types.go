package auth

import (
	"context"
	"errors"
	"fmt"
)

// Type identifies an authentication method.
type Type string

const (
	TypeInternal Type = "internal"
	TypeOIDC     Type = "oidc"
)

// Instance represents one configured authentication method bound to an
// institution.
type Instance struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Type         Type   `json:"type"`
	Institution  string `json:"institution"`
	ParentID     *int64 `json:"parent_id,omitempty"`
	Active       bool   `json:"active"`
	LoginMessage string `json:"login_message,omitempty"`
}

// Credentials carries the stored secret material an authenticator verifies
// against. Only the fields an authenticator needs, never the whole account.
type Credentials struct {
	UserID       int64
	Username     string
	PasswordHash string
	Salt         string
}

// ErrInstanceDeclined signals that an authenticator does not handle the
// presented account. It means "try the next instance", not "wrong password".
var ErrInstanceDeclined = errors.New("auth instance declined")

// Authenticator verifies presented credentials for one auth instance.
type Authenticator interface {
	// AuthenticateUserAccount checks secret against the stored credentials.
	// A false return with nil error is a plain credential mismatch.
	AuthenticateUserAccount(ctx context.Context, creds Credentials, secret string) (bool, error)

	// PostLogin runs after a successful authentication. Optional work such
	// as directory synchronization lives here; errors fail the login.
	PostLogin(ctx context.Context, userID int64) error
}

// UnknownInstanceError reports an auth instance id with no configuration row.
type UnknownInstanceError struct {
	ID int64
}

func (e *UnknownInstanceError) Error() string {
	return fmt.Sprintf("unknown auth instance %d", e.ID)
}

// IsUnknownInstance checks if an error is an unknown instance error.
func IsUnknownInstance(err error) bool {
	var target *UnknownInstanceError
	return errors.As(err, &target)
}
