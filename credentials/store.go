// Package credentials persists the session's credential material (token,
// email, password, user id) across process restarts. The session manager is
// the only reader and writer of the reserved keys.
package credentials

import (
	"context"
	"errors"
)

// Reserved keys written by the session manager.
const (
	KeyToken    = "token"
	KeyEmail    = "email"
	KeyPassword = "password"
	KeyUserID   = "user_id"
)

// ErrNotFound indicates the requested key has no persisted value.
var ErrNotFound = errors.New("credential not found")

// Store is a key-value persistence collaborator surviving process restarts.
// Delete of a missing key is a no-op.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}
