// Package session owns the client's single active session record: the
// access token, the refresh token and the privilege flag issued at login.
// All other packages read and write that record through a Store.
package session

import (
	"context"
	"errors"
	"time"
)

type State string

const (
	Anonymous     State = "anonymous"
	Authenticated State = "authenticated"
	Refreshing    State = "refreshing"
)

var ErrStoreUnavailable = errors.New("session store unavailable")

// Tokens is the persisted session record.
type Tokens struct {
	Access     string
	Refresh    string
	Privileged bool
}

func (t Tokens) Empty() bool {
	return t.Access == "" && t.Refresh == ""
}

// Event reports a session state transition to the top-level controller.
type Event struct {
	State  State
	Reason string
	At     time.Time
}

// Store persists the session record. Implementations must be safe for
// concurrent use.
type Store interface {
	// Load returns the current record, or the zero Tokens when anonymous.
	Load(ctx context.Context) (Tokens, error)
	// Save overwrites the whole record, privilege flag included.
	Save(ctx context.Context, t Tokens) error
	// Rotate replaces the token pair after a refresh and keeps the
	// privilege flag. An empty refresh keeps the stored refresh token.
	Rotate(ctx context.Context, access, refresh string) error
	// Clear removes every persisted value. Clearing twice is a no-op.
	Clear(ctx context.Context) error
}
