package session

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates the store has no session with the given ID.
var ErrNotFound = errors.New("session: not found")

// Store persists sessions between requests.
//
// Implementations must be safe for concurrent use. Get returns ErrNotFound
// when no session exists for the ID.
type Store interface {
	// Get loads the session with the given ID.
	Get(ctx context.Context, id string) (*Session, error)

	// Put saves the session, replacing any existing session with the same ID.
	Put(ctx context.Context, sess *Session) error

	// Delete removes the session with the given ID. Deleting a missing
	// session is not an error.
	Delete(ctx context.Context, id string) error

	// ExpireBefore removes sessions whose last activity is before cutoff and
	// returns their IDs.
	ExpireBefore(ctx context.Context, cutoff time.Time) ([]string, error)

	// Destroy releases the store at application shutdown.
	Destroy() error
}
