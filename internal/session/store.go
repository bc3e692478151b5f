package session

import "context"

// Store is the durable mapping from user identity to session state.
//
// Get hands out the live in-memory session for mutation in place; Put
// persists the whole mapping afterwards. Writes are full-snapshot
// overwrites, so a reader after a crash sees either the pre-update or the
// post-update state, never a partial one.
type Store interface {
	// Get returns the session for a user, creating a default one on first
	// contact. The second return reports whether the session already existed.
	Get(ctx context.Context, userID string) (*Session, bool, error)

	// Put records the session under the user identity and persists the
	// entire mapping.
	Put(ctx context.Context, userID string, s *Session) error

	// Snapshot returns a copy of the current user->session mapping.
	Snapshot(ctx context.Context) (map[string]*Session, error)
}
