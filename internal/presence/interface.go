package presence

import (
	"context"

	"github.com/sideline-chat/sideline/internal/domain"
)

// Store is a latest-value presence store. Users who never set a status
// are AVAILABLE; state is sticky until overwritten.
type Store interface {
	// Get returns the user's presence, defaulting to AVAILABLE if never set.
	Get(ctx context.Context, userID string) (domain.Status, error)

	// Set overwrites the user's presence. Ownership is enforced by the caller.
	Set(ctx context.Context, userID string, status domain.Status) error

	// Close closes the store connection.
	Close() error
}
