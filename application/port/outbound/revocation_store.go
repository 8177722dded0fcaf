package outbound

import (
	"context"
	"time"
)

// RevocationStore is the shared TTL key-value store that records which
// refresh tokens are currently alive. Implementations are remote and
// independently concurrent; every operation carries a timeout and any
// transport failure must surface as an error distinct from a "record
// absent" answer.
type RevocationStore interface {
	// Put registers a record that expires after ttl.
	Put(ctx context.Context, key, value string, ttl time.Duration) error

	// Exists reports whether the record is currently alive.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes the record and reports whether it existed. The
	// returned bool gives rotation its conditional-delete semantics:
	// only the caller that actually deleted the record may proceed.
	Delete(ctx context.Context, key string) (bool, error)
}
