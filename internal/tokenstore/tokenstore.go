// Package tokenstore provides the short-lived key/value store that holds the
// active QR tokens and the per-user consumption markers.  Entries carry a
// TTL; an expired entry is indistinguishable from a missing one.
package tokenstore

import (
	"context"
	"time"
)

// Store is a key/value store with per-key expiry.
//
// CompareAndSwap writes value only when the current value equals expected.
// An empty expected means "only if the key is absent (or expired)".
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	PutWithTTL(ctx context.Context, key, value string, ttl time.Duration) error
	CompareAndSwap(ctx context.Context, key, expected, value string, ttl time.Duration) (bool, error)
}
