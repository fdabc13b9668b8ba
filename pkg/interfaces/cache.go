package interfaces

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache: key not found")

// CachePort is the contract for the short-lived snapshot cache.
// The implementation may use Redis or any other key/value system.
type CachePort interface {
	// Get returns the value stored under key, or ErrCacheMiss.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key for the given expiration.
	// expiration == 0 means no expiration.
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}
