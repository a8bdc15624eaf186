package store

import (
	"context"
)

// Driver is an interface for the key-value store driver.
// All persisted state of the cache service lives behind this interface; the
// service never touches a database or the file system directly.
type Driver interface {
	// Get returns the value for key and whether it exists.
	Get(ctx context.Context, key string) (string, bool, error)

	// Set writes value under key, overwriting any previous value.
	// Writes are last-write-wins; there are no transactions.
	Set(ctx context.Context, key string, value string) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// ContainsKey reports whether key exists.
	ContainsKey(ctx context.Context, key string) (bool, error)

	// Keys lists all keys with the given prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
