package store

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/internal/profile"
)

// KeyPrefix namespaces every key owned by the cache service.
const KeyPrefix = "todayfeed:"

// CurrentCacheVersion is the compiled-in layout version of the persisted
// state. A persisted version mismatch at startup triggers a full wipe of the
// namespace; there is no partial migration.
const CurrentCacheVersion = 3

// KeyCacheVersion holds the persisted layout version.
const KeyCacheVersion = "cache_version"

// Store provides namespaced access to the underlying key-value driver.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Close() error {
	return s.driver.Close()
}

// Migrate compares the persisted cache version against the compiled-in one
// and wipes the whole namespace on mismatch. This is the only initialization
// step allowed to fail the caller.
func (s *Store) Migrate(ctx context.Context) error {
	raw, ok, err := s.Get(ctx, KeyCacheVersion)
	if err != nil {
		return errors.Wrap(err, "failed to read cache version")
	}

	persisted := 0
	if ok {
		persisted, err = strconv.Atoi(raw)
		if err != nil {
			// Unreadable version counts as a mismatch.
			persisted = -1
		}
	}

	if ok && persisted == CurrentCacheVersion {
		return nil
	}

	if ok {
		slog.Warn("cache version mismatch, wiping namespace",
			"persisted", persisted, "current", CurrentCacheVersion)
		if err := s.Wipe(ctx); err != nil {
			return errors.Wrap(err, "failed to wipe namespace")
		}
	}

	if err := s.Set(ctx, KeyCacheVersion, strconv.Itoa(CurrentCacheVersion)); err != nil {
		return errors.Wrap(err, "failed to write cache version")
	}
	return nil
}

// Get reads a namespaced key.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	return s.driver.Get(ctx, KeyPrefix+key)
}

// Set writes a namespaced key.
func (s *Store) Set(ctx context.Context, key string, value string) error {
	return s.driver.Set(ctx, KeyPrefix+key, value)
}

// Remove deletes a namespaced key.
func (s *Store) Remove(ctx context.Context, key string) error {
	return s.driver.Remove(ctx, KeyPrefix+key)
}

// ContainsKey reports whether a namespaced key exists.
func (s *Store) ContainsKey(ctx context.Context, key string) (bool, error) {
	return s.driver.ContainsKey(ctx, KeyPrefix+key)
}

// Keys lists all keys in the namespace, with the prefix stripped.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.driver.Keys(ctx, KeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(KeyPrefix):])
	}
	return out, nil
}

// Wipe removes every key in the namespace.
func (s *Store) Wipe(ctx context.Context) error {
	keys, err := s.driver.Keys(ctx, KeyPrefix)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.driver.Remove(ctx, k); err != nil {
			return err
		}
	}
	return nil
}
