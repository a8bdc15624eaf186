package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	// Import the pure-Go SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/store"
)

// Driver is a SQLite-backed key-value store driver. Values live in a single
// kv table; every operation is a single statement, so writes stay
// last-write-wins without explicit transactions.
type Driver struct {
	db *sql.DB
}

// NewDriver opens (and initializes, if needed) the SQLite database at the
// profile DSN.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	db, err := sql.Open("sqlite", profile.DSN)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}

	// Reduce lock contention for concurrent readers.
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to set busy_timeout")
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to set journal_mode")
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_ts INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "failed to create kv table")
	}

	return &Driver{db: db}, nil
}

func (d *Driver) GetDB() *sql.DB {
	return d.db
}

func (d *Driver) Close() error {
	return d.db.Close()
}

func (d *Driver) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := d.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to get key %q", key)
	}
	return value, true, nil
}

func (d *Driver) Set(ctx context.Context, key string, value string) error {
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_ts) VALUES (?, ?, strftime('%s', 'now'))
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_ts = excluded.updated_ts`,
		key, value)
	if err != nil {
		return errors.Wrapf(err, "failed to set key %q", key)
	}
	return nil
}

func (d *Driver) Remove(ctx context.Context, key string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return errors.Wrapf(err, "failed to remove key %q", key)
	}
	return nil
}

func (d *Driver) ContainsKey(ctx context.Context, key string) (bool, error) {
	var one int
	err := d.db.QueryRowContext(ctx, "SELECT 1 FROM kv WHERE key = ?", key).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "failed to check key %q", key)
	}
	return true, nil
}

func (d *Driver) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT key FROM kv WHERE key LIKE ? ESCAPE '\\' ORDER BY key",
		escapeLike(prefix)+"%")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list keys with prefix %q", prefix)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
