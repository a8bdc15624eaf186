package db

import (
	"github.com/pkg/errors"

	"github.com/hrygo/todayfeed/internal/profile"
	"github.com/hrygo/todayfeed/store"
	"github.com/hrygo/todayfeed/store/db/memory"
	"github.com/hrygo/todayfeed/store/db/sqlite"
)

// NewDriver creates a new store driver based on profile.
// sqlite is the durable driver; memory backs demo mode and tests.
func NewDriver(profile *profile.Profile) (store.Driver, error) {
	var driver store.Driver
	var err error

	switch profile.Driver {
	case "sqlite":
		driver, err = sqlite.NewDriver(profile)
	case "memory":
		driver = memory.NewDriver()
	default:
		return nil, errors.Errorf("unknown store driver %q: only 'sqlite' and 'memory' are supported", profile.Driver)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to create store driver")
	}
	return driver, nil
}
