// Package memory provides an in-memory store driver for demo mode and tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hrygo/todayfeed/store"
)

// Driver is a map-backed store driver. Safe for concurrent use.
type Driver struct {
	mu   sync.RWMutex
	data map[string]string

	// FailWrites makes Set/Remove fail when set, for failure-path tests.
	FailWrites error
	// FailReads makes Get/ContainsKey/Keys fail when set.
	FailReads error
}

func NewDriver() *Driver {
	return &Driver{
		data: make(map[string]string),
	}
}

func (d *Driver) Get(_ context.Context, key string) (string, bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.FailReads != nil {
		return "", false, d.FailReads
	}
	value, ok := d.data[key]
	return value, ok, nil
}

func (d *Driver) Set(_ context.Context, key string, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWrites != nil {
		return d.FailWrites
	}
	d.data[key] = value
	return nil
}

func (d *Driver) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.FailWrites != nil {
		return d.FailWrites
	}
	delete(d.data, key)
	return nil
}

func (d *Driver) ContainsKey(_ context.Context, key string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.FailReads != nil {
		return false, d.FailReads
	}
	_, ok := d.data[key]
	return ok, nil
}

func (d *Driver) Keys(_ context.Context, prefix string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.FailReads != nil {
		return nil, d.FailReads
	}
	var keys []string
	for k := range d.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (d *Driver) Close() error {
	return nil
}

// Len returns the number of stored keys (for tests).
func (d *Driver) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data)
}

var _ store.Driver = (*Driver)(nil)
