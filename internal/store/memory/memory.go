package memory

import (
	"context"
	"sync"

	"github.com/loykin/winsession/internal/store"
)

// DB keeps values in process memory. Useful for tests and for running the
// daemon without durable state.
type DB struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func New() *DB { return &DB{m: make(map[string][]byte)} }

func (d *DB) EnsureSchema(context.Context) error { return nil }

func (d *DB) Get(_ context.Context, key string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.m[key]
	if !ok {
		return nil, store.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (d *DB) Set(_ context.Context, key string, value []byte) error {
	d.mu.Lock()
	d.m[key] = append([]byte(nil), value...)
	d.mu.Unlock()
	return nil
}

func (d *DB) Delete(_ context.Context, key string) error {
	d.mu.Lock()
	delete(d.m, key)
	d.mu.Unlock()
	return nil
}

func (d *DB) Close() error { return nil }
