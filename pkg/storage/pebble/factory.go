package pebble

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fgrzl/gridkit/internal/cache"
	"github.com/fgrzl/gridkit/pkg/storage"
)

var (
	CacheTTL             time.Duration = time.Second * 97
	CacheCleanupInterval time.Duration = time.Second * 59
)

// PebbleStoreOptions configures the on-disk document store.
type PebbleStoreOptions struct {
	Path string
}

// StoreFactory creates pebble-backed stores under a shared base path.
type StoreFactory struct {
	options *PebbleStoreOptions
}

func NewStoreFactory(options *PebbleStoreOptions) (*StoreFactory, error) {
	f := &StoreFactory{options: options}
	return f, nil
}

func (f *StoreFactory) NewStore(_ context.Context, name string) (storage.Store, error) {
	path := filepath.Join(f.options.Path, name)
	cache := cache.NewExpiringCache(CacheTTL, CacheCleanupInterval)
	return NewPebbleStore(path, cache)
}
