package store

import (
	"context"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/pathnorm"
)

// DefaultCacheSize is the record count of a cache whose size
// is not specified.
const DefaultCacheSize = 4096

// Cached fronts a store with an LRU cache of records. Misses
// of the same key are coalesced into one lookup.
//
// Every write bumps the epoch twice, around the write to the
// inner store, and a loaded record is only cached when the
// epoch has not moved since the load began. So a load racing
// with a write never brings back the overwritten record.
type Cached struct {
	inner Store
	cache *lru.Cache
	group singleflight.Group

	mtx   sync.Mutex
	epoch uint64
}

// NewCached wraps the store with a cache of size records.
func NewCached(inner Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	cache, err := lru.New(size)
	if err != nil {
		return nil, errors.Wrap(err, "create record cache")
	}
	return &Cached{
		inner: inner,
		cache: cache,
	}, nil
}

// begin evicts the key ahead of a write, returning the epoch
// the write started at.
func (c *Cached) begin(key string) uint64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.epoch++
	c.cache.Remove(key)
	return c.epoch
}

// commit caches the written record when no other write has
// happened since begin, otherwise it only evicts the key.
func (c *Cached) commit(key string, since uint64, record *fileinfo.Record) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if record != nil && c.epoch == since {
		c.cache.Add(key, *record)
	} else {
		c.cache.Remove(key)
	}
	c.epoch++
}

func (c *Cached) Get(
	ctx context.Context, path string,
) (fileinfo.Record, error) {
	key := pathnorm.Key(path)
	if value, ok := c.cache.Get(key); ok {
		return value.(fileinfo.Record), nil
	}
	c.mtx.Lock()
	since := c.epoch
	c.mtx.Unlock()
	// Lookups started after a write never join a load which
	// began before it.
	flight := key + "@" + strconv.FormatUint(since, 10)
	value, err, _ := c.group.Do(flight, func() (interface{}, error) {
		record, err := c.inner.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		c.mtx.Lock()
		if c.epoch == since {
			c.cache.Add(key, record)
		}
		c.mtx.Unlock()
		return record, nil
	})
	if err != nil {
		return fileinfo.Record{}, err
	}
	return value.(fileinfo.Record), nil
}

func (c *Cached) Put(ctx context.Context, record fileinfo.Record) error {
	key := pathnorm.Key(record.Path())
	since := c.begin(key)
	if err := c.inner.Put(ctx, record); err != nil {
		c.commit(key, since, nil)
		return err
	}
	c.commit(key, since, &record)
	return nil
}

func (c *Cached) Delete(ctx context.Context, path string) error {
	key := pathnorm.Key(path)
	since := c.begin(key)
	err := c.inner.Delete(ctx, path)
	c.commit(key, since, nil)
	return err
}

// List is never cached, a directory listing changes with every
// child and is cheap to rebuild from the engine.
func (c *Cached) List(
	ctx context.Context, dir string,
) ([]fileinfo.Record, error) {
	return c.inner.List(ctx, dir)
}

// Len returns the count of cached records.
func (c *Cached) Len() int {
	return c.cache.Len()
}

func (c *Cached) Close() error {
	c.cache.Purge()
	return c.inner.Close()
}

var _ Store = (*Cached)(nil)
