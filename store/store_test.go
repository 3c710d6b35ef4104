package store_test

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/pathnorm"
	"github.com/aegistudio/go-dokan/store"
	"github.com/aegistudio/go-dokan/store/badger"
	"github.com/aegistudio/go-dokan/store/bolt"
	"github.com/aegistudio/go-dokan/store/memory"
)

func engines(t *testing.T) map[string]store.Engine {
	badgerEngine, err := badger.Open(badger.Config{InMemory: true})
	require.NoError(t, err)
	boltEngine, err := bolt.Open(bolt.Config{
		Path:   filepath.Join(t.TempDir(), "records.db"),
		NoSync: true,
	})
	require.NoError(t, err)
	return map[string]store.Engine{
		"memory": memory.New(),
		"badger": badgerEngine,
		"bolt":   boltEngine,
	}
}

func directory(path string) fileinfo.Record {
	return fileinfo.New(path, fileinfo.WithAttributes(
		attribute.Of(attribute.Directory)))
}

func paths(records []fileinfo.Record) []string {
	var result []string
	for _, record := range records {
		result = append(result, record.Path())
	}
	sort.Strings(result)
	return result
}

func TestStoreEngines(t *testing.T) {
	for name, engine := range engines(t) {
		engine := engine
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			s := store.New(engine, store.WithLogger(logger.Discarder()))
			defer func() { assert.NoError(s.Close()) }()

			readme := fileinfo.New("/docs/readme.txt", fileinfo.WithSize(10))
			for _, record := range []fileinfo.Record{
				directory("/"),
				directory("/docs"),
				readme,
				directory("/docs/sub"),
				fileinfo.New("/docs/sub/deep.txt"),
				fileinfo.New("/docsx"),
			} {
				require.NoError(t, s.Put(ctx, record))
			}

			got, err := s.Get(ctx, `\docs\readme.txt`)
			assert.NoError(err)
			assert.Equal(readme, got)

			got, err = s.Get(ctx, "/docs/sub")
			assert.NoError(err)
			assert.Equal("/docs/sub/", got.Path())

			children, err := s.List(ctx, "/docs")
			assert.NoError(err)
			assert.Equal([]string{"/docs/readme.txt", "/docs/sub/"}, paths(children))

			children, err = s.List(ctx, "/")
			assert.NoError(err)
			assert.Equal([]string{"/docs/", "/docsx"}, paths(children))

			assert.NoError(s.Delete(ctx, "/docs/readme.txt"))
			assert.NoError(s.Delete(ctx, "/docs/readme.txt"))
			_, err = s.Get(ctx, "/docs/readme.txt")
			assert.ErrorIs(err, store.ErrNotFound)
		})
	}
}

func TestCorruptRecordIsNotFound(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := memory.New()
	require.NoError(t, engine.Put("/bad", []byte{0xff}))
	require.NoError(t, engine.Put("/good", fileinfo.New("/good").Bytes()))
	s := store.New(engine, store.WithLogger(logger.Discarder()))

	_, err := s.Get(ctx, "/bad")
	assert.ErrorIs(err, store.ErrNotFound)

	children, err := s.List(ctx, "/")
	assert.NoError(err)
	assert.Equal([]string{"/good"}, paths(children))
}

type countingEngine struct {
	store.Engine
	gets int32
}

func (e *countingEngine) Get(key string) ([]byte, error) {
	atomic.AddInt32(&e.gets, 1)
	return e.Engine.Get(key)
}

func TestCached(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := &countingEngine{Engine: memory.New()}
	cached, err := store.NewCached(store.New(engine), 16)
	require.NoError(t, err)

	record := fileinfo.New("/a.txt", fileinfo.WithSize(1))
	require.NoError(t, cached.Put(ctx, record))
	got, err := cached.Get(ctx, "/a.txt")
	assert.NoError(err)
	assert.Equal(record, got)
	assert.Equal(int32(0), atomic.LoadInt32(&engine.gets))

	updated := record.With(fileinfo.WithSize(2))
	require.NoError(t, cached.Put(ctx, updated))
	got, err = cached.Get(ctx, "/a.txt")
	assert.NoError(err)
	assert.Equal(uint64(2), got.Size())

	require.NoError(t, cached.Delete(ctx, "/a.txt"))
	_, err = cached.Get(ctx, "/a.txt")
	assert.ErrorIs(err, store.ErrNotFound)
	assert.Equal(int32(1), atomic.LoadInt32(&engine.gets))
}

func TestCachedCoalescesMisses(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	engine := &countingEngine{Engine: memory.New()}
	require.NoError(t, engine.Put("/a.txt", fileinfo.New("/a.txt").Bytes()))
	cached, err := store.NewCached(store.New(engine), 0)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := cached.Get(ctx, "/a.txt")
			assert.NoError(err)
		}()
	}
	wg.Wait()
	assert.Equal(1, cached.Len())
	assert.LessOrEqual(atomic.LoadInt32(&engine.gets), int32(32))
	_, err = cached.Get(ctx, "/a.txt")
	assert.NoError(err)
}

// stallingStore holds the first lookup until released.
type stallingStore struct {
	store.Store
	once     sync.Once
	entered  chan struct{}
	released chan struct{}
}

func (s *stallingStore) Get(ctx context.Context, path string) (fileinfo.Record, error) {
	record, err := s.Store.Get(ctx, path)
	s.once.Do(func() {
		close(s.entered)
		<-s.released
	})
	return record, err
}

func TestCachedLoadRacingWrite(t *testing.T) {
	for name, write := range map[string]func(context.Context, *store.Cached) error{
		"delete": func(ctx context.Context, c *store.Cached) error {
			return c.Delete(ctx, "/a.txt")
		},
		"put": func(ctx context.Context, c *store.Cached) error {
			return c.Put(ctx, fileinfo.New("/a.txt", fileinfo.WithSize(2)))
		},
	} {
		write := write
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			ctx := context.Background()
			inner := &stallingStore{
				Store:    store.New(memory.New()),
				entered:  make(chan struct{}),
				released: make(chan struct{}),
			}
			require.NoError(t, inner.Store.Put(ctx, fileinfo.New("/a.txt", fileinfo.WithSize(1))))
			cached, err := store.NewCached(inner, 16)
			require.NoError(t, err)

			loaded := make(chan error)
			go func() {
				_, err := cached.Get(ctx, "/a.txt")
				loaded <- err
			}()
			<-inner.entered
			require.NoError(t, write(ctx, cached))
			close(inner.released)
			assert.NoError(<-loaded)

			record, err := cached.Get(ctx, "/a.txt")
			if name == "delete" {
				assert.ErrorIs(err, store.ErrNotFound)
			} else {
				assert.NoError(err)
				assert.Equal(uint64(2), record.Size())
			}
		})
	}
}

func TestWalk(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := store.New(memory.New())
	for _, record := range []fileinfo.Record{
		directory("/a"),
		directory("/a/b"),
		fileinfo.New("/a/b/c.txt"),
		fileinfo.New("/d.txt"),
	} {
		require.NoError(t, s.Put(ctx, record))
	}

	var visited []string
	assert.NoError(store.Walk(ctx, s, "/", func(r fileinfo.Record) error {
		visited = append(visited, pathnorm.Key(r.Path()))
		return nil
	}))
	assert.ElementsMatch([]string{"/a", "/a/b", "/a/b/c.txt", "/d.txt"}, visited)
	assert.Less(indexOf(visited, "/a"), indexOf(visited, "/a/b"))
	assert.Less(indexOf(visited, "/a/b"), indexOf(visited, "/a/b/c.txt"))

	stop := errors.New("stop")
	count := 0
	assert.ErrorIs(store.Walk(ctx, s, "/", func(fileinfo.Record) error {
		count++
		return stop
	}), stop)
	assert.Equal(1, count)
}

func indexOf(values []string, value string) int {
	for i, v := range values {
		if v == value {
			return i
		}
	}
	return -1
}
