// Package badger is the record engine backed by a badger
// database, for metadata that must survive remounting.
package badger

import (
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/store"
)

// Config is the configuration of the engine.
type Config struct {
	// Path is the database directory, ignored in memory.
	Path string `mapstructure:"path"`

	// InMemory keeps the database off the disk.
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites flushes every write before returning.
	SyncWrites bool `mapstructure:"sync_writes"`

	// BlockCacheMB and IndexCacheMB size the caches of the
	// database, zero keeps the defaults of badger.
	BlockCacheMB int64 `mapstructure:"block_cache_mb"`
	IndexCacheMB int64 `mapstructure:"index_cache_mb"`
}

// Engine is the badger engine.
type Engine struct {
	db *badger.DB
}

// Open opens or creates the database.
func Open(config Config) (*Engine, error) {
	if config.Path == "" && !config.InMemory {
		return nil, errors.New("badger: path is required")
	}
	opts := badger.DefaultOptions(config.Path).
		WithInMemory(config.InMemory).
		WithSyncWrites(config.SyncWrites).
		WithCompression(options.None).
		WithLoggingLevel(badger.WARNING)
	if config.InMemory {
		opts = opts.WithDir("").WithValueDir("")
	}
	if config.BlockCacheMB > 0 {
		opts = opts.WithBlockCacheSize(config.BlockCacheMB << 20)
	}
	if config.IndexCacheMB > 0 {
		opts = opts.WithIndexCacheSize(config.IndexCacheMB << 20)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "badger: open %q", config.Path)
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Get(key string) ([]byte, error) {
	var result []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		result, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	return result, err
}

func (e *Engine) Put(key string, value []byte) error {
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (e *Engine) Delete(key string) error {
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (e *Engine) Scan(
	prefix string, visit func(key string, value []byte) error,
) error {
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := visit(string(item.KeyCopy(nil)), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (e *Engine) Close() error {
	return e.db.Close()
}

var _ store.Engine = (*Engine)(nil)
