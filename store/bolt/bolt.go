// Package bolt is the record engine backed by a single bolt
// database file.
package bolt

import (
	"bytes"
	"os"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/store"
)

var bucketName = []byte("records")

// Config is the configuration of the engine.
type Config struct {
	// Path is the database file.
	Path string `mapstructure:"path"`

	// Timeout bounds the wait for the file lock.
	Timeout time.Duration `mapstructure:"timeout"`

	// NoSync skips fsync after every commit.
	NoSync bool `mapstructure:"no_sync"`
}

// Engine is the bolt engine.
type Engine struct {
	db *bolt.DB
}

// Open opens or creates the database file.
func Open(config Config) (*Engine, error) {
	if config.Path == "" {
		return nil, errors.New("bolt: path is required")
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(config.Path, os.FileMode(0600), &bolt.Options{
		Timeout: timeout,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "bolt: open %q", config.Path)
	}
	db.NoSync = config.NoSync
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "bolt: create bucket")
	}
	return &Engine{db: db}, nil
}

func (e *Engine) Get(key string) ([]byte, error) {
	var result []byte
	if err := e.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(bucketName).Get([]byte(key))
		if value != nil {
			// Values are only valid during the transaction.
			result = append([]byte{}, value...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if result == nil {
		return nil, store.ErrNotFound
	}
	return result, nil
}

func (e *Engine) Put(key string, value []byte) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), value)
	})
}

func (e *Engine) Delete(key string) error {
	return e.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	})
}

func (e *Engine) Scan(
	prefix string, visit func(key string, value []byte) error,
) error {
	return e.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketName).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			if err := visit(string(k), append([]byte{}, v...)); err != nil {
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
