// Package store persists file metadata records.
//
// Records are kept in their compact persisted layout, keyed
// by the directory-agnostic form of their normalized path.
// The byte level storage is delegated to an Engine, so that
// the same record semantics run over an in-memory tree, a
// badger database or a bolt database.
package store

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/pathnorm"
)

// ErrNotFound is returned when there is no record, or the
// stored record is corrupt.
var ErrNotFound = errors.New("record not found")

// Store is the record level storage interface.
type Store interface {
	// Get retrieves the record of the path.
	Get(ctx context.Context, path string) (fileinfo.Record, error)

	// Put creates or replaces the record at its path.
	Put(ctx context.Context, record fileinfo.Record) error

	// Delete removes the record of the path. Deleting an
	// absent record is not an error.
	Delete(ctx context.Context, path string) error

	// List retrieves the immediate children of the directory.
	List(ctx context.Context, dir string) ([]fileinfo.Record, error)

	// Close releases the underlying resources.
	Close() error
}

// Engine is the byte level key value storage.
type Engine interface {
	// Get returns ErrNotFound when the key is absent.
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error

	// Scan visits every key with the prefix in ascending
	// order, and stops on the first error from the visitor.
	Scan(prefix string, visit func(key string, value []byte) error) error

	Close() error
}

type recordStore struct {
	engine Engine
	log    *logger.Logger
}

// Option customizes the record store.
type Option func(*recordStore)

// WithLogger sets the logger reporting corrupt records.
func WithLogger(log *logger.Logger) Option {
	return func(s *recordStore) {
		s.log = log
	}
}

// New creates the record store over the engine.
func New(engine Engine, opts ...Option) Store {
	result := &recordStore{
		engine: engine,
		log:    logger.Default(),
	}
	for _, opt := range opts {
		opt(result)
	}
	return result
}

func (s *recordStore) decode(key string, value []byte) (fileinfo.Record, error) {
	record, err := fileinfo.Decode(key, value)
	if err != nil {
		// A corrupt record is as good as an absent one.
		s.log.Debugf("store: drop corrupt record %q: %v", key, err)
		return fileinfo.Record{}, errors.Wrapf(ErrNotFound, "%q", key)
	}
	return record, nil
}

func (s *recordStore) Get(
	ctx context.Context, path string,
) (fileinfo.Record, error) {
	if err := ctx.Err(); err != nil {
		return fileinfo.Record{}, err
	}
	key := pathnorm.Key(path)
	value, err := s.engine.Get(key)
	if err != nil {
		return fileinfo.Record{}, errors.Wrapf(err, "get %q", key)
	}
	return s.decode(key, value)
}

func (s *recordStore) Put(
	ctx context.Context, record fileinfo.Record,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := pathnorm.Key(record.Path())
	return errors.Wrapf(s.engine.Put(key, record.Bytes()), "put %q", key)
}

func (s *recordStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := pathnorm.Key(path)
	return errors.Wrapf(s.engine.Delete(key), "delete %q", key)
}

func (s *recordStore) List(
	ctx context.Context, dir string,
) ([]fileinfo.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := pathnorm.Normalize(dir, true)
	var result []fileinfo.Record
	if err := s.engine.Scan(prefix, func(key string, value []byte) error {
		rest := key[len(prefix):]
		if rest == "" || strings.ContainsRune(rest, pathnorm.Separator) {
			return nil
		}
		record, err := s.decode(key, value)
		if err != nil {
			return nil
		}
		result = append(result, record)
		return nil
	}); err != nil {
		return nil, errors.Wrapf(err, "list %q", prefix)
	}
	return result, nil
}

func (s *recordStore) Close() error {
	return s.engine.Close()
}

var _ Store = (*recordStore)(nil)

// Walk visits the records beneath the directory depth first,
// each directory before its children. It stops on the first
// error from the visitor.
func Walk(
	ctx context.Context, s Store, dir string,
	visit func(fileinfo.Record) error,
) error {
	children, err := s.List(ctx, dir)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := visit(child); err != nil {
			return err
		}
		if !child.IsDirectory() {
			continue
		}
		if err := Walk(ctx, s, child.Path(), visit); err != nil {
			return err
		}
	}
	return nil
}
