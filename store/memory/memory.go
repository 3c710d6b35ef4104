// Package memory is the in-memory record engine, an ordered
// tree of keys so that directory scans are range walks.
package memory

import (
	"strings"
	"sync"

	"github.com/google/btree"

	"github.com/aegistudio/go-dokan/store"
)

const defaultDegree = 32

type item struct {
	key   string
	value []byte
}

func (i *item) Less(than btree.Item) bool {
	return i.key < than.(*item).key
}

// Engine is the in-memory engine, safe for concurrent use.
type Engine struct {
	mtx  sync.RWMutex
	tree *btree.BTree
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		tree: btree.New(defaultDegree),
	}
}

func clone(b []byte) []byte {
	result := make([]byte, len(b))
	copy(result, b)
	return result
}

func (e *Engine) Get(key string) ([]byte, error) {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	found := e.tree.Get(&item{key: key})
	if found == nil {
		return nil, store.ErrNotFound
	}
	return clone(found.(*item).value), nil
}

func (e *Engine) Put(key string, value []byte) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.tree.ReplaceOrInsert(&item{key: key, value: clone(value)})
	return nil
}

func (e *Engine) Delete(key string) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.tree.Delete(&item{key: key})
	return nil
}

func (e *Engine) Scan(
	prefix string, visit func(key string, value []byte) error,
) error {
	// Collect first, the visitor may call back into the engine.
	var items []*item
	e.mtx.RLock()
	e.tree.AscendGreaterOrEqual(&item{key: prefix}, func(i btree.Item) bool {
		current := i.(*item)
		if !strings.HasPrefix(current.key, prefix) {
			return false
		}
		items = append(items, &item{key: current.key, value: clone(current.value)})
		return true
	})
	e.mtx.RUnlock()
	for _, i := range items {
		if err := visit(i.key, i.value); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the count of keys.
func (e *Engine) Len() int {
	e.mtx.RLock()
	defer e.mtx.RUnlock()
	return e.tree.Len()
}

func (e *Engine) Close() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.tree.Clear(false)
	return nil
}

var _ store.Engine = (*Engine)(nil)
