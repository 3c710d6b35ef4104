// Package rangelock keeps the byte range locks of a file.
//
// Locks are exclusive and nonblocking: a lock overlapping
// any held one fails immediately, and it is up to the caller
// to retry. A range is unlocked by specifying exactly the
// range it was locked with. Zero length ranges never
// conflict with anything.
package rangelock

import (
	"math"
	"sync"

	"github.com/google/btree"
	"github.com/pkg/errors"
)

var (
	// ErrConflict is returned when the range overlaps a
	// range locked already.
	ErrConflict = errors.New("range locked")

	// ErrNotLocked is returned when unlocking a range that
	// has not been locked.
	ErrNotLocked = errors.New("range not locked")

	// ErrInvalidRange is returned for negative offsets or
	// lengths, and ranges past the largest offset.
	ErrInvalidRange = errors.New("invalid range")
)

type lockRange struct {
	offset, length int64
}

func (r *lockRange) end() int64 {
	return r.offset + r.length
}

func (r *lockRange) Less(than btree.Item) bool {
	other := than.(*lockRange)
	if r.offset != other.offset {
		return r.offset < other.offset
	}
	return r.length < other.length
}

// Set is the set of ranges locked on a file, safe for
// concurrent use. The zero value is not usable, call New.
type Set struct {
	mtx  sync.Mutex
	tree *btree.BTree
}

// New creates an empty set.
func New() *Set {
	return &Set{tree: btree.New(8)}
}

func validate(offset, length int64) error {
	if offset < 0 || length < 0 || offset > math.MaxInt64-length {
		return errors.Wrapf(ErrInvalidRange, "[%d, +%d)", offset, length)
	}
	return nil
}

// conflicts tells whether the range overlaps a locked one.
// The locked ranges never overlap each other, so only the
// nearest non empty neighbour on each side is checked.
func (s *Set) conflicts(r *lockRange) bool {
	if r.length == 0 {
		return false
	}
	conflict := false
	s.tree.DescendLessOrEqual(
		&lockRange{offset: r.offset, length: math.MaxInt64},
		func(i btree.Item) bool {
			item := i.(*lockRange)
			if item.length == 0 {
				return true
			}
			conflict = item.end() > r.offset
			return false
		})
	if conflict {
		return true
	}
	s.tree.AscendGreaterOrEqual(
		&lockRange{offset: r.offset, length: math.MaxInt64},
		func(i btree.Item) bool {
			item := i.(*lockRange)
			if item.length == 0 {
				return item.offset < r.end()
			}
			conflict = item.offset < r.end()
			return false
		})
	return conflict
}

// Lock locks the range, failing with ErrConflict when it
// overlaps a locked range.
func (s *Set) Lock(offset, length int64) error {
	if err := validate(offset, length); err != nil {
		return err
	}
	r := &lockRange{offset: offset, length: length}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.tree.Has(r) || s.conflicts(r) {
		return errors.Wrapf(ErrConflict, "[%d, +%d)", offset, length)
	}
	s.tree.ReplaceOrInsert(r)
	return nil
}

// Unlock unlocks exactly the range locked before.
func (s *Set) Unlock(offset, length int64) error {
	if err := validate(offset, length); err != nil {
		return err
	}
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.tree.Delete(&lockRange{offset: offset, length: length}) == nil {
		return errors.Wrapf(ErrNotLocked, "[%d, +%d)", offset, length)
	}
	return nil
}

// Len returns the count of locked ranges.
func (s *Set) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.tree.Len()
}
