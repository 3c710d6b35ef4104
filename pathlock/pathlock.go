// Package pathlock locks the paths of a namespace against
// removal and renaming while they are in use.
//
// Opening, reading and writing a file takes a reader lock of
// its path, while deleting or renaming it takes the writer
// lock. Any lock on a path also takes the reader locks of all
// its ancestors, so that a directory cannot be removed or
// renamed while anything beneath it is in use.
package pathlock

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/aegistudio/go-dokan/pathnorm"
)

const root = "/"

// entry is the lock state of a single path.
//
// A positive count is the number of readers, and a writer is
// recorded as -1. A zero count means the entry is being torn
// down, and must be retried until it is gone from the map.
type entry struct {
	count atomic.Int64
}

// Locker is the lock center of a path namespace. The zero
// value is ready for use.
//
// Locking never blocks: it fails immediately when the path
// is held in a conflicting mode.
type Locker struct {
	entries sync.Map
}

func (l *Locker) readLock(key string) bool {
	for {
		fresh := &entry{}
		fresh.count.Store(1)
		obj, loaded := l.entries.LoadOrStore(key, fresh)
		if !loaded {
			return true
		}
		e := obj.(*entry)
		count := e.count.Load()
		switch {
		case count < 0:
			return false
		case count == 0:
			runtime.Gosched()
			continue
		}
		if e.count.CompareAndSwap(count, count+1) {
			return true
		}
	}
}

// readUnlock assumes the reader lock has been taken, the
// locker is corrupted otherwise.
func (l *Locker) readUnlock(key string) {
	obj, _ := l.entries.Load(key)
	e := obj.(*entry)
	if e.count.Add(-1) == 0 {
		l.entries.CompareAndDelete(key, e)
	}
}

func (l *Locker) writeLock(key string) bool {
	for {
		fresh := &entry{}
		fresh.count.Store(-1)
		obj, loaded := l.entries.LoadOrStore(key, fresh)
		if !loaded {
			return true
		}
		if obj.(*entry).count.Load() != 0 {
			return false
		}
		runtime.Gosched()
	}
}

func (l *Locker) writeUnlock(key string) {
	l.entries.Delete(key)
}

// readLockAll takes the reader locks from the root down to
// the key. The root itself is never recorded.
func (l *Locker) readLockAll(key string) bool {
	if key == root {
		return true
	}
	parent := pathnorm.Key(pathnorm.Parent(key))
	if !l.readLockAll(parent) {
		return false
	}
	if !l.readLock(key) {
		l.readUnlockAll(parent)
		return false
	}
	return true
}

func (l *Locker) readUnlockAll(key string) {
	for key != root {
		l.readUnlock(key)
		key = pathnorm.Key(pathnorm.Parent(key))
	}
}

// Lock is held until the path is released.
type Lock struct {
	locker *Locker
	key    string
	write  bool
	free   sync.Once
}

func (l *Locker) newLock(key string, write bool) *Lock {
	result := &Lock{
		locker: l,
		key:    key,
		write:  write,
	}
	runtime.SetFinalizer(result, func(l *Lock) {
		l.Unlock()
	})
	return result
}

// RLock takes the reader lock of the path, or returns nil
// when it is being removed or renamed.
func (l *Locker) RLock(p string) *Lock {
	key := pathnorm.Key(p)
	if !l.readLockAll(key) {
		return nil
	}
	return l.newLock(key, false)
}

// Lock takes the writer lock of the path, or returns nil when
// it is in use. The root can never be write locked.
func (l *Locker) Lock(p string) *Lock {
	key := pathnorm.Key(p)
	if key == root {
		return nil
	}
	parent := pathnorm.Key(pathnorm.Parent(key))
	if !l.readLockAll(parent) {
		return nil
	}
	if !l.writeLock(key) {
		l.readUnlockAll(parent)
		return nil
	}
	return l.newLock(key, true)
}

// Path is the normalized path being locked, in the form
// without the trailing separator.
func (l *Lock) Path() string {
	return l.key
}

// IsWrite tells whether this is the writer lock.
func (l *Lock) IsWrite() bool {
	return l.write
}

// Downgrade turns the writer lock into a reader lock.
func (l *Lock) Downgrade() {
	if !l.write {
		return
	}
	// XXX: the writer is the only one allowed to modify the
	// entry, so it might be overwritten directly.
	obj, _ := l.locker.entries.Load(l.key)
	obj.(*entry).count.Store(1)
	l.write = false
}

// Unlock releases the lock, it is safe to call repeatedly.
func (l *Lock) Unlock() {
	runtime.SetFinalizer(l, nil)
	l.free.Do(func() {
		if l.write {
			l.locker.writeUnlock(l.key)
			l.locker.readUnlockAll(pathnorm.Key(pathnorm.Parent(l.key)))
		} else {
			l.locker.readUnlockAll(l.key)
		}
	})
}
