package memfs

import (
	"context"
	"io"
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/filetime"
	"github.com/aegistudio/go-dokan/pathnorm"
	"github.com/aegistudio/go-dokan/rangelock"
)

func (fs *FileSystem) Mounted(ctx context.Context) error {
	fs.log.Infof("memfs: mounted")
	return nil
}

func (fs *FileSystem) Unmounted(ctx context.Context) error {
	fs.log.Infof("memfs: unmounted, %d bytes in use", fs.used.Load())
	return nil
}

func (fs *FileSystem) Read(
	ctx context.Context, path string, rc *dokan.RequestContext,
	buf []byte, offset int64, flags dokan.IOFlags,
) (int, error) {
	c, err := fs.content(rc.Context())
	if err != nil {
		return 0, err
	}
	c.mtx.RLock()
	defer c.mtx.RUnlock()
	if offset >= int64(len(c.data)) {
		return 0, io.EOF
	}
	return copy(buf, c.data[offset:]), nil
}

// resize changes the length of the content, accounting the
// bytes against the capacity. The content must be locked.
func (fs *FileSystem) resize(c *content, size int64) error {
	grow := size - int64(len(c.data))
	switch {
	case grow > fs.capacity:
		return dokan.StatusDiskFull
	case grow > 0:
		if fs.used.Add(grow) > fs.capacity {
			fs.used.Add(-grow)
			return dokan.StatusDiskFull
		}
		c.data = append(c.data, make([]byte, grow)...)
	case grow < 0:
		fs.used.Add(grow)
		c.data = c.data[:size:size]
	}
	return nil
}

// writeAt copies the data into the content, growing it when
// the data goes beyond the end, and returns the new size.
func (fs *FileSystem) writeAt(
	c *content, data []byte, offset int64, toEnd bool,
) (int, uint64, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if toEnd {
		offset = int64(len(c.data))
	}
	if offset > math.MaxInt64-int64(len(data)) {
		return 0, 0, dokan.StatusInvalidParameter
	}
	end := offset + int64(len(data))
	if end > int64(len(c.data)) {
		if err := fs.resize(c, end); err != nil {
			return 0, 0, err
		}
	}
	n := copy(c.data[offset:], data)
	return n, uint64(len(c.data)), nil
}

func (fs *FileSystem) Write(
	ctx context.Context, path string, rc *dokan.RequestContext,
	data []byte, offset int64, flags dokan.IOFlags,
) (int, error) {
	c, err := fs.content(rc.Context())
	if err != nil {
		return 0, err
	}
	n, size, err := fs.writeAt(c, data, offset, flags.WriteToEndOfFile)
	if err != nil {
		return 0, err
	}
	now := filetime.Now()
	return n, fs.update(ctx, path, func(r fileinfo.Record) (fileinfo.Record, error) {
		return r.With(
			fileinfo.WithSize(size),
			fileinfo.WithWriteTime(now),
			fileinfo.WithAccessTime(now),
		), nil
	})
}

func (fs *FileSystem) FlushFileBuffers(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	return nil
}

func (fs *FileSystem) FindFilesWithPattern(
	ctx context.Context, path, pattern string, ignoreCase bool,
) ([]fileinfo.Record, error) {
	dir, err := fs.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if !dir.IsDirectory() {
		return nil, dokan.StatusNotADirectory
	}
	children, err := fs.records.List(ctx, path)
	if err != nil {
		return nil, err
	}
	result := children[:0]
	for _, child := range children {
		if pathnorm.Match(pattern, child.DisplayName(), ignoreCase) {
			result = append(result, child)
		}
	}
	return result, nil
}

func (fs *FileSystem) FindStreams(
	ctx context.Context, path string,
) ([]dokan.Stream, error) {
	record, err := fs.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if record.IsDirectory() {
		return nil, nil
	}
	return []dokan.Stream{{
		Name: "::$DATA",
		Size: int64(record.Size()),
	}}, nil
}

func (fs *FileSystem) contentOf(ctx context.Context, path string) (*content, error) {
	record, err := fs.get(ctx, path)
	if err != nil {
		return nil, err
	}
	if record.IsDirectory() {
		return nil, dokan.StatusFileIsADirectory
	}
	return fs.content(record.Index())
}

func lockStatus(err error) error {
	switch {
	case errors.Is(err, rangelock.ErrConflict):
		return errors.Wrap(dokan.StatusLockNotGranted, err.Error())
	case errors.Is(err, rangelock.ErrNotLocked):
		return errors.Wrap(dokan.StatusRangeNotLocked, err.Error())
	case errors.Is(err, rangelock.ErrInvalidRange):
		return errors.Wrap(dokan.StatusInvalidParameter, err.Error())
	}
	return err
}

func (fs *FileSystem) Lock(ctx context.Context, path string, offset, length int64) error {
	c, err := fs.contentOf(ctx, path)
	if err != nil {
		return err
	}
	return lockStatus(c.locks.Lock(offset, length))
}

func (fs *FileSystem) Unlock(ctx context.Context, path string, offset, length int64) error {
	c, err := fs.contentOf(ctx, path)
	if err != nil {
		return err
	}
	return lockStatus(c.locks.Unlock(offset, length))
}

// moveTree moves the record and every record below it. The
// namespace must be locked.
func (fs *FileSystem) moveTree(
	ctx context.Context, record fileinfo.Record, newPath string,
) error {
	var children []fileinfo.Record
	if record.IsDirectory() {
		var err error
		if children, err = fs.records.List(ctx, record.Path()); err != nil {
			return err
		}
	}
	moved := record.Rename(newPath)
	if err := fs.records.Put(ctx, moved); err != nil {
		return err
	}
	if err := fs.records.Delete(ctx, record.Path()); err != nil {
		return err
	}
	for _, child := range children {
		if err := fs.moveTree(ctx, child, pathnorm.Join(
			moved.Path(), child.DisplayName(), child.IsDirectory(),
		)); err != nil {
			return err
		}
	}
	return nil
}

func (fs *FileSystem) Move(
	ctx context.Context, oldPath, newPath string, replace bool,
) error {
	oldKey, newKey := pathnorm.Key(oldPath), pathnorm.Key(newPath)
	if oldKey == newKey {
		return nil
	}
	if strings.HasPrefix(newKey, pathnorm.Normalize(oldKey, true)) {
		return dokan.StatusInvalidParameter
	}
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	record, err := fs.get(ctx, oldKey)
	if err != nil {
		return err
	}
	parent, err := fs.get(ctx, pathnorm.Parent(newKey))
	if errors.Is(err, dokan.StatusObjectNameNotFound) || (err == nil && !parent.IsDirectory()) {
		return dokan.StatusObjectPathNotFound
	} else if err != nil {
		return err
	}
	target, err := fs.get(ctx, newKey)
	switch {
	case err == nil:
		if !replace {
			return dokan.StatusObjectNameCollision
		}
		if target.IsDirectory() {
			return dokan.StatusAccessDenied
		}
		if err := fs.records.Delete(ctx, newKey); err != nil {
			return err
		}
		fs.discard(target.Index())
	case !errors.Is(err, dokan.StatusObjectNameNotFound):
		return err
	}
	return fs.moveTree(ctx, record, newKey)
}

func (fs *FileSystem) DeleteFile(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	record, err := fs.get(ctx, path)
	if err != nil {
		return err
	}
	if record.Attributes().Has(attribute.ReadOnly) {
		return dokan.StatusCannotDelete
	}
	return nil
}

func (fs *FileSystem) DeleteDirectory(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	if pathnorm.Key(path) == pathnorm.Parent(path) {
		return dokan.StatusAccessDenied
	}
	children, err := fs.records.List(ctx, path)
	if err != nil {
		return err
	}
	if len(children) > 0 {
		return dokan.StatusDirectoryNotEmpty
	}
	return nil
}

func (fs *FileSystem) GetSecurity(
	ctx context.Context, path string, kind dokan.SecurityInformationSet,
) ([]byte, error) {
	record, err := fs.get(ctx, path)
	if err != nil {
		return nil, err
	}
	obj, ok := fs.security.Load(record.Index())
	if !ok {
		// The driver falls back to its default descriptor.
		return nil, dokan.StatusNotImplemented
	}
	descriptor := obj.([]byte)
	return append([]byte(nil), descriptor...), nil
}

// SetSecurity stores the descriptor as a whole.
//
// XXX: the parts named by kind should be merged into the
// stored descriptor, which requires parsing it.
func (fs *FileSystem) SetSecurity(
	ctx context.Context, path string,
	kind dokan.SecurityInformationSet, descriptor []byte,
) error {
	record, err := fs.get(ctx, path)
	if err != nil {
		return err
	}
	fs.security.Store(record.Index(), append([]byte(nil), descriptor...))
	return nil
}

func (fs *FileSystem) Truncate(ctx context.Context, path string) error {
	return fs.SetEndOfFile(ctx, path, 0)
}

func (fs *FileSystem) SetEndOfFile(ctx context.Context, path string, offset int64) error {
	c, err := fs.contentOf(ctx, path)
	if err != nil {
		return err
	}
	if err := fs.truncateContent(c, offset); err != nil {
		return err
	}
	now := filetime.Now()
	return fs.update(ctx, path, func(r fileinfo.Record) (fileinfo.Record, error) {
		return r.With(
			fileinfo.WithSize(uint64(offset)),
			fileinfo.WithWriteTime(now),
		), nil
	})
}

func (fs *FileSystem) truncateContent(c *content, size int64) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return fs.resize(c, size)
}

// SetAllocationSize only shrinks the file, space is never
// reserved ahead.
func (fs *FileSystem) SetAllocationSize(ctx context.Context, path string, size int64) error {
	c, err := fs.contentOf(ctx, path)
	if err != nil {
		return err
	}
	c.mtx.RLock()
	shrink := size < int64(len(c.data))
	c.mtx.RUnlock()
	if !shrink {
		return nil
	}
	return fs.SetEndOfFile(ctx, path, size)
}

func (fs *FileSystem) SetAttributes(
	ctx context.Context, path string, attributes attribute.Set,
) error {
	return fs.update(ctx, path, func(r fileinfo.Record) (fileinfo.Record, error) {
		attributes := attributes.Without(attribute.Directory, attribute.Normal)
		if r.IsDirectory() {
			attributes = attributes.With(attribute.Directory)
		}
		return r.With(fileinfo.WithAttributes(attributes)), nil
	})
}

func (fs *FileSystem) SetTime(
	ctx context.Context, path string, creation, access, write uint64,
) error {
	return fs.update(ctx, path, func(r fileinfo.Record) (fileinfo.Record, error) {
		return r.With(fileinfo.WithTimes(creation, access, write)), nil
	})
}

func (fs *FileSystem) FreeSpace(ctx context.Context) (dokan.FreeSpace, error) {
	free := fs.capacity - fs.used.Load()
	if free < 0 {
		free = 0
	}
	return dokan.FreeSpace{
		FreeBytesAvailable: uint64(free),
		TotalBytes:         uint64(fs.capacity),
		TotalFreeBytes:     uint64(free),
	}, nil
}

var (
	_ dokan.BehaviourOpen              = (*FileSystem)(nil)
	_ dokan.BehaviourMounted           = (*FileSystem)(nil)
	_ dokan.BehaviourUnmounted         = (*FileSystem)(nil)
	_ dokan.BehaviourRead              = (*FileSystem)(nil)
	_ dokan.BehaviourWrite             = (*FileSystem)(nil)
	_ dokan.BehaviourFlush             = (*FileSystem)(nil)
	_ dokan.BehaviourFindFiles         = (*FileSystem)(nil)
	_ dokan.BehaviourFindStreams       = (*FileSystem)(nil)
	_ dokan.BehaviourLock              = (*FileSystem)(nil)
	_ dokan.BehaviourMove              = (*FileSystem)(nil)
	_ dokan.BehaviourDelete            = (*FileSystem)(nil)
	_ dokan.BehaviourGetSecurity       = (*FileSystem)(nil)
	_ dokan.BehaviourSetSecurity       = (*FileSystem)(nil)
	_ dokan.BehaviourTruncate          = (*FileSystem)(nil)
	_ dokan.BehaviourSetEndOfFile      = (*FileSystem)(nil)
	_ dokan.BehaviourSetAllocationSize = (*FileSystem)(nil)
	_ dokan.BehaviourSetAttributes     = (*FileSystem)(nil)
	_ dokan.BehaviourSetTime           = (*FileSystem)(nil)
	_ dokan.BehaviourFreeSpace         = (*FileSystem)(nil)
)
