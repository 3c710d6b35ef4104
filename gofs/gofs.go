package gofs

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/filetime"
	"github.com/aegistudio/go-dokan/pathlock"
	"github.com/aegistudio/go-dokan/pathnorm"
	"github.com/aegistudio/go-dokan/procsd"
)

type File interface {
	io.ReadWriteCloser
	io.ReaderAt
	io.WriterAt
	io.Seeker

	Readdir(count int) ([]os.FileInfo, error)
	Stat() (os.FileInfo, error)
	Sync() error
	Truncate(size int64) error
}

type FileSystem interface {
	OpenFile(name string, flag int, perm os.FileMode) (File, error)
	Mkdir(name string, perm os.FileMode) error
	Stat(name string) (os.FileInfo, error)
	Rename(source, target string) error
	Remove(name string) error
}

// FileSystemChtimes is implemented by the file systems able
// to update the timestamps of a file.
type FileSystemChtimes interface {
	FileSystem
	Chtimes(name string, atime, mtime time.Time) error
}

// FileSystemChmod is implemented by the file systems able to
// update the permission bits of a file.
type FileSystemChmod interface {
	FileSystem
	Chmod(name string, mode os.FileMode) error
}

type fileHandle struct {
	lock  *pathlock.Lock
	file  File
	flags int
	mtx   sync.RWMutex

	evaluatedIndex uint64
}

type fileSystem struct {
	inner   FileSystem
	handles sync.Map
	next    atomic.Uint64
	locker  pathlock.Locker
}

func (handle *fileHandle) reopenFile(fs *fileSystem) (File, error) {
	return fs.inner.OpenFile(handle.lock.Path(), handle.flags, os.FileMode(0))
}

func attributesFromFileMode(mode os.FileMode) attribute.Set {
	var result []attribute.FileAttribute
	if mode.IsDir() {
		result = append(result, attribute.Directory)
	}
	if (uint32(mode.Perm()) & 0200) == 0 {
		result = append(result, attribute.ReadOnly)
	}
	return attribute.Of(result...)
}

func fileModeFromAttributes(attributes attribute.Set, dir bool) os.FileMode {
	mode := os.FileMode(0444)
	if !attributes.Has(attribute.ReadOnly) {
		mode |= os.FileMode(0222)
	}
	if dir {
		mode |= os.FileMode(0111)
	}
	return mode
}

func evaluateIndexNumber(p string) uint64 {
	// XXX: we evaluate the index number for a file by hashing,
	// so each file is identified by its path. Since we will not
	// support open by file ID in this scenario, it is okay to
	// simply map a path to its hash value.
	data := sha256.Sum256([]byte(p))
	a := binary.BigEndian.Uint64(data[0:8])
	b := binary.BigEndian.Uint64(data[8:16])
	c := binary.BigEndian.Uint64(data[16:24])
	d := binary.BigEndian.Uint64(data[24:32])
	return a ^ b ^ c ^ d
}

func recordFromStat(
	path string, source os.FileInfo, evaluatedIndexNumber uint64,
) fileinfo.Record {
	attributes := attributesFromFileMode(source.Mode())
	size := uint64(source.Size())
	if source.IsDir() {
		size = 0
	}
	modTime := filetime.Timestamp(source.ModTime())
	creation, access, write := modTime, modTime, modTime

	// We can extract more data from it if the platform keeps
	// the other timestamps in the stat result.
	if c, a, w, ok := statTimes(source); ok {
		creation, access, write = c, a, w
	}
	return fileinfo.New(path,
		fileinfo.WithAttributes(attributes),
		fileinfo.WithSize(size),
		fileinfo.WithIndex(evaluatedIndexNumber),
		fileinfo.WithTimes(creation, access, write),
	)
}

func isNotExist(err error) bool {
	return os.IsNotExist(err) ||
		errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, dokan.StatusObjectNameNotFound)
}

func isExist(err error) bool {
	return os.IsExist(err) ||
		errors.Is(err, os.ErrExist) ||
		errors.Is(err, dokan.StatusObjectNameCollision)
}

func (fs *fileSystem) DoesPathExist(ctx context.Context, path string) (bool, error) {
	_, err := fs.inner.Stat(pathnorm.Key(path))
	if err == nil {
		return true, nil
	}
	if isNotExist(err) {
		return false, nil
	}
	return false, err
}

func (fs *fileSystem) GetInfo(ctx context.Context, path string) (fileinfo.Record, error) {
	key := pathnorm.Key(path)
	info, err := fs.inner.Stat(key)
	if err != nil {
		return fileinfo.Record{}, err
	}
	return recordFromStat(key, info, evaluateIndexNumber(key)), nil
}

func (fs *fileSystem) CreateEmptyFile(
	ctx context.Context, path string,
	options dokan.CreateOptionSet, attributes attribute.Set,
) error {
	file, err := fs.inner.OpenFile(pathnorm.Key(path),
		os.O_RDWR|os.O_CREATE|os.O_EXCL,
		fileModeFromAttributes(attributes, false))
	if err != nil {
		if isExist(err) {
			return dokan.StatusObjectNameCollision
		}
		return err
	}
	return file.Close()
}

func (fs *fileSystem) CreateEmptyDirectory(
	ctx context.Context, path string,
	options dokan.CreateOptionSet, attributes attribute.Set,
) error {
	err := fs.inner.Mkdir(pathnorm.Key(path),
		fileModeFromAttributes(attributes, true))
	if isExist(err) {
		return dokan.StatusObjectNameCollision
	}
	return err
}

// accessFlags translates the granted access into the flags
// to open the inner file with.
func accessFlags(access dokan.FileAccessSet) int {
	all := access.Has(dokan.AccessGenericAll) ||
		access.Has(dokan.AccessMaximumAllowed)
	read := all || access.Has(dokan.AccessGenericRead) ||
		access.Contains(dokan.AccessReadData)
	write := all || access.Has(dokan.AccessGenericWrite) ||
		access.Contains(dokan.AccessWriteData)
	appendOnly := !write && access.Contains(dokan.AccessAppendData)
	switch {
	case appendOnly && read:
		return os.O_RDWR | os.O_APPEND
	case appendOnly:
		return os.O_WRONLY | os.O_APPEND
	case read && write:
		return os.O_RDWR
	case write:
		return os.O_WRONLY
	}
	return os.O_RDONLY
}

// Open locks the path and opens the inner file.
//
// The path is write locked when the handle might be used for
// deleting or renaming the file, and the opening fails with
// a sharing violation when the path is in use.
func (fs *fileSystem) Open(
	ctx context.Context, path string,
	rc *dokan.RequestContext, req dokan.CreateRequest,
) error {
	if req.Options.Has(dokan.OptionOpenByFileID) {
		return dokan.StatusInvalidParameter
	}
	lockFunc := fs.locker.RLock
	if req.Options.Has(dokan.OptionDeleteOnClose) ||
		req.Access.Contains(dokan.AccessDelete) ||
		req.Disposition == dokan.FileSupersede {
		lockFunc = fs.locker.Lock
	}
	lock := lockFunc(path)
	if lock == nil {
		return dokan.StatusSharingViolation
	}
	opened := false
	defer func() {
		if !opened {
			lock.Unlock()
		}
	}()

	flags := accessFlags(req.Access)
	if rc.IsDirectory() {
		flags = os.O_RDONLY
	}
	file, err := fs.inner.OpenFile(lock.Path(), flags, os.FileMode(0))
	if err != nil {
		return err
	}

	// Downgrade the lock to reader lock if it is the file
	// superseded, and other processes can access it with
	// such flag from now on.
	if req.Disposition == dokan.FileSupersede {
		lock.Downgrade()
	}
	handle := &fileHandle{
		lock:           lock,
		file:           file,
		flags:          flags,
		evaluatedIndex: evaluateIndexNumber(lock.Path()),
	}
	id := fs.next.Add(1)
	fs.handles.Store(id, handle)
	rc.SetContext(id)
	opened = true
	return nil
}

func (fs *fileSystem) load(rc *dokan.RequestContext) (*fileHandle, error) {
	obj, ok := fs.handles.Load(rc.Context())
	if !ok {
		return nil, dokan.StatusInvalidHandle
	}
	return obj.(*fileHandle), nil
}

func (handle *fileHandle) lockChecked() error {
	handle.mtx.RLock()
	valid := false
	defer func() {
		if !valid {
			handle.mtx.RUnlock()
		}
	}()
	if handle.file == nil {
		return dokan.StatusInvalidHandle
	}
	valid = true
	return nil
}

func (handle *fileHandle) unlockChecked() {
	handle.mtx.RUnlock()
}

func (fs *fileSystem) Cleanup(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	if !rc.DeleteOnClose() {
		return nil
	}
	handle, err := fs.load(rc)
	if err != nil {
		// The file has just been created and nobody has
		// opened it, which happens when the opening fails.
		lock := fs.locker.Lock(path)
		if lock == nil {
			return dokan.StatusSharingViolation
		}
		defer lock.Unlock()
		return fs.inner.Remove(lock.Path())
	}
	if !handle.lock.IsWrite() {
		return dokan.StatusAccessDenied
	}
	handle.mtx.Lock()
	defer handle.mtx.Unlock()
	if handle.file == nil {
		return nil
	}
	_ = handle.file.Close()
	handle.file = nil
	return fs.inner.Remove(handle.lock.Path())
}

func (fs *fileSystem) Close(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	object, ok := fs.handles.LoadAndDelete(rc.Context())
	if !ok {
		return nil
	}
	rc.SetContext(0)
	handle := object.(*fileHandle)
	handle.mtx.Lock()
	defer handle.mtx.Unlock()
	defer handle.lock.Unlock()
	if handle.file != nil {
		err := handle.file.Close()
		handle.file = nil
		return err
	}
	return nil
}

var _ dokan.BehaviourBase = (*fileSystem)(nil)

var _ dokan.BehaviourOpen = (*fileSystem)(nil)

func (fs *fileSystem) Read(
	ctx context.Context, path string, rc *dokan.RequestContext,
	buf []byte, offset int64, flags dokan.IOFlags,
) (int, error) {
	handle, err := fs.load(rc)
	if err != nil {
		return 0, err
	}
	if err := handle.lockChecked(); err != nil {
		return 0, err
	}
	defer handle.unlockChecked()
	// No matter random access or append only file handle
	// should support random read.
	return handle.file.ReadAt(buf, offset)
}

var _ dokan.BehaviourRead = (*fileSystem)(nil)

// FileWriteEx is the write interface related to Windows style
// writing. Without this interface, we will be imitating the
// write behaviour of file, making it behaves strangely under
// certain racing circumstances.
type FileWriteEx interface {
	File

	// Append means the data will always be written to the
	// tail of the file, regardless of the file's current
	// open mode.
	Append([]byte) (int, error)

	// ConstrainedWriteAt means the data will be written at
	// specified offset and the data within the file's size
	// range will be copied out.
	ConstrainedWriteAt([]byte, int64) (int, error)
}

type fileMimicWrite struct {
	File
	flags int
}

func (f *fileMimicWrite) Append(b []byte) (int, error) {
	if f.flags&os.O_APPEND != 0 {
		return f.Write(b)
	}
	// BUG: since we imitates the append behaviour by fetching
	// the file size first and then appending to it, two
	// concurrent append operations will overlap each other.
	fileInfo, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return f.WriteAt(b, fileInfo.Size())
}

func (f *fileMimicWrite) ConstrainedWriteAt(
	b []byte, offset int64,
) (int, error) {
	// BUG: this is also a buggy part when a concurrent write
	// extends the file between the stat and the write.
	fileInfo, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := fileInfo.Size()
	if offset >= size {
		return 0, nil
	}
	if offset+int64(len(b)) > size {
		b = b[:size-offset]
	}
	return f.WriteAt(b, offset)
}

// Write writes the open file. Paging writes are constrained
// within the current size of the file.
func (fs *fileSystem) Write(
	ctx context.Context, path string, rc *dokan.RequestContext,
	b []byte, offset int64, flags dokan.IOFlags,
) (int, error) {
	handle, err := fs.load(rc)
	if err != nil {
		return 0, err
	}
	if (handle.flags&os.O_APPEND != 0) && !flags.WriteToEndOfFile {
		// You may not write to an append-only file.
		return 0, dokan.StatusAccessDenied
	}
	if err := handle.lockChecked(); err != nil {
		return 0, err
	}
	defer handle.unlockChecked()
	var writer FileWriteEx
	if obj, ok := handle.file.(FileWriteEx); ok {
		writer = obj
	} else {
		writer = &fileMimicWrite{
			File:  handle.file,
			flags: handle.flags,
		}
	}
	switch {
	case flags.WriteToEndOfFile && flags.PagingIO:
		// Nothing to do here.
		return 0, nil
	case flags.WriteToEndOfFile:
		return writer.Append(b)
	case flags.PagingIO:
		return writer.ConstrainedWriteAt(b, offset)
	}
	return handle.file.WriteAt(b, offset)
}

var _ dokan.BehaviourWrite = (*fileSystem)(nil)

func (fs *fileSystem) FlushFileBuffers(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	handle, err := fs.load(rc)
	if err != nil {
		return err
	}
	if err := handle.lockChecked(); err != nil {
		return err
	}
	defer handle.unlockChecked()
	return handle.file.Sync()
}

var _ dokan.BehaviourFlush = (*fileSystem)(nil)

func (fs *fileSystem) readdir(key string) ([]os.FileInfo, error) {
	f, err := fs.inner.OpenFile(key, os.O_RDONLY, os.FileMode(0))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return f.Readdir(-1)
}

func (fs *fileSystem) FindFilesWithPattern(
	ctx context.Context, path, pattern string, ignoreCase bool,
) ([]fileinfo.Record, error) {
	key := pathnorm.Key(path)
	fileInfos, err := fs.readdir(key)
	if err != nil {
		return nil, err
	}
	var result []fileinfo.Record
	for _, fileInfo := range fileInfos {
		if !pathnorm.Match(pattern, fileInfo.Name(), ignoreCase) {
			continue
		}
		result = append(result, recordFromStat(
			pathnorm.Join(key, fileInfo.Name(), fileInfo.IsDir()),
			fileInfo, 0))
	}
	return result, nil
}

var _ dokan.BehaviourFindFiles = (*fileSystem)(nil)

func (fs *fileSystem) canDelete(rc *dokan.RequestContext) error {
	handle, err := fs.load(rc)
	if err != nil {
		return err
	}
	if err := handle.lockChecked(); err != nil {
		return err
	}
	defer handle.unlockChecked()
	if !handle.lock.IsWrite() {
		return dokan.StatusAccessDenied
	}
	fileInfo, err := handle.file.Stat()
	if err != nil {
		return err
	}
	if !fileInfo.IsDir() {
		return nil
	}
	fileInfos, err := fs.readdir(handle.lock.Path())
	if err != nil {
		return err
	}
	if len(fileInfos) > 0 {
		return dokan.StatusDirectoryNotEmpty
	}
	return nil
}

func (fs *fileSystem) DeleteFile(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	return fs.canDelete(rc)
}

func (fs *fileSystem) DeleteDirectory(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	return fs.canDelete(rc)
}

var _ dokan.BehaviourDelete = (*fileSystem)(nil)

// writer finds the handle holding the writer lock of the path,
// which is the handle a rename is requested through.
func (fs *fileSystem) writer(key string) *fileHandle {
	var result *fileHandle
	fs.handles.Range(func(_, obj interface{}) bool {
		handle := obj.(*fileHandle)
		handle.mtx.RLock()
		found := handle.lock.IsWrite() && handle.lock.Path() == key
		handle.mtx.RUnlock()
		if found {
			result = handle
		}
		return !found
	})
	return result
}

func (fs *fileSystem) Move(
	ctx context.Context, source, target string, replaceIfExist bool,
) error {
	handle := fs.writer(pathnorm.Key(source))
	if handle == nil {
		return dokan.StatusAccessDenied
	}
	handle.mtx.Lock()
	defer handle.mtx.Unlock()
	if handle.file == nil {
		return dokan.StatusInvalidHandle
	}

	// Try to grab the target path's lock. And upon exit
	// either the source or the target lock will be released.
	newLock := fs.locker.Lock(target)
	if newLock == nil {
		return dokan.StatusSharingViolation
	}
	target = newLock.Path()
	defer func() { newLock.Unlock() }()

	// Check for the rename precondition so that we could
	// avoid performing sophiscated operations.
	if !replaceIfExist {
		fileInfo, err := fs.inner.Stat(target)
		if err != nil && !isNotExist(err) {
			return err
		}
		if fileInfo != nil {
			return dokan.StatusObjectNameCollision
		}
	}

	// After exit, the remaining file will be reopened and
	// seek to its orignal offset, so that we can continue
	// our operations.
	fileInfo, err := handle.file.Stat()
	if err != nil {
		return err
	}
	var pos *int64
	if fileInfo.Mode().IsRegular() {
		value, err := handle.file.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		pos = new(int64)
		*pos = value
	}
	_ = handle.file.Close()
	handle.file = nil
	defer func() {
		f, err := handle.reopenFile(fs)
		if err != nil {
			return
		}
		defer func() {
			if f != nil {
				_ = f.Close()
			}
		}()
		if pos != nil {
			if _, err := f.Seek(*pos, io.SeekStart); err != nil {
				return
			}
		}
		handle.file, f = f, nil
	}()

	// Attempt to perform the rename operation now.
	if err := fs.inner.Rename(handle.lock.Path(), target); err != nil {
		return err
	}
	handle.lock, newLock = newLock, handle.lock
	handle.evaluatedIndex = evaluateIndexNumber(target)
	return nil
}

var _ dokan.BehaviourMove = (*fileSystem)(nil)

func (fs *fileSystem) GetSecurity(
	ctx context.Context, path string, kind dokan.SecurityInformationSet,
) ([]byte, error) {
	// XXX: this is a mock up, the file is considered to be
	// owned by current process, so it is okay to return the
	// security descriptor of the process.
	return procsd.Load()
}

var _ dokan.BehaviourGetSecurity = (*fileSystem)(nil)

// openPath opens the path for updating its size, apart from
// the handle the request comes from.
func (fs *fileSystem) openPath(path string, flag int) (File, error) {
	return fs.inner.OpenFile(pathnorm.Key(path), os.O_WRONLY|flag, os.FileMode(0))
}

func (fs *fileSystem) Truncate(ctx context.Context, path string) error {
	f, err := fs.openPath(path, os.O_TRUNC)
	if err != nil {
		return err
	}
	return f.Close()
}

var _ dokan.BehaviourTruncate = (*fileSystem)(nil)

func (fs *fileSystem) SetEndOfFile(ctx context.Context, path string, offset int64) error {
	f, err := fs.openPath(path, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Truncate(offset)
}

var _ dokan.BehaviourSetEndOfFile = (*fileSystem)(nil)

// FileTruncateEx is the truncate interface related to Windows
// style opertations. Without this interface, we will be
// imitating the set allocation size behaviour of file, making
// it behaves stragely under certain racing circumstances.
type FileTruncateEx interface {
	File

	// Shrink means it will not expand the file size if a size
	// greater than the file size is passed.
	Shrink(newSize int64) error
}

type fileMimicTruncate struct {
	File
}

func (f *fileMimicTruncate) Shrink(newSize int64) error {
	fileInfo, err := f.Stat()
	if err != nil {
		return err
	}
	if fileInfo.Size() > newSize {
		return f.Truncate(newSize)
	}
	return nil
}

func (fs *fileSystem) SetAllocationSize(ctx context.Context, path string, size int64) error {
	f, err := fs.openPath(path, 0)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	var shrinker FileTruncateEx
	if obj, ok := f.(FileTruncateEx); ok {
		shrinker = obj
	} else {
		shrinker = &fileMimicTruncate{File: f}
	}
	return shrinker.Shrink(size)
}

var _ dokan.BehaviourSetAllocationSize = (*fileSystem)(nil)

// SetAttributes only maps the read only attribute onto the
// permission bits, the others are not kept.
func (fs *fileSystem) SetAttributes(
	ctx context.Context, path string, attributes attribute.Set,
) error {
	chmod, ok := fs.inner.(FileSystemChmod)
	if !ok {
		return dokan.StatusAccessDenied
	}
	key := pathnorm.Key(path)
	fileInfo, err := fs.inner.Stat(key)
	if err != nil {
		return err
	}
	if attributesFromFileMode(fileInfo.Mode()).Has(attribute.ReadOnly) ==
		attributes.Has(attribute.ReadOnly) {
		return nil
	}
	return chmod.Chmod(key, fileModeFromAttributes(attributes, fileInfo.IsDir()))
}

var _ dokan.BehaviourSetAttributes = (*fileSystem)(nil)

// SetTime updates the access and write time, the creation
// time is not kept by the inner file system.
func (fs *fileSystem) SetTime(
	ctx context.Context, path string, creation, access, write uint64,
) error {
	chtimes, ok := fs.inner.(FileSystemChtimes)
	if !ok {
		return dokan.StatusAccessDenied
	}
	if access == 0 && write == 0 {
		return nil
	}
	key := pathnorm.Key(path)
	fileInfo, err := fs.inner.Stat(key)
	if err != nil {
		return err
	}
	record := recordFromStat(key, fileInfo, 0)
	if access == 0 {
		access = record.AccessTime()
	}
	if write == 0 {
		write = record.WriteTime()
	}
	return chtimes.Chtimes(key, filetime.Time(access), filetime.Time(write))
}

var _ dokan.BehaviourSetTime = (*fileSystem)(nil)

// New creates the provider over the inner file system.
func New(fs FileSystem) dokan.BehaviourBase {
	return &fileSystem{
		inner: fs,
	}
}
