package memfs_test

import (
	"context"
	"io"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/memfs"
	"github.com/aegistudio/go-dokan/store"
	"github.com/aegistudio/go-dokan/store/memory"
)

func newFileSystem(t *testing.T, opts ...memfs.Option) *memfs.FileSystem {
	fs, err := memfs.New(append([]memfs.Option{
		memfs.WithLogger(logger.Discarder()),
	}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = fs.Release() })
	return fs
}

func open(t *testing.T, fs *memfs.FileSystem, path string) *dokan.RequestContext {
	rc := &dokan.RequestContext{}
	require.NoError(t, fs.Open(context.Background(), path, rc, dokan.CreateRequest{}))
	return rc
}

func TestCreateAndStat(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)

	assert.NoError(fs.CreateEmptyDirectory(ctx, "/docs/", dokan.CreateOptionSet{}, attribute.Set{}))
	assert.NoError(fs.CreateEmptyFile(ctx, "/docs/readme.txt", dokan.CreateOptionSet{}, attribute.Set{}))
	assert.True(errors.Is(fs.CreateEmptyFile(ctx, "/docs/readme.txt",
		dokan.CreateOptionSet{}, attribute.Set{}), dokan.StatusObjectNameCollision))
	assert.True(errors.Is(fs.CreateEmptyFile(ctx, "/missing/a.txt",
		dokan.CreateOptionSet{}, attribute.Set{}), dokan.StatusObjectPathNotFound))

	exists, err := fs.DoesPathExist(ctx, "/docs")
	assert.NoError(err)
	assert.True(exists)
	exists, err = fs.DoesPathExist(ctx, "/nothing")
	assert.NoError(err)
	assert.False(exists)

	record, err := fs.GetInfo(ctx, "/docs/readme.txt")
	assert.NoError(err)
	assert.False(record.IsDirectory())
	assert.True(record.Attributes().Has(attribute.Archive))
	record, err = fs.GetInfo(ctx, "/docs")
	assert.NoError(err)
	assert.True(record.IsDirectory())
}

func TestReadWrite(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a.txt", dokan.CreateOptionSet{}, attribute.Set{}))
	rc := open(t, fs, "/a.txt")

	n, err := fs.Write(ctx, "/a.txt", rc, []byte("hello"), 0, dokan.IOFlags{})
	assert.NoError(err)
	assert.Equal(5, n)
	n, err = fs.Write(ctx, "/a.txt", rc, []byte(" world"), 1234,
		dokan.IOFlags{WriteToEndOfFile: true})
	assert.NoError(err)
	assert.Equal(6, n)
	assert.Equal(int64(11), fs.Used())

	buf := make([]byte, 64)
	n, err = fs.Read(ctx, "/a.txt", rc, buf, 0, dokan.IOFlags{})
	assert.NoError(err)
	assert.Equal("hello world", string(buf[:n]))
	_, err = fs.Read(ctx, "/a.txt", rc, buf, 11, dokan.IOFlags{})
	assert.Equal(io.EOF, err)

	record, err := fs.GetInfo(ctx, "/a.txt")
	assert.NoError(err)
	assert.Equal(uint64(11), record.Size())

	assert.NoError(fs.SetEndOfFile(ctx, "/a.txt", 5))
	assert.Equal(int64(5), fs.Used())
	assert.NoError(fs.SetAllocationSize(ctx, "/a.txt", 100))
	record, _ = fs.GetInfo(ctx, "/a.txt")
	assert.Equal(uint64(5), record.Size())
	assert.NoError(fs.Truncate(ctx, "/a.txt"))
	assert.Equal(int64(0), fs.Used())
}

func TestCapacity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t, memfs.WithCapacity(8))
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a", dokan.CreateOptionSet{}, attribute.Set{}))
	rc := open(t, fs, "/a")

	_, err := fs.Write(ctx, "/a", rc, []byte("12345678"), 0, dokan.IOFlags{})
	assert.NoError(err)
	_, err = fs.Write(ctx, "/a", rc, []byte("9"), 8, dokan.IOFlags{})
	assert.True(errors.Is(err, dokan.StatusDiskFull))

	space, err := fs.FreeSpace(ctx)
	assert.NoError(err)
	assert.Equal(uint64(0), space.FreeBytesAvailable)
	assert.Equal(uint64(8), space.TotalBytes)
}

func TestWriteOffsetOverflow(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a.txt", dokan.CreateOptionSet{}, attribute.Set{}))
	rc := open(t, fs, "/a.txt")

	_, err := fs.Write(ctx, "/a.txt", rc, make([]byte, 10), math.MaxInt64-2, dokan.IOFlags{})
	assert.True(errors.Is(err, dokan.StatusInvalidParameter))
	_, err = fs.Write(ctx, "/a.txt", rc, []byte("x"), math.MaxInt64-1, dokan.IOFlags{})
	assert.True(errors.Is(err, dokan.StatusDiskFull))

	// The content is still usable after the rejected writes.
	n, err := fs.Write(ctx, "/a.txt", rc, []byte("abc"), 0, dokan.IOFlags{})
	assert.NoError(err)
	assert.Equal(3, n)
	buf := make([]byte, 8)
	n, err = fs.Read(ctx, "/a.txt", rc, buf, 0, dokan.IOFlags{})
	assert.NoError(err)
	assert.Equal("abc", string(buf[:n]))
	assert.NoError(fs.SetEndOfFile(ctx, "/a.txt", 1))
	assert.Equal(int64(1), fs.Used())
}

type closeCounter struct {
	store.Store
	closed int
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.Store.Close()
}

func TestReleaseClosesStore(t *testing.T) {
	assert := assert.New(t)
	records := &closeCounter{Store: store.New(memory.New())}
	fs, err := memfs.New(memfs.WithStore(records),
		memfs.WithLogger(logger.Discarder()))
	require.NoError(t, err)

	rc := &dokan.RequestContext{}
	require.NoError(t, fs.Open(context.Background(), "/", rc, dokan.CreateRequest{}))
	assert.NoError(fs.Close(context.Background(), "/", rc))
	assert.Equal(0, records.closed)
	assert.NoError(fs.Release())
	assert.Equal(1, records.closed)
}

func TestFindFiles(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	for _, name := range []string{"/a.txt", "/B.TXT", "/c.go"} {
		require.NoError(t, fs.CreateEmptyFile(ctx, name, dokan.CreateOptionSet{}, attribute.Set{}))
	}
	require.NoError(t, fs.CreateEmptyDirectory(ctx, "/sub/", dokan.CreateOptionSet{}, attribute.Set{}))

	records, err := fs.FindFilesWithPattern(ctx, "/", "*", true)
	assert.NoError(err)
	assert.Len(records, 4)

	var names []string
	records, err = fs.FindFilesWithPattern(ctx, "/", "*.txt", true)
	assert.NoError(err)
	for _, record := range records {
		names = append(names, record.DisplayName())
	}
	assert.ElementsMatch([]string{"a.txt", "B.TXT"}, names)

	records, err = fs.FindFilesWithPattern(ctx, "/", "*.txt", false)
	assert.NoError(err)
	assert.Len(records, 1)

	_, err = fs.FindFilesWithPattern(ctx, "/c.go", "*", true)
	assert.True(errors.Is(err, dokan.StatusNotADirectory))
}

func TestMove(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyDirectory(ctx, "/dir/", dokan.CreateOptionSet{}, attribute.Set{}))
	require.NoError(t, fs.CreateEmptyFile(ctx, "/dir/a", dokan.CreateOptionSet{}, attribute.Set{}))
	require.NoError(t, fs.CreateEmptyFile(ctx, "/b", dokan.CreateOptionSet{}, attribute.Set{}))
	rc := open(t, fs, "/dir/a")
	_, err := fs.Write(ctx, "/dir/a", rc, []byte("data"), 0, dokan.IOFlags{})
	require.NoError(t, err)

	assert.NoError(fs.Move(ctx, "/dir", "/moved", false))
	exists, _ := fs.DoesPathExist(ctx, "/dir/a")
	assert.False(exists)
	record, err := fs.GetInfo(ctx, "/moved/a")
	assert.NoError(err)
	assert.Equal(uint64(4), record.Size())

	// The open handle keeps reading after the rename.
	buf := make([]byte, 4)
	n, err := fs.Read(ctx, "/moved/a", rc, buf, 0, dokan.IOFlags{})
	assert.NoError(err)
	assert.Equal("data", string(buf[:n]))

	assert.True(errors.Is(fs.Move(ctx, "/moved/a", "/b", false), dokan.StatusObjectNameCollision))
	assert.NoError(fs.Move(ctx, "/moved/a", "/b", true))
	assert.True(errors.Is(fs.Move(ctx, "/b", "/moved", true), dokan.StatusAccessDenied))
	assert.True(errors.Is(fs.Move(ctx, "/moved", "/moved/inner", false), dokan.StatusInvalidParameter))
	assert.True(errors.Is(fs.Move(ctx, "/b", "/none/b", false), dokan.StatusObjectPathNotFound))
	assert.True(errors.Is(fs.Move(ctx, "/none", "/other", false), dokan.StatusObjectNameNotFound))
}

func TestDelete(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyDirectory(ctx, "/dir/", dokan.CreateOptionSet{}, attribute.Set{}))
	require.NoError(t, fs.CreateEmptyFile(ctx, "/dir/a", dokan.CreateOptionSet{}, attribute.Set{}))
	dirRC := open(t, fs, "/dir/")
	fileRC := open(t, fs, "/dir/a")

	assert.True(errors.Is(fs.DeleteDirectory(ctx, "/dir/", dirRC), dokan.StatusDirectoryNotEmpty))
	assert.True(errors.Is(fs.DeleteDirectory(ctx, "/", dirRC), dokan.StatusAccessDenied))
	assert.NoError(fs.DeleteFile(ctx, "/dir/a", fileRC))

	// Nothing is removed until cleanup with delete on close.
	assert.NoError(fs.Cleanup(ctx, "/dir/a", fileRC))
	exists, _ := fs.DoesPathExist(ctx, "/dir/a")
	assert.True(exists)
	fileRC.SetDeleteOnClose(true)
	assert.NoError(fs.Cleanup(ctx, "/dir/a", fileRC))
	exists, _ = fs.DoesPathExist(ctx, "/dir/a")
	assert.False(exists)

	assert.NoError(fs.DeleteDirectory(ctx, "/dir/", dirRC))
	dirRC.SetDeleteOnClose(true)
	assert.NoError(fs.Cleanup(ctx, "/dir/", dirRC))
	exists, _ = fs.DoesPathExist(ctx, "/dir")
	assert.False(exists)
}

func TestReadOnlyCannotDelete(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/ro", dokan.CreateOptionSet{},
		attribute.Of(attribute.ReadOnly)))
	rc := open(t, fs, "/ro")
	assert.True(errors.Is(fs.DeleteFile(ctx, "/ro", rc), dokan.StatusCannotDelete))
	assert.True(errors.Is(fs.Open(ctx, "/ro", &dokan.RequestContext{}, dokan.CreateRequest{
		Options: dokan.CreateOptionSet{}.With(dokan.OptionDeleteOnClose),
	}), dokan.StatusCannotDelete))

	assert.NoError(fs.SetAttributes(ctx, "/ro", attribute.Of(attribute.Hidden)))
	record, _ := fs.GetInfo(ctx, "/ro")
	assert.Equal(attribute.Of(attribute.Hidden), record.Attributes())
	assert.NoError(fs.DeleteFile(ctx, "/ro", rc))
}

func TestSetAttributesKeepsDirectory(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyDirectory(ctx, "/d/", dokan.CreateOptionSet{}, attribute.Set{}))
	assert.NoError(fs.SetAttributes(ctx, "/d/", attribute.Of(attribute.Hidden)))
	record, err := fs.GetInfo(ctx, "/d")
	assert.NoError(err)
	assert.True(record.IsDirectory())
	assert.True(record.Attributes().Has(attribute.Hidden))
}

func TestSetTime(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a", dokan.CreateOptionSet{}, attribute.Set{}))
	before, _ := fs.GetInfo(ctx, "/a")
	assert.NoError(fs.SetTime(ctx, "/a", 1000, 0, 3000))
	after, _ := fs.GetInfo(ctx, "/a")
	assert.Equal(uint64(1000), after.CreationTime())
	assert.Equal(before.AccessTime(), after.AccessTime())
	assert.Equal(uint64(3000), after.WriteTime())
}

func TestLocks(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a", dokan.CreateOptionSet{}, attribute.Set{}))
	assert.NoError(fs.Lock(ctx, "/a", 0, 10))
	assert.True(errors.Is(fs.Lock(ctx, "/a", 5, 10), dokan.StatusLockNotGranted))
	assert.True(errors.Is(fs.Unlock(ctx, "/a", 0, 5), dokan.StatusRangeNotLocked))
	assert.NoError(fs.Unlock(ctx, "/a", 0, 10))
	assert.NoError(fs.Lock(ctx, "/a", 5, 10))
}

func TestSecurity(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a", dokan.CreateOptionSet{}, attribute.Set{}))

	_, err := fs.GetSecurity(ctx, "/a", dokan.SecurityInformationSet{})
	assert.True(errors.Is(err, dokan.StatusNotImplemented))
	descriptor := []byte{1, 0, 4, 0x80}
	assert.NoError(fs.SetSecurity(ctx, "/a", dokan.SecurityInformationSet{}, descriptor))
	descriptor[0] = 9
	result, err := fs.GetSecurity(ctx, "/a", dokan.SecurityInformationSet{})
	assert.NoError(err)
	assert.Equal([]byte{1, 0, 4, 0x80}, result)
}

func TestStreams(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	fs := newFileSystem(t)
	require.NoError(t, fs.CreateEmptyFile(ctx, "/a", dokan.CreateOptionSet{}, attribute.Set{}))
	streams, err := fs.FindStreams(ctx, "/a")
	assert.NoError(err)
	assert.Equal([]dokan.Stream{{Name: "::$DATA"}}, streams)
	streams, err = fs.FindStreams(ctx, "/")
	assert.NoError(err)
	assert.Empty(streams)
}
