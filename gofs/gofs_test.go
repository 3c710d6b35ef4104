package gofs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/gofs"
	"github.com/aegistudio/go-dokan/internal/logger"
)

const (
	readWrite = uint32(dokan.AccessReadData | dokan.AccessWriteData)
	deletion  = uint32(dokan.AccessReadData | dokan.AccessDelete)
)

func newMirror(t *testing.T) (*dokan.Dispatcher, string) {
	root := t.TempDir()
	fs := gofs.New(gofs.Dir(root))
	return dokan.NewDispatcher(fs, dokan.WithLogger(logger.Discarder())), root
}

func open(
	d *dokan.Dispatcher, name string, access, disposition, options uint32,
) (*dokan.NativeFileInfo, dokan.Status) {
	info := &dokan.NativeFileInfo{}
	return info, d.Create(name, access, 0, 7, disposition, options, info)
}

func release(d *dokan.Dispatcher, name string, info *dokan.NativeFileInfo) {
	d.Cleanup(name, info)
	d.Close(name, info)
}

func TestMirrorReadWrite(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)

	info, status := open(d, `\hello.txt`, readWrite, uint32(dokan.FileCreate), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	var n uint32
	assert.Equal(dokan.StatusSuccess, d.Write(`\hello.txt`, []byte("hello"), &n, 0, info))
	assert.Equal(uint32(5), n)
	info.WriteToEndOfFile = 1
	assert.Equal(dokan.StatusSuccess, d.Write(`\hello.txt`, []byte(" world"), &n, -1, info))
	info.WriteToEndOfFile = 0

	buf := make([]byte, 32)
	assert.Equal(dokan.StatusSuccess, d.Read(`\hello.txt`, buf, &n, 0, info))
	assert.Equal("hello world", string(buf[:n]))
	assert.Equal(dokan.StatusSuccess, d.Flush(`\hello.txt`, info))

	// Paging writes never extend the file.
	info.PagingIO = 1
	assert.Equal(dokan.StatusSuccess, d.Write(`\hello.txt`, []byte("WORLD!!"), &n, 6, info))
	assert.Equal(uint32(5), n)
	info.PagingIO = 0
	release(d, `\hello.txt`, info)

	data, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	assert.NoError(err)
	assert.Equal("hello WORLD", string(data))
}

func TestMirrorDirectory(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)

	dir, status := open(d, `\sub`, readWrite, uint32(dokan.FileCreate), 0x01)
	require.Equal(t, dokan.StatusSuccess, status)
	release(d, `\sub`, dir)
	for _, name := range []string{`\sub\a.txt`, `\sub\b.log`} {
		info, status := open(d, name, readWrite, uint32(dokan.FileCreate), 0)
		require.Equal(t, dokan.StatusSuccess, status)
		release(d, name, info)
	}
	stat, err := os.Stat(filepath.Join(root, "sub"))
	assert.NoError(err)
	assert.True(stat.IsDir())

	dir, status = open(d, `\sub`, readWrite, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	assert.Equal(uint8(1), dir.IsDirectory)
	var names []string
	fill := func(data *fileinfo.FindData) bool {
		names = append(names, fileinfo.UTF16ToString(data.FileName[:]))
		return false
	}
	assert.Equal(dokan.StatusSuccess, d.FindFilesWithPattern(`\sub`, "*.TXT", fill, dir))
	assert.Equal([]string{"a.txt"}, names)
	release(d, `\sub`, dir)

	// A directory with entries cannot be removed.
	dir, status = open(d, `\sub`, deletion, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	dir.DeleteOnClose = 1
	assert.Equal(dokan.StatusDirectoryNotEmpty, d.DeleteDirectory(`\sub`, dir))
	dir.DeleteOnClose = 0
	release(d, `\sub`, dir)
}

func TestMirrorDelete(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0644))

	// A handle opened without delete access cannot delete.
	reader, status := open(d, `\a.txt`, readWrite, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	reader.DeleteOnClose = 1
	assert.Equal(dokan.StatusAccessDenied, d.DeleteFile(`\a.txt`, reader))
	reader.DeleteOnClose = 0

	// Nor can the file be opened for deletion while in use.
	_, status = open(d, `\a.txt`, deletion, uint32(dokan.FileOpen), 0)
	assert.Equal(dokan.StatusSharingViolation, status)
	release(d, `\a.txt`, reader)

	deleter, status := open(d, `\a.txt`, deletion, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	deleter.DeleteOnClose = 1
	assert.Equal(dokan.StatusSuccess, d.DeleteFile(`\a.txt`, deleter))
	release(d, `\a.txt`, deleter)

	_, err := os.Stat(filepath.Join(root, "a.txt"))
	assert.True(os.IsNotExist(err))
}

func TestMirrorMove(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("content"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("other"), 0644))

	info, status := open(d, `\a.txt`, deletion, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	assert.Equal(dokan.StatusObjectNameCollision, d.MoveFile(`\a.txt`, `\b.txt`, false, info))
	assert.Equal(dokan.StatusSuccess, d.MoveFile(`\a.txt`, `\c.txt`, false, info))

	// The handle keeps working under the new name.
	buf := make([]byte, 16)
	var n uint32
	assert.Equal(dokan.StatusSuccess, d.Read(`\c.txt`, buf, &n, 0, info))
	assert.Equal("content", string(buf[:n]))
	release(d, `\c.txt`, info)

	_, err := os.Stat(filepath.Join(root, "a.txt"))
	assert.True(os.IsNotExist(err))
	data, err := os.ReadFile(filepath.Join(root, "c.txt"))
	assert.NoError(err)
	assert.Equal("content", string(data))

	// Moving through a handle without delete access fails.
	info, _ = open(d, `\c.txt`, readWrite, uint32(dokan.FileOpen), 0)
	assert.Equal(dokan.StatusAccessDenied, d.MoveFile(`\c.txt`, `\d.txt`, false, info))
	release(d, `\c.txt`, info)
}

func TestMirrorAppendOnly(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)
	require.NoError(t, os.WriteFile(filepath.Join(root, "log"), []byte("1"), 0644))

	info, status := open(d, `\log`, uint32(dokan.AccessAppendData), uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	var n uint32
	assert.Equal(dokan.StatusAccessDenied, d.Write(`\log`, []byte("2"), &n, 0, info))
	info.WriteToEndOfFile = 1
	assert.Equal(dokan.StatusSuccess, d.Write(`\log`, []byte("2"), &n, 0, info))
	release(d, `\log`, info)

	data, err := os.ReadFile(filepath.Join(root, "log"))
	assert.NoError(err)
	assert.Equal("12", string(data))
}

func TestMirrorOverwriteAndSize(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)
	path := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	info, status := open(d, `\f`, readWrite, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	assert.Equal(dokan.StatusSuccess, d.SetAllocationSize(`\f`, 100, info))
	stat, _ := os.Stat(path)
	assert.Equal(int64(10), stat.Size())
	assert.Equal(dokan.StatusSuccess, d.SetAllocationSize(`\f`, 4, info))
	stat, _ = os.Stat(path)
	assert.Equal(int64(4), stat.Size())
	assert.Equal(dokan.StatusSuccess, d.SetEndOfFile(`\f`, 8, info))
	stat, _ = os.Stat(path)
	assert.Equal(int64(8), stat.Size())
	release(d, `\f`, info)

	info, status = open(d, `\f`, readWrite, uint32(dokan.FileOverwrite), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	release(d, `\f`, info)
	stat, _ = os.Stat(path)
	assert.Equal(int64(0), stat.Size())
}

func TestMirrorAttributes(t *testing.T) {
	assert := assert.New(t)
	d, root := newMirror(t)
	path := filepath.Join(root, "f")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	info, status := open(d, `\f`, readWrite, uint32(dokan.FileOpen), 0)
	require.Equal(t, dokan.StatusSuccess, status)
	defer release(d, `\f`, info)
	assert.Equal(dokan.StatusSuccess, d.SetFileAttributes(`\f`, 0x01, info))

	var byHandle fileinfo.ByHandleInfo
	assert.Equal(dokan.StatusSuccess, d.GetFileInformation(`\f`, &byHandle, info))
	assert.Equal(uint32(0x01), byHandle.FileAttributes&0x01)
	assert.NotZero(byHandle.FileIndexLow | byHandle.FileIndexHigh)

	assert.Equal(dokan.StatusSuccess, d.SetFileAttributes(`\f`, 0x80, info))
	stat, _ := os.Stat(path)
	assert.NotZero(stat.Mode().Perm() & 0200)
}
