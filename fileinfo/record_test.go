package fileinfo

import (
	"math"
	"testing"
	"unicode/utf16"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegistudio/go-dokan/attribute"
)

func fullRecord() Record {
	return New("/docs/readme.txt",
		WithSize(0x123456789a),
		WithIndex(math.MaxUint64-7),
		WithAttributes(attribute.Of(attribute.Archive, attribute.Hidden)),
		WithCreationTime(132223104000000000),
		WithAccessTime(132223104000000001),
		WithWriteTime(132223104000000002),
		WithLinks(3),
		WithVolumeSerial(0x19831116),
		WithReserved(0xa0000003, math.MaxUint32),
	)
}

func TestRoundTrip(t *testing.T) {
	assert := assert.New(t)
	for _, r := range []Record{
		fullRecord(),
		New("/"),
		New("/sub", WithAttributes(attribute.Of(attribute.Directory))),
		New("/zero", WithCreationTime(1), WithAccessTime(1), WithWriteTime(1)),
	} {
		decoded, err := Decode(r.Path(), r.Bytes())
		assert.NoError(err)
		assert.Equal(r, decoded)
	}
}

func TestDecodeZeroLinks(t *testing.T) {
	assert := assert.New(t)
	r := New("/a.txt", WithLinks(0))
	assert.Equal(uint32(0), r.Links())
	decoded, err := Decode(r.Path(), r.Bytes())
	require.NoError(t, err)
	assert.Equal(uint32(1), decoded.Links())
}

func TestDecodeDirectoryPath(t *testing.T) {
	assert := assert.New(t)
	r := New("/sub", WithAttributes(attribute.Of(attribute.Directory)))
	assert.Equal("/sub/", r.Path())
	decoded, err := Decode("/sub", r.Bytes())
	require.NoError(t, err)
	assert.Equal("/sub/", decoded.Path())
	assert.True(decoded.IsDirectory())
}

func TestDecodeCorrupt(t *testing.T) {
	assert := assert.New(t)
	b := fullRecord().Bytes()

	_, err := Decode("/a", b[:len(b)-1])
	assert.ErrorIs(err, ErrCorrupt)

	_, err = Decode("/a", append(b, 0))
	assert.ErrorIs(err, ErrCorrupt)

	_, err = Decode("/a", nil)
	assert.ErrorIs(err, ErrCorrupt)

	// The size halves disagree with the size.
	tampered := New("/a", WithSize(1)).Bytes()
	tampered[1] = 1
	_, err = Decode("/a", tampered)
	assert.ErrorIs(err, ErrCorrupt)
}

func TestSmallRecordIsCompact(t *testing.T) {
	assert := assert.New(t)
	r := New("/a", WithCreationTime(1), WithAccessTime(1), WithWriteTime(1))
	assert.Equal(numFields, len(r.Bytes()))
}

func TestWithIsCopy(t *testing.T) {
	assert := assert.New(t)
	r := fullRecord()
	derived := r.With(WithSize(10), WithTimes(0, 5, 0))
	assert.Equal(uint64(0x123456789a), r.Size())
	assert.Equal(uint64(10), derived.Size())
	assert.Equal(r.CreationTime(), derived.CreationTime())
	assert.Equal(uint64(5), derived.AccessTime())
	assert.Equal("/other.txt", r.Rename(`\other.txt`).Path())
}

func TestShortName(t *testing.T) {
	assert := assert.New(t)
	assert.Equal("readme.txt", ShortName("readme.txt"))
	assert.Equal("longfile.htm", ShortName("longfilename.html"))
	assert.Equal("makefile", ShortName("makefile"))
	assert.Equal(".bashrc", ShortName(".bashrc"))
	assert.Equal("archivet.gz", ShortName("archive.tar.gz"))
}

func TestFindData(t *testing.T) {
	assert := assert.New(t)
	r := New("/docs/longfilename.html", WithSize(1<<32|5))
	fd := r.FindData()
	assert.Equal(uint32(attribute.Normal), fd.FileAttributes)
	assert.Equal(uint32(1), fd.FileSizeHigh)
	assert.Equal(uint32(5), fd.FileSizeLow)
	name := utf16.Encode([]rune("longfilename.html"))
	assert.Equal(name, fd.FileName[:len(name)])
	assert.Equal(uint16(0), fd.FileName[len(name)])
	short := utf16.Encode([]rune("longfile.htm"))
	assert.Equal(short, fd.AlternateFileName[:len(short)])
	assert.Equal(r.WriteTime(), fd.LastWriteTime.Ticks())
}

func TestFindDataTruncatesName(t *testing.T) {
	assert := assert.New(t)
	long := make([]rune, 300)
	for i := range long {
		long[i] = 'a'
	}
	fd := New("/" + string(long)).FindData()
	assert.Equal(uint16('a'), fd.FileName[MaxPath-2])
	assert.Equal(uint16(0), fd.FileName[MaxPath-1])
}

func TestByHandleInfo(t *testing.T) {
	assert := assert.New(t)
	r := fullRecord()
	info := r.ByHandleInfo()
	assert.Equal(uint32(0x22), info.FileAttributes)
	assert.Equal(uint32(0x19831116), info.VolumeSerialNumber)
	assert.Equal(uint32(3), info.NumberOfLinks)
	assert.Equal(r.IndexHigh(), info.FileIndexHigh)
	assert.Equal(r.IndexLow(), info.FileIndexLow)
	assert.Equal(uint32(0x12), info.FileSizeHigh)
	assert.Equal(uint32(0x3456789a), info.FileSizeLow)
}

func TestNativeLayout(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uintptr(592), unsafe.Sizeof(FindData{}))
	assert.Equal(uintptr(52), unsafe.Sizeof(ByHandleInfo{}))
}
