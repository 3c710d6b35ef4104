package fileinfo

import (
	"strings"
	"unicode/utf16"

	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/filetime"
)

// MaxPath is the capacity of a native file name buffer,
// including its terminating zero.
const MaxPath = 260

// shortNameLen is the capacity of the 8.3 name buffer.
const shortNameLen = 14

// Filetime is the native FILETIME layout.
type Filetime struct {
	LowDateTime  uint32
	HighDateTime uint32
}

func nativeFiletime(ticks uint64) Filetime {
	low, high := filetime.Split(ticks)
	return Filetime{LowDateTime: low, HighDateTime: high}
}

// Ticks converts the native FILETIME into ticks.
func (f Filetime) Ticks() uint64 {
	return filetime.Join(f.LowDateTime, f.HighDateTime)
}

// FindData is the WIN32_FIND_DATAW layout filled into the
// driver's directory listing buffer.
type FindData struct {
	FileAttributes    uint32
	CreationTime      Filetime
	LastAccessTime    Filetime
	LastWriteTime     Filetime
	FileSizeHigh      uint32
	FileSizeLow       uint32
	Reserved0         uint32
	Reserved1         uint32
	FileName          [MaxPath]uint16
	AlternateFileName [shortNameLen]uint16
}

// ByHandleInfo is the BY_HANDLE_FILE_INFORMATION layout.
type ByHandleInfo struct {
	FileAttributes     uint32
	CreationTime       Filetime
	LastAccessTime     Filetime
	LastWriteTime      Filetime
	VolumeSerialNumber uint32
	FileSizeHigh       uint32
	FileSizeLow        uint32
	NumberOfLinks      uint32
	FileIndexHigh      uint32
	FileIndexLow       uint32
}

// CopyUTF16 encodes the string into the zero terminated wide
// character buffer, truncating it when it does not fit. It
// returns the count of characters written before the zero.
func CopyUTF16(dst []uint16, s string) int {
	if len(dst) == 0 {
		return 0
	}
	n := copy(dst[:len(dst)-1], utf16.Encode([]rune(s)))
	dst[n] = 0
	return n
}

// UTF16ToString decodes the wide character buffer up to its
// first zero.
func UTF16ToString(s []uint16) string {
	for i, c := range s {
		if c == 0 {
			s = s[:i]
			break
		}
	}
	return string(utf16.Decode(s))
}

// FindData translates the record into a listing entry.
func (r Record) FindData() FindData {
	result := FindData{
		FileAttributes: attribute.Mask(r.attributes),
		CreationTime:   nativeFiletime(r.creationTime),
		LastAccessTime: nativeFiletime(r.accessTime),
		LastWriteTime:  nativeFiletime(r.writeTime),
		FileSizeHigh:   r.SizeHigh(),
		FileSizeLow:    r.SizeLow(),
		Reserved0:      r.reserved0,
		Reserved1:      r.reserved1,
	}
	CopyUTF16(result.FileName[:], r.DisplayName())
	// XXX: the alternate name is only meaningful when the long
	// name does not conform to 8.3 already, and the driver
	// accepts an empty one in the other case.
	if short := r.ShortName(); short != r.DisplayName() {
		CopyUTF16(result.AlternateFileName[:], short)
	}
	return result
}

// ByHandleInfo translates the record into the information
// of an open handle.
func (r Record) ByHandleInfo() ByHandleInfo {
	return ByHandleInfo{
		FileAttributes:     attribute.Mask(r.attributes),
		CreationTime:       nativeFiletime(r.creationTime),
		LastAccessTime:     nativeFiletime(r.accessTime),
		LastWriteTime:      nativeFiletime(r.writeTime),
		VolumeSerialNumber: r.volumeSerial,
		FileSizeHigh:       r.SizeHigh(),
		FileSizeLow:        r.SizeLow(),
		NumberOfLinks:      r.links,
		FileIndexHigh:      r.IndexHigh(),
		FileIndexLow:       r.IndexLow(),
	}
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) > n {
		runes = runes[:n]
	}
	return string(runes)
}

// ShortName converts the name into its 8.3 form, keeping at
// most eight characters of the base and three of the last
// extension. Dots and spaces are dropped from the base.
func ShortName(name string) string {
	base, ext := name, ""
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		base, ext = name[:i], name[i+1:]
		base = strings.Map(func(r rune) rune {
			if r == '.' || r == ' ' {
				return -1
			}
			return r
		}, base)
	}
	base = truncateRunes(base, 8)
	ext = truncateRunes(ext, 3)
	if ext == "" {
		return base
	}
	return base + "." + ext
}
