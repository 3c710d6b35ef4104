package gofs

import (
	"os"
	"syscall"

	"github.com/aegistudio/go-dokan/filetime"
)

// statTimes extracts the timestamps kept in the find data from
// windows, which is the one from golang's standard library.
func statTimes(source os.FileInfo) (creation, access, write uint64, ok bool) {
	sys := source.Sys()
	if sys == nil {
		return
	}
	findData, ok := sys.(*syscall.Win32FileAttributeData)
	if !ok {
		return
	}
	return filetime.Filetime(findData.CreationTime),
		filetime.Filetime(findData.LastAccessTime),
		filetime.Filetime(findData.LastWriteTime), true
}
