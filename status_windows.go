package dokan

import (
	"syscall"

	"golang.org/x/sys/windows"
)

func init() {
	for errno, status := range map[syscall.Errno]Status{
		windows.ERROR_ACCESS_DENIED:     StatusAccessDenied,
		windows.ERROR_FILE_NOT_FOUND:    StatusObjectNameNotFound,
		windows.ERROR_PATH_NOT_FOUND:    StatusObjectPathNotFound,
		windows.ERROR_NOT_FOUND:         StatusObjectNameNotFound,
		windows.ERROR_FILE_EXISTS:       StatusObjectNameCollision,
		windows.ERROR_ALREADY_EXISTS:    StatusObjectNameCollision,
		windows.ERROR_BUFFER_OVERFLOW:   StatusBufferOverflow,
		windows.ERROR_DIR_NOT_EMPTY:     StatusDirectoryNotEmpty,
		windows.ERROR_DIRECTORY:         StatusNotADirectory,
		windows.ERROR_SHARING_VIOLATION: StatusSharingViolation,
		windows.ERROR_LOCK_VIOLATION:    StatusFileLockConflict,
		windows.ERROR_DISK_FULL:         StatusDiskFull,
		windows.ERROR_HANDLE_EOF:        StatusEndOfFile,
		windows.ERROR_INVALID_HANDLE:    StatusInvalidHandle,
		windows.ERROR_INVALID_PARAMETER: StatusInvalidParameter,
		windows.ERROR_INVALID_NAME:      StatusObjectNameInvalid,
		windows.ERROR_NOT_SUPPORTED:     StatusNotImplemented,
	} {
		errnoStatusMap[errno] = status
	}
}
