package dokan

import (
	"fmt"
	"io"
	"os"
	"syscall"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/store"
)

// Status is the NTSTATUS code returned to the driver.
//
// A Status is also an error, so providers may return one
// (optionally wrapped) to report a precise condition.
type Status uint32

const (
	StatusSuccess             = Status(0x00000000)
	StatusBufferOverflow      = Status(0x80000005)
	StatusNoMoreFiles         = Status(0x80000006)
	StatusUnsuccessful        = Status(0xC0000001)
	StatusNotImplemented      = Status(0xC0000002)
	StatusInvalidHandle       = Status(0xC0000008)
	StatusInvalidParameter    = Status(0xC000000D)
	StatusEndOfFile           = Status(0xC0000011)
	StatusAccessDenied        = Status(0xC0000022)
	StatusBufferTooSmall      = Status(0xC0000023)
	StatusObjectNameInvalid   = Status(0xC0000033)
	StatusObjectNameNotFound  = Status(0xC0000034)
	StatusObjectNameCollision = Status(0xC0000035)
	StatusObjectPathNotFound  = Status(0xC000003A)
	StatusSharingViolation    = Status(0xC0000043)
	StatusFileLockConflict    = Status(0xC0000054)
	StatusLockNotGranted      = Status(0xC0000055)
	StatusRangeNotLocked      = Status(0xC000007E)
	StatusDiskFull            = Status(0xC000007F)
	StatusFileIsADirectory    = Status(0xC00000BA)
	StatusInternalError       = Status(0xC00000E5)
	StatusDirectoryNotEmpty   = Status(0xC0000101)
	StatusNotADirectory       = Status(0xC0000103)
	StatusCannotDelete        = Status(0xC0000121)
	StatusDeviceOffline       = Status(0x80000010)
)

var statusNames = map[Status]string{
	StatusSuccess:             "STATUS_SUCCESS",
	StatusBufferOverflow:      "STATUS_BUFFER_OVERFLOW",
	StatusNoMoreFiles:         "STATUS_NO_MORE_FILES",
	StatusUnsuccessful:        "STATUS_UNSUCCESSFUL",
	StatusNotImplemented:      "STATUS_NOT_IMPLEMENTED",
	StatusInvalidHandle:       "STATUS_INVALID_HANDLE",
	StatusInvalidParameter:    "STATUS_INVALID_PARAMETER",
	StatusEndOfFile:           "STATUS_END_OF_FILE",
	StatusAccessDenied:        "STATUS_ACCESS_DENIED",
	StatusBufferTooSmall:      "STATUS_BUFFER_TOO_SMALL",
	StatusObjectNameInvalid:   "STATUS_OBJECT_NAME_INVALID",
	StatusObjectNameNotFound:  "STATUS_OBJECT_NAME_NOT_FOUND",
	StatusObjectNameCollision: "STATUS_OBJECT_NAME_COLLISION",
	StatusObjectPathNotFound:  "STATUS_OBJECT_PATH_NOT_FOUND",
	StatusSharingViolation:    "STATUS_SHARING_VIOLATION",
	StatusFileLockConflict:    "STATUS_FILE_LOCK_CONFLICT",
	StatusLockNotGranted:      "STATUS_LOCK_NOT_GRANTED",
	StatusRangeNotLocked:      "STATUS_RANGE_NOT_LOCKED",
	StatusDiskFull:            "STATUS_DISK_FULL",
	StatusFileIsADirectory:    "STATUS_FILE_IS_A_DIRECTORY",
	StatusInternalError:       "STATUS_INTERNAL_ERROR",
	StatusDirectoryNotEmpty:   "STATUS_DIRECTORY_NOT_EMPTY",
	StatusNotADirectory:       "STATUS_NOT_A_DIRECTORY",
	StatusCannotDelete:        "STATUS_CANNOT_DELETE",
	StatusDeviceOffline:       "STATUS_DEVICE_OFF_LINE",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("NTSTATUS(%#08x)", uint32(s))
}

func (s Status) Error() string {
	return s.String()
}

// IsError tells whether the status reports a failure. Only
// the error severity counts, warnings such as a buffer
// overflow still carry data.
func (s Status) IsError() bool {
	return s>>30 == 3
}

var errnoStatusMap = map[syscall.Errno]Status{
	syscall.Errno(0): StatusSuccess,

	syscall.ENOENT:    StatusObjectNameNotFound,
	syscall.EEXIST:    StatusObjectNameCollision,
	syscall.EPERM:     StatusAccessDenied,
	syscall.EACCES:    StatusAccessDenied,
	syscall.ENOTDIR:   StatusNotADirectory,
	syscall.EISDIR:    StatusFileIsADirectory,
	syscall.EINVAL:    StatusInvalidParameter,
	syscall.ENOSPC:    StatusDiskFull,
	syscall.ENOTEMPTY: StatusDirectoryNotEmpty,
	syscall.EBUSY:     StatusSharingViolation,
	syscall.ENOSYS:    StatusNotImplemented,
	syscall.EBADF:     StatusInvalidHandle,
}

// StatusFromError maps the error returned by a provider into
// the status reported to the driver. The second result tells
// whether the error is one of the recognized conditions, the
// others collapse into StatusUnsuccessful.
func StatusFromError(err error) (Status, bool) {
	if err == nil {
		return StatusSuccess, true
	}
	var status Status
	if errors.As(err, &status) {
		return status, true
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		if status, ok := errnoStatusMap[errno]; ok {
			return status, true
		}
	}
	switch {
	case errors.Is(err, io.EOF):
		return StatusEndOfFile, true
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, fileinfo.ErrCorrupt):
		return StatusObjectNameNotFound, true
	case errors.Is(err, os.ErrExist):
		return StatusObjectNameCollision, true
	case errors.Is(err, os.ErrNotExist):
		return StatusObjectNameNotFound, true
	case errors.Is(err, os.ErrPermission):
		return StatusAccessDenied, true
	case errors.Is(err, os.ErrInvalid):
		return StatusInvalidParameter, true
	case errors.Is(err, os.ErrClosed):
		return StatusInvalidHandle, true
	}
	return StatusUnsuccessful, false
}
