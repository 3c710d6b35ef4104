//go:build windows && (amd64 || arm64)

package dokan

import (
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"github.com/aegistudio/go-dokan/fileinfo"
)

const dokanDLLName = "dokan1.dll"

// nativeOptions is the DOKAN_OPTIONS layout.
type nativeOptions struct {
	Version            uint16
	ThreadCount        uint16
	Options            uint32
	GlobalContext      uint64
	MountPoint         *uint16
	UNCName            *uint16
	Timeout            uint32
	AllocationUnitSize uint32
	SectorSize         uint32
}

// nativeOperations is the DOKAN_OPERATIONS layout.
type nativeOperations struct {
	ZwCreateFile         uintptr
	Cleanup              uintptr
	CloseFile            uintptr
	ReadFile             uintptr
	WriteFile            uintptr
	FlushFileBuffers     uintptr
	GetFileInformation   uintptr
	FindFiles            uintptr
	FindFilesWithPattern uintptr
	SetFileAttributes    uintptr
	SetFileTime          uintptr
	DeleteFile           uintptr
	DeleteDirectory      uintptr
	MoveFile             uintptr
	SetEndOfFile         uintptr
	SetAllocationSize    uintptr
	LockFile             uintptr
	UnlockFile           uintptr
	GetDiskFreeSpace     uintptr
	GetVolumeInformation uintptr
	Mounted              uintptr
	Unmounted            uintptr
	GetFileSecurity      uintptr
	SetFileSecurity      uintptr
	FindStreams          uintptr
}

// ntStatusNoRef is returned when the global context of the
// request maps to no dispatcher.
const ntStatusNoRef = StatusDeviceOffline

var (
	refMap        sync.Map
	globalContext atomic.Uint64
)

func loadDispatcher(info uintptr) (*Dispatcher, *NativeFileInfo) {
	fileInfo := (*NativeFileInfo)(unsafe.Pointer(info))
	if fileInfo == nil || fileInfo.DokanOptions == 0 {
		return nil, fileInfo
	}
	options := (*nativeOptions)(unsafe.Pointer(fileInfo.DokanOptions))
	value, ok := refMap.Load(options.GlobalContext)
	if !ok {
		return nil, fileInfo
	}
	return value.(*Dispatcher), fileInfo
}

func utf16PtrToString(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	return windows.UTF16PtrToString((*uint16)(unsafe.Pointer(ptr)))
}

func enforceBytePtr(ptr uintptr, size uintptr) []byte {
	if ptr == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(ptr)), int(size))
}

func enforceUint16Ptr(ptr uintptr, size uintptr) []uint16 {
	if ptr == 0 || size == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(ptr)), int(size))
}

func filetimePtr(ptr uintptr) uint64 {
	if ptr == 0 {
		return 0
	}
	return (*fileinfo.Filetime)(unsafe.Pointer(ptr)).Ticks()
}

var go_delegateZwCreateFile = syscall.NewCallback(func(
	fileName, securityContext, desiredAccess, fileAttributes,
	shareAccess, createDisposition, createOptions, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.Create(
		utf16PtrToString(fileName),
		uint32(desiredAccess), uint32(fileAttributes),
		uint32(shareAccess), uint32(createDisposition),
		uint32(createOptions), fileInfo,
	))
})

var go_delegateCleanup = syscall.NewCallback(func(
	fileName, info uintptr,
) uintptr {
	if d, fileInfo := loadDispatcher(info); d != nil {
		d.Cleanup(utf16PtrToString(fileName), fileInfo)
	}
	return 0
})

var go_delegateCloseFile = syscall.NewCallback(func(
	fileName, info uintptr,
) uintptr {
	if d, fileInfo := loadDispatcher(info); d != nil {
		d.Close(utf16PtrToString(fileName), fileInfo)
	}
	return 0
})

var go_delegateReadFile = syscall.NewCallback(func(
	fileName, buffer, bufferLength, readLength, offset, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.Read(
		utf16PtrToString(fileName),
		enforceBytePtr(buffer, uintptr(uint32(bufferLength))),
		(*uint32)(unsafe.Pointer(readLength)),
		int64(offset), fileInfo,
	))
})

var go_delegateWriteFile = syscall.NewCallback(func(
	fileName, buffer, bytesToWrite, bytesWritten, offset, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.Write(
		utf16PtrToString(fileName),
		enforceBytePtr(buffer, uintptr(uint32(bytesToWrite))),
		(*uint32)(unsafe.Pointer(bytesWritten)),
		int64(offset), fileInfo,
	))
})

var go_delegateFlushFileBuffers = syscall.NewCallback(func(
	fileName, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.Flush(utf16PtrToString(fileName), fileInfo))
})

var go_delegateGetFileInformation = syscall.NewCallback(func(
	fileName, buffer, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.GetFileInformation(
		utf16PtrToString(fileName),
		(*fileinfo.ByHandleInfo)(unsafe.Pointer(buffer)), fileInfo,
	))
})

func fillFindData(fill, info uintptr) FillFindData {
	return func(data *fileinfo.FindData) bool {
		result, _, _ := syscall.SyscallN(fill,
			uintptr(unsafe.Pointer(data)), info)
		return uint32(result) == 1
	}
}

var go_delegateFindFiles = syscall.NewCallback(func(
	pathName, fill, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.FindFiles(
		utf16PtrToString(pathName), fillFindData(fill, info), fileInfo))
})

var go_delegateFindFilesWithPattern = syscall.NewCallback(func(
	pathName, pattern, fill, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.FindFilesWithPattern(
		utf16PtrToString(pathName), utf16PtrToString(pattern),
		fillFindData(fill, info), fileInfo,
	))
})

var go_delegateSetFileAttributes = syscall.NewCallback(func(
	fileName, attributes, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.SetFileAttributes(
		utf16PtrToString(fileName), uint32(attributes), fileInfo))
})

var go_delegateSetFileTime = syscall.NewCallback(func(
	fileName, creation, access, write, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.SetFileTime(
		utf16PtrToString(fileName),
		filetimePtr(creation), filetimePtr(access), filetimePtr(write),
		fileInfo,
	))
})

var go_delegateDeleteFile = syscall.NewCallback(func(
	fileName, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.DeleteFile(utf16PtrToString(fileName), fileInfo))
})

var go_delegateDeleteDirectory = syscall.NewCallback(func(
	fileName, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.DeleteDirectory(utf16PtrToString(fileName), fileInfo))
})

var go_delegateMoveFile = syscall.NewCallback(func(
	fileName, newFileName, replace, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.MoveFile(
		utf16PtrToString(fileName), utf16PtrToString(newFileName),
		uint32(replace) != 0, fileInfo,
	))
})

var go_delegateSetEndOfFile = syscall.NewCallback(func(
	fileName, offset, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.SetEndOfFile(
		utf16PtrToString(fileName), int64(offset), fileInfo))
})

var go_delegateSetAllocationSize = syscall.NewCallback(func(
	fileName, size, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.SetAllocationSize(
		utf16PtrToString(fileName), int64(size), fileInfo))
})

var go_delegateLockFile = syscall.NewCallback(func(
	fileName, offset, length, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.LockFile(
		utf16PtrToString(fileName), int64(offset), int64(length), fileInfo))
})

var go_delegateUnlockFile = syscall.NewCallback(func(
	fileName, offset, length, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.UnlockFile(
		utf16PtrToString(fileName), int64(offset), int64(length), fileInfo))
})

var go_delegateGetDiskFreeSpace = syscall.NewCallback(func(
	freeBytesAvailable, totalBytes, totalFreeBytes, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.GetDiskFreeSpace(
		(*uint64)(unsafe.Pointer(freeBytesAvailable)),
		(*uint64)(unsafe.Pointer(totalBytes)),
		(*uint64)(unsafe.Pointer(totalFreeBytes)),
		fileInfo,
	))
})

var go_delegateGetVolumeInformation = syscall.NewCallback(func(
	volumeName, volumeNameSize, serialNumber, maxComponentLength,
	features, fileSystemName, fileSystemNameSize, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.GetVolumeInformation(
		enforceUint16Ptr(volumeName, uintptr(uint32(volumeNameSize))),
		(*uint32)(unsafe.Pointer(serialNumber)),
		(*uint32)(unsafe.Pointer(maxComponentLength)),
		(*uint32)(unsafe.Pointer(features)),
		enforceUint16Ptr(fileSystemName, uintptr(uint32(fileSystemNameSize))),
		fileInfo,
	))
})

var go_delegateMounted = syscall.NewCallback(func(info uintptr) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.Mounted(fileInfo))
})

var go_delegateUnmounted = syscall.NewCallback(func(info uintptr) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.Unmounted(fileInfo))
})

var go_delegateGetFileSecurity = syscall.NewCallback(func(
	fileName, securityInformation, descriptor,
	bufferLength, lengthNeeded, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	var kind uint32
	if securityInformation != 0 {
		kind = *(*uint32)(unsafe.Pointer(securityInformation))
	}
	return uintptr(d.GetFileSecurity(
		utf16PtrToString(fileName), kind,
		enforceBytePtr(descriptor, uintptr(uint32(bufferLength))),
		(*uint32)(unsafe.Pointer(lengthNeeded)), fileInfo,
	))
})

var go_delegateSetFileSecurity = syscall.NewCallback(func(
	fileName, securityInformation, descriptor, length, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	var kind uint32
	if securityInformation != 0 {
		kind = *(*uint32)(unsafe.Pointer(securityInformation))
	}
	return uintptr(d.SetFileSecurity(
		utf16PtrToString(fileName), kind,
		enforceBytePtr(descriptor, uintptr(uint32(length))), fileInfo,
	))
})

var go_delegateFindStreams = syscall.NewCallback(func(
	fileName, fill, info uintptr,
) uintptr {
	d, fileInfo := loadDispatcher(info)
	if d == nil {
		return uintptr(ntStatusNoRef)
	}
	return uintptr(d.FindStreams(utf16PtrToString(fileName),
		func(data *StreamData) bool {
			result, _, _ := syscall.SyscallN(fill,
				uintptr(unsafe.Pointer(data)), info)
			return uint32(result) == 1
		}, fileInfo))
})

// operations is shared by every mounted volume, it is never
// moved or collected.
var operations = nativeOperations{
	ZwCreateFile:         go_delegateZwCreateFile,
	Cleanup:              go_delegateCleanup,
	CloseFile:            go_delegateCloseFile,
	ReadFile:             go_delegateReadFile,
	WriteFile:            go_delegateWriteFile,
	FlushFileBuffers:     go_delegateFlushFileBuffers,
	GetFileInformation:   go_delegateGetFileInformation,
	FindFiles:            go_delegateFindFiles,
	FindFilesWithPattern: go_delegateFindFilesWithPattern,
	SetFileAttributes:    go_delegateSetFileAttributes,
	SetFileTime:          go_delegateSetFileTime,
	DeleteFile:           go_delegateDeleteFile,
	DeleteDirectory:      go_delegateDeleteDirectory,
	MoveFile:             go_delegateMoveFile,
	SetEndOfFile:         go_delegateSetEndOfFile,
	SetAllocationSize:    go_delegateSetAllocationSize,
	LockFile:             go_delegateLockFile,
	UnlockFile:           go_delegateUnlockFile,
	GetDiskFreeSpace:     go_delegateGetDiskFreeSpace,
	GetVolumeInformation: go_delegateGetVolumeInformation,
	Mounted:              go_delegateMounted,
	Unmounted:            go_delegateUnmounted,
	GetFileSecurity:      go_delegateGetFileSecurity,
	SetFileSecurity:      go_delegateSetFileSecurity,
	FindStreams:          go_delegateFindStreams,
}

type nativeGateway struct {
	dll                   *syscall.DLL
	dokanMain             *syscall.Proc
	dokanRemoveMountPoint *syscall.Proc
	dokanVersion          *syscall.Proc
	dokanDriverVersion    *syscall.Proc
	dokanResetTimeout     *syscall.Proc
}

func loadGateway() (Gateway, error) {
	dll, err := syscall.LoadDLL(dokanDLLName)
	if err != nil {
		return nil, errors.Wrapf(err, "load %q", dokanDLLName)
	}
	result := &nativeGateway{dll: dll}
	for name, proc := range map[string]**syscall.Proc{
		"DokanMain":             &result.dokanMain,
		"DokanRemoveMountPoint": &result.dokanRemoveMountPoint,
		"DokanVersion":          &result.dokanVersion,
		"DokanDriverVersion":    &result.dokanDriverVersion,
		"DokanResetTimeout":     &result.dokanResetTimeout,
	} {
		if *proc, err = dll.FindProc(name); err != nil {
			_ = dll.Release()
			return nil, errors.Wrapf(err, "dokan cannot find proc %q", name)
		}
	}
	return result, nil
}

func (g *nativeGateway) Mount(options DeviceOptions, dispatcher *Dispatcher) error {
	convertError := func(err error, content string) error {
		return errors.Wrapf(err, "string %q convert utf16", content)
	}
	mountPoint, err := windows.UTF16PtrFromString(options.MountPoint())
	if err != nil {
		return convertError(err, options.MountPoint())
	}
	var uncName *uint16
	if options.UNCName() != "" {
		if uncName, err = windows.UTF16PtrFromString(options.UNCName()); err != nil {
			return convertError(err, options.UNCName())
		}
	}
	key := globalContext.Add(1)
	refMap.Store(key, dispatcher)
	defer refMap.Delete(key)
	native := &nativeOptions{
		Version:            options.Version(),
		ThreadCount:        options.ThreadCount(),
		Options:            options.Options().Encode(),
		GlobalContext:      key,
		MountPoint:         mountPoint,
		UNCName:            uncName,
		Timeout:            uint32(options.Timeout().Milliseconds()),
		AllocationUnitSize: options.AllocationUnitSize(),
		SectorSize:         options.SectorSize(),
	}
	result, _, _ := g.dokanMain.Call(
		uintptr(unsafe.Pointer(native)),
		uintptr(unsafe.Pointer(&operations)),
	)
	runtime.KeepAlive(native)
	runtime.KeepAlive(mountPoint)
	runtime.KeepAlive(uncName)
	if code := int32(result); code != 0 {
		return MountError(code)
	}
	return nil
}

func (g *nativeGateway) Unmount(mountPoint string) bool {
	utf16MountPoint, err := windows.UTF16PtrFromString(mountPoint)
	if err != nil {
		return false
	}
	result, _, _ := g.dokanRemoveMountPoint.Call(
		uintptr(unsafe.Pointer(utf16MountPoint)))
	runtime.KeepAlive(utf16MountPoint)
	return uint32(result) != 0
}

func (g *nativeGateway) DriverVersion() uint64 {
	result, _, _ := g.dokanDriverVersion.Call()
	return uint64(uint32(result))
}

func (g *nativeGateway) LibraryVersion() uint64 {
	result, _, _ := g.dokanVersion.Call()
	return uint64(uint32(result))
}

func (g *nativeGateway) ResetTimeout(
	timeout time.Duration, info *NativeFileInfo,
) bool {
	result, _, _ := g.dokanResetTimeout.Call(
		uintptr(uint32(timeout.Milliseconds())),
		uintptr(unsafe.Pointer(info)),
	)
	return uint32(result) != 0
}

func (g *nativeGateway) Close() error {
	return g.dll.Release()
}
