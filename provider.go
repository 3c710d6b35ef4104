package dokan

import (
	"context"

	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/fileinfo"
)

// BehaviourBase defines the mandatory methods of a provider.
//
// Other methods might be implemented through the Behaviour*
// interfaces, and will be checked upon mounting the file
// system. A request whose behaviour is not implemented is
// answered with StatusNotImplemented without reaching the
// provider.
//
// All paths are normalized, with a trailing "/" whenever the
// bridge knows the path refers to a directory. Errors are
// mapped through StatusFromError, so a provider reports a
// precise condition by returning a Status.
type BehaviourBase interface {
	// DoesPathExist probes the path without opening it.
	DoesPathExist(ctx context.Context, path string) (bool, error)

	// GetInfo returns the current metadata of the path.
	GetInfo(ctx context.Context, path string) (fileinfo.Record, error)

	// CreateEmptyFile creates a new file. It must fail with
	// StatusObjectNameCollision when the path exists, and
	// with StatusObjectPathNotFound when the parent does not.
	CreateEmptyFile(
		ctx context.Context, path string,
		options CreateOptionSet, attributes attribute.Set,
	) error

	// CreateEmptyDirectory creates a new directory, failing
	// the same way CreateEmptyFile does.
	CreateEmptyDirectory(
		ctx context.Context, path string,
		options CreateOptionSet, attributes attribute.Set,
	) error

	// Cleanup is called when the last user handle is closed.
	// The file is deleted now if and only if the context
	// reports DeleteOnClose.
	Cleanup(ctx context.Context, path string, rc *RequestContext) error

	// Close is called when the handle is discarded. Every
	// resource tied to the context value must be released.
	Close(ctx context.Context, path string, rc *RequestContext) error
}

// CreateRequest is the decoded create request handed to the
// BehaviourOpen hook.
type CreateRequest struct {
	Access      FileAccessSet
	ShareAccess uint32
	Disposition CreateDisposition
	Options     CreateOptionSet
	Attributes  attribute.Set

	// Created tells whether the file has just been created.
	Created bool
}

// BehaviourOpen is called once the create request has been
// resolved, so that the provider may set up the context.
type BehaviourOpen interface {
	Open(
		ctx context.Context, path string,
		rc *RequestContext, req CreateRequest,
	) error
}

// BehaviourMounted receives the mount notification.
type BehaviourMounted interface {
	Mounted(ctx context.Context) error
}

// BehaviourUnmounted receives the unmount notification.
type BehaviourUnmounted interface {
	Unmounted(ctx context.Context) error
}

// BehaviourRead reads an open file.
//
// It returns the count of bytes transferred, which might be
// shorter than the buffer.
type BehaviourRead interface {
	Read(
		ctx context.Context, path string, rc *RequestContext,
		buf []byte, offset int64, flags IOFlags,
	) (int, error)
}

// BehaviourWrite writes an open file.
//
// When flags.WriteToEndOfFile is set, the data is appended
// and the offset must be ignored.
type BehaviourWrite interface {
	Write(
		ctx context.Context, path string, rc *RequestContext,
		data []byte, offset int64, flags IOFlags,
	) (int, error)
}

// BehaviourFlush flushes the buffers of an open file.
type BehaviourFlush interface {
	FlushFileBuffers(ctx context.Context, path string, rc *RequestContext) error
}

// BehaviourFindFiles lists a directory.
//
// The pattern uses the wildcards "?" and "*" (pathnorm.Match
// implements them), and whether the match ignores case is a
// parameter of the call. Only the display names of the
// returned records are listed.
type BehaviourFindFiles interface {
	FindFilesWithPattern(
		ctx context.Context, path, pattern string, ignoreCase bool,
	) ([]fileinfo.Record, error)
}

// Stream is an alternate data stream of a file.
type Stream struct {
	Name string
	Size int64
}

// BehaviourFindStreams lists the streams of a file. It is only
// wired when MountAltStream is set.
type BehaviourFindStreams interface {
	FindStreams(ctx context.Context, path string) ([]Stream, error)
}

// BehaviourLock performs byte range locking. It is only wired
// when MountFileLockUserMode is set.
type BehaviourLock interface {
	Lock(ctx context.Context, path string, offset, length int64) error
	Unlock(ctx context.Context, path string, offset, length int64) error
}

// BehaviourMove renames a file or directory.
type BehaviourMove interface {
	Move(ctx context.Context, oldPath, newPath string, replace bool) error
}

// BehaviourDelete checks whether a file or directory might be
// deleted.
//
// Neither method deletes anything: the deletion happens at
// Cleanup if the request is still standing by then.
type BehaviourDelete interface {
	DeleteFile(ctx context.Context, path string, rc *RequestContext) error
	DeleteDirectory(ctx context.Context, path string, rc *RequestContext) error
}

// BehaviourGetSecurity returns the self relative security
// descriptor of the file.
type BehaviourGetSecurity interface {
	GetSecurity(
		ctx context.Context, path string, kind SecurityInformationSet,
	) ([]byte, error)
}

// BehaviourSetSecurity updates the security descriptor.
type BehaviourSetSecurity interface {
	SetSecurity(
		ctx context.Context, path string,
		kind SecurityInformationSet, descriptor []byte,
	) error
}

// BehaviourTruncate empties a file, it is called when an
// existing file is opened to be overwritten or superseded.
type BehaviourTruncate interface {
	Truncate(ctx context.Context, path string) error
}

// BehaviourSetEndOfFile changes the visible size of a file.
type BehaviourSetEndOfFile interface {
	SetEndOfFile(ctx context.Context, path string, offset int64) error
}

// BehaviourSetAllocationSize changes the space reserved for
// a file. The visible size shrinks when it exceeds the new
// allocation.
type BehaviourSetAllocationSize interface {
	SetAllocationSize(ctx context.Context, path string, size int64) error
}

// BehaviourSetAttributes replaces the attributes of a file.
type BehaviourSetAttributes interface {
	SetAttributes(ctx context.Context, path string, attributes attribute.Set) error
}

// BehaviourSetTime updates the timestamps of a file, a zero
// tick count leaves that timestamp untouched.
type BehaviourSetTime interface {
	SetTime(ctx context.Context, path string, creation, access, write uint64) error
}

// BehaviourFreeSpace reports the space of the volume. Without
// it the values configured at mount are reported.
type BehaviourFreeSpace interface {
	FreeSpace(ctx context.Context) (FreeSpace, error)
}

// BehaviourVolumeInfo reports the volume information. Without
// it the values configured at mount are reported.
type BehaviourVolumeInfo interface {
	VolumeInfo(ctx context.Context) (VolumeInfo, error)
}

// behaviours is the capability set detected at mount.
type behaviours struct {
	base              BehaviourBase
	open              BehaviourOpen
	mounted           BehaviourMounted
	unmounted         BehaviourUnmounted
	read              BehaviourRead
	write             BehaviourWrite
	flush             BehaviourFlush
	findFiles         BehaviourFindFiles
	findStreams       BehaviourFindStreams
	lock              BehaviourLock
	move              BehaviourMove
	delete            BehaviourDelete
	getSecurity       BehaviourGetSecurity
	setSecurity       BehaviourSetSecurity
	truncate          BehaviourTruncate
	setEndOfFile      BehaviourSetEndOfFile
	setAllocationSize BehaviourSetAllocationSize
	setAttributes     BehaviourSetAttributes
	setTime           BehaviourSetTime
	freeSpace         BehaviourFreeSpace
	volumeInfo        BehaviourVolumeInfo
}

func detectBehaviours(fs BehaviourBase) behaviours {
	result := behaviours{base: fs}
	result.open, _ = fs.(BehaviourOpen)
	result.mounted, _ = fs.(BehaviourMounted)
	result.unmounted, _ = fs.(BehaviourUnmounted)
	result.read, _ = fs.(BehaviourRead)
	result.write, _ = fs.(BehaviourWrite)
	result.flush, _ = fs.(BehaviourFlush)
	result.findFiles, _ = fs.(BehaviourFindFiles)
	result.findStreams, _ = fs.(BehaviourFindStreams)
	result.lock, _ = fs.(BehaviourLock)
	result.move, _ = fs.(BehaviourMove)
	result.delete, _ = fs.(BehaviourDelete)
	result.getSecurity, _ = fs.(BehaviourGetSecurity)
	result.setSecurity, _ = fs.(BehaviourSetSecurity)
	result.truncate, _ = fs.(BehaviourTruncate)
	result.setEndOfFile, _ = fs.(BehaviourSetEndOfFile)
	result.setAllocationSize, _ = fs.(BehaviourSetAllocationSize)
	result.setAttributes, _ = fs.(BehaviourSetAttributes)
	result.setTime, _ = fs.(BehaviourSetTime)
	result.freeSpace, _ = fs.(BehaviourFreeSpace)
	result.volumeInfo, _ = fs.(BehaviourVolumeInfo)
	return result
}
