package dokan

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/bitmask"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/pathnorm"
)

// Names of the operations, as reported to the observer and
// through OperationFromContext.
const (
	OpCreate               = "ZwCreateFile"
	OpCleanup              = "Cleanup"
	OpClose                = "CloseFile"
	OpRead                 = "ReadFile"
	OpWrite                = "WriteFile"
	OpFlush                = "FlushFileBuffers"
	OpGetFileInformation   = "GetFileInformation"
	OpFindFiles            = "FindFiles"
	OpFindFilesWithPattern = "FindFilesWithPattern"
	OpSetFileAttributes    = "SetFileAttributes"
	OpSetFileTime          = "SetFileTime"
	OpDeleteFile           = "DeleteFile"
	OpDeleteDirectory      = "DeleteDirectory"
	OpMoveFile             = "MoveFile"
	OpSetEndOfFile         = "SetEndOfFile"
	OpSetAllocationSize    = "SetAllocationSize"
	OpLockFile             = "LockFile"
	OpUnlockFile           = "UnlockFile"
	OpGetDiskFreeSpace     = "GetDiskFreeSpace"
	OpGetVolumeInformation = "GetVolumeInformation"
	OpMounted              = "Mounted"
	OpUnmounted            = "Unmounted"
	OpGetFileSecurity      = "GetFileSecurity"
	OpSetFileSecurity      = "SetFileSecurity"
	OpFindStreams          = "FindStreams"
)

// Observer receives the outcome of every request.
type Observer interface {
	ObserveRequest(operation string, status Status, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveRequest(string, Status, time.Duration) {}

// Dispatcher adapts the requests of the driver into calls of
// the provider.
//
// Every method takes the arguments already converted from the
// native calling convention, and always answers with a Status:
// errors and panics of the provider never escape from it.
type Dispatcher struct {
	behaviours
	logger        *logger.Logger
	observer      Observer
	volume        VolumeInfo
	space         FreeSpace
	caseSensitive bool
	mountOptions  MountOptionSet
	handles       handleTable

	// gateway is assigned before the driver starts issuing
	// requests, and is nil for a dispatcher that is driven
	// directly.
	gateway Gateway

	mountedOnce   sync.Once
	unmountedOnce sync.Once
	mounted       chan struct{}
}

// NewDispatcher creates the dispatcher serving the provider.
func NewDispatcher(fs BehaviourBase, opts ...Option) *Dispatcher {
	option := newOption()
	Options(opts...)(option)
	return newDispatcher(fs, option)
}

func newDispatcher(fs BehaviourBase, option *option) *Dispatcher {
	log := option.logger
	if log == nil {
		log = logger.Default()
	}
	return &Dispatcher{
		behaviours:    detectBehaviours(fs),
		logger:        log,
		observer:      option.observer,
		volume:        option.volumeInfo(),
		space:         option.freeSpace,
		caseSensitive: option.caseSensitive,
		mountOptions:  option.mountOptionSet(),
		mounted:       make(chan struct{}),
	}
}

// OpenHandles returns the count of handles created and not
// closed yet.
func (d *Dispatcher) OpenHandles() int {
	return d.handles.count()
}

// enter prepares the context of a request. The returned
// function must be deferred, it recovers the panic of the
// provider and reports the request to the observer.
func (d *Dispatcher) enter(
	operation string, info *NativeFileInfo, status *Status,
) (context.Context, func()) {
	start := time.Now()
	req := &request{
		dispatcher: d,
		info:       info,
		operation:  operation,
	}
	if info != nil {
		req.flags = info.IOFlags()
	}
	ctx := withRequest(context.Background(), req)
	return ctx, func() {
		if r := recover(); r != nil {
			d.logger.Errorf("%s: provider panic: %v\n%s",
				operation, r, debug.Stack())
			*status = StatusUnsuccessful
		}
		d.observer.ObserveRequest(operation, *status, time.Since(start))
	}
}

// status maps the error of the provider, logging the ones
// that are not recognized with their full detail.
func (d *Dispatcher) status(operation, path string, err error) Status {
	status, ok := StatusFromError(err)
	if !ok {
		d.logger.Errorf("%s %q: %+v", operation, path, err)
	} else if err != nil {
		d.logger.Debugf("%s %q: %v", operation, path, err)
	}
	return status
}

// handle resolves the context of a request on an open handle
// and normalizes its path accordingly.
func (d *Dispatcher) handle(
	name string, info *NativeFileInfo,
) (*RequestContext, string, Status) {
	if info == nil {
		return nil, "", StatusInvalidParameter
	}
	rc := d.handles.load(info)
	if rc == nil {
		return nil, "", StatusInvalidHandle
	}
	return rc, pathnorm.Normalize(name, rc.IsDirectory()), StatusSuccess
}

// probe tells whether the path exists and whether it is a
// directory.
func (d *Dispatcher) probe(
	ctx context.Context, key string,
) (exists, isDir bool, err error) {
	if exists, err = d.base.DoesPathExist(ctx, key); err != nil || !exists {
		return
	}
	record, err := d.base.GetInfo(ctx, key)
	if err != nil {
		return false, false, err
	}
	return true, record.IsDirectory(), nil
}

func (d *Dispatcher) truncate(ctx context.Context, path string) error {
	if d.behaviours.truncate != nil {
		return d.behaviours.truncate.Truncate(ctx, path)
	}
	if d.setEndOfFile != nil {
		return d.setEndOfFile.SetEndOfFile(ctx, path, 0)
	}
	return StatusNotImplemented
}

// Create resolves the create request and opens a handle.
//
// When an existing file is opened with FILE_OPEN_IF,
// FILE_OVERWRITE_IF or FILE_SUPERSEDE the handle is opened
// and StatusObjectNameCollision is returned, which the driver
// reports as "opened" instead of "created".
func (d *Dispatcher) Create(
	name string, access, attributes, shareAccess,
	disposition, options uint32, info *NativeFileInfo,
) (status Status) {
	ctx, done := d.enter(OpCreate, info, &status)
	defer done()
	if info == nil {
		return StatusInvalidParameter
	}
	dispositionValue, ok := bitmask.Lookup(disposition, CreateDispositionUniverse)
	if !ok {
		return StatusInvalidParameter
	}
	req := CreateRequest{
		Access:      bitmask.Decode(access, FileAccessUniverse),
		ShareAccess: shareAccess,
		Disposition: dispositionValue,
		Options:     bitmask.Decode(options, CreateOptionUniverse),
		Attributes:  attribute.FromMask(attributes),
	}
	wantDir := info.IsDirectory != 0 ||
		req.Options.Has(OptionDirectoryFile) ||
		req.Attributes.Has(attribute.Directory)
	if wantDir && req.Options.Has(OptionNonDirectoryFile) {
		return StatusInvalidParameter
	}

	key := pathnorm.Key(name)
	exists, isDir, err := d.probe(ctx, key)
	if err != nil {
		return d.status(OpCreate, key, err)
	}
	result := StatusSuccess
	created, overwrite := false, false
	if exists {
		switch {
		case req.Disposition == FileCreate:
			return StatusObjectNameCollision
		case isDir && req.Options.Has(OptionNonDirectoryFile):
			return StatusFileIsADirectory
		case !isDir && wantDir:
			return StatusNotADirectory
		}
		switch req.Disposition {
		case FileSupersede, FileOverwrite, FileOverwriteIf:
			if isDir {
				return StatusInvalidParameter
			}
			overwrite = true
		}
		if !isDir && req.Disposition != FileOpen &&
			req.Disposition != FileOverwrite {
			result = StatusObjectNameCollision
		}
	} else {
		parentExists := true
		if key != pathnorm.Parent(key) {
			parent := pathnorm.Parent(key)
			if parentExists, err = d.base.DoesPathExist(ctx, parent); err != nil {
				return d.status(OpCreate, parent, err)
			}
		}
		if !parentExists {
			return StatusObjectPathNotFound
		}
		if req.Disposition == FileOpen || req.Disposition == FileOverwrite {
			return StatusObjectNameNotFound
		}
		if wantDir {
			err = d.base.CreateEmptyDirectory(ctx,
				pathnorm.Normalize(key, true), req.Options, req.Attributes)
		} else {
			err = d.base.CreateEmptyFile(ctx, key, req.Options, req.Attributes)
		}
		if err != nil {
			return d.status(OpCreate, key, err)
		}
		created, isDir = true, wantDir
	}

	path := pathnorm.Normalize(key, isDir)
	rc := d.handles.open(info)
	rc.SetDirectory(isDir)
	rc.SetDeleteOnClose(req.Options.Has(OptionDeleteOnClose))
	req.Created = created
	if d.open != nil {
		if err := d.open.Open(ctx, path, rc, req); err != nil {
			d.handles.discard(rc.ID())
			if created {
				// Roll back the file nobody will ever see.
				rc.SetDeleteOnClose(true)
				if err := d.base.Cleanup(ctx, path, rc); err != nil {
					d.logger.Warnf("%s %q: rollback: %v", OpCreate, path, err)
				}
			}
			return d.status(OpCreate, path, err)
		}
	}
	// The contents are only dropped once the provider has
	// accepted the handle.
	if overwrite {
		if err := d.truncate(ctx, key); err != nil {
			d.handles.discard(rc.ID())
			if err := d.base.Close(ctx, path, rc); err != nil {
				d.logger.Warnf("%s %q: rollback: %v", OpCreate, path, err)
			}
			return d.status(OpCreate, path, err)
		}
	}
	rc.setState(StateOpen)
	info.Context = rc.ID()
	info.IsDirectory = boolByte(isDir)
	info.DeleteOnClose = boolByte(rc.DeleteOnClose())
	return result
}

// Cleanup is called when the last user handle of the file is
// closed. The file is deleted if the driver still reports the
// delete on close request at this point.
func (d *Dispatcher) Cleanup(name string, info *NativeFileInfo) (status Status) {
	ctx, done := d.enter(OpCleanup, info, &status)
	defer done()
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return status
	}
	rc.SetDeleteOnClose(info.DeleteOnClose != 0)
	err := d.base.Cleanup(ctx, path, rc)
	rc.setState(StateCleaned)
	return d.status(OpCleanup, path, err)
}

// Close discards the handle. Closing an unknown handle does
// nothing.
func (d *Dispatcher) Close(name string, info *NativeFileInfo) (status Status) {
	ctx, done := d.enter(OpClose, info, &status)
	defer done()
	rc, path, status := d.handle(name, info)
	if rc == nil {
		return StatusSuccess
	}
	d.handles.discard(rc.ID())
	info.Context = 0
	err := d.base.Close(ctx, path, rc)
	rc.setState(StateClosed)
	return d.status(OpClose, path, err)
}

// Mounted notifies the provider that the volume is mounted.
// It is forwarded at most once.
func (d *Dispatcher) Mounted(info *NativeFileInfo) (status Status) {
	ctx, done := d.enter(OpMounted, info, &status)
	defer done()
	var err error
	d.mountedOnce.Do(func() {
		defer close(d.mounted)
		if d.behaviours.mounted != nil {
			err = d.behaviours.mounted.Mounted(ctx)
		}
	})
	return d.status(OpMounted, "", err)
}

// Unmounted notifies the provider that the volume is gone.
// It is forwarded at most once, and only after Mounted.
func (d *Dispatcher) Unmounted(info *NativeFileInfo) (status Status) {
	ctx, done := d.enter(OpUnmounted, info, &status)
	defer done()
	select {
	case <-d.mounted:
	default:
		return StatusSuccess
	}
	var err error
	d.unmountedOnce.Do(func() {
		if d.behaviours.unmounted != nil {
			err = d.behaviours.unmounted.Unmounted(ctx)
		}
	})
	return d.status(OpUnmounted, "", err)
}
