package dokan

import (
	"context"
	"sync"
	"sync/atomic"
)

// HandleState is the lifecycle state of an open handle.
type HandleState uint32

const (
	StateUnopened = HandleState(iota)
	StateOpen
	StateCleaned
	StateClosed
)

func (s HandleState) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpen:
		return "open"
	case StateCleaned:
		return "cleaned"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// RequestContext is the state of one open handle, from the
// create request that opens it to the close request that
// discards it.
//
// The context value is opaque to the bridge and owned by the
// provider. The provider must not retain the RequestContext
// after its Close has returned.
type RequestContext struct {
	id            uint64
	processID     uint32
	value         atomic.Uint64
	directory     atomic.Bool
	deleteOnClose atomic.Bool
	state         atomic.Uint32
}

// ID is the identifier of the handle, unique per mount.
func (rc *RequestContext) ID() uint64 {
	return rc.id
}

// ProcessID is the process that has opened the handle.
func (rc *RequestContext) ProcessID() uint32 {
	return rc.processID
}

// Context returns the provider assigned value.
func (rc *RequestContext) Context() uint64 {
	return rc.value.Load()
}

// SetContext assigns the provider value.
func (rc *RequestContext) SetContext(value uint64) {
	rc.value.Store(value)
}

// IsDirectory tells whether the handle is a directory.
func (rc *RequestContext) IsDirectory() bool {
	return rc.directory.Load()
}

// SetDirectory marks the handle as a directory or not.
func (rc *RequestContext) SetDirectory(directory bool) {
	rc.directory.Store(directory)
}

// DeleteOnClose tells whether the file is to be deleted when
// the handle is cleaned up.
func (rc *RequestContext) DeleteOnClose() bool {
	return rc.deleteOnClose.Load()
}

// SetDeleteOnClose changes the deletion request.
func (rc *RequestContext) SetDeleteOnClose(deleteOnClose bool) {
	rc.deleteOnClose.Store(deleteOnClose)
}

// State returns the lifecycle state.
func (rc *RequestContext) State() HandleState {
	return HandleState(rc.state.Load())
}

func (rc *RequestContext) setState(state HandleState) {
	rc.state.Store(uint32(state))
}

// IOFlags are the per request flags of a read, write or flush.
// They belong to the single request carrying them, and are
// never stored in the RequestContext.
type IOFlags struct {
	PagingIO         bool
	SynchronousIO    bool
	NoCache          bool
	WriteToEndOfFile bool
}

// NativeFileInfo is the DOKAN_FILE_INFO layout handed over
// with every request.
type NativeFileInfo struct {
	Context          uint64
	DokanContext     uint64
	DokanOptions     uintptr
	ProcessID        uint32
	IsDirectory      uint8
	DeleteOnClose    uint8
	PagingIO         uint8
	SynchronousIO    uint8
	NoCache          uint8
	WriteToEndOfFile uint8
}

// IOFlags extracts the per request flags.
func (info *NativeFileInfo) IOFlags() IOFlags {
	return IOFlags{
		PagingIO:         info.PagingIO != 0,
		SynchronousIO:    info.SynchronousIO != 0,
		NoCache:          info.NoCache != 0,
		WriteToEndOfFile: info.WriteToEndOfFile != 0,
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// handleTable maps the identifiers stored in the native
// context field to their RequestContext.
type handleTable struct {
	next    atomic.Uint64
	handles sync.Map
}

func (t *handleTable) open(info *NativeFileInfo) *RequestContext {
	result := &RequestContext{
		id:        t.next.Add(1),
		processID: info.ProcessID,
	}
	t.handles.Store(result.id, result)
	return result
}

func (t *handleTable) load(info *NativeFileInfo) *RequestContext {
	if info == nil || info.Context == 0 {
		return nil
	}
	obj, ok := t.handles.Load(info.Context)
	if !ok {
		return nil
	}
	return obj.(*RequestContext)
}

func (t *handleTable) discard(id uint64) *RequestContext {
	obj, ok := t.handles.LoadAndDelete(id)
	if !ok {
		return nil
	}
	return obj.(*RequestContext)
}

func (t *handleTable) count() int {
	result := 0
	t.handles.Range(func(_, _ interface{}) bool {
		result++
		return true
	})
	return result
}

type requestKey struct{}

type request struct {
	dispatcher *Dispatcher
	info       *NativeFileInfo
	operation  string
	flags      IOFlags
}

func withRequest(ctx context.Context, req *request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

func requestFromContext(ctx context.Context) *request {
	req, _ := ctx.Value(requestKey{}).(*request)
	return req
}

// IOFlagsFromContext returns the per request flags carried by
// the context of a provider call.
func IOFlagsFromContext(ctx context.Context) IOFlags {
	if req := requestFromContext(ctx); req != nil {
		return req.flags
	}
	return IOFlags{}
}

// OperationFromContext returns the name of the operation the
// provider is being called for.
func OperationFromContext(ctx context.Context) string {
	if req := requestFromContext(ctx); req != nil {
		return req.operation
	}
	return ""
}
