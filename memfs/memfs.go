// Package memfs is a file system provider keeping everything
// in memory.
//
// The namespace is a record store, so that it might be backed
// by any store engine, while the contents of the files live
// in memory and are addressed by the index of their records.
// The index is also the context value of every open handle,
// so that an open file keeps being served after a rename.
package memfs

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan"
	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/fileinfo"
	"github.com/aegistudio/go-dokan/internal/logger"
	"github.com/aegistudio/go-dokan/pathnorm"
	"github.com/aegistudio/go-dokan/rangelock"
	"github.com/aegistudio/go-dokan/store"
	"github.com/aegistudio/go-dokan/store/memory"
)

const defaultCapacity = 1 << 30

type content struct {
	mtx   sync.RWMutex
	data  []byte
	locks *rangelock.Set
}

// FileSystem is the in-memory provider.
type FileSystem struct {
	// mtx serializes the changes to the namespace, the data
	// of each file is guarded by its own content.
	mtx      sync.Mutex
	records  store.Store
	contents sync.Map
	security sync.Map
	index    atomic.Uint64
	used     atomic.Int64
	capacity int64
	serial   uint32
	log      *logger.Logger
}

type option struct {
	records  store.Store
	capacity int64
	serial   uint32
	log      *logger.Logger
}

// Option customizes the file system.
type Option func(*option)

// WithStore keeps the namespace in the specified store. It
// must be empty, the store is closed by Release.
func WithStore(records store.Store) Option {
	return func(o *option) {
		o.records = records
	}
}

// WithCapacity limits the total size of the files.
func WithCapacity(capacity int64) Option {
	return func(o *option) {
		o.capacity = capacity
	}
}

// WithVolumeSerial stamps the records with the serial.
func WithVolumeSerial(serial uint32) Option {
	return func(o *option) {
		o.serial = serial
	}
}

// WithLogger sets the logger of the file system.
func WithLogger(log *logger.Logger) Option {
	return func(o *option) {
		o.log = log
	}
}

// New creates an empty file system holding only the root.
func New(opts ...Option) (*FileSystem, error) {
	option := &option{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(option)
	}
	if option.log == nil {
		option.log = logger.Default()
	}
	if option.records == nil {
		option.records = store.New(memory.New(), store.WithLogger(option.log))
	}
	result := &FileSystem{
		records:  option.records,
		capacity: option.capacity,
		serial:   option.serial,
		log:      option.log,
	}
	root := fileinfo.New("/",
		fileinfo.WithIndex(result.index.Add(1)),
		fileinfo.WithAttributes(attribute.Of(attribute.Directory)),
		fileinfo.WithVolumeSerial(result.serial),
	)
	if err := result.records.Put(context.Background(), root); err != nil {
		return nil, errors.Wrap(err, "create root")
	}
	return result, nil
}

// Release releases the namespace store, after the file
// system is unmounted.
func (fs *FileSystem) Release() error {
	return fs.records.Close()
}

// Used returns the total size of the files.
func (fs *FileSystem) Used() int64 {
	return fs.used.Load()
}

func (fs *FileSystem) get(ctx context.Context, path string) (fileinfo.Record, error) {
	record, err := fs.records.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return fileinfo.Record{}, dokan.StatusObjectNameNotFound
	}
	return record, err
}

func (fs *FileSystem) content(index uint64) (*content, error) {
	obj, ok := fs.contents.Load(index)
	if !ok {
		return nil, dokan.StatusObjectNameNotFound
	}
	return obj.(*content), nil
}

// update replaces the record of the path, with the namespace
// locked.
func (fs *FileSystem) update(
	ctx context.Context, path string,
	modify func(fileinfo.Record) (fileinfo.Record, error),
) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	record, err := fs.get(ctx, path)
	if err != nil {
		return err
	}
	if record, err = modify(record); err != nil {
		return err
	}
	return fs.records.Put(ctx, record)
}

func (fs *FileSystem) DoesPathExist(ctx context.Context, path string) (bool, error) {
	_, err := fs.records.Get(ctx, path)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (fs *FileSystem) GetInfo(ctx context.Context, path string) (fileinfo.Record, error) {
	return fs.get(ctx, path)
}

func (fs *FileSystem) create(
	ctx context.Context, path string, attributes attribute.Set,
) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	if _, err := fs.records.Get(ctx, path); err == nil {
		return dokan.StatusObjectNameCollision
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}
	parent, err := fs.records.Get(ctx, pathnorm.Parent(path))
	if errors.Is(err, store.ErrNotFound) {
		return dokan.StatusObjectPathNotFound
	} else if err != nil {
		return err
	}
	if !parent.IsDirectory() {
		return dokan.StatusObjectPathNotFound
	}
	index := fs.index.Add(1)
	record := fileinfo.New(path,
		fileinfo.WithIndex(index),
		fileinfo.WithAttributes(attributes),
		fileinfo.WithVolumeSerial(fs.serial),
	)
	if !record.IsDirectory() {
		fs.contents.Store(index, &content{locks: rangelock.New()})
	}
	return fs.records.Put(ctx, record)
}

func (fs *FileSystem) CreateEmptyFile(
	ctx context.Context, path string,
	options dokan.CreateOptionSet, attributes attribute.Set,
) error {
	attributes = attributes.Without(attribute.Directory, attribute.Normal)
	if attributes.IsEmpty() {
		attributes = attribute.Of(attribute.Archive)
	}
	return fs.create(ctx, path, attributes)
}

func (fs *FileSystem) CreateEmptyDirectory(
	ctx context.Context, path string,
	options dokan.CreateOptionSet, attributes attribute.Set,
) error {
	attributes = attributes.Without(attribute.Normal).With(attribute.Directory)
	return fs.create(ctx, pathnorm.Normalize(path, true), attributes)
}

// Open binds the handle to the index of the file.
func (fs *FileSystem) Open(
	ctx context.Context, path string,
	rc *dokan.RequestContext, req dokan.CreateRequest,
) error {
	record, err := fs.get(ctx, path)
	if err != nil {
		return err
	}
	if record.Attributes().Has(attribute.ReadOnly) && req.Options.Has(dokan.OptionDeleteOnClose) {
		return dokan.StatusCannotDelete
	}
	rc.SetContext(record.Index())
	return nil
}

func (fs *FileSystem) remove(ctx context.Context, path string, rc *dokan.RequestContext) error {
	fs.mtx.Lock()
	defer fs.mtx.Unlock()
	record, err := fs.get(ctx, path)
	if err != nil {
		return err
	}
	if record.Index() != rc.Context() {
		// Replaced after the handle has been opened.
		return nil
	}
	if record.IsDirectory() {
		children, err := fs.records.List(ctx, path)
		if err != nil {
			return err
		}
		if len(children) > 0 {
			return dokan.StatusDirectoryNotEmpty
		}
	}
	if err := fs.records.Delete(ctx, path); err != nil {
		return err
	}
	fs.discard(record.Index())
	return nil
}

func (fs *FileSystem) discard(index uint64) {
	fs.security.Delete(index)
	if obj, ok := fs.contents.LoadAndDelete(index); ok {
		c := obj.(*content)
		c.mtx.Lock()
		fs.used.Add(-int64(len(c.data)))
		c.data = nil
		c.mtx.Unlock()
	}
}

func (fs *FileSystem) Cleanup(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	if !rc.DeleteOnClose() {
		return nil
	}
	fs.log.Debugf("memfs: delete %q", path)
	return fs.remove(ctx, path, rc)
}

func (fs *FileSystem) Close(
	ctx context.Context, path string, rc *dokan.RequestContext,
) error {
	rc.SetContext(0)
	return nil
}

var _ dokan.BehaviourBase = (*FileSystem)(nil)
