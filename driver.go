package dokan

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Gateway is the native driver library.
type Gateway interface {
	// Mount mounts the volume and serves the requests with the
	// dispatcher, blocking until the volume is unmounted.
	Mount(options DeviceOptions, dispatcher *Dispatcher) error

	// Unmount requests the volume at mount point to unmount.
	Unmount(mountPoint string) bool

	DriverVersion() uint64
	LibraryVersion() uint64

	// ResetTimeout extends the timeout of the request.
	ResetTimeout(timeout time.Duration, info *NativeFileInfo) bool

	// Close releases the library, no volume is mounted.
	Close() error
}

// MountError is the error code returned by the driver when
// the volume cannot be mounted or has failed.
type MountError int32

const (
	MountErrorGeneral       = MountError(-1)
	MountErrorDriveLetter   = MountError(-2)
	MountErrorDriverInstall = MountError(-3)
	MountErrorStart         = MountError(-4)
	MountErrorMount         = MountError(-5)
	MountErrorMountPoint    = MountError(-6)
	MountErrorVersion       = MountError(-7)
)

func (e MountError) Error() string {
	switch e {
	case MountErrorGeneral:
		return "dokan: general error"
	case MountErrorDriveLetter:
		return "dokan: bad drive letter"
	case MountErrorDriverInstall:
		return "dokan: cannot install driver"
	case MountErrorStart:
		return "dokan: driver cannot start"
	case MountErrorMount:
		return "dokan: cannot assign drive letter or mount point"
	case MountErrorMountPoint:
		return "dokan: mount point is invalid"
	case MountErrorVersion:
		return "dokan: requested version is not supported"
	}
	return fmt.Sprintf("dokan: unknown error %d", int32(e))
}

// Driver is the process wide handle of the native library.
//
// The library is loaded when the first volume is mounted and
// released when the last one is unmounted.
type Driver struct {
	mutex   sync.Mutex
	loader  func() (Gateway, error)
	gateway Gateway
	refs    int
}

// NewDriver creates the driver whose library is loaded by the
// specified function.
func NewDriver(loader func() (Gateway, error)) *Driver {
	return &Driver{loader: loader}
}

var defaultDriver = NewDriver(loadGateway)

func (d *Driver) acquire() (Gateway, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.refs == 0 {
		gateway, err := d.loader()
		if err != nil {
			return nil, errors.Wrap(err, "load dokan library")
		}
		d.gateway = gateway
	}
	d.refs++
	return d.gateway, nil
}

func (d *Driver) release() error {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if d.refs == 0 {
		return nil
	}
	d.refs--
	if d.refs > 0 {
		return nil
	}
	gateway := d.gateway
	d.gateway = nil
	return gateway.Close()
}

// Refs returns the count of users of the library.
func (d *Driver) Refs() int {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	return d.refs
}

// Versions are the versions of the native components, where
// "123" stands for 1.2.3.
type Versions struct {
	Driver  uint64
	Library uint64
}

// Versions loads the library if necessary and returns its
// versions.
func (d *Driver) Versions() (Versions, error) {
	gateway, err := d.acquire()
	if err != nil {
		return Versions{}, err
	}
	defer func() { _ = d.release() }()
	return Versions{
		Driver:  gateway.DriverVersion(),
		Library: gateway.LibraryVersion(),
	}, nil
}

// Version returns the versions of the native components.
func Version() (Versions, error) {
	return defaultDriver.Versions()
}

// FileSystem is the mounted volume.
type FileSystem struct {
	dispatcher *Dispatcher
	driver     *Driver
	gateway    Gateway
	options    DeviceOptions
	done       chan struct{}
	err        error
}

// Mount mounts the provider at the mount point, returning
// once the driver has notified that the volume is mounted.
func Mount(
	fs BehaviourBase, mountPoint string, opts ...Option,
) (*FileSystem, error) {
	option := newOption()
	Options(opts...)(option)
	device, err := option.deviceOptions(mountPoint)
	if err != nil {
		return nil, err
	}
	driver := option.driver
	if driver == nil {
		driver = defaultDriver
	}
	gateway, err := driver.acquire()
	if err != nil {
		return nil, err
	}
	dispatcher := newDispatcher(fs, option)
	dispatcher.gateway = gateway
	result := &FileSystem{
		dispatcher: dispatcher,
		driver:     driver,
		gateway:    gateway,
		options:    device,
		done:       make(chan struct{}),
	}
	dispatcher.logger.Infof("mounting %q with options %#x",
		mountPoint, device.Options().Encode())
	go func() {
		defer close(result.done)
		result.err = gateway.Mount(device, dispatcher)
		if dispatcher.Unmounted(nil) != StatusSuccess {
			dispatcher.logger.Warnf("%q: unmounted with failure", mountPoint)
		}
		if err := driver.release(); err != nil {
			dispatcher.logger.Warnf("release dokan library: %v", err)
		}
	}()
	select {
	case <-dispatcher.mounted:
		return result, nil
	case <-result.done:
		if result.err == nil {
			return nil, errors.Errorf("%q: unmounted before mounted", mountPoint)
		}
		return nil, errors.Wrapf(result.err, "mount %q", mountPoint)
	}
}

// Dispatcher returns the dispatcher serving the volume.
func (f *FileSystem) Dispatcher() *Dispatcher {
	return f.dispatcher
}

// Options returns the options the volume is mounted with.
func (f *FileSystem) Options() DeviceOptions {
	return f.options
}

// Wait blocks until the volume is unmounted.
func (f *FileSystem) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unmount unmounts the volume and waits for the driver to
// stop serving it.
func (f *FileSystem) Unmount() error {
	select {
	case <-f.done:
		return f.err
	default:
	}
	if !f.gateway.Unmount(f.options.MountPoint()) {
		return errors.Errorf("unmount %q", f.options.MountPoint())
	}
	<-f.done
	return f.err
}
