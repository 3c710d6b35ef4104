package dokan

import (
	"time"

	"github.com/pkg/errors"

	"github.com/aegistudio/go-dokan/bitmask"
	"github.com/aegistudio/go-dokan/internal/logger"
)

// LibraryVersion is the feature version requested from the
// driver library, "123" standing for 1.2.3.
const LibraryVersion = 100

const (
	defaultThreadCount        = 5
	defaultTimeout            = 15 * time.Second
	defaultAllocationUnitSize = 4096
	defaultSectorSize         = 512
	defaultVolumeSerial       = 0x19831116
	defaultMaxComponentLength = 256
	defaultFileSystemName     = "NTFS"
	defaultVolumeName         = "DOKAN"
	defaultTotalBytes         = 8 << 40
)

// VolumeInfo is reported with GetVolumeInformation.
type VolumeInfo struct {
	Name               string
	SerialNumber       uint32
	MaxComponentLength uint32
	Features           FileSystemFeatureSet
	FileSystemName     string
}

// FreeSpace is reported with GetDiskFreeSpace.
type FreeSpace struct {
	FreeBytesAvailable uint64
	TotalBytes         uint64
	TotalFreeBytes     uint64
}

// DeviceOptions is the immutable mount configuration handed
// to the driver gateway.
type DeviceOptions struct {
	version            uint16
	threadCount        uint16
	options            MountOptionSet
	mountPoint         string
	uncName            string
	timeout            time.Duration
	allocationUnitSize uint32
	sectorSize         uint32
}

func (o DeviceOptions) Version() uint16 { return o.version }

func (o DeviceOptions) ThreadCount() uint16 { return o.threadCount }

func (o DeviceOptions) Options() MountOptionSet { return o.options }

func (o DeviceOptions) MountPoint() string { return o.mountPoint }

func (o DeviceOptions) UNCName() string { return o.uncName }

func (o DeviceOptions) Timeout() time.Duration { return o.timeout }

func (o DeviceOptions) AllocationUnitSize() uint32 { return o.allocationUnitSize }

func (o DeviceOptions) SectorSize() uint32 { return o.sectorSize }

type option struct {
	threadCount        uint16
	mountOptions       []MountOption
	uncName            string
	timeout            time.Duration
	allocationUnitSize uint32
	sectorSize         uint32
	caseSensitive      bool
	volume             VolumeInfo
	freeSpace          FreeSpace
	logger             *logger.Logger
	observer           Observer
	driver             *Driver
}

// Option is the option for mounting the file system.
type Option func(*option)

// Options combines multiple options into one.
func Options(opts ...Option) Option {
	return func(o *option) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

// WithThreadCount sets the count of driver worker threads.
func WithThreadCount(count uint16) Option {
	return func(o *option) {
		o.threadCount = count
	}
}

// WithMountOptions adds mount options.
func WithMountOptions(options ...MountOption) Option {
	return func(o *option) {
		o.mountOptions = append(o.mountOptions, options...)
	}
}

// WithUNCName sets the UNC name of a network drive.
func WithUNCName(name string) Option {
	return func(o *option) {
		o.uncName = name
	}
}

// WithTimeout sets the timeout of every request, which the
// provider might extend through ExtendTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(o *option) {
		o.timeout = timeout
	}
}

// WithAllocationUnitSize sets the allocation unit size.
func WithAllocationUnitSize(size uint32) Option {
	return func(o *option) {
		o.allocationUnitSize = size
	}
}

// WithSectorSize sets the sector size.
func WithSectorSize(size uint32) Option {
	return func(o *option) {
		o.sectorSize = size
	}
}

// CaseSensitive sets whether the names are case sensitive,
// which also decides how directory patterns are matched.
func CaseSensitive(value bool) Option {
	return func(o *option) {
		o.caseSensitive = value
	}
}

// VolumeName sets the volume label.
func VolumeName(name string) Option {
	return func(o *option) {
		o.volume.Name = name
	}
}

// VolumeSerial sets the volume serial number.
func VolumeSerial(serial uint32) Option {
	return func(o *option) {
		o.volume.SerialNumber = serial
	}
}

// FileSystemName sets the name of the file system.
func FileSystemName(name string) Option {
	return func(o *option) {
		o.volume.FileSystemName = name
	}
}

// MaxComponentLength sets the longest name of a component.
func MaxComponentLength(length uint32) Option {
	return func(o *option) {
		o.volume.MaxComponentLength = length
	}
}

// WithFeatures adds file system features to report.
func WithFeatures(features ...FileSystemFeature) Option {
	return func(o *option) {
		o.volume.Features = o.volume.Features.With(features...)
	}
}

// WithFreeSpace sets the free space reported when the
// provider does not report it.
func WithFreeSpace(space FreeSpace) Option {
	return func(o *option) {
		o.freeSpace = space
	}
}

// WithLogger sets the logger of the bridge.
func WithLogger(log *logger.Logger) Option {
	return func(o *option) {
		o.logger = log
	}
}

// WithObserver sets the observer of every request.
func WithObserver(observer Observer) Option {
	return func(o *option) {
		o.observer = observer
	}
}

// WithDriver mounts through the specified driver instead of
// the native one.
func WithDriver(driver *Driver) Option {
	return func(o *option) {
		o.driver = driver
	}
}

func newOption() *option {
	return &option{
		threadCount:        defaultThreadCount,
		timeout:            defaultTimeout,
		allocationUnitSize: defaultAllocationUnitSize,
		sectorSize:         defaultSectorSize,
		volume: VolumeInfo{
			Name:               defaultVolumeName,
			SerialNumber:       defaultVolumeSerial,
			MaxComponentLength: defaultMaxComponentLength,
			FileSystemName:     defaultFileSystemName,
		},
		freeSpace: FreeSpace{
			FreeBytesAvailable: defaultTotalBytes,
			TotalBytes:         defaultTotalBytes,
			TotalFreeBytes:     defaultTotalBytes,
		},
		observer: nopObserver{},
	}
}

func (o *option) mountOptionSet() MountOptionSet {
	return bitmask.Of(o.mountOptions...)
}

func (o *option) deviceOptions(mountPoint string) (DeviceOptions, error) {
	if mountPoint == "" {
		return DeviceOptions{}, errors.New("empty mount point")
	}
	if o.threadCount == 0 {
		return DeviceOptions{}, errors.New("thread count must be positive")
	}
	options := o.mountOptionSet()
	if o.uncName != "" && !options.Has(MountNetworkDrive) {
		return DeviceOptions{}, errors.Errorf(
			"unc name %q requires a network drive", o.uncName)
	}
	return DeviceOptions{
		version:            LibraryVersion,
		threadCount:        o.threadCount,
		options:            options,
		mountPoint:         mountPoint,
		uncName:            o.uncName,
		timeout:            o.timeout,
		allocationUnitSize: o.allocationUnitSize,
		sectorSize:         o.sectorSize,
	}, nil
}

// volumeInfo completes the configured volume information with
// the features implied by the other options.
func (o *option) volumeInfo() VolumeInfo {
	result := o.volume
	result.Features = result.Features.With(
		FeatureCasePreservedNames,
		FeatureUnicodeOnDisk,
		FeatureSupportsRemoteStorage,
	)
	if o.caseSensitive {
		result.Features = result.Features.With(FeatureCaseSensitiveSearch)
	}
	options := o.mountOptionSet()
	if options.Has(MountAltStream) {
		result.Features = result.Features.With(FeatureNamedStreams)
	}
	if options.Has(MountWriteProtection) {
		result.Features = result.Features.With(FeatureReadOnlyVolume)
	}
	return result
}
