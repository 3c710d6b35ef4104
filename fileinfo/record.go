// Package fileinfo defines the metadata record describing a
// single file or directory.
//
// A Record is an immutable snapshot: it is built once through
// New and its options, and modified copies are derived through
// With. The display names of a record are never stored, they
// are computed from its path whenever they are needed.
package fileinfo

import (
	"github.com/aegistudio/go-dokan/attribute"
	"github.com/aegistudio/go-dokan/filetime"
	"github.com/aegistudio/go-dokan/pathnorm"
)

// Record is the metadata of a file or directory.
type Record struct {
	path         string
	size         uint64
	index        uint64
	attributes   attribute.Set
	creationTime uint64
	accessTime   uint64
	writeTime    uint64
	links        uint32
	volumeSerial uint32
	reserved0    uint32
	reserved1    uint32
}

// Option customizes the record under construction.
type Option func(*Record)

// WithSize sets the logical size.
func WithSize(size uint64) Option {
	return func(r *Record) {
		r.size = size
	}
}

// WithIndex sets the inode equivalent identifier.
func WithIndex(index uint64) Option {
	return func(r *Record) {
		r.index = index
	}
}

// WithAttributes replaces the attribute set.
func WithAttributes(attributes attribute.Set) Option {
	return func(r *Record) {
		r.attributes = attributes
	}
}

// WithAttributeMask replaces the attribute set by decoding
// the native mask.
func WithAttributeMask(mask uint32) Option {
	return WithAttributes(attribute.FromMask(mask))
}

// WithCreationTime sets the creation ticks.
func WithCreationTime(ticks uint64) Option {
	return func(r *Record) {
		r.creationTime = ticks
	}
}

// WithAccessTime sets the last access ticks.
func WithAccessTime(ticks uint64) Option {
	return func(r *Record) {
		r.accessTime = ticks
	}
}

// WithWriteTime sets the last write ticks.
func WithWriteTime(ticks uint64) Option {
	return func(r *Record) {
		r.writeTime = ticks
	}
}

// WithTimes sets all three timestamps at once, zero ticks
// keep the current value.
func WithTimes(creation, access, write uint64) Option {
	return func(r *Record) {
		if creation != 0 {
			r.creationTime = creation
		}
		if access != 0 {
			r.accessTime = access
		}
		if write != 0 {
			r.writeTime = write
		}
	}
}

// WithLinks sets the hard link count.
func WithLinks(links uint32) Option {
	return func(r *Record) {
		r.links = links
	}
}

// WithVolumeSerial sets the serial number of the volume
// holding the file.
func WithVolumeSerial(serial uint32) Option {
	return func(r *Record) {
		r.volumeSerial = serial
	}
}

// WithReserved sets the reparse tag and the reserved field.
func WithReserved(reserved0, reserved1 uint32) Option {
	return func(r *Record) {
		r.reserved0 = reserved0
		r.reserved1 = reserved1
	}
}

func (r *Record) normalizePath() {
	r.path = pathnorm.Normalize(r.path, r.attributes.Has(attribute.Directory))
}

// New builds the record of the path. Timestamps that are not
// specified default to the current time and the link count
// defaults to one.
func New(path string, opts ...Option) Record {
	now := filetime.Now()
	result := Record{
		path:         path,
		creationTime: now,
		accessTime:   now,
		writeTime:    now,
		links:        1,
	}
	for _, opt := range opts {
		opt(&result)
	}
	result.normalizePath()
	return result
}

// With derives a new record with the options applied.
func (r Record) With(opts ...Option) Record {
	result := r
	for _, opt := range opts {
		opt(&result)
	}
	result.normalizePath()
	return result
}

// Rename derives a new record located at another path.
func (r Record) Rename(path string) Record {
	result := r
	result.path = path
	result.normalizePath()
	return result
}

func (r Record) Path() string { return r.path }

func (r Record) Size() uint64 { return r.size }

func (r Record) SizeHigh() uint32 { return uint32(r.size >> 32) }

func (r Record) SizeLow() uint32 { return uint32(r.size) }

func (r Record) Index() uint64 { return r.index }

func (r Record) IndexHigh() uint32 { return uint32(r.index >> 32) }

func (r Record) IndexLow() uint32 { return uint32(r.index) }

func (r Record) Attributes() attribute.Set { return r.attributes }

func (r Record) CreationTime() uint64 { return r.creationTime }

func (r Record) AccessTime() uint64 { return r.accessTime }

func (r Record) WriteTime() uint64 { return r.writeTime }

func (r Record) Links() uint32 { return r.links }

func (r Record) VolumeSerial() uint32 { return r.volumeSerial }

func (r Record) Reserved0() uint32 { return r.reserved0 }

func (r Record) Reserved1() uint32 { return r.reserved1 }

// IsDirectory tells whether the record is a directory.
func (r Record) IsDirectory() bool {
	return r.attributes.Has(attribute.Directory)
}

// DisplayName is the name of the record within its parent,
// it is empty for the root.
func (r Record) DisplayName() string {
	return pathnorm.Base(r.path)
}

// ShortName is the 8.3 form of the display name.
func (r Record) ShortName() string {
	return ShortName(r.DisplayName())
}
