package fileinfo

import (
	"math"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/aegistudio/go-dokan/attribute"
)

// ErrCorrupt is reported when a persisted record cannot be
// decoded. Callers treat it as if the record were absent.
var ErrCorrupt = errors.New("corrupt file record")

// numFields is the count of varints in an encoded record.
const numFields = 14

// Bytes encodes the record into its persisted layout.
//
// Every numeric field is a varint, in the order of size,
// size high, size low, index, index high, index low, the
// attribute mask, creation, access and write ticks, link
// count, volume serial and the two reserved fields. The path
// and display names are not part of the layout.
func (r Record) Bytes() []byte {
	b := make([]byte, 0, numFields*protowire.SizeVarint(math.MaxUint32))
	for _, v := range []uint64{
		r.size,
		uint64(r.SizeHigh()),
		uint64(r.SizeLow()),
		r.index,
		uint64(r.IndexHigh()),
		uint64(r.IndexLow()),
		uint64(r.attributes.Encode()),
		r.creationTime,
		r.accessTime,
		r.writeTime,
		uint64(r.links),
		uint64(r.volumeSerial),
		uint64(r.reserved0),
		uint64(r.reserved1),
	} {
		b = protowire.AppendVarint(b, v)
	}
	return b
}

type decoder struct {
	b   []byte
	err error
}

func (d *decoder) next(field string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := protowire.ConsumeVarint(d.b)
	if n < 0 {
		d.err = errors.Wrapf(ErrCorrupt, "field %s: %v",
			field, protowire.ParseError(n))
		return 0
	}
	d.b = d.b[n:]
	return v
}

func (d *decoder) next32(field string) uint32 {
	v := d.next(field)
	if d.err == nil && v > math.MaxUint32 {
		d.err = errors.Wrapf(ErrCorrupt,
			"field %s: value %d overflows", field, v)
	}
	return uint32(v)
}

// Decode restores the record of the path from the persisted
// layout. A stored link count of zero is restored as one.
func Decode(path string, b []byte) (Record, error) {
	d := &decoder{b: b}
	result := Record{path: path}
	result.size = d.next("size")
	sizeHigh := d.next32("size_high")
	sizeLow := d.next32("size_low")
	result.index = d.next("index")
	indexHigh := d.next32("index_high")
	indexLow := d.next32("index_low")
	result.attributes = attribute.FromMask(d.next32("attributes"))
	result.creationTime = d.next("creation_time")
	result.accessTime = d.next("access_time")
	result.writeTime = d.next("write_time")
	result.links = d.next32("links")
	result.volumeSerial = d.next32("volume_serial")
	result.reserved0 = d.next32("reserved0")
	result.reserved1 = d.next32("reserved1")
	if d.err != nil {
		return Record{}, d.err
	}
	if len(d.b) != 0 {
		return Record{}, errors.Wrapf(ErrCorrupt,
			"%d trailing bytes", len(d.b))
	}
	if result.SizeHigh() != sizeHigh || result.SizeLow() != sizeLow {
		return Record{}, errors.Wrap(ErrCorrupt, "size halves mismatch")
	}
	if result.IndexHigh() != indexHigh || result.IndexLow() != indexLow {
		return Record{}, errors.Wrap(ErrCorrupt, "index halves mismatch")
	}
	if result.links == 0 {
		// A file without links must not vanish from listings.
		result.links = 1
	}
	result.normalizePath()
	return result, nil
}
