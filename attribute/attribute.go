// Package attribute defines the file attribute flags that are
// carried by directory listings and metadata records.
package attribute

import (
	"strings"

	"github.com/aegistudio/go-dokan/bitmask"
)

// FileAttribute is one FILE_ATTRIBUTE_* flag.
type FileAttribute uint32

const (
	ReadOnly          = FileAttribute(0x00000001)
	Hidden            = FileAttribute(0x00000002)
	System            = FileAttribute(0x00000004)
	Directory         = FileAttribute(0x00000010)
	Archive           = FileAttribute(0x00000020)
	Device            = FileAttribute(0x00000040)
	Normal            = FileAttribute(0x00000080)
	Temporary         = FileAttribute(0x00000100)
	SparseFile        = FileAttribute(0x00000200)
	ReparsePoint      = FileAttribute(0x00000400)
	Compressed        = FileAttribute(0x00000800)
	Offline           = FileAttribute(0x00001000)
	NotContentIndexed = FileAttribute(0x00002000)
	Encrypted         = FileAttribute(0x00004000)
	IntegrityStream   = FileAttribute(0x00008000)
	Virtual           = FileAttribute(0x00010000)
	NoScrubData       = FileAttribute(0x00020000)
	RecallOnOpen      = FileAttribute(0x00040000)
)

// Universe lists every file attribute. The flags are disjoint
// single bits, so the order only affects the String output.
var Universe = bitmask.Universe[FileAttribute]{
	ReadOnly, Hidden, System, Directory, Archive, Device,
	Normal, Temporary, SparseFile, ReparsePoint, Compressed,
	Offline, NotContentIndexed, Encrypted, IntegrityStream,
	Virtual, NoScrubData, RecallOnOpen,
}

var names = map[FileAttribute]string{
	ReadOnly:          "READONLY",
	Hidden:            "HIDDEN",
	System:            "SYSTEM",
	Directory:         "DIRECTORY",
	Archive:           "ARCHIVE",
	Device:            "DEVICE",
	Normal:            "NORMAL",
	Temporary:         "TEMPORARY",
	SparseFile:        "SPARSE_FILE",
	ReparsePoint:      "REPARSE_POINT",
	Compressed:        "COMPRESSED",
	Offline:           "OFFLINE",
	NotContentIndexed: "NOT_CONTENT_INDEXED",
	Encrypted:         "ENCRYPTED",
	IntegrityStream:   "INTEGRITY_STREAM",
	Virtual:           "VIRTUAL",
	NoScrubData:       "NO_SCRUB_DATA",
	RecallOnOpen:      "RECALL_ON_OPEN",
}

func (a FileAttribute) String() string {
	if name, ok := names[a]; ok {
		return name
	}
	return "UNKNOWN"
}

// Set is a set of file attributes.
type Set = bitmask.Set[FileAttribute]

// FromMask decodes a raw FILE_ATTRIBUTE_* mask.
func FromMask(mask uint32) Set {
	return bitmask.Decode(mask, Universe)
}

// Of builds a set from the attributes.
func Of(attributes ...FileAttribute) Set {
	return bitmask.Of(attributes...)
}

// Mask returns the native mask of the set. An empty set is
// reported as NORMAL, which is what the driver expects from
// a file carrying no other attribute.
func Mask(set Set) uint32 {
	if set.IsEmpty() {
		return uint32(Normal)
	}
	return set.Encode()
}

// Format renders the set as "A|B|C".
func Format(set Set) string {
	flags := set.Flags()
	if len(flags) == 0 {
		return "0"
	}
	parts := make([]string, 0, len(flags))
	for _, flag := range flags {
		parts = append(parts, flag.String())
	}
	return strings.Join(parts, "|")
}
