package procsd

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const infoMask = windows.OWNER_SECURITY_INFORMATION |
	windows.GROUP_SECURITY_INFORMATION |
	windows.DACL_SECURITY_INFORMATION

func load() ([]byte, error) {
	sd, err := windows.GetSecurityInfo(
		windows.CurrentProcess(),
		windows.SE_KERNEL_OBJECT, infoMask,
	)
	if err != nil {
		return nil, errors.Wrap(err, "get process security")
	}
	// The descriptor returned is self relative already, so
	// it is a contiguous block of its length.
	return append([]byte(nil), unsafe.Slice(
		(*byte)(unsafe.Pointer(sd)), sd.Length())...), nil
}
