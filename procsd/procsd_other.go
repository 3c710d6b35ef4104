//go:build !windows

package procsd

import (
	"syscall"
)

func load() ([]byte, error) {
	return nil, syscall.ENOSYS
}
