//go:build !windows

package gofs

import (
	"os"
)

func statTimes(source os.FileInfo) (creation, access, write uint64, ok bool) {
	return 0, 0, 0, false
}
