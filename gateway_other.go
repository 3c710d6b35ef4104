//go:build !(windows && (amd64 || arm64))

package dokan

import (
	"runtime"

	"github.com/pkg/errors"
)

// ErrUnsupported is returned when the native library is not
// available for the platform.
var ErrUnsupported = errors.Errorf(
	"dokan unsupported on %s/%s", runtime.GOOS, runtime.GOARCH)

func loadGateway() (Gateway, error) {
	return nil, ErrUnsupported
}
