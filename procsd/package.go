// Package procsd retrieves the security descriptor of the
// current process, in its self relative form.
//
// It serves as the descriptor of files that have none of
// their own. The process is unlikely to change its privilege
// while running, so the descriptor is only loaded once.
package procsd

import (
	"sync"
)

var (
	once       sync.Once
	descriptor []byte
	err        error
)

// Load returns a copy of the self relative descriptor.
func Load() ([]byte, error) {
	once.Do(func() {
		descriptor, err = load()
	})
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), descriptor...), nil
}
