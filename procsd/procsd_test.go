package procsd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadReturnsCopy(t *testing.T) {
	assert := assert.New(t)
	first, err := Load()
	if err != nil {
		// No process descriptor on this platform.
		assert.Nil(first)
		return
	}
	assert.NotEmpty(first)
	first[0] ^= 0xff
	second, err := Load()
	assert.NoError(err)
	assert.NotEqual(first[0], second[0])
}
