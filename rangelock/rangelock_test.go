package rangelock

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestLockConflict(t *testing.T) {
	assert := assert.New(t)
	set := New()
	assert.NoError(set.Lock(10, 10))

	// Overlapping ranges from either side are refused.
	assert.True(errors.Is(set.Lock(5, 6), ErrConflict))
	assert.True(errors.Is(set.Lock(19, 1), ErrConflict))
	assert.True(errors.Is(set.Lock(0, 100), ErrConflict))
	assert.True(errors.Is(set.Lock(12, 2), ErrConflict))
	assert.True(errors.Is(set.Lock(10, 10), ErrConflict))

	// Adjacent ranges are not overlapping.
	assert.NoError(set.Lock(0, 10))
	assert.NoError(set.Lock(20, 5))
	assert.Equal(3, set.Len())
}

func TestZeroLength(t *testing.T) {
	assert := assert.New(t)
	set := New()
	assert.NoError(set.Lock(10, 0))
	assert.NoError(set.Lock(5, 10))
	assert.NoError(set.Unlock(10, 0))
	assert.NoError(set.Unlock(5, 10))
	assert.Equal(0, set.Len())
}

func TestUnlockExactRange(t *testing.T) {
	assert := assert.New(t)
	set := New()
	assert.NoError(set.Lock(0, 100))
	assert.True(errors.Is(set.Unlock(0, 50), ErrNotLocked))
	assert.NoError(set.Unlock(0, 100))
	assert.True(errors.Is(set.Unlock(0, 100), ErrNotLocked))
	assert.NoError(set.Lock(40, 10))
}

func TestInvalidRange(t *testing.T) {
	assert := assert.New(t)
	set := New()
	assert.True(errors.Is(set.Lock(-1, 1), ErrInvalidRange))
	assert.True(errors.Is(set.Lock(0, -1), ErrInvalidRange))
	assert.True(errors.Is(set.Unlock(1<<62, 1<<62), ErrInvalidRange))
}
