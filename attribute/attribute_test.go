package attribute

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromMask(t *testing.T) {
	assert := assert.New(t)
	set := FromMask(0x23)
	assert.Equal([]FileAttribute{ReadOnly, Hidden, Archive}, set.Flags())
	assert.Equal("READONLY|HIDDEN|ARCHIVE", Format(set))
	assert.Equal(uint32(0x23), Mask(set))
}

func TestMaskEmptyIsNormal(t *testing.T) {
	assert := assert.New(t)
	assert.Equal(uint32(Normal), Mask(Of()))
	assert.Equal("0", Format(Of()))
}

func TestFromMaskDropsUnknown(t *testing.T) {
	assert := assert.New(t)
	set := FromMask(0x80000010)
	assert.Equal(Of(Directory), set)
	assert.True(set.Has(Directory))
}
