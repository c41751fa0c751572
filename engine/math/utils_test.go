package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, uint32(5), Clamp(uint32(1), 5, 10))
	assert.Equal(t, uint32(10), Clamp(uint32(11), 5, 10))
	assert.Equal(t, 0.5, Clamp(0.5, 0, 1))
}

func TestAlignUp(t *testing.T) {
	assert.Equal(t, uint64(256), AlignUp(uint64(100), 256))
	assert.Equal(t, uint64(512), AlignUp(uint64(512), 256))
	assert.Equal(t, uint64(7), AlignUp(uint64(7), 0))
}

func TestDivCeil(t *testing.T) {
	assert.Equal(t, 4, DivCeil(10, 3))
	assert.Equal(t, 3, DivCeil(9, 3))
	assert.Equal(t, 0, DivCeil(0, 3))
}
