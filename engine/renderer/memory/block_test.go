package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockFirstFitWithAlignment(t *testing.T) {
	b := newBlock(nil, 0, 1024)

	a, ok := b.alloc(100, 1)
	require.True(t, ok)
	assert.Equal(t, uint64(0), a)

	c, ok := b.alloc(50, 64)
	require.True(t, ok)
	assert.Equal(t, uint64(128), c)
	// the padding before the aligned allocation stays usable
	assert.Equal(t, []span{{100, 28}, {178, 846}}, b.free)

	d, ok := b.alloc(20, 4)
	require.True(t, ok)
	assert.Equal(t, uint64(100), d)

	_, ok = b.alloc(2048, 1)
	assert.False(t, ok)
}

func TestBlockReleaseMerges(t *testing.T) {
	b := newBlock(nil, 0, 300)
	x, _ := b.alloc(100, 1)
	y, _ := b.alloc(100, 1)
	z, _ := b.alloc(100, 1)
	assert.Empty(t, b.free)

	b.release(x, 100)
	b.release(z, 100)
	assert.Equal(t, []span{{0, 100}, {200, 100}}, b.free)
	assert.False(t, b.empty())

	b.release(y, 100)
	assert.Equal(t, []span{{0, 300}}, b.free)
	assert.True(t, b.empty())
	assert.Equal(t, uint64(300), b.freeBytes())
}
