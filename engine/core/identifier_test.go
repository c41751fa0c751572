package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIDPoolReusesLowestFreeID(t *testing.T) {
	p := NewIDPool(3)
	a, b, c := "a", "b", "c"

	id0, err := p.Acquire(a)
	require.NoError(t, err)
	id1, _ := p.Acquire(b)
	id2, _ := p.Acquire(c)
	assert.Equal(t, []uint32{0, 1, 2}, []uint32{id0, id1, id2})

	_, err = p.Acquire("d")
	assert.ErrorIs(t, err, ErrBufferTooSmall)

	require.NoError(t, p.Release(1))
	assert.Nil(t, p.Owner(1))
	id, err := p.Acquire("e")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)
	assert.Equal(t, "e", p.Owner(1))

	assert.Error(t, p.Release(7))
}
