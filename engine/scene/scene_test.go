package scene

import (
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorldDrawablesIsRestartable(t *testing.T) {
	w := NewWorld()
	a, err := w.Spawn([]uint32{1}, []uint32{10}, mgl32.Ident4())
	require.NoError(t, err)
	b, err := w.Spawn([]uint32{2, 3}, []uint32{20, 30}, mgl32.Translate3D(1, 2, 3))
	require.NoError(t, err)

	first := slices.Collect(w.Drawables())
	second := slices.Collect(w.Drawables())
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, a, first[0].Entity)
	assert.Equal(t, b, first[1].Entity)
	assert.Equal(t, []uint32{20, 30}, first[1].Materials)

	n := 0
	for range w.Drawables() {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestWorldMutations(t *testing.T) {
	w := NewWorld()
	_, err := w.Spawn([]uint32{1}, nil, mgl32.Ident4())
	assert.Error(t, err)

	id, err := w.Spawn([]uint32{1}, []uint32{1}, mgl32.Ident4())
	require.NoError(t, err)
	require.NoError(t, w.SetTransform(id, mgl32.Translate3D(5, 0, 0)))
	d := slices.Collect(w.Drawables())[0]
	assert.Equal(t, float32(5), d.Transform.Col(3).X())

	assert.ErrorIs(t, w.SetTransform(99, mgl32.Ident4()), core.ErrNotFound)
	w.Despawn(id)
	assert.Zero(t, w.Len())
}

func TestCameraView(t *testing.T) {
	c := NewCamera()
	assert.Equal(t, mgl32.Ident4(), c.View())

	c.SetPosition(mgl32.Vec3{0, 0, 5})
	origin := c.View().Mul4x1(mgl32.Vec4{0, 0, 5, 1})
	assert.InDelta(t, 0, origin.Vec3().Len(), 1e-5)
	assert.True(t, c.Forward().ApproxEqual(mgl32.Vec3{0, 0, -1}))

	c.MoveForward(2)
	assert.InDelta(t, 3, c.Position.Z(), 1e-5)

	c.Pitch(10)
	assert.LessOrEqual(t, c.EulerRotation.X(), mgl32.DegToRad(89))
}

func TestProjectionFlipsY(t *testing.T) {
	c := NewCamera()
	assert.Less(t, c.Projection(16.0/9.0)[5], float32(0))
}

func TestSunViewProjection(t *testing.T) {
	l := DirectionalLight{Direction: mgl32.Vec3{0, -1, 0}}
	m := l.ViewProjection(10)
	assert.NotEqual(t, mgl32.Mat4{}, m)

	// depth runs from 0 at the light to 1 at the far side of the box
	near := m.Mul4x1(mgl32.Vec4{0, 10, 0, 1})
	mid := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	far := m.Mul4x1(mgl32.Vec4{0, -10, 0, 1})
	assert.InDelta(t, 0, near.Z(), 1e-5)
	assert.InDelta(t, 0.5, mid.Z(), 1e-5)
	assert.InDelta(t, 1, far.Z(), 1e-5)
}

func TestProjectionDepthRange(t *testing.T) {
	c := NewCamera()
	p := c.Projection(1)
	near := p.Mul4x1(mgl32.Vec4{0, 0, -c.Near, 1})
	far := p.Mul4x1(mgl32.Vec4{0, 0, -c.Far, 1})
	assert.InDelta(t, 0, near.Z()/near.W(), 1e-5)
	assert.InDelta(t, 1, far.Z()/far.W(), 1e-4)
}
