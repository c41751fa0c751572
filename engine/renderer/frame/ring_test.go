package frame

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRing(t *testing.T, dev *drivertest.Device, n int) *Ring {
	t.Helper()
	r, err := NewRing(dev, Config{FramesInFlight: n, Workers: 3, UniformSliceSize: 100, FenceTimeout: time.Second})
	require.NoError(t, err)
	return r
}

func TestRingRotationReturnsToStart(t *testing.T) {
	for _, n := range []int{2, 3, 4} {
		dev := drivertest.NewDevice()
		r := newRing(t, dev, n)
		start := r.Index()
		for i := 0; i < n; i++ {
			assert.Equal(t, (start+i)%n, r.Index())
			r.Advance()
		}
		assert.Equal(t, start, r.Index(), "n=%d", n)
		r.Destroy()
	}
}

func TestAcquireWaitsOnOwnFence(t *testing.T) {
	dev := drivertest.NewDevice()
	r := newRing(t, dev, 3)
	defer r.Destroy()

	for frame := 0; frame < 7; frame++ {
		s, err := r.AcquireSlot()
		require.NoError(t, err)
		assert.Equal(t, frame%3, s.Index)
		require.NoError(t, r.PrepareSubmit(s))
		require.NoError(t, dev.Submit(driver.SubmitInfo{
			CommandBuffers: []driver.CommandBuffer{s.Primary},
			Fence:          s.InFlight,
		}))
		r.Advance()
	}
	require.Len(t, dev.FenceWaits, 7)
	for i, f := range dev.FenceWaits {
		assert.Same(t, r.Slot(i%3).InFlight, f)
	}
}

func TestSlotResources(t *testing.T) {
	dev := drivertest.NewDevice()
	r := newRing(t, dev, 2)

	s := r.Slot(1)
	assert.Equal(t, driver.CommandBufferLevelPrimary, s.Primary.Level())
	assert.Same(t, s.Primary, r.CurrentCommandBuffer(1))
	require.Len(t, s.Secondaries, 3)
	for _, sec := range s.Secondaries {
		assert.Equal(t, driver.CommandBufferLevelSecondary, sec.Level())
	}
	// 100 bytes rounded up to the 256 byte uniform alignment
	assert.Equal(t, uint64(256), s.UniformOffset)
	// 1 primary pool + 3 worker pools per slot
	assert.Equal(t, 8, dev.Live("CommandPool"))
	assert.Equal(t, 4, dev.Live("Semaphore"))

	r.Destroy()
	assert.Empty(t, dev.LiveKinds())
}

func TestFenceTimeoutIsDeviceLost(t *testing.T) {
	dev := drivertest.NewDevice()
	r := newRing(t, dev, 2)
	defer r.Destroy()

	f := r.Slot(0).InFlight.(*drivertest.Fence)
	require.NoError(t, f.Reset())
	f.Hang = true

	_, err := r.AcquireSlot()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, core.ResultDeviceLost, core.ResultOf(err))
}

func TestNewRingCleansUpOnFailure(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.Fail["CreateFence"] = errors.New("boom")
	_, err := NewRing(dev, Config{FramesInFlight: 2, Workers: 2})
	require.Error(t, err)
	assert.Empty(t, dev.LiveKinds())

	_, err = NewRing(drivertest.NewDevice(), Config{FramesInFlight: 1})
	assert.Error(t, err)
}
