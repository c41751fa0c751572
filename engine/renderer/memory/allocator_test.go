package memory

import (
	"testing"
	"time"

	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAllocator(t *testing.T, dev *drivertest.Device) *Allocator {
	t.Helper()
	a, err := New(dev, Config{BlockSize: 1 << 20, BudgetFraction: 1})
	require.NoError(t, err)
	return a
}

func TestDeviceLocalBufferCannotBeMapped(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)

	buf, err := a.AllocateBuffer("vertices", 1024, driver.BufferUsageVertex, 0)
	require.NoError(t, err)
	assert.False(t, buf.HostVisible())
	assert.True(t, buf.Properties&driver.MemoryPropertyDeviceLocal != 0)

	_, err = a.Map(buf.Allocation)
	assert.ErrorIs(t, err, core.ErrMemoryMapFailed)
	assert.Equal(t, core.ResultMemoryMapFailed, core.ResultOf(buf.Write(0, []byte{1})))
}

func TestPersistentlyMappedWrite(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)

	buf, err := a.AllocateBuffer("uniforms", 512, driver.BufferUsageUniform, PersistentlyMapped|HostSequentialWrite)
	require.NoError(t, err)
	require.NotNil(t, buf.Mapped())
	assert.Len(t, buf.Mapped(), 512)

	require.NoError(t, buf.Write(16, []byte{1, 2, 3}))
	assert.Equal(t, []byte{1, 2, 3}, buf.Mapped()[16:19])
	// stays mapped after Write's unmap
	assert.NotNil(t, buf.Mapped())

	err = buf.Write(510, []byte{1, 2, 3})
	assert.ErrorIs(t, err, core.ErrBufferTooSmall)
}

func TestSubAllocationsShareBlock(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)

	var bufs []*Buffer
	for i := 0; i < 4; i++ {
		b, err := a.AllocateBuffer("small", 1000, driver.BufferUsageStorage, 0)
		require.NoError(t, err)
		bufs = append(bufs, b)
	}
	st := a.Stats()
	assert.Equal(t, 4, st.LiveAllocations)
	assert.Equal(t, 1, st.Blocks)
	assert.Equal(t, 1, dev.Live("DeviceMemory"))
	// every sub-allocation honours the 256 byte alignment
	for _, b := range bufs {
		assert.Zero(t, b.Offset%256)
	}

	for _, b := range bufs {
		b.Destroy()
	}
	st = a.Stats()
	assert.Zero(t, st.LiveAllocations)
	assert.Zero(t, st.Blocks)
	assert.Zero(t, dev.Live("DeviceMemory"))
	assert.Zero(t, dev.Live("Buffer"))
}

func TestDedicatedAllocation(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)

	img, err := a.AllocateImage(ImageDesc{
		Name:   "depth",
		Extent: driver.Extent2D{Width: 64, Height: 64},
		Format: driver.FormatD32Sfloat,
		Usage:  driver.ImageUsageDepthStencilAttachment,
		Flags:  Dedicated,
	})
	require.NoError(t, err)
	assert.Equal(t, driver.AspectDepth, img.Aspect)
	assert.Equal(t, driver.ImageLayoutUndefined, img.Layout)
	assert.Equal(t, 1, a.Stats().DedicatedAllocations)
	assert.Zero(t, a.Stats().Blocks)

	img.Destroy()
	img.Destroy()
	assert.Zero(t, a.Stats().DedicatedAllocations)
	assert.Empty(t, dev.LiveKinds())
}

func TestBudgetExceeded(t *testing.T) {
	dev := drivertest.NewDevice()
	// heap 1 (host visible) is 256 MiB; allow a quarter of it
	a, err := New(dev, Config{BlockSize: 32 << 20, BudgetFraction: 0.25})
	require.NoError(t, err)

	first, err := a.AllocateBuffer("staging", 60<<20, driver.BufferUsageTransferSrc, HostSequentialWrite)
	require.NoError(t, err)
	usage, budget := a.Budget(1)
	assert.Equal(t, uint64(60<<20), usage)
	assert.Equal(t, uint64(64<<20), budget)

	_, err = a.AllocateBuffer("staging2", 8<<20, driver.BufferUsageTransferSrc, HostSequentialWrite)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	// the failed buffer handle was released
	assert.Equal(t, 1, dev.Live("Buffer"))

	first.Destroy()
	usage, _ = a.Budget(1)
	assert.Zero(t, usage)
}

func TestFlushNonCoherentAlignsToAtom(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.Memory.Types = []driver.MemoryType{
		{Properties: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCached, HeapIndex: 1},
	}
	a := newAllocator(t, dev)

	buf, err := a.AllocateBuffer("readback", 1024, driver.BufferUsageTransferDst, HostRandomAccess)
	require.NoError(t, err)
	require.NoError(t, buf.Write(70, []byte{9, 9}))

	mem := buf.Allocation.memory.(*drivertest.Memory)
	require.Len(t, mem.Flushes, 1)
	assert.Equal(t, [2]uint64{buf.Offset + 64, 64}, mem.Flushes[0])

	require.NoError(t, a.Invalidate(buf.Allocation, 0, 10))
	assert.Equal(t, [2]uint64{buf.Offset, 64}, mem.Invalidates[0])
}

func TestDestroyReportsAndReleasesLeaks(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)

	_, err := a.AllocateBuffer("leaked", 128, driver.BufferUsageUniform, HostSequentialWrite)
	require.NoError(t, err)
	_, err = a.AllocateBuffer("leaked-big", 1<<20, driver.BufferUsageStorage, 0)
	require.NoError(t, err)

	a.Destroy()
	assert.Zero(t, dev.Live("DeviceMemory"))
	assert.Zero(t, a.Stats().LiveAllocations)
}

func TestUploaderBuffer(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)
	up, err := NewUploader(a, time.Second)
	require.NoError(t, err)
	defer up.Destroy()

	dst, err := a.AllocateBuffer("indices", 64, driver.BufferUsageIndex|driver.BufferUsageTransferDst, 0)
	require.NoError(t, err)

	require.NoError(t, up.Buffer(dst, 8, []byte{1, 2, 3, 4}))
	require.Len(t, dev.Submits, 1)
	cmd := dev.Submits[0].CommandBuffers[0].(*drivertest.CommandBuffer)
	assert.True(t, cmd.BeginInfo.OneTimeSubmit)
	copies := cmd.Find("CopyBuffer")
	require.Len(t, copies, 1)
	assert.Equal(t, []driver.BufferCopy{{DstOffset: 8, Size: 4}}, copies[0].Args)

	// only the destination is left
	assert.Equal(t, 1, a.Stats().LiveAllocations)
	assert.Zero(t, dev.Live("Fence"))
}

func TestUploaderImageTransitionsLayout(t *testing.T) {
	dev := drivertest.NewDevice()
	a := newAllocator(t, dev)
	up, err := NewUploader(a, time.Second)
	require.NoError(t, err)
	defer up.Destroy()

	img, err := a.AllocateImage(ImageDesc{
		Name:   "albedo",
		Extent: driver.Extent2D{Width: 4, Height: 4},
		Format: driver.FormatR8G8B8A8Srgb,
		Usage:  driver.ImageUsageSampled | driver.ImageUsageTransferDst,
	})
	require.NoError(t, err)

	err = up.Image(img, make([]byte, 64), []driver.BufferImageCopy{{
		Aspect: driver.AspectColor, LayerCount: 1, Extent: img.Extent,
	}})
	require.NoError(t, err)
	assert.Equal(t, driver.ImageLayoutShaderReadOnlyOptimal, img.Layout)

	cmd := dev.Submits[0].CommandBuffers[0].(*drivertest.CommandBuffer)
	assert.Equal(t, []string{"PipelineBarrier", "CopyBufferToImage", "PipelineBarrier"}, cmd.Names())
}
