package renderer

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/views"
	"github.com/spaghettifunk/vireo/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bytecode map[string][]byte

func (b bytecode) Bytecode(name string) ([]byte, error) {
	code, ok := b[name]
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "shader %q", name)
	}
	return code, nil
}

func shaderFiles() bytecode {
	b := bytecode{}
	for _, name := range []string{"cull.comp.spv", "shadow.vert.spv", "shadow.frag.spv", "geometry.vert.spv",
		"geometry.frag.spv", "lighting.vert.spv", "lighting.frag.spv", "skybox.vert.spv", "skybox.frag.spv"} {
		b[name] = make([]byte, 64)
	}
	return b
}

func newRenderer(t *testing.T, workers int) (*Renderer, *drivertest.Device, Input) {
	t.Helper()
	dev := drivertest.NewDevice()
	r := New(dev, shaderFiles(), Config{
		FramesInFlight: 2,
		Workers:        workers,
		FenceTimeout:   time.Second,
		BlockSize:      1 << 24,
		BudgetFraction: 1,
		UseIndirect:    true,
	})
	require.NoError(t, r.Init(800, 600))

	world := scene.NewWorld()
	vertices, indices := views.Cube()
	cube, err := r.Shared().Meshes.Add("cube", vertices, indices)
	require.NoError(t, err)
	for i := 0; i < 8; i++ {
		_, err := world.Spawn([]uint32{cube}, []uint32{0}, mgl32.Translate3D(float32(i), 0, 0))
		require.NoError(t, err)
	}
	return r, dev, Input{Scene: world, Camera: world.Camera, Sun: world.Sun}
}

// frameSubmits drops the staging uploads, which signal no semaphore.
func frameSubmits(dev *drivertest.Device) []driver.SubmitInfo {
	var out []driver.SubmitInfo
	for _, s := range dev.Submits {
		if len(s.Signal) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func hangFences(r *Renderer) {
	for i := 0; i < r.ring.Len(); i++ {
		r.ring.Slot(i).InFlight.(*drivertest.Fence).Hang = true
	}
}

func TestFrameLoopSubmitsAndPresents(t *testing.T) {
	r, dev, in := newRenderer(t, 4)
	defer r.Cleanup()

	for i := 0; i < 5; i++ {
		require.NoError(t, r.DrawFrame(in))
	}
	submits := frameSubmits(dev)
	require.Len(t, submits, 5)
	require.Len(t, dev.Presents, 5)
	for i, s := range submits {
		slot := r.ring.Slot(i % 2)
		assert.Same(t, slot.InFlight, s.Fence)
		assert.Equal(t, []driver.Semaphore{slot.ImageAvailable}, s.Wait)
		assert.Equal(t, []driver.Semaphore{slot.RenderFinished}, s.Signal)
		assert.Equal(t, []driver.Semaphore{slot.RenderFinished}, dev.Presents[i].Wait)
	}
	assert.Equal(t, uint64(5), r.Stats().Frames)
	assert.Nil(t, r.Frame())

	// the last command recorded is the transition to present
	cmd := submits[4].CommandBuffers[0].(*drivertest.CommandBuffer)
	last := cmd.Cmds[len(cmd.Cmds)-1]
	require.Equal(t, "PipelineBarrier", last.Name)
	b := last.Args.(driver.Barrier)
	assert.Equal(t, driver.ImageLayoutPresentSrc, b.Images[0].NewLayout)
	assert.Equal(t, driver.ImageLayoutColorAttachmentOptimal, b.Images[0].OldLayout)
	// one debug label per pass
	assert.Len(t, cmd.Find("BeginLabel"), len(r.Graph().Passes()))
}

func TestImagesInFlight(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()
	// 3 presentable images and 2 slots: the fourth frame gets image 0 on
	// slot 1 and must wait for slot 0, which rendered image 0 last
	require.Equal(t, 3, r.bundle.ImageCount())
	for i := 0; i < 3; i++ {
		require.NoError(t, r.DrawFrame(in))
	}
	before := len(dev.FenceWaits)
	require.NoError(t, r.DrawFrame(in))
	waits := dev.FenceWaits[before:]
	require.Len(t, waits, 2)
	assert.Same(t, r.ring.Slot(1).InFlight, waits[0])
	assert.Same(t, r.ring.Slot(0).InFlight, waits[1])
}

func TestResizeThroughMinimize(t *testing.T) {
	r, dev, in := newRenderer(t, 2)
	defer r.Cleanup()

	require.NoError(t, r.DrawFrame(in))
	live := r.alloc.Stats().LiveAllocations
	submits := len(frameSubmits(dev))

	r.Resize(0, 0)
	for i := 0; i < 3; i++ {
		cmd, err := r.BeginFrame(in)
		require.NoError(t, err)
		assert.Nil(t, cmd)
	}
	assert.Len(t, frameSubmits(dev), submits)

	r.Resize(1024, 768)
	// the first frame after the restore recreates and is skipped
	cmd, err := r.BeginFrame(in)
	require.NoError(t, err)
	assert.Nil(t, cmd)
	assert.Equal(t, driver.Extent2D{Width: 1024, Height: 768}, r.Extent())

	require.NoError(t, r.DrawFrame(in))
	assert.Len(t, frameSubmits(dev), submits+1)
	assert.Equal(t, live, r.alloc.Stats().LiveAllocations)
	assert.Nil(t, r.bundle.Previous())
	assert.Equal(t, uint64(1), r.Stats().Generation)
	assert.Equal(t, driver.Extent2D{Width: 1024, Height: 768}, r.shared.Targets[views.GBufferAlbedo].Extent)
}

func TestOutOfDateAcquireSkipsFrame(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()

	dev.AcquireStatus = []driver.SurfaceStatus{driver.SurfaceOutOfDate}
	require.NoError(t, r.DrawFrame(in))
	assert.Empty(t, frameSubmits(dev))
	assert.Len(t, dev.Swapchains, 2)

	require.NoError(t, r.DrawFrame(in))
	assert.Len(t, frameSubmits(dev), 1)
}

func TestSuboptimalPresentRecreatesAfterPresent(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()

	dev.PresentStatus = []driver.SurfaceStatus{driver.SurfaceSuboptimal}
	require.NoError(t, r.DrawFrame(in))
	assert.Len(t, dev.Presents, 1)
	require.Len(t, dev.Swapchains, 2)
	assert.Same(t, dev.Swapchains[0], dev.Swapchains[1].Info.Old)
	assert.Equal(t, 1, dev.WaitIdles)
}

func TestFenceTimeoutIsDeviceLost(t *testing.T) {
	r, _, in := newRenderer(t, 1)
	defer r.Cleanup()

	fence := r.ring.Slot(0).InFlight.(*drivertest.Fence)
	require.NoError(t, fence.Reset())
	fence.Hang = true

	err := r.DrawFrame(in)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, core.ResultDeviceLost, core.ResultOf(err))
}

func TestPassFailureStillSubmits(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()

	boom := errors.New("boom")
	r.Graph().AddPass("broken", func(*pass.Frame, *pass.Context) error { return boom })
	err := r.DrawFrame(in)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, frameSubmits(dev), 1)
	assert.Len(t, dev.Presents, 1)

	require.True(t, r.Graph().RemovePass("broken"))
	assert.NoError(t, r.DrawFrame(in))
}

func TestSubmitFailureDropsFrame(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()
	// a reset fence with nothing pending never signals
	hangFences(r)
	failed := r.ring.Slot(0)
	fences := dev.Live("Fence")

	dev.Fail["Submit"] = errors.New("queue busy")
	err := r.DrawFrame(in)
	require.Error(t, err)
	assert.NotErrorIs(t, err, core.ErrDeviceLost)
	assert.Nil(t, r.Frame())
	delete(dev.Fail, "Submit")

	// the next frame rebuilds the surface and the ring and is skipped
	require.NoError(t, r.DrawFrame(in))
	assert.Empty(t, frameSubmits(dev))
	assert.Len(t, dev.Swapchains, 2)
	assert.NotSame(t, failed, r.ring.Slot(0))
	assert.Equal(t, fences, dev.Live("Fence"))

	for i := 0; i < 3; i++ {
		require.NoError(t, r.DrawFrame(in))
	}
	assert.Len(t, frameSubmits(dev), 3)
	assert.Len(t, dev.Presents, 3)
	assert.Equal(t, uint64(2), r.Stats().Skipped)
}

func TestCommandBufferFailureDropsFrame(t *testing.T) {
	for _, op := range []string{"BeginCommandBuffer", "EndCommandBuffer"} {
		t.Run(op, func(t *testing.T) {
			r, dev, in := newRenderer(t, 1)
			defer r.Cleanup()
			hangFences(r)

			dev.Fail[op] = errors.New("out of host memory")
			err := r.DrawFrame(in)
			require.Error(t, err)
			assert.NotErrorIs(t, err, core.ErrDeviceLost)
			assert.Empty(t, frameSubmits(dev))
			delete(dev.Fail, op)

			require.NoError(t, r.DrawFrame(in))
			require.NoError(t, r.DrawFrame(in))
			assert.Len(t, frameSubmits(dev), 1)
			assert.Len(t, dev.Presents, 1)
		})
	}
}

func TestDeviceLostSubmitIsReturned(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()

	dev.Fail["Submit"] = core.NewError(core.ResultDeviceLost, "vkQueueSubmit")
	err := r.DrawFrame(in)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Len(t, dev.Swapchains, 1)
}

func TestFramesInFlightCappedByImages(t *testing.T) {
	assert.Equal(t, 2, framesInFlight(3, 2))
	assert.Equal(t, 3, framesInFlight(3, 3))
	assert.Equal(t, 2, framesInFlight(2, 4))
	assert.Equal(t, 2, framesInFlight(3, 1))
}

func TestRecreateReplacesRing(t *testing.T) {
	r, dev, in := newRenderer(t, 2)
	defer r.Cleanup()
	require.NoError(t, r.DrawFrame(in))
	old := r.ring.Slot(0)
	pools := dev.Live("CommandPool")

	r.Resize(640, 480)
	require.NoError(t, r.DrawFrame(in))
	assert.NotSame(t, old, r.ring.Slot(0))
	assert.Equal(t, 0, r.ring.Index())
	assert.Equal(t, pools, dev.Live("CommandPool"))
}

func TestShaderReloadRebuildsAfterPresent(t *testing.T) {
	r, dev, in := newRenderer(t, 1)
	defer r.Cleanup()

	old := r.geom.Pipeline().Handle
	pipelines := dev.Live("Pipeline")
	r.ShaderChanged("geometry.frag.spv")
	require.NoError(t, r.DrawFrame(in))

	assert.NotSame(t, old, r.geom.Pipeline().Handle)
	assert.Equal(t, pipelines, dev.Live("Pipeline"))
	assert.Equal(t, 1, dev.WaitIdles)

	// nothing pending, nothing rebuilt
	current := r.geom.Pipeline().Handle
	require.NoError(t, r.DrawFrame(in))
	assert.Same(t, current, r.geom.Pipeline().Handle)
}

func TestCleanupReleasesEverything(t *testing.T) {
	r, dev, in := newRenderer(t, 3)
	require.NoError(t, r.DrawFrame(in))
	r.Cleanup()
	r.Cleanup()
	assert.Empty(t, dev.LiveKinds())
}

func TestInitFailureReleasesEverything(t *testing.T) {
	dev := drivertest.NewDevice()
	dev.Fail["CreateGraphicsPipeline"] = errors.New("no pipelines today")
	r := New(dev, shaderFiles(), Config{FramesInFlight: 2, FenceTimeout: time.Second, BlockSize: 1 << 24, BudgetFraction: 1})
	require.Error(t, r.Init(800, 600))
	assert.Empty(t, dev.LiveKinds())
}
