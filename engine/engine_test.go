package engine

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vireo/engine/renderer/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shaderNames = []string{"cull.comp.spv", "shadow.vert.spv", "shadow.frag.spv", "geometry.vert.spv",
	"geometry.frag.spv", "lighting.vert.spv", "lighting.frag.spv", "skybox.vert.spv", "skybox.frag.spv"}

func spirv(version uint32) []byte {
	b := make([]byte, 24)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	binary.LittleEndian.PutUint32(b[20:], version)
	return b
}

// window replays a script of events, one entry per pump.
type window struct {
	events *core.EventBus
	script []func()
	pumps  int
	waits  int
	width  uint32
	height uint32
}

func (w *window) PumpMessages() {
	if w.pumps < len(w.script) && w.script[w.pumps] != nil {
		w.script[w.pumps]()
	}
	w.pumps++
}

func (w *window) WaitMessages(float64)              { w.waits++ }
func (w *window) FramebufferSize() (uint32, uint32) { return w.width, w.height }

func (w *window) fire(code core.SystemEventCode, width, height uint32) func() {
	return func() { w.events.Fire(core.EventContext{Type: code, Width: width, Height: height}) }
}

type fixture struct {
	engine  *Engine
	dev     *drivertest.Device
	win     *window
	dir     string
	updates int
	resizes [][2]uint32
	stopped bool
}

func newFixture(t *testing.T, watch bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, name := range shaderNames {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), spirv(1), 0o644))
	}
	cfg := core.DefaultConfig()
	cfg.Renderer.MaxParallelism = 2
	cfg.Renderer.FenceTimeoutMS = 1000
	cfg.Memory.BlockSize = 1 << 24
	cfg.Memory.BudgetFraction = 1
	cfg.Assets.ShaderDir = dir
	cfg.Assets.Watch = watch

	fx := &fixture{dev: drivertest.NewDevice(), dir: dir}
	game := &Game{
		FnInitialize: func(ctx *Context) error {
			vertices, indices := views.Cube()
			cube, err := ctx.AddMesh("cube", vertices, indices)
			if err != nil {
				return err
			}
			img := &assets.ImageData{Width: 4, Height: 4, MipLevels: 1, Layers: 1, Format: assets.PixelFormatRGBA8, Pixels: make([]byte, 64)}
			if err := img.GenerateMips(); err != nil {
				return err
			}
			albedo, err := ctx.AddTexture("white", img)
			if err != nil {
				return err
			}
			material, err := ctx.AddMaterial(views.Material{BaseColor: mgl32.Vec4{1, 1, 1, 1}, Albedo: albedo})
			if err != nil {
				return err
			}
			_, err = ctx.Spawn([]uint32{cube}, []uint32{material}, mgl32.Ident4())
			return err
		},
		FnUpdate: func(ctx *Context, delta float64) error {
			fx.updates++
			return nil
		},
		FnOnResize: func(w, h uint32) error {
			fx.resizes = append(fx.resizes, [2]uint32{w, h})
			return nil
		},
		FnShutdown: func() error {
			fx.stopped = true
			return nil
		},
	}
	events := core.NewEventBus()
	fx.win = &window{events: events, width: 800, height: 600}
	fx.engine = newEngine(game, cfg, events, fx.win)
	require.NoError(t, fx.engine.initialize(fx.dev))
	t.Cleanup(func() { _ = fx.engine.Shutdown() })
	return fx
}

func TestRunUntilQuit(t *testing.T) {
	fx := newFixture(t, false)
	assert.Equal(t, EngineStageInitialized, fx.engine.Stage())
	assert.Equal(t, [][2]uint32{{800, 600}}, fx.resizes)
	assert.Equal(t, 1, fx.engine.Context().World.Len())

	fx.win.script = []func(){3: fx.win.fire(core.EVENT_CODE_APPLICATION_QUIT, 0, 0)}
	require.NoError(t, fx.engine.Run())
	assert.Equal(t, 3, fx.updates)
	assert.Len(t, fx.dev.Presents, 3)

	require.NoError(t, fx.engine.Shutdown())
	require.NoError(t, fx.engine.Shutdown())
	assert.True(t, fx.stopped)
	assert.Equal(t, EngineStageShutdown, fx.engine.Stage())
	assert.Empty(t, fx.dev.LiveKinds())
}

func TestMinimizeSuspends(t *testing.T) {
	fx := newFixture(t, false)
	w := fx.win
	w.script = []func(){
		1: w.fire(core.EVENT_CODE_RESIZED, 0, 0),
		4: w.fire(core.EVENT_CODE_RESIZED, 640, 480),
		7: w.fire(core.EVENT_CODE_APPLICATION_QUIT, 0, 0),
	}
	require.NoError(t, fx.engine.Run())

	// pumps 1-3 are suspended, 4 recreates the surface and skips, 5 and 6 draw
	assert.Equal(t, 3, w.waits)
	assert.Equal(t, 4, fx.updates)
	assert.Len(t, fx.dev.Presents, 3)
	assert.Equal(t, [][2]uint32{{800, 600}, {640, 480}}, fx.resizes)
	assert.Equal(t, driver.Extent2D{Width: 640, Height: 480}, fx.engine.Context().Renderer.Extent())
}

func TestDeviceLostEndsRun(t *testing.T) {
	fx := newFixture(t, false)
	fx.dev.Fail["Submit"] = core.NewError(core.ResultDeviceLost, "vkQueueSubmit")

	err := fx.engine.Run()
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrDeviceLost)
	assert.Equal(t, 1, fx.updates)
}

func TestFrameErrorsAreNotFatal(t *testing.T) {
	fx := newFixture(t, false)
	fx.dev.Fail["Present"] = core.NewError(core.ResultGeneric, "vkQueuePresent")
	fx.win.script = []func(){2: fx.win.fire(core.EVENT_CODE_APPLICATION_QUIT, 0, 0)}

	require.NoError(t, fx.engine.Run())
	assert.Equal(t, 2, fx.updates)
	assert.Len(t, fx.dev.Submits, 2+countUploads(fx.dev))
}

func TestTransientSubmitFailureRecovers(t *testing.T) {
	fx := newFixture(t, false)
	fx.dev.Fail["Submit"] = core.NewError(core.ResultGeneric, "vkQueueSubmit")
	fx.win.script = []func(){
		1: func() { delete(fx.dev.Fail, "Submit") },
		4: fx.win.fire(core.EVENT_CODE_APPLICATION_QUIT, 0, 0),
	}

	require.NoError(t, fx.engine.Run())
	// frame 0 is dropped, frame 1 rebuilds the surface, frames 2 and 3 present
	assert.Equal(t, 4, fx.updates)
	assert.Len(t, fx.dev.Presents, 2)
	assert.Equal(t, uint64(2), fx.engine.Context().Renderer.Stats().Skipped)
}

// countUploads is the number of submits issued by staging uploads during
// initialization, told apart by carrying no semaphores.
func countUploads(dev *drivertest.Device) int {
	n := 0
	for _, s := range dev.Submits {
		if len(s.Signal) == 0 {
			n++
		}
	}
	return n
}

func TestShaderChangeReachesRenderer(t *testing.T) {
	fx := newFixture(t, true)
	require.NoError(t, os.WriteFile(filepath.Join(fx.dir, "geometry.frag.spv"), spirv(2), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	fx.win.script = nil
	quit := fx.win.fire(core.EVENT_CODE_APPLICATION_QUIT, 0, 0)
	for i := 0; i < 1000; i++ {
		fx.win.script = append(fx.win.script, func() {
			if fx.dev.WaitIdles > 0 || time.Now().After(deadline) {
				quit()
				return
			}
			time.Sleep(5 * time.Millisecond)
		})
	}
	require.NoError(t, fx.engine.Run())
	// the rebuild waits for the device once, after a present
	assert.Positive(t, fx.dev.WaitIdles)

	code, err := fx.engine.Context().Shaders.Bytecode("geometry.frag.spv")
	require.NoError(t, err)
	assert.Equal(t, spirv(2), code)
}

func TestRunBeforeInitialize(t *testing.T) {
	cfg := core.DefaultConfig()
	e := newEngine(&Game{}, cfg, core.NewEventBus(), &window{})
	assert.Error(t, e.Run())
	assert.NoError(t, e.Shutdown())
}
