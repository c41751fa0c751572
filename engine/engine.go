package engine

import (
	"context"
	"runtime"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/platform"
	"github.com/spaghettifunk/vireo/engine/renderer"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/vulkan"
	"github.com/spaghettifunk/vireo/engine/scene"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
	// Engine released everything
	EngineStageShutdown
)

const (
	// seconds a suspended engine blocks waiting for window events
	suspendedWait = 0.1
	// seconds between two frame statistics log lines
	statsInterval = 5.0
)

// Window is what the frame loop needs from the platform layer.
type Window interface {
	PumpMessages()
	WaitMessages(timeout float64)
	FramebufferSize() (uint32, uint32)
}

type Engine struct {
	stage  Stage
	game   *Game
	config *core.Config
	events *core.EventBus
	ctx    *Context

	platform *platform.Platform
	backend  *vulkan.Backend
	window   Window
	shaders  *assets.ShaderLibrary
	renderer *renderer.Renderer
	changes  <-chan string

	running   atomic.Bool
	suspended bool
	width     uint32
	height    uint32
	clock     *core.Clock
	lastTime  float64
	lastStats float64
}

func New(g *Game, cfg *core.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(core.ParseLogLevel(cfg.Log.Level))
	events := core.NewEventBus()
	p := platform.New(events)
	e := newEngine(g, cfg, events, p)
	e.platform = p
	return e, nil
}

func newEngine(g *Game, cfg *core.Config, events *core.EventBus, w Window) *Engine {
	return &Engine{
		stage:  EngineStageUninitialized,
		game:   g,
		config: cfg,
		events: events,
		window: w,
		clock:  core.NewClock(),
		width:  cfg.Application.Width,
		height: cfg.Application.Height,
	}
}

// Initialize opens the window, brings up the Vulkan backend and hands the
// device to the renderer.
func (e *Engine) Initialize() error {
	if err := e.platform.Startup(e.config.Application); err != nil {
		return err
	}
	backend, err := vulkan.NewBackend(e.platform, e.config.Application.Name, e.config.Renderer.Validation)
	if err != nil {
		return err
	}
	e.backend = backend
	return e.initialize(backend.Device())
}

// initialize does everything above the native device.
func (e *Engine) initialize(dev driver.Device) error {
	e.stage = EngineStageInitializing

	e.events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onQuit)
	e.events.Register(core.EVENT_CODE_RESIZED, e, e.onResized)

	shaders, err := assets.NewShaderLibrary(e.config.Assets.ShaderDir, e.config.Assets.Watch)
	if err != nil {
		return err
	}
	e.shaders = shaders
	e.changes = shaders.Changes()
	if err := shaders.LoadAll(context.Background()); err != nil {
		return errors.Wrap(err, "loading shaders")
	}

	workers := e.config.Renderer.MaxParallelism
	if workers == 0 {
		workers = runtime.NumCPU()
	}
	e.renderer = renderer.New(dev, shaders, renderer.ConfigFrom(e.config, workers))
	if w, h := e.window.FramebufferSize(); w > 0 && h > 0 {
		e.width, e.height = w, h
	}
	if err := e.renderer.Init(e.width, e.height); err != nil {
		return err
	}

	e.ctx = &Context{
		Config:   e.config,
		Events:   e.events,
		World:    scene.NewWorld(),
		Shaders:  shaders,
		Renderer: e.renderer,
	}
	if e.game.FnInitialize != nil {
		if err := e.game.FnInitialize(e.ctx); err != nil {
			return errors.Wrap(err, "game initialization")
		}
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(e.width, e.height); err != nil {
			return err
		}
	}
	e.stage = EngineStageInitialized
	core.LogInfo("engine initialized (%d render workers)", workers)
	return nil
}

// Run drives frames until the application quits. A lost device ends the
// loop with an error wrapping core.ErrDeviceLost; any other frame failure
// is logged and the next frame is attempted.
func (e *Engine) Run() error {
	if e.stage != EngineStageInitialized {
		return errors.AssertionFailedf("Run called in stage %d", e.stage)
	}
	e.stage = EngineStageRunning
	e.running.Store(true)
	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	for e.running.Load() {
		if err := e.frame(); err != nil {
			e.running.Store(false)
			return err
		}
	}
	return nil
}

func (e *Engine) frame() error {
	e.window.PumpMessages()
	if !e.running.Load() {
		return nil
	}
	if e.suspended {
		e.window.WaitMessages(suspendedWait)
		return nil
	}

	e.clock.Update()
	now := e.clock.Elapsed()
	delta := now - e.lastTime
	e.lastTime = now

	e.drainShaderChanges()

	if e.game.FnUpdate != nil {
		if err := e.game.FnUpdate(e.ctx, delta); err != nil {
			return errors.Wrap(err, "game update")
		}
	}

	w := e.ctx.World
	err := e.renderer.DrawFrame(renderer.Input{Scene: w, Camera: w.Camera, Sun: w.Sun})
	if err != nil {
		if errors.Is(err, core.ErrDeviceLost) {
			return errors.Wrap(err, "rendering frame")
		}
		core.LogError("frame dropped: %v", err)
	}

	if now-e.lastStats >= statsInterval {
		e.lastStats = now
		s := e.renderer.Stats()
		core.LogDebug("%.1f fps, %.2f ms/frame, %d frames, %d skipped, %d surface rebuilds, %d live allocations",
			s.FPS, s.FrameTimeMS, s.Frames, s.Skipped, s.Generation, s.Memory.LiveAllocations)
	}
	return nil
}

func (e *Engine) drainShaderChanges() {
	for e.changes != nil {
		select {
		case name, ok := <-e.changes:
			if !ok {
				e.changes = nil
				return
			}
			e.renderer.ShaderChanged(name)
		default:
			return
		}
	}
}

// Quit stops the loop after the current frame. Safe from any goroutine.
func (e *Engine) Quit() {
	e.running.Store(false)
}

// Shutdown releases everything in reverse order. It is safe to call after a
// failed Initialize and more than once.
func (e *Engine) Shutdown() error {
	if e.stage == EngineStageShutdown {
		return nil
	}
	e.stage = EngineStageShuttingDown
	e.running.Store(false)

	var errs error
	if e.game.FnShutdown != nil {
		errs = errors.CombineErrors(errs, e.game.FnShutdown())
	}
	e.events.Unregister(core.EVENT_CODE_APPLICATION_QUIT, e)
	e.events.Unregister(core.EVENT_CODE_RESIZED, e)
	if e.renderer != nil {
		e.renderer.Cleanup()
		e.renderer = nil
	}
	if e.shaders != nil {
		errs = errors.CombineErrors(errs, e.shaders.Close())
		e.shaders = nil
	}
	if e.backend != nil {
		e.backend.Destroy()
		e.backend = nil
	}
	if e.platform != nil {
		e.platform.Shutdown()
	}
	e.stage = EngineStageShutdown
	core.LogInfo("engine shut down")
	return errs
}

// Context is nil before initialization.
func (e *Engine) Context() *Context {
	return e.ctx
}

func (e *Engine) Stage() Stage {
	return e.stage
}

func (e *Engine) onQuit(ctx core.EventContext) bool {
	core.LogInfo("quit requested, shutting down")
	e.running.Store(false)
	return false
}

func (e *Engine) onResized(ctx core.EventContext) bool {
	if ctx.Width == e.width && ctx.Height == e.height && !e.suspended {
		return false
	}
	e.width, e.height = ctx.Width, ctx.Height
	if e.renderer != nil {
		e.renderer.Resize(ctx.Width, ctx.Height)
	}

	if ctx.Width == 0 || ctx.Height == 0 {
		if !e.suspended {
			core.LogInfo("window minimized, suspending")
			e.suspended = true
		}
		return false
	}
	if e.suspended {
		core.LogInfo("window restored, resuming")
		e.suspended = false
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(ctx.Width, ctx.Height); err != nil {
			core.LogError("game resize: %v", err)
		}
	}
	return false
}
