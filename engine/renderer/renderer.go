// Package renderer drives the frame loop: it acquires a presentable image,
// records the render graph into the current frame slot, submits, presents and
// rebuilds the swap surface and pipelines at the checkpoints between frames.
package renderer

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/frame"
	"github.com/spaghettifunk/vireo/engine/renderer/graph"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
	"github.com/spaghettifunk/vireo/engine/renderer/views"
	"github.com/spaghettifunk/vireo/engine/scene"
	"github.com/spaghettifunk/vireo/engine/systems"
)

type Config struct {
	FramesInFlight int
	// Workers is the number of secondary command buffers the geometry pass
	// records in parallel. 1 records everything into the primary buffer.
	Workers        int
	PreferMailbox  bool
	FenceTimeout   time.Duration
	BlockSize      uint64
	BudgetFraction float64
	ClearColor     [4]float32
	// UseIndirect makes the geometry pass consume the culled indirect
	// commands.
	UseIndirect bool
}

// ConfigFrom maps the engine configuration. workers is the resolved
// parallelism.
func ConfigFrom(c *core.Config, workers int) Config {
	return Config{
		FramesInFlight: c.Renderer.FramesInFlight,
		Workers:        workers,
		PreferMailbox:  c.Renderer.PreferMailbox,
		FenceTimeout:   c.Renderer.FenceTimeout(),
		BlockSize:      c.Memory.BlockSize,
		BudgetFraction: c.Memory.BudgetFraction,
		ClearColor:     [4]float32{0.02, 0.02, 0.03, 1},
		UseIndirect:    true,
	}
}

// Input is what the application hands over for one frame.
type Input struct {
	Scene  scene.Source
	Camera *scene.Camera
	Sun    scene.DirectionalLight
}

type Stats struct {
	FPS         float64
	FrameTimeMS float64
	Frames      uint64
	Skipped     uint64
	// Generation counts swap surface recreations.
	Generation uint64
	Memory     memory.Stats
}

type state int

const (
	idle state = iota
	recording
)

type Renderer struct {
	dev driver.Device
	src pipeline.ShaderSource
	cfg Config

	alloc   *memory.Allocator
	up      *memory.Uploader
	ring    *frame.Ring
	bundle  *swap.Bundle
	shared  *views.Shared
	shaders *pipeline.ShaderCache
	views   []views.View
	geom    *views.GeometryView
	graph   *graph.Graph
	jobs    *systems.JobSystem

	// imagesInFlight holds, per presentable image, the fence of the slot
	// that last rendered into it.
	imagesInFlight []driver.Fence

	mu             sync.Mutex
	width, height  uint32
	generation     uint64
	pendingShaders map[string]struct{}

	bundleGeneration uint64
	recreateAfter    bool
	// stale is set when a frame was abandoned after its image was acquired:
	// the image is never presented and the slot's sync objects are in an
	// unknown state, so the surface and the ring are rebuilt before reuse.
	stale bool

	state      state
	slot       *frame.Slot
	imageIndex uint32
	current    *pass.Frame
	ctx        context.Context

	clock     *core.Clock
	lastTime  float64
	metrics   *core.Metrics
	frames    uint64
	skipped   uint64
	recreates uint64
}

func New(dev driver.Device, shaders pipeline.ShaderSource, cfg Config) *Renderer {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	return &Renderer{
		dev:            dev,
		src:            shaders,
		cfg:            cfg,
		pendingShaders: make(map[string]struct{}),
		clock:          core.NewClock(),
		metrics:        core.NewMetrics(),
		ctx:            context.Background(),
	}
}

// Init creates every GPU resource for a window of the given size. Any
// failure is fatal to the caller; whatever was created is released.
func (r *Renderer) Init(width, height uint32) (err error) {
	defer func() {
		if err != nil {
			r.Cleanup()
		}
	}()
	r.width, r.height = width, height

	if r.alloc, err = memory.New(r.dev, memory.Config{BlockSize: r.cfg.BlockSize, BudgetFraction: r.cfg.BudgetFraction}); err != nil {
		return err
	}
	if r.up, err = memory.NewUploader(r.alloc, r.cfg.FenceTimeout); err != nil {
		return err
	}
	if r.bundle, err = swap.Create(r.dev, r.alloc, r.swapParams(width, height), nil); err != nil {
		return err
	}
	r.imagesInFlight = make([]driver.Fence, r.bundle.ImageCount())
	if r.ring, err = r.newRing(r.bundle.ImageCount()); err != nil {
		return err
	}

	if r.shared, err = views.NewShared(r.alloc, r.up, r.cfg.FramesInFlight); err != nil {
		return err
	}
	r.shaders = pipeline.NewShaderCache(r.dev, r.src)
	r.geom = views.NewGeometryView(r.shared, r.shaders, r.cfg.Workers)
	r.geom.UseIndirect = r.cfg.UseIndirect
	r.views = []views.View{
		views.NewCullView(r.shared, r.shaders),
		views.NewShadowView(r.shared, r.shaders),
		r.geom,
		views.NewLightingView(r.shared, r.shaders, r.cfg.ClearColor),
		views.NewSkyboxView(r.shared, r.shaders),
	}
	layout := r.bundle.RenderingLayout()
	for _, v := range r.views {
		if err = v.OnCreate(layout); err != nil {
			return errors.Wrapf(err, "creating view %q", v.Name())
		}
	}
	if err = r.resizeViews(r.bundle.Extent); err != nil {
		return err
	}
	r.graph = graph.New()
	if err = views.Register(r.graph, r.views...); err != nil {
		return err
	}

	if r.cfg.Workers > 1 {
		if r.jobs, err = systems.NewJobSystem(r.cfg.Workers, r.cfg.Workers); err != nil {
			return err
		}
	}
	r.clock.Start()
	core.LogInfo("renderer initialized: %d frames in flight, %d workers, passes %v",
		r.ring.Len(), r.cfg.Workers, r.graph.Passes())
	return nil
}

// newRing creates the frame slots for a surface with the given number of
// presentable images. There are never more slots than images.
func (r *Renderer) newRing(images int) (*frame.Ring, error) {
	return frame.NewRing(r.dev, frame.Config{
		FramesInFlight:   framesInFlight(r.cfg.FramesInFlight, images),
		Workers:          r.cfg.Workers,
		UniformSliceSize: views.FrameUniformSize,
		FenceTimeout:     r.cfg.FenceTimeout,
	})
}

func framesInFlight(requested, images int) int {
	return max(min(requested, images), 2)
}

func (r *Renderer) swapParams(width, height uint32) swap.Params {
	return swap.Params{Width: width, Height: height, PreferMailbox: r.cfg.PreferMailbox}
}

func (r *Renderer) resizeViews(extent driver.Extent2D) error {
	for _, v := range r.views {
		if err := v.OnResize(extent); err != nil {
			return errors.Wrapf(err, "resizing view %q", v.Name())
		}
	}
	return nil
}

func (r *Renderer) Shared() *views.Shared { return r.shared }
func (r *Renderer) Graph() *graph.Graph   { return r.graph }
func (r *Renderer) Extent() driver.Extent2D {
	return r.bundle.Extent
}

// Resize records the new framebuffer size. The swap surface is recreated at
// the next checkpoint. Safe to call from the platform event callbacks.
func (r *Renderer) Resize(width, height uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.width, r.height = width, height
	r.generation++
	core.LogDebug("framebuffer resized to %dx%d (generation %d)", width, height, r.generation)
}

// ShaderChanged queues a shader for reload. Pipelines built from it are
// rebuilt after the next present. Safe to call from any goroutine.
func (r *Renderer) ShaderChanged(name string) {
	r.mu.Lock()
	r.pendingShaders[name] = struct{}{}
	r.mu.Unlock()
}

func (r *Renderer) size() (uint32, uint32, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height, r.generation
}

// BeginFrame prepares the next frame and returns its primary command buffer
// in the recording state. A nil buffer and nil error mean the frame is
// skipped: the window is minimized or the swap surface was just recreated.
// A fence that never signals is reported as ErrDeviceLost.
func (r *Renderer) BeginFrame(in Input) (driver.CommandBuffer, error) {
	if r.state != idle {
		panic(errors.AssertionFailedf("BeginFrame while a frame is being recorded"))
	}
	width, height, gen := r.size()
	if width == 0 || height == 0 {
		r.skipped++
		return nil, nil
	}
	if gen != r.bundleGeneration || r.stale {
		if err := r.recreate(); err != nil {
			return nil, err
		}
		r.skipped++
		return nil, nil
	}

	slot, err := r.ring.AcquireSlot()
	if err != nil {
		return nil, err
	}
	idx, status, err := r.bundle.Swapchain.AcquireNextImage(r.cfg.FenceTimeout, slot.ImageAvailable)
	if err != nil {
		return nil, errors.Wrap(err, "acquiring presentable image")
	}
	if status == driver.SurfaceOutOfDate {
		core.LogDebug("swap surface out of date on acquire, recreating")
		if err := r.recreate(); err != nil {
			return nil, err
		}
		r.skipped++
		return nil, nil
	}
	r.recreateAfter = status.NeedsRecreate()

	if f := r.imagesInFlight[idx]; f != nil && f != slot.InFlight {
		if err := f.Wait(r.cfg.FenceTimeout); err != nil {
			if errors.Is(err, core.ErrTimeOut) {
				return nil, errors.WithSecondaryError(
					errors.Wrapf(core.ErrDeviceLost, "presentable image %d never released", idx), err)
			}
			return nil, r.abandon(err)
		}
	}
	r.imagesInFlight[idx] = slot.InFlight

	cmd := slot.Primary
	if err := cmd.Begin(driver.BeginInfo{OneTimeSubmit: true}); err != nil {
		return nil, r.abandon(errors.Wrapf(err, "beginning frame %d", r.frames))
	}

	fb := r.bundle.Framebuffer(idx)
	images := map[string]*memory.Image{
		pass.Backbuffer: fb.Color,
		pass.Depth:      fb.Depth,
	}
	for name, img := range r.shared.Targets {
		images[name] = img
	}
	r.current = &pass.Frame{
		Ctx:           r.ctx,
		Number:        r.frames,
		Slot:          slot.Index,
		ImageIndex:    idx,
		Extent:        r.bundle.Extent,
		Cmd:           cmd,
		Secondaries:   slot.Secondaries,
		UniformOffset: slot.UniformOffset,
		Images:        images,
		Buffers:       r.shared.Buffers(),
		Jobs:          r.jobs,
		Scene:         in.Scene,
		Camera:        in.Camera,
		Sun:           in.Sun,
	}
	r.slot, r.imageIndex = slot, idx
	r.state = recording

	if err := r.shared.Prepare(r.current); err != nil {
		return cmd, errors.Wrapf(err, "preparing frame %d", r.frames)
	}
	return cmd, nil
}

// Frame is the data of the frame being recorded, nil between frames.
func (r *Renderer) Frame() *pass.Frame {
	if r.state != recording {
		return nil
	}
	return r.current
}

// EndFrame transitions the backbuffer for presentation, submits the frame and
// presents it. Recreation requested by the surface or by a resize happens
// after the present, followed by any pending pipeline rebuild.
func (r *Renderer) EndFrame() error {
	if r.state != recording {
		panic(errors.AssertionFailedf("EndFrame without BeginFrame"))
	}
	slot, cmd := r.slot, r.current.Cmd
	r.state = idle
	r.current = nil

	color := r.bundle.Framebuffer(r.imageIndex).Color
	cmd.PipelineBarrier(pass.Batch([]driver.ImageBarrier{pass.Transition(color, driver.ImageLayoutPresentSrc)}, nil))
	if err := cmd.End(); err != nil {
		return r.abandon(errors.Wrapf(err, "ending frame %d", r.frames))
	}

	if err := r.ring.PrepareSubmit(slot); err != nil {
		return r.abandon(err)
	}
	if err := r.dev.Submit(driver.SubmitInfo{
		CommandBuffers: []driver.CommandBuffer{cmd},
		Wait:           []driver.Semaphore{slot.ImageAvailable},
		WaitStages:     []driver.PipelineStage{driver.StageColorAttachmentOutput},
		Signal:         []driver.Semaphore{slot.RenderFinished},
		Fence:          slot.InFlight,
	}); err != nil {
		return r.abandon(errors.Wrapf(err, "submitting frame %d", r.frames))
	}
	status, presentErr := r.dev.Present(driver.PresentInfo{
		Wait:       []driver.Semaphore{slot.RenderFinished},
		Swapchain:  r.bundle.Swapchain,
		ImageIndex: r.imageIndex,
	})

	r.ring.Advance()
	r.frames++
	r.clock.Update()
	now := r.clock.Elapsed()
	r.metrics.Update(now - r.lastTime)
	r.lastTime = now

	if presentErr != nil {
		return errors.Wrapf(presentErr, "presenting frame %d", r.frames-1)
	}

	// checkpoint: nothing of the next frame is recorded yet
	_, _, gen := r.size()
	if status.NeedsRecreate() || r.recreateAfter || gen != r.bundleGeneration {
		core.LogDebug("recreating swap surface after present (status %s)", status)
		if err := r.recreate(); err != nil {
			return err
		}
	}
	return r.rebuildPipelines()
}

// abandon drops the current frame after a failure between image acquire and
// submit. The frame is counted as skipped and the ring moves on; the swap
// surface and the ring are rebuilt at the next BeginFrame, which releases
// the acquired image and replaces the slot's fence and semaphores. A lost
// device is returned untouched.
func (r *Renderer) abandon(err error) error {
	r.state = idle
	r.current = nil
	if errors.Is(err, core.ErrDeviceLost) {
		return err
	}
	r.stale = true
	r.skipped++
	r.ring.Advance()
	core.LogWarn("frame %d abandoned, rebuilding swap surface and frame ring", r.frames)
	return err
}

// DrawFrame records the render graph between BeginFrame and EndFrame. A pass
// failure still ends and submits the frame so the slot stays consistent.
func (r *Renderer) DrawFrame(in Input) error {
	cmd, err := r.BeginFrame(in)
	if cmd == nil {
		return err
	}
	recErr := err
	if recErr == nil {
		recErr = r.graph.Execute(r.current)
	}
	if err := r.EndFrame(); err != nil {
		return errors.CombineErrors(recErr, err)
	}
	return recErr
}

// recreate rebuilds the swap surface for the current framebuffer size, then
// replaces the frame ring wholesale. While the size is zero it does nothing
// and the frames keep being skipped.
func (r *Renderer) recreate() error {
	width, height, gen := r.size()
	if width == 0 || height == 0 {
		return nil
	}
	if err := r.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for the device before recreating the swap surface")
	}
	old := r.bundle.RenderingLayout()
	b, err := swap.Create(r.dev, r.alloc, r.swapParams(width, height), r.bundle)
	if err != nil {
		return errors.Wrap(err, "recreating swap surface")
	}
	b.ReleasePrevious()
	r.bundle = b
	r.imagesInFlight = make([]driver.Fence, b.ImageCount())
	r.bundleGeneration = gen
	r.recreateAfter = false
	r.recreates++

	ring, err := r.newRing(b.ImageCount())
	if err != nil {
		r.stale = true
		return errors.Wrap(err, "recreating frame ring")
	}
	r.ring.Destroy()
	r.ring = ring
	r.stale = false

	layout := b.RenderingLayout()
	if layout.DepthFormat != old.DepthFormat || !slices.Equal(layout.ColorFormats, old.ColorFormats) {
		for _, v := range r.views {
			if err := v.OnCreate(layout); err != nil {
				return errors.Wrapf(err, "rebuilding view %q", v.Name())
			}
		}
	}
	return r.resizeViews(b.Extent)
}

// rebuildPipelines reloads the changed shaders and rebuilds the views using
// them. A view that fails to rebuild keeps its previous pipeline.
func (r *Renderer) rebuildPipelines() error {
	r.mu.Lock()
	if len(r.pendingShaders) == 0 {
		r.mu.Unlock()
		return nil
	}
	changed := r.pendingShaders
	r.pendingShaders = make(map[string]struct{})
	r.mu.Unlock()

	if err := r.dev.WaitIdle(); err != nil {
		return errors.Wrap(err, "waiting for the device before rebuilding pipelines")
	}
	for name := range changed {
		r.shaders.Invalidate(name)
	}
	layout := r.bundle.RenderingLayout()
	for _, v := range r.views {
		uses := slices.ContainsFunc(v.Shaders(), func(s string) bool {
			_, ok := changed[s]
			return ok
		})
		if !uses {
			continue
		}
		if err := v.OnCreate(layout); err != nil {
			core.LogError("rebuilding view %q: %v", v.Name(), err)
			continue
		}
		core.LogInfo("view %q rebuilt after shader reload", v.Name())
	}
	return nil
}

func (r *Renderer) DeviceWaitIdle() error {
	return r.dev.WaitIdle()
}

func (r *Renderer) Stats() Stats {
	s := Stats{
		FPS:         r.metrics.FPS(),
		FrameTimeMS: r.metrics.FrameTime(),
		Frames:      r.frames,
		Skipped:     r.skipped,
		Generation:  r.recreates,
	}
	if r.alloc != nil {
		s.Memory = r.alloc.Stats()
	}
	return s
}

// Cleanup waits for the device and releases everything in reverse creation
// order. It is safe to call more than once and after a failed Init.
func (r *Renderer) Cleanup() {
	if r.ring != nil {
		if err := r.dev.WaitIdle(); err != nil {
			core.LogError("waiting for the device at shutdown: %v", err)
		}
	}
	if r.jobs != nil {
		if err := r.jobs.Shutdown(); err != nil {
			core.LogWarn("stopping render workers: %v", err)
		}
		r.jobs = nil
	}
	for i := len(r.views) - 1; i >= 0; i-- {
		r.views[i].OnDestroy()
	}
	r.views, r.geom, r.graph = nil, nil, nil
	if r.shaders != nil {
		r.shaders.Destroy()
		r.shaders = nil
	}
	if r.shared != nil {
		r.shared.Destroy()
		r.shared = nil
	}
	if r.bundle != nil {
		r.bundle.Destroy()
		r.bundle = nil
	}
	if r.ring != nil {
		r.ring.Destroy()
		r.ring = nil
	}
	if r.up != nil {
		r.up.Destroy()
		r.up = nil
	}
	if r.alloc != nil {
		r.alloc.Destroy()
		r.alloc = nil
	}
	r.clock.Stop()
}
