package platform

import (
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/vireo/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform owns the window and turns its callbacks into engine events.
type Platform struct {
	Window *glfw.Window

	events    *core.EventBus
	startTime float64
}

func New(events *core.EventBus) *Platform {
	return &Platform{events: events}
}

func (p *Platform) Startup(app core.ApplicationSection) error {
	if err := glfw.Init(); err != nil {
		return errors.Wrap(core.ErrInitializationFailed, err.Error())
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return errors.Wrap(core.ErrNotSupported, "glfw reports no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(app.Width), int(app.Height), app.Name, nil, nil)
	if err != nil {
		glfw.Terminate()
		return errors.Wrapf(core.ErrInitializationFailed, "create window: %s", err)
	}
	p.Window = window

	p.Window.SetKeyCallback(p.keyCallback)
	p.Window.SetFramebufferSizeCallback(p.framebufferSizeCallback)
	p.Window.SetCloseCallback(p.closeCallback)
	p.Window.SetPos(int(app.PosX), int(app.PosY))
	p.Window.Show()

	p.startTime = glfw.GetTime()
	core.LogInfo("window %q created (%dx%d)", app.Name, app.Width, app.Height)
	return nil
}

func (p *Platform) Shutdown() {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
}

// PumpMessages processes pending window events without blocking.
func (p *Platform) PumpMessages() {
	glfw.PollEvents()
}

// WaitMessages blocks until an event arrives or timeout seconds pass. It
// keeps a minimized window from spinning.
func (p *Platform) WaitMessages(timeout float64) {
	glfw.WaitEventsTimeout(timeout)
}

// FramebufferSize is the drawable size in pixels, 0x0 while minimized.
func (p *Platform) FramebufferSize() (uint32, uint32) {
	w, h := p.Window.GetFramebufferSize()
	return uint32(max(w, 0)), uint32(max(h, 0))
}

// AbsoluteTime is the number of seconds since Startup.
func (p *Platform) AbsoluteTime() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) RequiredInstanceExtensions() []string {
	return p.Window.GetRequiredInstanceExtensions()
}

func (p *Platform) CreateSurface(instance interface{}) (uintptr, error) {
	surface, err := p.Window.CreateWindowSurface(instance, nil)
	if err != nil {
		return 0, errors.Wrap(err, "window surface creation failed")
	}
	return surface, nil
}

func (p *Platform) keyCallback(w *glfw.Window, key glfw.Key, scancode int, action glfw.Action, mods glfw.ModifierKey) {
	if key == glfw.KeyEscape && action == glfw.Press {
		w.SetShouldClose(true)
		p.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
	}
}

func (p *Platform) closeCallback(w *glfw.Window) {
	p.events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}

func (p *Platform) framebufferSizeCallback(w *glfw.Window, width, height int) {
	p.events.Fire(core.EventContext{
		Type:   core.EVENT_CODE_RESIZED,
		Width:  uint32(max(width, 0)),
		Height: uint32(max(height, 0)),
	})
}
