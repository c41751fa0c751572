// Package swap owns the presentable images of the window surface together
// with the depth buffers that go with them, and rebuilds them on resize.
package swap

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
)

type State int

const (
	Uninitialized State = iota
	Ready
	Stale
	Destroyed
)

func (s State) String() string {
	return [...]string{"uninitialized", "ready", "stale", "destroyed"}[s]
}

type Params struct {
	Width, Height uint32
	PreferMailbox bool
}

// RenderingLayout is what a pipeline or a secondary command buffer must know
// about the attachments it renders into.
type RenderingLayout struct {
	ColorFormats []driver.Format
	DepthFormat  driver.Format
	Samples      driver.SampleCount
}

// Framebuffer is the attachment set for one presentable image.
type Framebuffer struct {
	Color *memory.Image
	Depth *memory.Image
}

// Bundle is one generation of the swapchain and everything sized after it.
type Bundle struct {
	Swapchain   driver.Swapchain
	Format      driver.SurfaceFormat
	PresentMode driver.PresentMode
	Extent      driver.Extent2D
	DepthFormat driver.Format

	framebuffers []Framebuffer
	previous     *Bundle
	state        State
	alloc        *memory.Allocator
}

// Create builds a new bundle. A non-nil previous bundle hands its swapchain
// over to the new one and becomes stale; it stays alive until ReleasePrevious
// or Destroy. On failure everything created so far is released and previous
// is left untouched.
func Create(dev driver.Device, alloc *memory.Allocator, params Params, previous *Bundle) (_ *Bundle, err error) {
	caps, err := dev.SurfaceCapabilities()
	if err != nil {
		return nil, errors.Wrap(err, "querying surface capabilities")
	}
	formats, err := dev.SurfaceFormats()
	if err != nil {
		return nil, errors.Wrap(err, "querying surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.Wrap(core.ErrNotSupported, "surface advertises no formats")
	}
	modes, err := dev.PresentModes()
	if err != nil {
		return nil, errors.Wrap(err, "querying present modes")
	}
	depthFormat, err := dev.DepthFormat()
	if err != nil {
		return nil, errors.Wrap(err, "finding a depth format")
	}

	b := &Bundle{
		Format:      ChooseSurfaceFormat(formats),
		PresentMode: ChoosePresentMode(modes, params.PreferMailbox),
		Extent:      ComputeExtent(caps, params.Width, params.Height),
		DepthFormat: depthFormat,
		state:       Uninitialized,
		alloc:       alloc,
	}
	defer func() {
		if err != nil {
			b.teardown()
		}
	}()

	info := driver.SwapchainInfo{
		ImageCount:  ComputeImageCount(caps),
		Format:      b.Format,
		Extent:      b.Extent,
		PresentMode: b.PresentMode,
	}
	if previous != nil {
		info.Old = previous.Swapchain
	}
	if b.Swapchain, err = dev.CreateSwapchain(info); err != nil {
		return nil, errors.Wrap(err, "creating swapchain")
	}
	images, err := b.Swapchain.Images()
	if err != nil {
		return nil, errors.Wrap(err, "getting swapchain images")
	}

	for i, handle := range images {
		color, err := memory.WrapImage(dev, handle, b.Format.Format, b.Extent)
		if err != nil {
			return nil, errors.Wrapf(err, "swapchain image %d", i)
		}
		b.framebuffers = append(b.framebuffers, Framebuffer{Color: color})

		depth, err := alloc.AllocateImage(memory.ImageDesc{
			Name:   fmt.Sprintf("depth-%d", i),
			Extent: b.Extent,
			Format: depthFormat,
			Usage:  driver.ImageUsageDepthStencilAttachment,
			Flags:  memory.Dedicated,
		})
		if err != nil {
			return nil, errors.Wrapf(err, "depth image %d", i)
		}
		b.framebuffers[i].Depth = depth
	}

	if previous != nil {
		previous.state = Stale
		b.previous = previous
	}
	b.state = Ready
	core.LogInfo("swapchain created: %dx%d, %d images, format=%d, present mode=%d",
		b.Extent.Width, b.Extent.Height, len(images), b.Format.Format, b.PresentMode)
	return b, nil
}

func (b *Bundle) State() State {
	return b.state
}

func (b *Bundle) ImageCount() int {
	return len(b.framebuffers)
}

func (b *Bundle) Framebuffer(i uint32) Framebuffer {
	return b.framebuffers[i]
}

// RenderingLayout describes the attachments of every framebuffer.
func (b *Bundle) RenderingLayout() RenderingLayout {
	return RenderingLayout{
		ColorFormats: []driver.Format{b.Format.Format},
		DepthFormat:  b.DepthFormat,
		Samples:      driver.SampleCount1,
	}
}

// Previous is the stale bundle this one replaced, if it was not released yet.
func (b *Bundle) Previous() *Bundle {
	return b.previous
}

// ReleasePrevious destroys the replaced bundle chain. The device must no
// longer use any of it.
func (b *Bundle) ReleasePrevious() {
	if b.previous != nil {
		b.previous.Destroy()
		b.previous = nil
	}
}

// Destroy releases the bundle and, recursively, the bundles it replaced.
func (b *Bundle) Destroy() {
	if b.state == Destroyed {
		return
	}
	b.ReleasePrevious()
	b.teardown()
	b.state = Destroyed
}

// teardown releases the views, the depth images and the swapchain in reverse
// creation order.
func (b *Bundle) teardown() {
	for i := len(b.framebuffers) - 1; i >= 0; i-- {
		fb := b.framebuffers[i]
		if fb.Depth != nil {
			fb.Depth.Destroy()
		}
		if fb.Color != nil {
			fb.Color.Destroy()
		}
	}
	b.framebuffers = nil
	if b.Swapchain != nil {
		b.Swapchain.Destroy()
		b.Swapchain = nil
	}
}
