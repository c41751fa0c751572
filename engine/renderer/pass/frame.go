// Package pass implements the transient dynamic rendering scope a render
// graph pass records into.
package pass

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
	"github.com/spaghettifunk/vireo/engine/scene"
	"github.com/spaghettifunk/vireo/engine/systems"
)

// Well known resource names every frame provides.
const (
	Backbuffer = "backbuffer"
	Depth      = "depth"
)

// Frame is everything a pass may read while recording one frame. It is
// rebuilt by the orchestrator every frame.
type Frame struct {
	Ctx    context.Context
	Number uint64
	// Slot is the frame ring slot the commands are recorded for.
	Slot       int
	ImageIndex uint32
	Extent     driver.Extent2D
	Cmd        driver.CommandBuffer
	// Secondaries are the per-worker buffers of the slot, one per worker.
	Secondaries []driver.CommandBuffer
	// UniformOffset is where the slot's slice of the per-frame buffers starts.
	UniformOffset uint64

	Images  map[string]*memory.Image
	Buffers map[string]*memory.Buffer

	Jobs   *systems.JobSystem
	Scene  scene.Source
	Camera *scene.Camera
	Sun    scene.DirectionalLight
}

func (f *Frame) Image(name string) (*memory.Image, error) {
	img, ok := f.Images[name]
	if !ok || img == nil {
		return nil, errors.Wrapf(core.ErrNotFound, "frame image %q", name)
	}
	return img, nil
}

func (f *Frame) Buffer(name string) (*memory.Buffer, error) {
	buf, ok := f.Buffers[name]
	if !ok || buf == nil {
		return nil, errors.Wrapf(core.ErrNotFound, "frame buffer %q", name)
	}
	return buf, nil
}

func (f *Frame) context() context.Context {
	if f.Ctx == nil {
		return context.Background()
	}
	return f.Ctx
}
