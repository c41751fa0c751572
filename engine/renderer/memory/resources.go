package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Buffer is a device buffer bound to an allocation.
type Buffer struct {
	*Allocation
	Handle driver.Buffer
	Usage  driver.BufferUsage

	alloc *Allocator
}

// AllocateBuffer creates a buffer of size bytes and binds memory to it.
func (a *Allocator) AllocateBuffer(name string, size uint64, usage driver.BufferUsage, flags Flags) (*Buffer, error) {
	handle, req, err := a.dev.CreateBuffer(driver.BufferInfo{Size: size, Usage: usage})
	if err != nil {
		return nil, errors.Wrapf(err, "creating buffer %q", name)
	}
	a.mu.Lock()
	alloc, err := a.allocate(req, flags, name)
	a.mu.Unlock()
	if err != nil {
		handle.Destroy()
		return nil, errors.Wrapf(err, "allocating buffer %q", name)
	}
	if err := a.dev.BindBufferMemory(handle, alloc.memory, alloc.Offset); err != nil {
		a.Free(alloc)
		handle.Destroy()
		return nil, errors.Wrapf(err, "binding buffer %q", name)
	}
	return &Buffer{Allocation: alloc, Handle: handle, Usage: usage, alloc: a}, nil
}

// Write copies data to offset. The buffer must be host visible.
func (b *Buffer) Write(offset uint64, data []byte) error {
	return b.alloc.Write(b.Allocation, offset, data)
}

func (b *Buffer) Destroy() {
	if b.Handle == nil {
		return
	}
	b.Handle.Destroy()
	b.Handle = nil
	b.alloc.Free(b.Allocation)
}

// ImageDesc describes an image to allocate together with its default view.
type ImageDesc struct {
	Name        string
	Extent      driver.Extent2D
	Format      driver.Format
	MipLevels   uint32
	ArrayLayers uint32
	Usage       driver.ImageUsage
	Cube        bool
	Flags       Flags
}

// Image is a device image, its default view and the layout it was last
// transitioned to by recorded commands.
type Image struct {
	*Allocation
	Handle      driver.Image
	View        driver.ImageView
	Format      driver.Format
	Extent      driver.Extent2D
	MipLevels   uint32
	ArrayLayers uint32
	Aspect      driver.ImageAspect
	// Layout is updated at record time, in program order.
	Layout driver.ImageLayout

	alloc *Allocator
	owned bool
}

func (a *Allocator) AllocateImage(desc ImageDesc) (*Image, error) {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}
	handle, req, err := a.dev.CreateImage(driver.ImageInfo{
		Extent:      desc.Extent,
		Format:      desc.Format,
		MipLevels:   desc.MipLevels,
		ArrayLayers: desc.ArrayLayers,
		Usage:       desc.Usage,
		Samples:     driver.SampleCount1,
		Cube:        desc.Cube,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "creating image %q", desc.Name)
	}
	a.mu.Lock()
	alloc, err := a.allocate(req, desc.Flags, desc.Name)
	a.mu.Unlock()
	if err != nil {
		handle.Destroy()
		return nil, errors.Wrapf(err, "allocating image %q", desc.Name)
	}
	if err := a.dev.BindImageMemory(handle, alloc.memory, alloc.Offset); err != nil {
		a.Free(alloc)
		handle.Destroy()
		return nil, errors.Wrapf(err, "binding image %q", desc.Name)
	}
	aspect := driver.AspectOf(desc.Format)
	view, err := a.dev.CreateImageView(driver.ImageViewInfo{
		Image:      handle,
		Format:     desc.Format,
		Aspect:     aspect,
		MipLevels:  desc.MipLevels,
		LayerCount: desc.ArrayLayers,
		Cube:       desc.Cube,
	})
	if err != nil {
		a.Free(alloc)
		handle.Destroy()
		return nil, errors.Wrapf(err, "creating view of image %q", desc.Name)
	}
	return &Image{
		Allocation:  alloc,
		Handle:      handle,
		View:        view,
		Format:      desc.Format,
		Extent:      desc.Extent,
		MipLevels:   desc.MipLevels,
		ArrayLayers: desc.ArrayLayers,
		Aspect:      aspect,
		Layout:      driver.ImageLayoutUndefined,
		alloc:       a,
		owned:       true,
	}, nil
}

// WrapImage creates a view for an image the allocator does not own, such as a
// presentable image. Destroy only releases the view.
func WrapImage(dev driver.Device, handle driver.Image, format driver.Format, extent driver.Extent2D) (*Image, error) {
	aspect := driver.AspectOf(format)
	view, err := dev.CreateImageView(driver.ImageViewInfo{
		Image:      handle,
		Format:     format,
		Aspect:     aspect,
		MipLevels:  1,
		LayerCount: 1,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating view of external image")
	}
	return &Image{
		Handle:      handle,
		View:        view,
		Format:      format,
		Extent:      extent,
		MipLevels:   1,
		ArrayLayers: 1,
		Aspect:      aspect,
		Layout:      driver.ImageLayoutUndefined,
	}, nil
}

func (i *Image) Destroy() {
	if i.View != nil {
		i.View.Destroy()
		i.View = nil
	}
	if !i.owned || i.Handle == nil {
		i.Handle = nil
		return
	}
	i.Handle.Destroy()
	i.Handle = nil
	i.alloc.Free(i.Allocation)
}
