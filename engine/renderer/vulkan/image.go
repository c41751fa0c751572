package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type Buffer struct {
	dev    *Device
	handle vk.Buffer
	size   uint64
}

func (b *Buffer) Destroy() {
	if b.handle != vk.NullBuffer {
		vk.DestroyBuffer(b.dev.handle, b.handle, nil)
		b.handle = vk.NullBuffer
	}
}

// Image is a device image. Swapchain images are external: the presentation
// engine owns them and Destroy does nothing.
type Image struct {
	dev      *Device
	handle   vk.Image
	external bool
}

func (i *Image) Destroy() {
	if i.external || i.handle == vk.NullImage {
		return
	}
	vk.DestroyImage(i.dev.handle, i.handle, nil)
	i.handle = vk.NullImage
}

type ImageView struct {
	dev    *Device
	handle vk.ImageView
	format driver.Format
}

// Destroy also drops every cached framebuffer built on the view.
func (v *ImageView) Destroy() {
	if v.handle == vk.NullImageView {
		return
	}
	v.dev.evictFramebuffers(v.handle)
	vk.DestroyImageView(v.dev.handle, v.handle, nil)
	v.handle = vk.NullImageView
}

type Sampler struct {
	dev    *Device
	handle vk.Sampler
}

func (s *Sampler) Destroy() {
	if s.handle != vk.NullSampler {
		vk.DestroySampler(s.dev.handle, s.handle, nil)
		s.handle = vk.NullSampler
	}
}

type DeviceMemory struct {
	dev    *Device
	handle vk.DeviceMemory
	size   uint64
}

func (m *DeviceMemory) Free() {
	if m.handle != vk.NullDeviceMemory {
		vk.FreeMemory(m.dev.handle, m.handle, nil)
		m.handle = vk.NullDeviceMemory
	}
}

func (d *Device) CreateBuffer(info driver.BufferInfo) (driver.Buffer, driver.MemoryRequirements, error) {
	b := &Buffer{dev: d, size: info.Size}
	res := vk.CreateBuffer(d.handle, &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(info.Size),
		Usage:       vk.BufferUsageFlags(info.Usage),
		SharingMode: vk.SharingModeExclusive,
	}, nil, &b.handle)
	if err := check(res, "vkCreateBuffer"); err != nil {
		return nil, driver.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, b.handle, &reqs)
	reqs.Deref()
	return b, requirements(reqs), nil
}

func (d *Device) CreateImage(info driver.ImageInfo) (driver.Image, driver.MemoryRequirements, error) {
	samples := info.Samples
	if samples == 0 {
		samples = driver.SampleCount1
	}
	create := vk.ImageCreateInfo{
		SType:         vk.StructureTypeImageCreateInfo,
		ImageType:     vk.ImageType2d,
		Format:        vk.Format(info.Format),
		Extent:        vk.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
		MipLevels:     max(info.MipLevels, 1),
		ArrayLayers:   max(info.ArrayLayers, 1),
		Samples:       vk.SampleCountFlagBits(samples),
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(info.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if info.Cube {
		create.Flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}
	img := &Image{dev: d}
	if err := check(vk.CreateImage(d.handle, &create, nil, &img.handle), "vkCreateImage"); err != nil {
		return nil, driver.MemoryRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, img.handle, &reqs)
	reqs.Deref()
	return img, requirements(reqs), nil
}

func (d *Device) CreateImageView(info driver.ImageViewInfo) (driver.ImageView, error) {
	viewType := vk.ImageViewType2d
	switch {
	case info.Cube:
		viewType = vk.ImageViewTypeCube
	case info.LayerCount > 1:
		viewType = vk.ImageViewType2dArray
	}
	v := &ImageView{dev: d, format: info.Format}
	res := vk.CreateImageView(d.handle, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    info.Image.(*Image).handle,
		ViewType: viewType,
		Format:   vk.Format(info.Format),
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(info.Aspect),
			BaseMipLevel:   info.BaseMip,
			LevelCount:     max(info.MipLevels, 1),
			BaseArrayLayer: info.BaseLayer,
			LayerCount:     max(info.LayerCount, 1),
		},
	}, nil, &v.handle)
	if err := check(res, "vkCreateImageView"); err != nil {
		return nil, err
	}
	return v, nil
}

func (d *Device) CreateSampler(info driver.SamplerInfo) (driver.Sampler, error) {
	create := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterNearest,
		MinFilter:               vk.FilterNearest,
		MipmapMode:              vk.SamplerMipmapModeNearest,
		AddressModeU:            vk.SamplerAddressModeClampToEdge,
		AddressModeV:            vk.SamplerAddressModeClampToEdge,
		AddressModeW:            vk.SamplerAddressModeClampToEdge,
		MaxLod:                  info.MaxLOD,
		BorderColor:             vk.BorderColorFloatOpaqueWhite,
		UnnormalizedCoordinates: vk.False,
		CompareOp:               vk.CompareOpAlways,
	}
	if info.Linear {
		create.MagFilter = vk.FilterLinear
		create.MinFilter = vk.FilterLinear
		create.MipmapMode = vk.SamplerMipmapModeLinear
	}
	if info.Repeat {
		create.AddressModeU = vk.SamplerAddressModeRepeat
		create.AddressModeV = vk.SamplerAddressModeRepeat
		create.AddressModeW = vk.SamplerAddressModeRepeat
	}
	if info.Anisotropy > 1 && d.anisotropy {
		create.AnisotropyEnable = vk.True
		create.MaxAnisotropy = min(info.Anisotropy, d.properties.Limits.MaxSamplerAnisotropy)
	}
	if info.Compare {
		create.CompareEnable = vk.True
		create.CompareOp = vk.CompareOpLessOrEqual
	}
	s := &Sampler{dev: d}
	if err := check(vk.CreateSampler(d.handle, &create, nil, &s.handle), "vkCreateSampler"); err != nil {
		return nil, err
	}
	return s, nil
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (driver.DeviceMemory, error) {
	m := &DeviceMemory{dev: d, size: size}
	res := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}, nil, &m.handle)
	if err := check(res, "vkAllocateMemory"); err != nil {
		return nil, errors.WithDetailf(err, "size %d type %d", size, typeIndex)
	}
	return m, nil
}

func (d *Device) BindBufferMemory(buf driver.Buffer, mem driver.DeviceMemory, offset uint64) error {
	return check(vk.BindBufferMemory(d.handle, buf.(*Buffer).handle, mem.(*DeviceMemory).handle, vk.DeviceSize(offset)), "vkBindBufferMemory")
}

func (d *Device) BindImageMemory(img driver.Image, mem driver.DeviceMemory, offset uint64) error {
	return check(vk.BindImageMemory(d.handle, img.(*Image).handle, mem.(*DeviceMemory).handle, vk.DeviceSize(offset)), "vkBindImageMemory")
}

func (d *Device) MapMemory(mem driver.DeviceMemory) ([]byte, error) {
	m := mem.(*DeviceMemory)
	var ptr unsafe.Pointer
	if err := check(vk.MapMemory(d.handle, m.handle, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr), "vkMapMemory"); err != nil {
		return nil, err
	}
	if ptr == nil {
		return nil, errors.Wrap(core.ErrMemoryMapFailed, "vkMapMemory returned no pointer")
	}
	return unsafe.Slice((*byte)(ptr), m.size), nil
}

func (d *Device) UnmapMemory(mem driver.DeviceMemory) {
	vk.UnmapMemory(d.handle, mem.(*DeviceMemory).handle)
}

func (d *Device) FlushMemory(mem driver.DeviceMemory, offset, size uint64) error {
	r := d.mappedRange(mem.(*DeviceMemory), offset, size)
	return check(vk.FlushMappedMemoryRanges(d.handle, 1, []vk.MappedMemoryRange{r}), "vkFlushMappedMemoryRanges")
}

func (d *Device) InvalidateMemory(mem driver.DeviceMemory, offset, size uint64) error {
	r := d.mappedRange(mem.(*DeviceMemory), offset, size)
	return check(vk.InvalidateMappedMemoryRanges(d.handle, 1, []vk.MappedMemoryRange{r}), "vkInvalidateMappedMemoryRanges")
}

// mappedRange widens [offset, offset+size) to the non-coherent atom size
// and clamps it to the allocation.
func (d *Device) mappedRange(m *DeviceMemory, offset, size uint64) vk.MappedMemoryRange {
	start, length := atomRange(offset, size, d.limits.NonCoherentAtomSize, m.size)
	return vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: m.handle,
		Offset: vk.DeviceSize(start),
		Size:   vk.DeviceSize(length),
	}
}

func atomRange(offset, size, atom, total uint64) (uint64, uint64) {
	if atom == 0 {
		atom = 1
	}
	start := offset / atom * atom
	end := (offset + size + atom - 1) / atom * atom
	if end > total {
		end = total
	}
	return start, end - start
}

func requirements(r vk.MemoryRequirements) driver.MemoryRequirements {
	return driver.MemoryRequirements{
		Size:      uint64(r.Size),
		Alignment: uint64(r.Alignment),
		TypeBits:  r.MemoryTypeBits,
	}
}
