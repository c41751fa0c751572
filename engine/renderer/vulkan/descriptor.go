package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// VK_DESCRIPTOR_SET_LAYOUT_CREATE_UPDATE_AFTER_BIND_POOL_BIT
const layoutUpdateAfterBindPool = 0x2

type DescriptorSetLayout struct {
	dev    *Device
	handle vk.DescriptorSetLayout
}

func (l *DescriptorSetLayout) Destroy() {
	if l.handle != vk.NullDescriptorSetLayout {
		vk.DestroyDescriptorSetLayout(l.dev.handle, l.handle, nil)
		l.handle = vk.NullDescriptorSetLayout
	}
}

// DescriptorSet is owned by its pool.
type DescriptorSet struct {
	handle vk.DescriptorSet
}

type DescriptorPool struct {
	dev    *Device
	handle vk.DescriptorPool
}

func (d *Device) CreateDescriptorSetLayout(info driver.DescriptorSetLayoutInfo) (driver.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(info.Bindings))
	flags := make([]vk.DescriptorBindingFlags, len(info.Bindings))
	anyFlags := false
	for i, b := range info.Bindings {
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  vk.DescriptorType(b.Type),
			DescriptorCount: max(b.Count, 1),
			StageFlags:      vk.ShaderStageFlags(b.Stages),
		}
		flags[i] = vk.DescriptorBindingFlags(b.Flags)
		anyFlags = anyFlags || b.Flags != 0
	}
	create := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	if info.UpdateAfterBindPool {
		create.Flags = vk.DescriptorSetLayoutCreateFlags(layoutUpdateAfterBindPool)
	}
	if anyFlags {
		create.PNext = unsafe.Pointer(&vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(flags)),
			PBindingFlags: flags,
		})
	}
	l := &DescriptorSetLayout{dev: d}
	if err := check(vk.CreateDescriptorSetLayout(d.handle, &create, nil, &l.handle), "vkCreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return l, nil
}

func (d *Device) CreateDescriptorPool(info driver.DescriptorPoolInfo) (driver.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(info.Sizes))
	for i, s := range info.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            vk.DescriptorType(s.Type),
			DescriptorCount: s.Count,
		}
	}
	p := &DescriptorPool{dev: d}
	res := vk.CreateDescriptorPool(d.handle, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(info.Flags),
		MaxSets:       info.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, nil, &p.handle)
	if err := check(res, "vkCreateDescriptorPool"); err != nil {
		return nil, err
	}
	return p, nil
}

// Allocate returns one set per layout. Exhaustion comes back as an error
// matching core.ErrOutOfMemory.
func (p *DescriptorPool) Allocate(layouts ...driver.DescriptorSetLayout) ([]driver.DescriptorSet, error) {
	out := make([]driver.DescriptorSet, len(layouts))
	for i, l := range layouts {
		var set vk.DescriptorSet
		res := vk.AllocateDescriptorSets(p.dev.handle, &vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     p.handle,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{l.(*DescriptorSetLayout).handle},
		}, &set)
		if err := check(res, "vkAllocateDescriptorSets"); err != nil {
			return nil, err
		}
		out[i] = &DescriptorSet{handle: set}
	}
	return out, nil
}

func (p *DescriptorPool) Reset() error {
	return check(vk.ResetDescriptorPool(p.dev.handle, p.handle, 0), "vkResetDescriptorPool")
}

func (p *DescriptorPool) Destroy() {
	if p.handle != vk.NullDescriptorPool {
		vk.DestroyDescriptorPool(p.dev.handle, p.handle, nil)
		p.handle = vk.NullDescriptorPool
	}
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	out := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		out[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          w.Set.(*DescriptorSet).handle,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorType:  vk.DescriptorType(w.Type),
		}
		if w.Type.IsImage() {
			images := make([]vk.DescriptorImageInfo, len(w.Images))
			for j, img := range w.Images {
				images[j] = vk.DescriptorImageInfo{ImageLayout: vk.ImageLayout(img.Layout)}
				if img.Sampler != nil {
					images[j].Sampler = img.Sampler.(*Sampler).handle
				}
				if img.View != nil {
					images[j].ImageView = img.View.(*ImageView).handle
				}
			}
			out[i].DescriptorCount = uint32(len(images))
			out[i].PImageInfo = images
			continue
		}
		buffers := make([]vk.DescriptorBufferInfo, len(w.Buffers))
		for j, b := range w.Buffers {
			size := vk.DeviceSize(b.Range)
			if b.Range == 0 {
				size = vk.DeviceSize(vk.WholeSize)
			}
			buffers[j] = vk.DescriptorBufferInfo{
				Buffer: b.Buffer.(*Buffer).handle,
				Offset: vk.DeviceSize(b.Offset),
				Range:  size,
			}
		}
		out[i].DescriptorCount = uint32(len(buffers))
		out[i].PBufferInfo = buffers
	}
	vk.UpdateDescriptorSets(d.handle, uint32(len(out)), out, 0, nil)
}
