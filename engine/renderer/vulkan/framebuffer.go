package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type framebufferKey struct {
	pass   vk.RenderPass
	views  [maxColorAttachments + 1]vk.ImageView
	count  int
	extent driver.Extent2D
}

func renderingFramebufferKey(pass vk.RenderPass, info driver.RenderingInfo) framebufferKey {
	k := framebufferKey{
		pass: pass,
		extent: driver.Extent2D{
			Width:  uint32(info.Area.Offset.X) + info.Area.Extent.Width,
			Height: uint32(info.Area.Offset.Y) + info.Area.Extent.Height,
		},
	}
	for _, c := range info.Colors {
		k.views[k.count] = c.View.(*ImageView).handle
		k.count++
	}
	if info.Depth != nil {
		k.views[k.count] = info.Depth.View.(*ImageView).handle
		k.count++
	}
	return k
}

func (k framebufferKey) uses(view vk.ImageView) bool {
	for i := 0; i < k.count; i++ {
		if k.views[i] == view {
			return true
		}
	}
	return false
}

// framebuffer returns the cached framebuffer for k. Entries live until one
// of their views is destroyed.
func (d *Device) framebuffer(k framebufferKey) (vk.Framebuffer, error) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if fb, ok := d.framebuffers[k]; ok {
		return fb, nil
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      k.pass,
		AttachmentCount: uint32(k.count),
		PAttachments:    k.views[:k.count],
		Width:           k.extent.Width,
		Height:          k.extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check(vk.CreateFramebuffer(d.handle, &info, nil, &fb), "vkCreateFramebuffer"); err != nil {
		return vk.NullFramebuffer, err
	}
	d.framebuffers[k] = fb
	return fb, nil
}

func (d *Device) evictFramebuffers(view vk.ImageView) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	for k, fb := range d.framebuffers {
		if k.uses(view) {
			vk.DestroyFramebuffer(d.handle, fb, nil)
			delete(d.framebuffers, k)
		}
	}
}

func (d *Device) destroyCaches() {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	for k, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.handle, fb, nil)
		delete(d.framebuffers, k)
	}
	for k, rp := range d.passes {
		vk.DestroyRenderPass(d.handle, rp, nil)
		delete(d.passes, k)
	}
	core.LogDebug("render pass and framebuffer caches released")
}
