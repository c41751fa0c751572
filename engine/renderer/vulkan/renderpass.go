package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Rendering scopes are emulated with single subpass render passes. Layout
// transitions are recorded as explicit barriers, so every attachment starts
// and ends the pass in the layout it was given.

const maxColorAttachments = 8

type attachmentKey struct {
	format driver.Format
	layout driver.ImageLayout
	load   driver.LoadOp
	store  driver.StoreOp
}

type passKey struct {
	colors   [maxColorAttachments]attachmentKey
	count    int
	depth    attachmentKey
	hasDepth bool
}

func attachmentKeyOf(a driver.RenderingAttachment) attachmentKey {
	return attachmentKey{
		format: a.View.(*ImageView).format,
		layout: a.Layout,
		load:   a.Load,
		store:  a.Store,
	}
}

func renderingPassKey(info driver.RenderingInfo) passKey {
	var k passKey
	k.count = len(info.Colors)
	for i, c := range info.Colors {
		k.colors[i] = attachmentKeyOf(c)
	}
	if info.Depth != nil {
		k.hasDepth = true
		k.depth = attachmentKeyOf(*info.Depth)
	}
	return k
}

// compatiblePassKey describes a pass that is compatible with every scope
// using the same formats. Pipelines and secondary buffers are built
// against it.
func compatiblePassKey(colors []driver.Format, depth driver.Format) passKey {
	var k passKey
	k.count = len(colors)
	for i, f := range colors {
		k.colors[i] = attachmentKey{
			format: f,
			layout: driver.ImageLayoutColorAttachmentOptimal,
			load:   driver.LoadOpDontCare,
			store:  driver.StoreOpStore,
		}
	}
	if depth != driver.FormatUndefined {
		k.hasDepth = true
		k.depth = attachmentKey{
			format: depth,
			layout: driver.ImageLayoutDepthStencilAttachmentOptimal,
			load:   driver.LoadOpDontCare,
			store:  driver.StoreOpStore,
		}
	}
	return k
}

// renderPass returns the cached pass for k, creating it on first use.
func (d *Device) renderPass(k passKey) (vk.RenderPass, error) {
	d.cacheMu.Lock()
	defer d.cacheMu.Unlock()
	if rp, ok := d.passes[k]; ok {
		return rp, nil
	}
	rp, err := d.createRenderPass(k)
	if err != nil {
		return vk.NullRenderPass, err
	}
	d.passes[k] = rp
	return rp, nil
}

func attachmentDescription(a attachmentKey) vk.AttachmentDescription {
	desc := vk.AttachmentDescription{
		Format:         vk.Format(a.format),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOp(a.load),
		StoreOp:        vk.AttachmentStoreOp(a.store),
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayout(a.layout),
		FinalLayout:    vk.ImageLayout(a.layout),
	}
	if a.format.HasStencil() {
		desc.StencilLoadOp = desc.LoadOp
		desc.StencilStoreOp = desc.StoreOp
	}
	return desc
}

func (d *Device) createRenderPass(k passKey) (vk.RenderPass, error) {
	attachments := make([]vk.AttachmentDescription, 0, k.count+1)
	colorRefs := make([]vk.AttachmentReference, k.count)
	for i := 0; i < k.count; i++ {
		attachments = append(attachments, attachmentDescription(k.colors[i]))
		colorRefs[i] = vk.AttachmentReference{
			Attachment: uint32(i),
			Layout:     vk.ImageLayout(k.colors[i].layout),
		}
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: uint32(k.count),
		PColorAttachments:    colorRefs,
	}
	if k.hasDepth {
		attachments = append(attachments, attachmentDescription(k.depth))
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: uint32(k.count),
			Layout:     vk.ImageLayout(k.depth.layout),
		}
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
	}
	var rp vk.RenderPass
	if err := check(vk.CreateRenderPass(d.handle, &info, nil, &rp), "vkCreateRenderPass"); err != nil {
		return vk.NullRenderPass, err
	}
	return rp, nil
}

func clearValues(info driver.RenderingInfo) []vk.ClearValue {
	values := make([]vk.ClearValue, 0, len(info.Colors)+1)
	for _, c := range info.Colors {
		var v vk.ClearValue
		v.SetColor(c.Clear.Color[:])
		values = append(values, v)
	}
	if info.Depth != nil {
		var v vk.ClearValue
		v.SetDepthStencil(info.Depth.Clear.Depth, info.Depth.Clear.Stencil)
		values = append(values, v)
	}
	return values
}
