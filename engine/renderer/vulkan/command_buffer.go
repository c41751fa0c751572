package vulkan

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type CommandPool struct {
	dev    *Device
	handle vk.CommandPool
}

func (d *Device) CreateCommandPool() (driver.CommandPool, error) {
	p := &CommandPool{dev: d}
	res := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: d.family,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
	}, nil, &p.handle)
	if err := check(res, "vkCreateCommandPool"); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *CommandPool) Allocate(level driver.CommandBufferLevel, count int) ([]driver.CommandBuffer, error) {
	handles := make([]vk.CommandBuffer, count)
	res := vk.AllocateCommandBuffers(p.dev.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        p.handle,
		Level:              vk.CommandBufferLevel(level),
		CommandBufferCount: uint32(count),
	}, handles)
	if err := check(res, "vkAllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	for i, h := range handles {
		out[i] = &CommandBuffer{dev: p.dev, handle: h, level: level}
	}
	return out, nil
}

func (p *CommandPool) Reset() error {
	return check(vk.ResetCommandPool(p.dev.handle, p.handle, 0), "vkResetCommandPool")
}

// Destroy frees the pool together with every buffer allocated from it.
func (p *CommandPool) Destroy() {
	if p.handle != vk.NullCommandPool {
		vk.DestroyCommandPool(p.dev.handle, p.handle, nil)
		p.handle = vk.NullCommandPool
	}
}

type commandBufferState int

const (
	stateReady commandBufferState = iota
	stateRecording
	stateInRendering
	stateEnded
)

type CommandBuffer struct {
	dev    *Device
	handle vk.CommandBuffer
	level  driver.CommandBufferLevel
	state  commandBufferState
	// labels recorded since Begin, reported when a submit fails.
	labels []string
	depth  int
	// err is the first failure of a recording call that cannot return one.
	err error
}

func (c *CommandBuffer) Level() driver.CommandBufferLevel { return c.level }

func (c *CommandBuffer) Begin(info driver.BeginInfo) error {
	begin := vk.CommandBufferBeginInfo{SType: vk.StructureTypeCommandBufferBeginInfo}
	if info.OneTimeSubmit {
		begin.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if info.Inheritance != nil {
		rp, err := c.dev.renderPass(compatiblePassKey(info.Inheritance.ColorFormats, info.Inheritance.DepthFormat))
		if err != nil {
			return err
		}
		begin.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
		begin.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{{
			SType:      vk.StructureTypeCommandBufferInheritanceInfo,
			RenderPass: rp,
			Subpass:    0,
		}}
	}
	if err := check(vk.BeginCommandBuffer(c.handle, &begin), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	c.state = stateRecording
	c.labels = c.labels[:0]
	c.depth = 0
	c.err = nil
	return nil
}

func (c *CommandBuffer) End() error {
	if c.err != nil {
		return c.err
	}
	if c.state == stateInRendering {
		return errors.New("command buffer ended inside a rendering scope")
	}
	if err := check(vk.EndCommandBuffer(c.handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	c.state = stateEnded
	return nil
}

func (c *CommandBuffer) Reset() error {
	if err := check(vk.ResetCommandBuffer(c.handle, 0), "vkResetCommandBuffer"); err != nil {
		return err
	}
	c.state = stateReady
	c.labels = c.labels[:0]
	c.err = nil
	return nil
}

func (c *CommandBuffer) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

func (c *CommandBuffer) PipelineBarrier(b driver.Barrier) {
	buffers := make([]vk.BufferMemoryBarrier, len(b.Buffers))
	for i, bb := range b.Buffers {
		size := vk.DeviceSize(bb.Size)
		if bb.Size == 0 {
			size = vk.DeviceSize(vk.WholeSize)
		}
		buffers[i] = vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bb.SrcAccess),
			DstAccessMask:       vk.AccessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Buffer:              bb.Buffer.(*Buffer).handle,
			Offset:              vk.DeviceSize(bb.Offset),
			Size:                size,
		}
	}
	images := make([]vk.ImageMemoryBarrier, len(b.Images))
	for i, ib := range b.Images {
		levels, layers := ib.MipCount, ib.LayerCount
		if levels == 0 {
			levels = vk.RemainingMipLevels
		}
		if layers == 0 {
			layers = vk.RemainingArrayLayers
		}
		images[i] = vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(ib.SrcAccess),
			DstAccessMask:       vk.AccessFlags(ib.DstAccess),
			OldLayout:           vk.ImageLayout(ib.OldLayout),
			NewLayout:           vk.ImageLayout(ib.NewLayout),
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               ib.Image.(*Image).handle,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask:     vk.ImageAspectFlags(ib.Aspect),
				BaseMipLevel:   ib.BaseMip,
				LevelCount:     levels,
				BaseArrayLayer: ib.BaseLayer,
				LayerCount:     layers,
			},
		}
	}
	vk.CmdPipelineBarrier(c.handle,
		vk.PipelineStageFlags(b.SrcStage), vk.PipelineStageFlags(b.DstStage), vk.DependencyFlags(0),
		0, nil,
		uint32(len(buffers)), buffers,
		uint32(len(images)), images)
}

func (c *CommandBuffer) BeginRendering(info driver.RenderingInfo) {
	rp, err := c.dev.renderPass(renderingPassKey(info))
	if err != nil {
		c.fail(err)
		return
	}
	fb, err := c.dev.framebuffer(renderingFramebufferKey(rp, info))
	if err != nil {
		c.fail(err)
		return
	}
	contents := vk.SubpassContentsInline
	if info.Flags&driver.RenderingContentsSecondary != 0 {
		contents = vk.SubpassContentsSecondaryCommandBuffers
	}
	values := clearValues(info)
	vk.CmdBeginRenderPass(c.handle, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rp,
		Framebuffer: fb,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: info.Area.Offset.X, Y: info.Area.Offset.Y},
			Extent: vk.Extent2D{Width: info.Area.Extent.Width, Height: info.Area.Extent.Height},
		},
		ClearValueCount: uint32(len(values)),
		PClearValues:    values,
	}, contents)
	c.state = stateInRendering
}

func (c *CommandBuffer) EndRendering() {
	if c.state != stateInRendering {
		return
	}
	vk.CmdEndRenderPass(c.handle)
	c.state = stateRecording
}

func (c *CommandBuffer) SetViewport(v driver.Viewport) {
	vk.CmdSetViewport(c.handle, 0, 1, []vk.Viewport{{
		X:        v.X,
		Y:        v.Y,
		Width:    v.Width,
		Height:   v.Height,
		MinDepth: v.MinDepth,
		MaxDepth: v.MaxDepth,
	}})
}

func (c *CommandBuffer) SetScissor(r driver.Rect2D) {
	vk.CmdSetScissor(c.handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: r.Offset.X, Y: r.Offset.Y},
		Extent: vk.Extent2D{Width: r.Extent.Width, Height: r.Extent.Height},
	}})
}

func (c *CommandBuffer) BindPipeline(bp driver.PipelineBindPoint, p driver.Pipeline) {
	vk.CmdBindPipeline(c.handle, vk.PipelineBindPoint(bp), p.(*Pipeline).handle)
}

func (c *CommandBuffer) BindDescriptorSets(bp driver.PipelineBindPoint, layout driver.PipelineLayout, firstSet uint32, sets []driver.DescriptorSet) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.(*DescriptorSet).handle
	}
	vk.CmdBindDescriptorSets(c.handle, vk.PipelineBindPoint(bp), layout.(*PipelineLayout).handle,
		firstSet, uint32(len(handles)), handles, 0, nil)
}

func (c *CommandBuffer) PushConstants(layout driver.PipelineLayout, stages driver.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		return
	}
	vk.CmdPushConstants(c.handle, layout.(*PipelineLayout).handle, vk.ShaderStageFlags(stages),
		offset, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (c *CommandBuffer) BindVertexBuffers(first uint32, buffers []driver.Buffer, offsets []uint64) {
	handles := make([]vk.Buffer, len(buffers))
	offs := make([]vk.DeviceSize, len(buffers))
	for i, b := range buffers {
		handles[i] = b.(*Buffer).handle
		if i < len(offsets) {
			offs[i] = vk.DeviceSize(offsets[i])
		}
	}
	vk.CmdBindVertexBuffers(c.handle, first, uint32(len(handles)), handles, offs)
}

func (c *CommandBuffer) BindIndexBuffer(buf driver.Buffer, offset uint64, t driver.IndexType) {
	vk.CmdBindIndexBuffer(c.handle, buf.(*Buffer).handle, vk.DeviceSize(offset), vk.IndexType(t))
}

func (c *CommandBuffer) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(c.handle, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (c *CommandBuffer) DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32) {
	vk.CmdDrawIndexed(c.handle, indexCount, instanceCount, firstIndex, vertexOffset, firstInstance)
}

func (c *CommandBuffer) DrawIndexedIndirect(buf driver.Buffer, offset uint64, drawCount, stride uint32) {
	vk.CmdDrawIndexedIndirect(c.handle, buf.(*Buffer).handle, vk.DeviceSize(offset), drawCount, stride)
}

func (c *CommandBuffer) Dispatch(x, y, z uint32) {
	vk.CmdDispatch(c.handle, x, y, z)
}

func (c *CommandBuffer) ExecuteCommands(secondaries []driver.CommandBuffer) {
	if len(secondaries) == 0 {
		return
	}
	handles := make([]vk.CommandBuffer, len(secondaries))
	for i, s := range secondaries {
		sc := s.(*CommandBuffer)
		handles[i] = sc.handle
		c.labels = append(c.labels, sc.labels...)
	}
	vk.CmdExecuteCommands(c.handle, uint32(len(handles)), handles)
}

func (c *CommandBuffer) CopyBuffer(src, dst driver.Buffer, regions []driver.BufferCopy) {
	copies := make([]vk.BufferCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferCopy{
			SrcOffset: vk.DeviceSize(r.SrcOffset),
			DstOffset: vk.DeviceSize(r.DstOffset),
			Size:      vk.DeviceSize(r.Size),
		}
	}
	vk.CmdCopyBuffer(c.handle, src.(*Buffer).handle, dst.(*Buffer).handle, uint32(len(copies)), copies)
}

func (c *CommandBuffer) CopyBufferToImage(src driver.Buffer, dst driver.Image, layout driver.ImageLayout, regions []driver.BufferImageCopy) {
	copies := make([]vk.BufferImageCopy, len(regions))
	for i, r := range regions {
		copies[i] = vk.BufferImageCopy{
			BufferOffset: vk.DeviceSize(r.BufferOffset),
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask:     vk.ImageAspectFlags(r.Aspect),
				MipLevel:       r.MipLevel,
				BaseArrayLayer: r.BaseLayer,
				LayerCount:     max(r.LayerCount, 1),
			},
			ImageExtent: vk.Extent3D{Width: r.Extent.Width, Height: r.Extent.Height, Depth: 1},
		}
	}
	vk.CmdCopyBufferToImage(c.handle, src.(*Buffer).handle, dst.(*Image).handle, vk.ImageLayout(layout), uint32(len(copies)), copies)
}

func (c *CommandBuffer) FillBuffer(dst driver.Buffer, offset, size uint64, data uint32) {
	n := vk.DeviceSize(size)
	if size == 0 {
		n = vk.DeviceSize(vk.WholeSize)
	}
	vk.CmdFillBuffer(c.handle, dst.(*Buffer).handle, vk.DeviceSize(offset), n, data)
}

// BeginLabel opens a named region. The names are kept on the CPU side and
// attached to submit failures.
func (c *CommandBuffer) BeginLabel(name string, color [4]float32) {
	c.labels = append(c.labels, name)
	c.depth++
}

func (c *CommandBuffer) EndLabel() {
	if c.depth > 0 {
		c.depth--
	}
}
