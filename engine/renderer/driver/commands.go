package driver

type ImageBarrier struct {
	Image      Image
	OldLayout  ImageLayout
	NewLayout  ImageLayout
	SrcStage   PipelineStage
	DstStage   PipelineStage
	SrcAccess  Access
	DstAccess  Access
	Aspect     ImageAspect
	BaseMip    uint32
	MipCount   uint32
	BaseLayer  uint32
	LayerCount uint32
}

type BufferBarrier struct {
	Buffer    Buffer
	Offset    uint64
	Size      uint64
	SrcStage  PipelineStage
	DstStage  PipelineStage
	SrcAccess Access
	DstAccess Access
}

// Barrier is a single pipeline barrier command. The stage masks cover every
// entry.
type Barrier struct {
	SrcStage PipelineStage
	DstStage PipelineStage
	Buffers  []BufferBarrier
	Images   []ImageBarrier
}

type RenderingAttachment struct {
	View   ImageView
	Layout ImageLayout
	Load   LoadOp
	Store  StoreOp
	Clear  ClearValue
}

type RenderingInfo struct {
	Area   Rect2D
	Colors []RenderingAttachment
	Depth  *RenderingAttachment
	Flags  RenderingFlags
}

// Inheritance describes the dynamic rendering scope a secondary command
// buffer will be executed in.
type Inheritance struct {
	ColorFormats []Format
	DepthFormat  Format
	Samples      SampleCount
}

type BeginInfo struct {
	OneTimeSubmit bool
	// Inheritance must be set for secondary buffers recording inside a
	// rendering scope.
	Inheritance *Inheritance
}

type BufferCopy struct {
	SrcOffset uint64
	DstOffset uint64
	Size      uint64
}

type BufferImageCopy struct {
	BufferOffset uint64
	Aspect       ImageAspect
	MipLevel     uint32
	BaseLayer    uint32
	LayerCount   uint32
	Extent       Extent2D
}

type CommandBuffer interface {
	Level() CommandBufferLevel
	Begin(info BeginInfo) error
	End() error
	Reset() error

	PipelineBarrier(b Barrier)
	BeginRendering(info RenderingInfo)
	EndRendering()
	SetViewport(v Viewport)
	SetScissor(r Rect2D)

	BindPipeline(bp PipelineBindPoint, p Pipeline)
	BindDescriptorSets(bp PipelineBindPoint, layout PipelineLayout, firstSet uint32, sets []DescriptorSet)
	PushConstants(layout PipelineLayout, stages ShaderStage, offset uint32, data []byte)
	BindVertexBuffers(first uint32, buffers []Buffer, offsets []uint64)
	BindIndexBuffer(buf Buffer, offset uint64, t IndexType)

	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndexedIndirect(buf Buffer, offset uint64, drawCount, stride uint32)
	Dispatch(x, y, z uint32)
	ExecuteCommands(secondaries []CommandBuffer)

	CopyBuffer(src, dst Buffer, regions []BufferCopy)
	CopyBufferToImage(src Buffer, dst Image, layout ImageLayout, regions []BufferImageCopy)
	FillBuffer(dst Buffer, offset, size uint64, data uint32)

	BeginLabel(name string, color [4]float32)
	EndLabel()
}
