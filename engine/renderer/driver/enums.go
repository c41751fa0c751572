package driver

// The numeric values of every enum in this file match the native API so the
// backend can convert with a plain cast.

type Format int32

const (
	FormatUndefined          Format = 0
	FormatR8Unorm            Format = 9
	FormatR8G8Unorm          Format = 16
	FormatR8G8B8A8Unorm      Format = 37
	FormatR8G8B8A8Srgb       Format = 43
	FormatB8G8R8A8Unorm      Format = 44
	FormatB8G8R8A8Srgb       Format = 50
	FormatR16G16B16A16Sfloat Format = 97
	FormatR32Sfloat          Format = 100
	FormatR32G32Sfloat       Format = 103
	FormatR32G32B32Sfloat    Format = 106
	FormatR32G32B32A32Sfloat Format = 109
	FormatD16Unorm           Format = 124
	FormatD32Sfloat          Format = 126
	FormatD24UnormS8Uint     Format = 129
	FormatD32SfloatS8Uint    Format = 130
	FormatBC1RGBAUnorm       Format = 133
	FormatBC3Unorm           Format = 137
	FormatBC5Unorm           Format = 141
	FormatBC7Unorm           Format = 145
)

// HasDepth reports whether f is a depth or depth/stencil format.
func (f Format) HasDepth() bool {
	switch f {
	case FormatD16Unorm, FormatD32Sfloat, FormatD24UnormS8Uint, FormatD32SfloatS8Uint:
		return true
	}
	return false
}

// HasStencil reports whether f carries a stencil component.
func (f Format) HasStencil() bool {
	return f == FormatD24UnormS8Uint || f == FormatD32SfloatS8Uint
}

type ColorSpace int32

const ColorSpaceSrgbNonlinear ColorSpace = 0

type ImageLayout int32

const (
	ImageLayoutUndefined                     ImageLayout = 0
	ImageLayoutGeneral                       ImageLayout = 1
	ImageLayoutColorAttachmentOptimal        ImageLayout = 2
	ImageLayoutDepthStencilAttachmentOptimal ImageLayout = 3
	ImageLayoutDepthStencilReadOnlyOptimal   ImageLayout = 4
	ImageLayoutShaderReadOnlyOptimal         ImageLayout = 5
	ImageLayoutTransferSrcOptimal            ImageLayout = 6
	ImageLayoutTransferDstOptimal            ImageLayout = 7
	ImageLayoutPresentSrc                    ImageLayout = 1000001002
)

type PipelineStage uint32

const (
	StageTopOfPipe             PipelineStage = 0x00000001
	StageDrawIndirect          PipelineStage = 0x00000002
	StageVertexInput           PipelineStage = 0x00000004
	StageVertexShader          PipelineStage = 0x00000008
	StageFragmentShader        PipelineStage = 0x00000080
	StageEarlyFragmentTests    PipelineStage = 0x00000100
	StageLateFragmentTests     PipelineStage = 0x00000200
	StageColorAttachmentOutput PipelineStage = 0x00000400
	StageComputeShader         PipelineStage = 0x00000800
	StageTransfer              PipelineStage = 0x00001000
	StageBottomOfPipe          PipelineStage = 0x00002000
	StageAllGraphics           PipelineStage = 0x00008000
	StageAllCommands           PipelineStage = 0x00010000
)

type Access uint32

const (
	AccessNone                 Access = 0
	AccessIndirectCommandRead  Access = 0x00000001
	AccessIndexRead            Access = 0x00000002
	AccessVertexAttributeRead  Access = 0x00000004
	AccessUniformRead          Access = 0x00000008
	AccessShaderRead           Access = 0x00000020
	AccessShaderWrite          Access = 0x00000040
	AccessColorAttachmentRead  Access = 0x00000080
	AccessColorAttachmentWrite Access = 0x00000100
	AccessDepthStencilRead     Access = 0x00000200
	AccessDepthStencilWrite    Access = 0x00000400
	AccessTransferRead         Access = 0x00000800
	AccessTransferWrite        Access = 0x00001000
	AccessHostWrite            Access = 0x00004000
	AccessMemoryRead           Access = 0x00008000
	AccessMemoryWrite          Access = 0x00010000
)

type ImageAspect uint32

const (
	AspectColor   ImageAspect = 0x1
	AspectDepth   ImageAspect = 0x2
	AspectStencil ImageAspect = 0x4
)

// AspectOf returns the aspect mask a view or barrier of format f must use.
func AspectOf(f Format) ImageAspect {
	if !f.HasDepth() {
		return AspectColor
	}
	if f.HasStencil() {
		return AspectDepth | AspectStencil
	}
	return AspectDepth
}

type DescriptorType int32

const (
	DescriptorSampler              DescriptorType = 0
	DescriptorCombinedImageSampler DescriptorType = 1
	DescriptorSampledImage         DescriptorType = 2
	DescriptorStorageImage         DescriptorType = 3
	DescriptorUniformTexelBuffer   DescriptorType = 4
	DescriptorStorageTexelBuffer   DescriptorType = 5
	DescriptorUniformBuffer        DescriptorType = 6
	DescriptorStorageBuffer        DescriptorType = 7
	DescriptorUniformBufferDynamic DescriptorType = 8
	DescriptorStorageBufferDynamic DescriptorType = 9
	DescriptorInputAttachment      DescriptorType = 10
)

// IsImage reports whether writes of this type carry image infos.
func (t DescriptorType) IsImage() bool {
	switch t {
	case DescriptorSampler, DescriptorCombinedImageSampler, DescriptorSampledImage,
		DescriptorStorageImage, DescriptorInputAttachment:
		return true
	}
	return false
}

type ShaderStage uint32

const (
	ShaderStageVertex      ShaderStage = 0x01
	ShaderStageFragment    ShaderStage = 0x10
	ShaderStageCompute     ShaderStage = 0x20
	ShaderStageAllGraphics ShaderStage = 0x1F
)

type BindingFlags uint32

const (
	BindingUpdateAfterBind          BindingFlags = 0x1
	BindingUpdateUnusedWhilePending BindingFlags = 0x2
	BindingPartiallyBound           BindingFlags = 0x4
	BindingVariableDescriptorCount  BindingFlags = 0x8
)

type DescriptorPoolFlags uint32

const (
	DescriptorPoolFreeDescriptorSet DescriptorPoolFlags = 0x1
	DescriptorPoolUpdateAfterBind   DescriptorPoolFlags = 0x2
)

type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x001
	BufferUsageTransferDst BufferUsage = 0x002
	BufferUsageUniform     BufferUsage = 0x010
	BufferUsageStorage     BufferUsage = 0x020
	BufferUsageIndex       BufferUsage = 0x040
	BufferUsageVertex      BufferUsage = 0x080
	BufferUsageIndirect    BufferUsage = 0x100
)

type ImageUsage uint32

const (
	ImageUsageTransferSrc            ImageUsage = 0x01
	ImageUsageTransferDst            ImageUsage = 0x02
	ImageUsageSampled                ImageUsage = 0x04
	ImageUsageStorage                ImageUsage = 0x08
	ImageUsageColorAttachment        ImageUsage = 0x10
	ImageUsageDepthStencilAttachment ImageUsage = 0x20
)

type MemoryProperty uint32

const (
	MemoryPropertyDeviceLocal  MemoryProperty = 0x1
	MemoryPropertyHostVisible  MemoryProperty = 0x2
	MemoryPropertyHostCoherent MemoryProperty = 0x4
	MemoryPropertyHostCached   MemoryProperty = 0x8
)

type LoadOp int32

const (
	LoadOpLoad     LoadOp = 0
	LoadOpClear    LoadOp = 1
	LoadOpDontCare LoadOp = 2
)

type StoreOp int32

const (
	StoreOpStore    StoreOp = 0
	StoreOpDontCare StoreOp = 1
)

type PresentMode int32

const (
	PresentModeImmediate   PresentMode = 0
	PresentModeMailbox     PresentMode = 1
	PresentModeFifo        PresentMode = 2
	PresentModeFifoRelaxed PresentMode = 3
)

type CommandBufferLevel int32

const (
	CommandBufferLevelPrimary   CommandBufferLevel = 0
	CommandBufferLevelSecondary CommandBufferLevel = 1
)

type IndexType int32

const (
	IndexTypeUint16 IndexType = 0
	IndexTypeUint32 IndexType = 1
)

type PipelineBindPoint int32

const (
	BindPointGraphics PipelineBindPoint = 0
	BindPointCompute  PipelineBindPoint = 1
)

type PrimitiveTopology int32

const (
	TopologyPointList     PrimitiveTopology = 0
	TopologyLineList      PrimitiveTopology = 1
	TopologyTriangleList  PrimitiveTopology = 3
	TopologyTriangleStrip PrimitiveTopology = 4
)

type PolygonMode int32

const (
	PolygonModeFill PolygonMode = 0
	PolygonModeLine PolygonMode = 1
)

type CullMode uint32

const (
	CullModeNone  CullMode = 0
	CullModeFront CullMode = 1
	CullModeBack  CullMode = 2
)

type FrontFace int32

const (
	FrontFaceCounterClockwise FrontFace = 0
	FrontFaceClockwise        FrontFace = 1
)

type CompareOp int32

const (
	CompareNever          CompareOp = 0
	CompareLess           CompareOp = 1
	CompareEqual          CompareOp = 2
	CompareLessOrEqual    CompareOp = 3
	CompareGreater        CompareOp = 4
	CompareGreaterOrEqual CompareOp = 6
	CompareAlways         CompareOp = 7
)

type SampleCount uint32

const SampleCount1 SampleCount = 1

type RenderingFlags uint32

// RenderingContentsSecondary means the draws of the scope are recorded into
// secondary command buffers executed with ExecuteCommands.
const RenderingContentsSecondary RenderingFlags = 0x1

// SurfaceStatus is how acquire and present report the state of the surface.
// It is deliberately not an error.
type SurfaceStatus int

const (
	SurfaceOptimal SurfaceStatus = iota
	SurfaceSuboptimal
	SurfaceOutOfDate
)

func (s SurfaceStatus) String() string {
	switch s {
	case SurfaceOptimal:
		return "optimal"
	case SurfaceSuboptimal:
		return "suboptimal"
	case SurfaceOutOfDate:
		return "out-of-date"
	}
	return "unknown"
}

// NeedsRecreate is true when the swapchain no longer matches the surface.
func (s SurfaceStatus) NeedsRecreate() bool {
	return s != SurfaceOptimal
}
