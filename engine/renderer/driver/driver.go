// Package driver is the narrow view the renderer has of the native graphics
// API. The vulkan package implements it on a real device and drivertest
// records calls for tests.
package driver

import "time"

type Offset2D struct {
	X, Y int32
}

type Extent2D struct {
	Width, Height uint32
}

// IsZero is true when either dimension is 0, e.g. for a minimized window.
func (e Extent2D) IsZero() bool {
	return e.Width == 0 || e.Height == 0
}

type Rect2D struct {
	Offset Offset2D
	Extent Extent2D
}

type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

type ClearValue struct {
	Color   [4]float32
	Depth   float32
	Stencil uint32
}

type Destroyer interface {
	Destroy()
}

type (
	Semaphore           interface{ Destroyer }
	Image               interface{ Destroyer }
	ImageView           interface{ Destroyer }
	Buffer              interface{ Destroyer }
	Sampler             interface{ Destroyer }
	ShaderModule        interface{ Destroyer }
	DescriptorSetLayout interface{ Destroyer }
	PipelineLayout      interface{ Destroyer }
	Pipeline            interface{ Destroyer }
)

// DescriptorSet is owned by its pool and has no destroy of its own.
type DescriptorSet interface{}

type Fence interface {
	Destroyer
	// Wait blocks until the fence is signaled. It returns an error matching
	// core.ErrTimeOut when timeout elapses first.
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() (bool, error)
}

type DeviceMemory interface {
	Free()
}

type MemoryRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

type MemoryType struct {
	Properties MemoryProperty
	HeapIndex  uint32
}

type MemoryHeap struct {
	Size        uint64
	DeviceLocal bool
}

type MemoryProperties struct {
	Types []MemoryType
	Heaps []MemoryHeap
}

type Limits struct {
	MinUniformBufferOffsetAlignment uint64
	MinStorageBufferOffsetAlignment uint64
	NonCoherentAtomSize             uint64
	MaxPushConstantsSize            uint32
}

type BufferInfo struct {
	Size  uint64
	Usage BufferUsage
}

type ImageInfo struct {
	Extent      Extent2D
	Format      Format
	MipLevels   uint32
	ArrayLayers uint32
	Usage       ImageUsage
	Samples     SampleCount
	Cube        bool
}

type ImageViewInfo struct {
	Image      Image
	Format     Format
	Aspect     ImageAspect
	BaseMip    uint32
	MipLevels  uint32
	BaseLayer  uint32
	LayerCount uint32
	Cube       bool
}

type SamplerInfo struct {
	Linear     bool
	Repeat     bool
	MaxLOD     float32
	Anisotropy float32
	// Compare enables depth comparison, used for shadow maps.
	Compare bool
}

type SurfaceFormat struct {
	Format     Format
	ColorSpace ColorSpace
}

// CurrentExtentUndefined is the width reported as current extent when the
// window size decides the swapchain extent.
const CurrentExtentUndefined = ^uint32(0)

type SurfaceCapabilities struct {
	MinImageCount  uint32
	MaxImageCount  uint32
	CurrentExtent  Extent2D
	MinImageExtent Extent2D
	MaxImageExtent Extent2D
}

type SwapchainInfo struct {
	ImageCount  uint32
	Format      SurfaceFormat
	Extent      Extent2D
	PresentMode PresentMode
	Old         Swapchain
}

type Swapchain interface {
	Destroyer
	Images() ([]Image, error)
	// AcquireNextImage signals sem when the image is released by the
	// presentation engine.
	AcquireNextImage(timeout time.Duration, sem Semaphore) (uint32, SurfaceStatus, error)
}

type SubmitInfo struct {
	CommandBuffers []CommandBuffer
	Wait           []Semaphore
	WaitStages     []PipelineStage
	Signal         []Semaphore
	Fence          Fence
}

type PresentInfo struct {
	Wait       []Semaphore
	Swapchain  Swapchain
	ImageIndex uint32
}

type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
	Flags   BindingFlags
}

type DescriptorSetLayoutInfo struct {
	Bindings []DescriptorBinding
	// UpdateAfterBindPool must be set when any binding uses BindingUpdateAfterBind.
	UpdateAfterBindPool bool
}

type DescriptorPoolSize struct {
	Type  DescriptorType
	Count uint32
}

type DescriptorPoolInfo struct {
	MaxSets uint32
	Sizes   []DescriptorPoolSize
	Flags   DescriptorPoolFlags
}

type DescriptorPool interface {
	Destroyer
	Allocate(layouts ...DescriptorSetLayout) ([]DescriptorSet, error)
	Reset() error
}

type DescriptorBufferInfo struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

type DescriptorImageInfo struct {
	Sampler Sampler
	View    ImageView
	Layout  ImageLayout
}

type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         DescriptorType
	Buffers      []DescriptorBufferInfo
	Images       []DescriptorImageInfo
}

type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

type PipelineLayoutInfo struct {
	SetLayouts    []DescriptorSetLayout
	PushConstants []PushConstantRange
}

type ShaderStageInfo struct {
	Stage  ShaderStage
	Module ShaderModule
	Entry  string
}

type VertexBinding struct {
	Binding uint32
	Stride  uint32
}

type VertexAttribute struct {
	Location uint32
	Binding  uint32
	Format   Format
	Offset   uint32
}

type GraphicsPipelineInfo struct {
	Layout           PipelineLayout
	Stages           []ShaderStageInfo
	VertexBindings   []VertexBinding
	VertexAttributes []VertexAttribute
	Topology         PrimitiveTopology
	PolygonMode      PolygonMode
	CullMode         CullMode
	FrontFace        FrontFace
	DepthTest        bool
	DepthWrite       bool
	DepthCompare     CompareOp
	DepthBias        bool
	Blend            bool
	// Attachment formats for dynamic rendering.
	ColorFormats []Format
	DepthFormat  Format
	Samples      SampleCount
}

type ComputePipelineInfo struct {
	Layout PipelineLayout
	Stage  ShaderStageInfo
}

type CommandPool interface {
	Destroyer
	Allocate(level CommandBufferLevel, count int) ([]CommandBuffer, error)
	Reset() error
}

// Device is a logical device with a single graphics+present queue.
type Device interface {
	Limits() Limits
	MemoryProperties() MemoryProperties

	CreateFence(signaled bool) (Fence, error)
	CreateSemaphore() (Semaphore, error)
	// CreateCommandPool creates a pool whose buffers can be reset individually.
	CreateCommandPool() (CommandPool, error)

	SurfaceCapabilities() (SurfaceCapabilities, error)
	SurfaceFormats() ([]SurfaceFormat, error)
	PresentModes() ([]PresentMode, error)
	// DepthFormat returns the best supported depth attachment format.
	DepthFormat() (Format, error)
	CreateSwapchain(info SwapchainInfo) (Swapchain, error)

	CreateBuffer(info BufferInfo) (Buffer, MemoryRequirements, error)
	CreateImage(info ImageInfo) (Image, MemoryRequirements, error)
	CreateImageView(info ImageViewInfo) (ImageView, error)
	CreateSampler(info SamplerInfo) (Sampler, error)
	AllocateMemory(size uint64, typeIndex uint32) (DeviceMemory, error)
	BindBufferMemory(buf Buffer, mem DeviceMemory, offset uint64) error
	BindImageMemory(img Image, mem DeviceMemory, offset uint64) error
	// MapMemory maps the whole allocation.
	MapMemory(mem DeviceMemory) ([]byte, error)
	UnmapMemory(mem DeviceMemory)
	FlushMemory(mem DeviceMemory, offset, size uint64) error
	InvalidateMemory(mem DeviceMemory, offset, size uint64) error

	CreateDescriptorSetLayout(info DescriptorSetLayoutInfo) (DescriptorSetLayout, error)
	CreateDescriptorPool(info DescriptorPoolInfo) (DescriptorPool, error)
	UpdateDescriptorSets(writes []DescriptorWrite)

	CreateShaderModule(code []byte) (ShaderModule, error)
	CreatePipelineLayout(info PipelineLayoutInfo) (PipelineLayout, error)
	CreateGraphicsPipeline(info GraphicsPipelineInfo) (Pipeline, error)
	CreateComputePipeline(info ComputePipelineInfo) (Pipeline, error)

	Submit(info SubmitInfo) error
	Present(info PresentInfo) (SurfaceStatus, error)
	WaitIdle() error
}
