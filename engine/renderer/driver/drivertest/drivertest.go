// Package drivertest provides an in-memory driver.Device that records every
// call, for testing renderer code without a GPU.
package drivertest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Object is the fake for every handle that only needs Destroy.
type Object struct {
	Kind      string
	ID        int
	Info      interface{}
	Destroyed bool
	dev       *Device
}

func (o *Object) Destroy() {
	o.dev.release(o)
}

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d", o.Kind, o.ID)
}

// Device is a recording fake. The GPU "completes" work as soon as it is
// submitted, so fences signal at Submit time.
type Device struct {
	mu sync.Mutex

	Caps       driver.SurfaceCapabilities
	Formats    []driver.SurfaceFormat
	Modes      []driver.PresentMode
	Depth      driver.Format
	Memory     driver.MemoryProperties
	DeviceLims driver.Limits

	// Fail makes the named operation (e.g. "CreateImage") return the error.
	Fail map[string]error
	// AcquireStatus and PresentStatus are consumed front to back; once empty
	// the surface reports optimal.
	AcquireStatus []driver.SurfaceStatus
	PresentStatus []driver.SurfaceStatus

	Submits           []driver.SubmitInfo
	Presents          []driver.PresentInfo
	DescriptorUpdates [][]driver.DescriptorWrite
	// FenceWaits lists every waited fence in order.
	FenceWaits []*Fence
	Swapchains []*Swapchain
	Pools      []*CommandPool
	WaitIdles  int

	nextID int
	live   map[string]int
}

func NewDevice() *Device {
	return &Device{
		Caps: driver.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  8,
			CurrentExtent:  driver.Extent2D{Width: driver.CurrentExtentUndefined, Height: driver.CurrentExtentUndefined},
			MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: driver.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []driver.SurfaceFormat{
			{Format: driver.FormatB8G8R8A8Unorm, ColorSpace: driver.ColorSpaceSrgbNonlinear},
		},
		Modes: []driver.PresentMode{driver.PresentModeFifo, driver.PresentModeMailbox},
		Depth: driver.FormatD32Sfloat,
		Memory: driver.MemoryProperties{
			Types: []driver.MemoryType{
				{Properties: driver.MemoryPropertyDeviceLocal, HeapIndex: 0},
				{Properties: driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent, HeapIndex: 1},
				{Properties: driver.MemoryPropertyDeviceLocal | driver.MemoryPropertyHostVisible | driver.MemoryPropertyHostCoherent, HeapIndex: 0},
			},
			Heaps: []driver.MemoryHeap{
				{Size: 1 << 30, DeviceLocal: true},
				{Size: 256 << 20},
			},
		},
		DeviceLims: driver.Limits{
			MinUniformBufferOffsetAlignment: 256,
			MinStorageBufferOffsetAlignment: 64,
			NonCoherentAtomSize:             64,
			MaxPushConstantsSize:            128,
		},
		Fail: map[string]error{},
		live: map[string]int{},
	}
}

// Live returns the number of not yet destroyed objects of kind.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live[kind]
}

// LiveKinds lists every kind with live objects, for leak assertions.
func (d *Device) LiveKinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	var kinds []string
	for k, n := range d.live {
		if n > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}

func (d *Device) failure(op string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err, ok := d.Fail[op]; ok {
		return errors.Wrap(err, op)
	}
	return nil
}

func (d *Device) newObject(kind string, info interface{}) *Object {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	d.live[kind]++
	return &Object{Kind: kind, ID: d.nextID, Info: info, dev: d}
}

func (d *Device) release(o *Object) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.Destroyed {
		panic(fmt.Sprintf("drivertest: %s destroyed twice", o))
	}
	o.Destroyed = true
	d.live[o.Kind]--
}

func (d *Device) Limits() driver.Limits                   { return d.DeviceLims }
func (d *Device) MemoryProperties() driver.MemoryProperties { return d.Memory }

func (d *Device) CreateFence(signaled bool) (driver.Fence, error) {
	if err := d.failure("CreateFence"); err != nil {
		return nil, err
	}
	return &Fence{Object: d.newObject("Fence", nil), signaled: signaled}, nil
}

func (d *Device) CreateSemaphore() (driver.Semaphore, error) {
	if err := d.failure("CreateSemaphore"); err != nil {
		return nil, err
	}
	return d.newObject("Semaphore", nil), nil
}

func (d *Device) CreateCommandPool() (driver.CommandPool, error) {
	if err := d.failure("CreateCommandPool"); err != nil {
		return nil, err
	}
	p := &CommandPool{Object: d.newObject("CommandPool", nil)}
	d.mu.Lock()
	d.Pools = append(d.Pools, p)
	d.mu.Unlock()
	return p, nil
}

func (d *Device) SurfaceCapabilities() (driver.SurfaceCapabilities, error) {
	return d.Caps, d.failure("SurfaceCapabilities")
}

func (d *Device) SurfaceFormats() ([]driver.SurfaceFormat, error) {
	return d.Formats, d.failure("SurfaceFormats")
}

func (d *Device) PresentModes() ([]driver.PresentMode, error) {
	return d.Modes, d.failure("PresentModes")
}

func (d *Device) DepthFormat() (driver.Format, error) {
	if err := d.failure("DepthFormat"); err != nil {
		return driver.FormatUndefined, err
	}
	return d.Depth, nil
}

func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	if err := d.failure("CreateSwapchain"); err != nil {
		return nil, err
	}
	sc := &Swapchain{Object: d.newObject("Swapchain", info), Info: info}
	for i := uint32(0); i < info.ImageCount; i++ {
		// presentable images belong to the swapchain, they are not counted
		sc.images = append(sc.images, &Object{Kind: "SwapchainImage", ID: int(i), dev: d})
	}
	d.mu.Lock()
	d.Swapchains = append(d.Swapchains, sc)
	d.mu.Unlock()
	return sc, nil
}

func (d *Device) CreateBuffer(info driver.BufferInfo) (driver.Buffer, driver.MemoryRequirements, error) {
	if err := d.failure("CreateBuffer"); err != nil {
		return nil, driver.MemoryRequirements{}, err
	}
	return d.newObject("Buffer", info), driver.MemoryRequirements{
		Size:      info.Size,
		Alignment: 256,
		TypeBits:  0b111,
	}, nil
}

func (d *Device) CreateImage(info driver.ImageInfo) (driver.Image, driver.MemoryRequirements, error) {
	if err := d.failure("CreateImage"); err != nil {
		return nil, driver.MemoryRequirements{}, err
	}
	size := uint64(info.Extent.Width) * uint64(info.Extent.Height) * 4 * uint64(max(info.ArrayLayers, 1))
	return d.newObject("Image", info), driver.MemoryRequirements{
		Size:      size,
		Alignment: 4096,
		TypeBits:  0b101,
	}, nil
}

func (d *Device) CreateImageView(info driver.ImageViewInfo) (driver.ImageView, error) {
	if err := d.failure("CreateImageView"); err != nil {
		return nil, err
	}
	return d.newObject("ImageView", info), nil
}

func (d *Device) CreateSampler(info driver.SamplerInfo) (driver.Sampler, error) {
	if err := d.failure("CreateSampler"); err != nil {
		return nil, err
	}
	return d.newObject("Sampler", info), nil
}

func (d *Device) AllocateMemory(size uint64, typeIndex uint32) (driver.DeviceMemory, error) {
	if err := d.failure("AllocateMemory"); err != nil {
		return nil, err
	}
	return &Memory{
		Object:    d.newObject("DeviceMemory", nil),
		TypeIndex: typeIndex,
		Data:      make([]byte, size),
	}, nil
}

func (d *Device) BindBufferMemory(driver.Buffer, driver.DeviceMemory, uint64) error {
	return d.failure("BindBufferMemory")
}

func (d *Device) BindImageMemory(driver.Image, driver.DeviceMemory, uint64) error {
	return d.failure("BindImageMemory")
}

func (d *Device) MapMemory(mem driver.DeviceMemory) ([]byte, error) {
	m := mem.(*Memory)
	if d.Memory.Types[m.TypeIndex].Properties&driver.MemoryPropertyHostVisible == 0 {
		return nil, core.NewError(core.ResultMemoryMapFailed, "MapMemory")
	}
	if m.Mapped {
		return nil, core.NewError(core.ResultMemoryMapFailed, "MapMemory: already mapped")
	}
	m.Mapped = true
	return m.Data, nil
}

func (d *Device) UnmapMemory(mem driver.DeviceMemory) {
	mem.(*Memory).Mapped = false
}

func (d *Device) FlushMemory(mem driver.DeviceMemory, offset, size uint64) error {
	m := mem.(*Memory)
	m.Flushes = append(m.Flushes, [2]uint64{offset, size})
	return d.failure("FlushMemory")
}

func (d *Device) InvalidateMemory(mem driver.DeviceMemory, offset, size uint64) error {
	m := mem.(*Memory)
	m.Invalidates = append(m.Invalidates, [2]uint64{offset, size})
	return d.failure("InvalidateMemory")
}

func (d *Device) CreateDescriptorSetLayout(info driver.DescriptorSetLayoutInfo) (driver.DescriptorSetLayout, error) {
	if err := d.failure("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return d.newObject("DescriptorSetLayout", info), nil
}

func (d *Device) CreateDescriptorPool(info driver.DescriptorPoolInfo) (driver.DescriptorPool, error) {
	if err := d.failure("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	return &DescriptorPool{Object: d.newObject("DescriptorPool", info), Info: info}, nil
}

func (d *Device) UpdateDescriptorSets(writes []driver.DescriptorWrite) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.DescriptorUpdates = append(d.DescriptorUpdates, append([]driver.DescriptorWrite(nil), writes...))
}

func (d *Device) CreateShaderModule(code []byte) (driver.ShaderModule, error) {
	if err := d.failure("CreateShaderModule"); err != nil {
		return nil, err
	}
	return d.newObject("ShaderModule", len(code)), nil
}

func (d *Device) CreatePipelineLayout(info driver.PipelineLayoutInfo) (driver.PipelineLayout, error) {
	if err := d.failure("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	return d.newObject("PipelineLayout", info), nil
}

func (d *Device) CreateGraphicsPipeline(info driver.GraphicsPipelineInfo) (driver.Pipeline, error) {
	if err := d.failure("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	return d.newObject("Pipeline", info), nil
}

func (d *Device) CreateComputePipeline(info driver.ComputePipelineInfo) (driver.Pipeline, error) {
	if err := d.failure("CreateComputePipeline"); err != nil {
		return nil, err
	}
	return d.newObject("Pipeline", info), nil
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	if err := d.failure("Submit"); err != nil {
		return err
	}
	d.mu.Lock()
	d.Submits = append(d.Submits, info)
	d.mu.Unlock()
	if f, ok := info.Fence.(*Fence); ok && f != nil {
		f.signal()
	}
	return nil
}

func (d *Device) Present(info driver.PresentInfo) (driver.SurfaceStatus, error) {
	if err := d.failure("Present"); err != nil {
		return driver.SurfaceOptimal, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Presents = append(d.Presents, info)
	if len(d.PresentStatus) == 0 {
		return driver.SurfaceOptimal, nil
	}
	st := d.PresentStatus[0]
	d.PresentStatus = d.PresentStatus[1:]
	return st, nil
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	d.WaitIdles++
	d.mu.Unlock()
	return d.failure("WaitIdle")
}

type Fence struct {
	*Object
	mu       sync.Mutex
	signaled bool
	// Hang makes Wait time out while the fence is unsignaled.
	Hang   bool
	Waits  int
	Resets int
}

func (f *Fence) signal() {
	f.mu.Lock()
	f.signaled = true
	f.mu.Unlock()
}

func (f *Fence) Wait(timeout time.Duration) error {
	f.mu.Lock()
	f.Waits++
	hang := f.Hang && !f.signaled
	f.mu.Unlock()

	f.dev.mu.Lock()
	f.dev.FenceWaits = append(f.dev.FenceWaits, f)
	f.dev.mu.Unlock()

	if hang {
		return core.NewError(core.ResultTimeOut, fmt.Sprintf("wait %s for %s", f, timeout))
	}
	return nil
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Resets++
	f.signaled = false
	return nil
}

func (f *Fence) Signaled() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled, nil
}

type Memory struct {
	*Object
	TypeIndex   uint32
	Data        []byte
	Mapped      bool
	Flushes     [][2]uint64
	Invalidates [][2]uint64
}

func (m *Memory) Free() {
	m.Destroy()
}

type DescriptorPool struct {
	*Object
	Info      driver.DescriptorPoolInfo
	Allocated int
}

// Set is a fake descriptor set.
type Set struct {
	ID     int
	Layout driver.DescriptorSetLayout
}

func (p *DescriptorPool) Allocate(layouts ...driver.DescriptorSetLayout) ([]driver.DescriptorSet, error) {
	if err := p.dev.failure("AllocateDescriptorSets"); err != nil {
		return nil, err
	}
	if p.Allocated+len(layouts) > int(p.Info.MaxSets) {
		return nil, core.NewError(core.ResultOutOfMemory, "AllocateDescriptorSets: pool exhausted")
	}
	sets := make([]driver.DescriptorSet, len(layouts))
	for i, l := range layouts {
		p.Allocated++
		sets[i] = &Set{ID: p.Allocated, Layout: l}
	}
	return sets, nil
}

func (p *DescriptorPool) Reset() error {
	p.Allocated = 0
	return nil
}

type Swapchain struct {
	*Object
	Info   driver.SwapchainInfo
	images []*Object
	next   uint32
}

func (s *Swapchain) Images() ([]driver.Image, error) {
	out := make([]driver.Image, len(s.images))
	for i, img := range s.images {
		out[i] = img
	}
	return out, nil
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, sem driver.Semaphore) (uint32, driver.SurfaceStatus, error) {
	if err := s.dev.failure("AcquireNextImage"); err != nil {
		return 0, driver.SurfaceOptimal, err
	}
	s.dev.mu.Lock()
	status := driver.SurfaceOptimal
	if len(s.dev.AcquireStatus) > 0 {
		status = s.dev.AcquireStatus[0]
		s.dev.AcquireStatus = s.dev.AcquireStatus[1:]
	}
	s.dev.mu.Unlock()
	if status == driver.SurfaceOutOfDate {
		return 0, status, nil
	}
	idx := s.next
	s.next = (s.next + 1) % uint32(len(s.images))
	return idx, status, nil
}

type CommandPool struct {
	*Object
	Buffers []*CommandBuffer
	Resets  int
}

func (p *CommandPool) Allocate(level driver.CommandBufferLevel, count int) ([]driver.CommandBuffer, error) {
	if err := p.dev.failure("AllocateCommandBuffers"); err != nil {
		return nil, err
	}
	out := make([]driver.CommandBuffer, count)
	for i := range out {
		cb := &CommandBuffer{level: level, pool: p, ID: len(p.Buffers)}
		p.Buffers = append(p.Buffers, cb)
		out[i] = cb
	}
	return out, nil
}

func (p *CommandPool) Reset() error {
	p.Resets++
	for _, cb := range p.Buffers {
		_ = cb.Reset()
	}
	return nil
}
