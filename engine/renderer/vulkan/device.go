package vulkan

import (
	"runtime"
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

const portabilitySubset = "VK_KHR_portability_subset"

var _ driver.Device = (*Device)(nil)

// Device implements driver.Device on one physical device with a single
// queue family that does both graphics and present.
type Device struct {
	gpu     vk.PhysicalDevice
	handle  vk.Device
	surface vk.Surface
	family  uint32
	queue   vk.Queue

	properties vk.PhysicalDeviceProperties
	memory     driver.MemoryProperties
	limits     driver.Limits
	anisotropy bool
	depth      driver.Format

	// queueMu serializes submit and present on the shared queue.
	queueMu sync.Mutex

	cacheMu      sync.Mutex
	passes       map[passKey]vk.RenderPass
	framebuffers map[framebufferKey]vk.Framebuffer
}

type candidate struct {
	gpu        vk.PhysicalDevice
	family     uint32
	properties vk.PhysicalDeviceProperties
	features   vk.PhysicalDeviceFeatures
	extensions []string
	score      int
}

func newDevice(instance vk.Instance, surface vk.Surface) (*Device, error) {
	var count uint32
	if err := check(vk.EnumeratePhysicalDevices(instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, errors.Wrap(core.ErrNotSupported, "no devices which support Vulkan were found")
	}
	gpus := make([]vk.PhysicalDevice, count)
	if err := check(vk.EnumeratePhysicalDevices(instance, &count, gpus), "vkEnumeratePhysicalDevices"); err != nil {
		return nil, err
	}

	var best *candidate
	for _, gpu := range gpus {
		c, ok := evaluate(gpu, surface)
		if ok && (best == nil || c.score > best.score) {
			best = c
		}
	}
	if best == nil {
		return nil, errors.Wrap(core.ErrNotSupported, "no physical device meets the requirements")
	}
	core.LogInfo("Selected device: '%s' (%s).", cString(best.properties.DeviceName[:]), deviceType(best.properties.DeviceType))
	core.LogInfo("Vulkan API version: %d.%d.%d",
		vk.Version(best.properties.ApiVersion).Major(),
		vk.Version(best.properties.ApiVersion).Minor(),
		vk.Version(best.properties.ApiVersion).Patch())

	d := &Device{
		gpu:          best.gpu,
		surface:      surface,
		family:       best.family,
		properties:   best.properties,
		anisotropy:   best.features.SamplerAnisotropy == vk.True,
		passes:       map[passKey]vk.RenderPass{},
		framebuffers: map[framebufferKey]vk.Framebuffer{},
	}
	d.readMemoryProperties()
	d.readLimits()

	features := vk.PhysicalDeviceFeatures{
		SamplerAnisotropy:                      best.features.SamplerAnisotropy,
		FillModeNonSolid:                       best.features.FillModeNonSolid,
		MultiDrawIndirect:                      best.features.MultiDrawIndirect,
		ShaderSampledImageArrayDynamicIndexing: vk.True,
	}
	res := vk.CreateDevice(d.gpu, &vk.DeviceCreateInfo{
		SType:                vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount: 1,
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.family,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{features},
		EnabledExtensionCount:   uint32(len(best.extensions)),
		PpEnabledExtensionNames: safeStrings(best.extensions),
		// Bindless texture table.
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:                                    vk.StructureTypePhysicalDeviceVulkan12Features,
			DescriptorIndexing:                       vk.True,
			DescriptorBindingPartiallyBound:          vk.True,
			DescriptorBindingSampledImageUpdateAfterBind: vk.True,
			DescriptorBindingUpdateUnusedWhilePending:    vk.True,
			DescriptorBindingVariableDescriptorCount:     vk.True,
			RuntimeDescriptorArray:                       vk.True,
		}),
	}, nil, &d.handle)
	if err := check(res, "vkCreateDevice"); err != nil {
		return nil, err
	}
	vk.GetDeviceQueue(d.handle, d.family, 0, &d.queue)
	core.LogInfo("Logical device created.")

	depth, err := d.detectDepthFormat()
	if err != nil {
		d.destroy()
		return nil, err
	}
	d.depth = depth
	return d, nil
}

// evaluate checks gpu against the requirements and scores it. Discrete GPUs
// win over integrated ones.
func evaluate(gpu vk.PhysicalDevice, surface vk.Surface) (*candidate, bool) {
	c := &candidate{gpu: gpu}
	vk.GetPhysicalDeviceProperties(gpu, &c.properties)
	c.properties.Deref()
	c.properties.Limits.Deref()
	vk.GetPhysicalDeviceFeatures(gpu, &c.features)
	c.features.Deref()
	name := cString(c.properties.DeviceName[:])

	if vk.Version(c.properties.ApiVersion).Minor() < 2 && vk.Version(c.properties.ApiVersion).Major() == 1 {
		core.LogInfo("Device '%s' does not support Vulkan 1.2, skipping.", name)
		return nil, false
	}

	family, ok := graphicsPresentFamily(gpu, surface)
	if !ok {
		core.LogInfo("Device '%s' has no queue family for graphics and present, skipping.", name)
		return nil, false
	}
	c.family = family

	available, err := deviceExtensions(gpu)
	if err != nil {
		return nil, false
	}
	if !available[vk.KhrSwapchainExtensionName] {
		core.LogInfo("Required extension not found: '%s', skipping device.", vk.KhrSwapchainExtensionName)
		return nil, false
	}
	c.extensions = []string{vk.KhrSwapchainExtensionName}
	if available[portabilitySubset] {
		core.LogInfo("Adding required extension '%s'.", portabilitySubset)
		c.extensions = append(c.extensions, portabilitySubset)
	}

	var formats, modes uint32
	vk.GetPhysicalDeviceSurfaceFormats(gpu, surface, &formats, nil)
	vk.GetPhysicalDeviceSurfacePresentModes(gpu, surface, &modes, nil)
	if formats == 0 || modes == 0 {
		core.LogInfo("Required swapchain support not present, skipping device.")
		return nil, false
	}

	switch c.properties.DeviceType {
	case vk.PhysicalDeviceTypeDiscreteGpu:
		c.score = 1000
	case vk.PhysicalDeviceTypeIntegratedGpu:
		c.score = 100
	case vk.PhysicalDeviceTypeVirtualGpu:
		c.score = 10
	}
	if runtime.GOOS == "darwin" && c.properties.DeviceType == vk.PhysicalDeviceTypeIntegratedGpu {
		c.score = 1000
	}
	if c.features.SamplerAnisotropy == vk.True {
		c.score++
	}
	return c, true
}

func graphicsPresentFamily(gpu vk.PhysicalDevice, surface vk.Surface) (uint32, bool) {
	var count uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	families := make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, families)
	for i := uint32(0); i < count; i++ {
		families[i].Deref()
		if families[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit|vk.QueueComputeBit) != vk.QueueFlags(vk.QueueGraphicsBit|vk.QueueComputeBit) {
			continue
		}
		var present vk.Bool32
		if vk.GetPhysicalDeviceSurfaceSupport(gpu, i, surface, &present) != vk.Success {
			continue
		}
		if present == vk.True {
			return i, true
		}
	}
	return 0, false
}

func deviceExtensions(gpu vk.PhysicalDevice) (map[string]bool, error) {
	var count uint32
	if err := check(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	list := make([]vk.ExtensionProperties, count)
	if err := check(vk.EnumerateDeviceExtensionProperties(gpu, "", &count, list), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	out := make(map[string]bool, count)
	for i := range list {
		list[i].Deref()
		out[cString(list[i].ExtensionName[:])] = true
	}
	return out, nil
}

func deviceType(t vk.PhysicalDeviceType) string {
	switch t {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		return "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		return "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		return "virtual"
	case vk.PhysicalDeviceTypeCpu:
		return "cpu"
	}
	return "unknown"
}

func (d *Device) readMemoryProperties() {
	var props vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(d.gpu, &props)
	props.Deref()
	for i := uint32(0); i < props.MemoryTypeCount; i++ {
		props.MemoryTypes[i].Deref()
		d.memory.Types = append(d.memory.Types, driver.MemoryType{
			Properties: driver.MemoryProperty(props.MemoryTypes[i].PropertyFlags),
			HeapIndex:  props.MemoryTypes[i].HeapIndex,
		})
	}
	for i := uint32(0); i < props.MemoryHeapCount; i++ {
		props.MemoryHeaps[i].Deref()
		heap := driver.MemoryHeap{
			Size:        uint64(props.MemoryHeaps[i].Size),
			DeviceLocal: props.MemoryHeaps[i].Flags&vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit) != 0,
		}
		if heap.DeviceLocal {
			core.LogInfo("Local GPU memory: %d MiB", heap.Size>>20)
		} else {
			core.LogInfo("Shared System memory: %d MiB", heap.Size>>20)
		}
		d.memory.Heaps = append(d.memory.Heaps, heap)
	}
}

func (d *Device) readLimits() {
	l := d.properties.Limits
	d.limits = driver.Limits{
		MinUniformBufferOffsetAlignment: uint64(l.MinUniformBufferOffsetAlignment),
		MinStorageBufferOffsetAlignment: uint64(l.MinStorageBufferOffsetAlignment),
		NonCoherentAtomSize:             uint64(l.NonCoherentAtomSize),
		MaxPushConstantsSize:            l.MaxPushConstantsSize,
	}
}

func (d *Device) detectDepthFormat() (driver.Format, error) {
	want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range []driver.Format{driver.FormatD32Sfloat, driver.FormatD32SfloatS8Uint, driver.FormatD24UnormS8Uint} {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.gpu, vk.Format(f), &props)
		props.Deref()
		if props.OptimalTilingFeatures&want == want {
			return f, nil
		}
	}
	return driver.FormatUndefined, errors.Wrap(core.ErrNotSupported, "no depth attachment format")
}

func (d *Device) destroy() {
	if d.handle == nil {
		return
	}
	vk.DeviceWaitIdle(d.handle)
	d.destroyCaches()
	vk.DestroyDevice(d.handle, nil)
	d.handle = nil
	core.LogInfo("Logical device destroyed.")
}

func (d *Device) Limits() driver.Limits { return d.limits }

func (d *Device) MemoryProperties() driver.MemoryProperties { return d.memory }

func (d *Device) DepthFormat() (driver.Format, error) {
	if d.depth == driver.FormatUndefined {
		return d.depth, errors.Wrap(core.ErrNotSupported, "no depth attachment format")
	}
	return d.depth, nil
}

func (d *Device) SurfaceCapabilities() (driver.SurfaceCapabilities, error) {
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return driver.SurfaceCapabilities{}, err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()
	return driver.SurfaceCapabilities{
		MinImageCount:  caps.MinImageCount,
		MaxImageCount:  caps.MaxImageCount,
		CurrentExtent:  driver.Extent2D{Width: caps.CurrentExtent.Width, Height: caps.CurrentExtent.Height},
		MinImageExtent: driver.Extent2D{Width: caps.MinImageExtent.Width, Height: caps.MinImageExtent.Height},
		MaxImageExtent: driver.Extent2D{Width: caps.MaxImageExtent.Width, Height: caps.MaxImageExtent.Height},
	}, nil
}

func (d *Device) SurfaceFormats() ([]driver.SurfaceFormat, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, nil), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	list := make([]vk.SurfaceFormat, count)
	if err := check(vk.GetPhysicalDeviceSurfaceFormats(d.gpu, d.surface, &count, list), "vkGetPhysicalDeviceSurfaceFormats"); err != nil {
		return nil, err
	}
	out := make([]driver.SurfaceFormat, count)
	for i := range list {
		list[i].Deref()
		out[i] = driver.SurfaceFormat{Format: driver.Format(list[i].Format), ColorSpace: driver.ColorSpace(list[i].ColorSpace)}
	}
	return out, nil
}

func (d *Device) PresentModes() ([]driver.PresentMode, error) {
	var count uint32
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, nil), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	list := make([]vk.PresentMode, count)
	if err := check(vk.GetPhysicalDeviceSurfacePresentModes(d.gpu, d.surface, &count, list), "vkGetPhysicalDeviceSurfacePresentModes"); err != nil {
		return nil, err
	}
	out := make([]driver.PresentMode, count)
	for i, m := range list {
		out[i] = driver.PresentMode(m)
	}
	return out, nil
}

func (d *Device) Submit(info driver.SubmitInfo) error {
	cmds := make([]vk.CommandBuffer, len(info.CommandBuffers))
	var labels []string
	for i, c := range info.CommandBuffers {
		cb := c.(*CommandBuffer)
		cmds[i] = cb.handle
		labels = append(labels, cb.labels...)
	}
	stages := make([]vk.PipelineStageFlags, len(info.WaitStages))
	for i, s := range info.WaitStages {
		stages[i] = vk.PipelineStageFlags(s)
	}
	fence := vk.NullFence
	if info.Fence != nil {
		fence = info.Fence.(*Fence).handle
	}
	submit := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(info.Wait)),
		PWaitSemaphores:      semaphores(info.Wait),
		PWaitDstStageMask:    stages,
		CommandBufferCount:   uint32(len(cmds)),
		PCommandBuffers:      cmds,
		SignalSemaphoreCount: uint32(len(info.Signal)),
		PSignalSemaphores:    semaphores(info.Signal),
	}

	d.queueMu.Lock()
	res := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submit}, fence)
	d.queueMu.Unlock()
	if err := check(res, "vkQueueSubmit"); err != nil {
		if len(labels) > 0 {
			err = errors.WithDetailf(err, "labels: %v", labels)
		}
		return err
	}
	return nil
}

func (d *Device) Present(info driver.PresentInfo) (driver.SurfaceStatus, error) {
	sc := info.Swapchain.(*Swapchain)
	d.queueMu.Lock()
	res := vk.QueuePresent(d.queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(info.Wait)),
		PWaitSemaphores:    semaphores(info.Wait),
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.handle},
		PImageIndices:      []uint32{info.ImageIndex},
	})
	d.queueMu.Unlock()
	return surfaceStatus(res, "vkQueuePresent")
}

func (d *Device) WaitIdle() error {
	return check(vk.DeviceWaitIdle(d.handle), "vkDeviceWaitIdle")
}
