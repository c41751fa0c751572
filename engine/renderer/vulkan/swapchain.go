package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

type Swapchain struct {
	dev    *Device
	handle vk.Swapchain
	images []driver.Image
}

// CreateSwapchain builds a swapchain for the device surface. A non-nil
// info.Old is handed to the driver for reuse and stays valid until the
// caller destroys it.
func (d *Device) CreateSwapchain(info driver.SwapchainInfo) (driver.Swapchain, error) {
	old := vk.NullSwapchain
	if info.Old != nil {
		old = info.Old.(*Swapchain).handle
	}
	var caps vk.SurfaceCapabilities
	if err := check(vk.GetPhysicalDeviceSurfaceCapabilities(d.gpu, d.surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return nil, err
	}
	caps.Deref()

	sc := &Swapchain{dev: d}
	res := vk.CreateSwapchain(d.handle, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          d.surface,
		MinImageCount:    info.ImageCount,
		ImageFormat:      vk.Format(info.Format.Format),
		ImageColorSpace:  vk.ColorSpace(info.Format.ColorSpace),
		ImageExtent:      vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height},
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      vk.PresentMode(info.PresentMode),
		Clipped:          vk.True,
		OldSwapchain:     old,
	}, nil, &sc.handle)
	if err := check(res, "vkCreateSwapchain"); err != nil {
		return nil, err
	}

	var count uint32
	if err := check(vk.GetSwapchainImages(d.handle, sc.handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		sc.Destroy()
		return nil, err
	}
	handles := make([]vk.Image, count)
	if err := check(vk.GetSwapchainImages(d.handle, sc.handle, &count, handles), "vkGetSwapchainImages"); err != nil {
		sc.Destroy()
		return nil, err
	}
	sc.images = make([]driver.Image, count)
	for i, h := range handles {
		sc.images[i] = &Image{dev: d, handle: h, external: true}
	}
	core.LogDebug("swapchain created: %dx%d, %d images", info.Extent.Width, info.Extent.Height, count)
	return sc, nil
}

func (s *Swapchain) Images() ([]driver.Image, error) {
	return s.images, nil
}

func (s *Swapchain) AcquireNextImage(timeout time.Duration, sem driver.Semaphore) (uint32, driver.SurfaceStatus, error) {
	signal := vk.NullSemaphore
	if sem != nil {
		signal = sem.(*Semaphore).handle
	}
	var index uint32
	res := vk.AcquireNextImage(s.dev.handle, s.handle, uint64(timeout.Nanoseconds()), signal, vk.NullFence, &index)
	status, err := surfaceStatus(res, "vkAcquireNextImage")
	return index, status, err
}

func (s *Swapchain) Destroy() {
	if s.handle != vk.NullSwapchain {
		vk.DestroySwapchain(s.dev.handle, s.handle, nil)
		s.handle = vk.NullSwapchain
		s.images = nil
	}
}
