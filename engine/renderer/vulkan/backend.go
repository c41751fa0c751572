package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

// Window is what the backend needs from the platform layer.
type Window interface {
	RequiredInstanceExtensions() []string
	// CreateSurface returns the raw surface handle for instance.
	CreateSurface(instance interface{}) (uintptr, error)
}

// Backend owns the instance, the surface and the single logical device.
type Backend struct {
	instance vk.Instance
	debug    vk.DebugReportCallback
	surface  vk.Surface
	device   *Device
}

// NewBackend brings up the native API on window. With validation the
// Khronos validation layer is enabled when installed and its messages are
// routed to the engine log.
func NewBackend(win Window, appName string, validation bool) (_ *Backend, err error) {
	procAddr := glfw.GetVulkanGetInstanceProcAddress()
	if procAddr == nil {
		return nil, errors.Wrap(core.ErrInitializationFailed, "GetInstanceProcAddress is nil")
	}
	vk.SetGetInstanceProcAddr(procAddr)
	if err := vk.Init(); err != nil {
		return nil, errors.Wrap(core.ErrInitializationFailed, err.Error())
	}

	b := &Backend{}
	defer func() {
		if err != nil {
			b.Destroy()
		}
	}()

	extensions := append([]string{"VK_KHR_surface"}, win.RequiredInstanceExtensions()...)
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
	}
	var layers []string
	if validation {
		if hasLayer(validationLayer) {
			layers = append(layers, validationLayer)
			extensions = append(extensions, vk.ExtDebugReportExtensionName)
		} else {
			core.LogWarn("validation requested but %s is not installed", validationLayer)
		}
	}
	for _, ext := range extensions {
		core.LogDebug("instance extension: %s", ext)
	}

	createInfo := vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(appName),
			PEngineName:        safeString("Vireo"),
		},
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: safeStrings(extensions),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     safeStrings(layers),
	}
	if runtime.GOOS == "darwin" {
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	if err := check(vk.CreateInstance(&createInfo, nil, &b.instance), "vkCreateInstance"); err != nil {
		return nil, err
	}
	if err := vk.InitInstance(b.instance); err != nil {
		return nil, errors.Wrap(core.ErrInitializationFailed, err.Error())
	}
	core.LogInfo("Vulkan instance created.")

	if len(layers) > 0 {
		debugInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugCallback,
		}
		if err := check(vk.CreateDebugReportCallback(b.instance, &debugInfo, nil, &b.debug), "vkCreateDebugReportCallback"); err != nil {
			return nil, err
		}
		core.LogDebug("Vulkan debugger created.")
	}

	surface, err := win.CreateSurface(b.instance)
	if err != nil {
		return nil, errors.Wrap(core.ErrInitializationFailed, err.Error())
	}
	b.surface = vk.SurfaceFromPointer(surface)

	if b.device, err = newDevice(b.instance, b.surface); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) Device() driver.Device {
	return b.device
}

// Destroy releases the device, the surface and the instance. Every object
// created from the device must be gone.
func (b *Backend) Destroy() {
	if b.device != nil {
		b.device.destroy()
		b.device = nil
	}
	if b.surface != vk.NullSurface {
		vk.DestroySurface(b.instance, b.surface, nil)
		b.surface = vk.NullSurface
	}
	if b.debug != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(b.instance, b.debug, nil)
		b.debug = vk.NullDebugReportCallback
	}
	if b.instance != nil {
		vk.DestroyInstance(b.instance, nil)
		b.instance = nil
	}
}

func hasLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func debugCallback(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] code %d: %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
