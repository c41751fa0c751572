package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// resultTable is the one place native status codes are folded into the
// engine taxonomy. Codes missing from it are Generic.
var resultTable = map[vk.Result]core.Result{
	vk.Success:                   core.ResultOk,
	vk.Suboptimal:                core.ResultOk,
	vk.NotReady:                  core.ResultTimeOut,
	vk.Timeout:                   core.ResultTimeOut,
	vk.Incomplete:                core.ResultBufferTooSmall,
	vk.ErrorOutOfHostMemory:      core.ResultOutOfMemory,
	vk.ErrorOutOfDeviceMemory:    core.ResultOutOfMemory,
	vk.ErrorOutOfPoolMemory:      core.ResultOutOfMemory,
	vk.ErrorFragmentedPool:       core.ResultOutOfMemory,
	vk.ErrorFragmentation:        core.ResultOutOfMemory,
	vk.ErrorTooManyObjects:       core.ResultOutOfMemory,
	vk.ErrorInitializationFailed: core.ResultInitializationFailed,
	vk.ErrorDeviceLost:           core.ResultDeviceLost,
	vk.ErrorSurfaceLost:          core.ResultDeviceLost,
	vk.ErrorMemoryMapFailed:      core.ResultMemoryMapFailed,
	vk.ErrorLayerNotPresent:      core.ResultNotFound,
	vk.ErrorExtensionNotPresent:  core.ResultNotFound,
	vk.ErrorIncompatibleDriver:   core.ResultWrongVersion,
	vk.ErrorFeatureNotPresent:    core.ResultNotSupported,
	vk.ErrorFormatNotSupported:   core.ResultNotSupported,
}

// ResultFromVk translates a native status code.
func ResultFromVk(res vk.Result) core.Result {
	if r, ok := resultTable[res]; ok {
		return r
	}
	return core.ResultGeneric
}

// check turns a failed call into an error carrying its Result and the
// native code name.
func check(res vk.Result, op string) error {
	r := ResultFromVk(res)
	if r == core.ResultOk {
		return nil
	}
	return errors.WithDetailf(core.NewError(r, op), "native result %s", resultString(res))
}

func resultString(res vk.Result) string {
	switch res {
	case vk.Success:
		return "VK_SUCCESS"
	case vk.NotReady:
		return "VK_NOT_READY"
	case vk.Timeout:
		return "VK_TIMEOUT"
	case vk.Incomplete:
		return "VK_INCOMPLETE"
	case vk.Suboptimal:
		return "VK_SUBOPTIMAL_KHR"
	case vk.ErrorOutOfHostMemory:
		return "VK_ERROR_OUT_OF_HOST_MEMORY"
	case vk.ErrorOutOfDeviceMemory:
		return "VK_ERROR_OUT_OF_DEVICE_MEMORY"
	case vk.ErrorInitializationFailed:
		return "VK_ERROR_INITIALIZATION_FAILED"
	case vk.ErrorDeviceLost:
		return "VK_ERROR_DEVICE_LOST"
	case vk.ErrorMemoryMapFailed:
		return "VK_ERROR_MEMORY_MAP_FAILED"
	case vk.ErrorLayerNotPresent:
		return "VK_ERROR_LAYER_NOT_PRESENT"
	case vk.ErrorExtensionNotPresent:
		return "VK_ERROR_EXTENSION_NOT_PRESENT"
	case vk.ErrorFeatureNotPresent:
		return "VK_ERROR_FEATURE_NOT_PRESENT"
	case vk.ErrorIncompatibleDriver:
		return "VK_ERROR_INCOMPATIBLE_DRIVER"
	case vk.ErrorTooManyObjects:
		return "VK_ERROR_TOO_MANY_OBJECTS"
	case vk.ErrorFormatNotSupported:
		return "VK_ERROR_FORMAT_NOT_SUPPORTED"
	case vk.ErrorFragmentedPool:
		return "VK_ERROR_FRAGMENTED_POOL"
	case vk.ErrorSurfaceLost:
		return "VK_ERROR_SURFACE_LOST_KHR"
	case vk.ErrorOutOfDate:
		return "VK_ERROR_OUT_OF_DATE_KHR"
	case vk.ErrorOutOfPoolMemory:
		return "VK_ERROR_OUT_OF_POOL_MEMORY"
	case vk.ErrorFragmentation:
		return "VK_ERROR_FRAGMENTATION"
	}
	return "VK_ERROR_UNKNOWN"
}

// surfaceStatus splits acquire and present results into the state of the
// surface and a real error.
func surfaceStatus(res vk.Result, op string) (driver.SurfaceStatus, error) {
	switch res {
	case vk.Success:
		return driver.SurfaceOptimal, nil
	case vk.Suboptimal:
		return driver.SurfaceSuboptimal, nil
	case vk.ErrorOutOfDate:
		return driver.SurfaceOutOfDate, nil
	}
	return driver.SurfaceOptimal, check(res, op)
}

func safeString(s string) string {
	if len(s) == 0 || s[len(s)-1] != 0 {
		return s + "\x00"
	}
	return s
}

func safeStrings(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = safeString(s)
	}
	return out
}

// cString reads a fixed size, NUL terminated name returned by the driver.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
