package swap

import (
	"github.com/spaghettifunk/vireo/engine/math"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// PreferredFormat is picked whenever the surface offers it.
var PreferredFormat = driver.SurfaceFormat{
	Format:     driver.FormatB8G8R8A8Unorm,
	ColorSpace: driver.ColorSpaceSrgbNonlinear,
}

// ChooseSurfaceFormat returns the preferred format+color space pair if the
// surface advertises it, else the first advertised one.
func ChooseSurfaceFormat(formats []driver.SurfaceFormat) driver.SurfaceFormat {
	for _, f := range formats {
		// Preferred formats
		if f == PreferredFormat {
			return f
		}
	}
	return formats[0]
}

// ChoosePresentMode picks mailbox when allowed and available. FIFO is always
// supported and is the vsync fallback.
func ChoosePresentMode(modes []driver.PresentMode, preferMailbox bool) driver.PresentMode {
	if preferMailbox {
		for _, m := range modes {
			if m == driver.PresentModeMailbox {
				return m
			}
		}
	}
	return driver.PresentModeFifo
}

// ComputeExtent uses the surface's current extent verbatim when it is
// defined, otherwise clamps the requested window size to the allowed range.
func ComputeExtent(caps driver.SurfaceCapabilities, width, height uint32) driver.Extent2D {
	if caps.CurrentExtent.Width != driver.CurrentExtentUndefined {
		return caps.CurrentExtent
	}
	// Clamp to the value allowed by the GPU.
	return driver.Extent2D{
		Width:  math.Clamp(width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: math.Clamp(height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

// ComputeImageCount asks for one image more than the minimum, bounded by the
// maximum when the surface has one.
func ComputeImageCount(caps driver.SurfaceCapabilities) uint32 {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}
