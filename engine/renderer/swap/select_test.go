package swap

import (
	"testing"

	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/stretchr/testify/assert"
)

func TestChooseSurfaceFormat(t *testing.T) {
	other := driver.SurfaceFormat{Format: driver.FormatR8G8B8A8Srgb, ColorSpace: driver.ColorSpaceSrgbNonlinear}
	assert.Equal(t, PreferredFormat, ChooseSurfaceFormat([]driver.SurfaceFormat{other, PreferredFormat}))
	assert.Equal(t, other, ChooseSurfaceFormat([]driver.SurfaceFormat{other}))
}

func TestChoosePresentMode(t *testing.T) {
	modes := []driver.PresentMode{driver.PresentModeImmediate, driver.PresentModeMailbox, driver.PresentModeFifo}
	assert.Equal(t, driver.PresentModeMailbox, ChoosePresentMode(modes, true))
	assert.Equal(t, driver.PresentModeFifo, ChoosePresentMode(modes, false))
	assert.Equal(t, driver.PresentModeFifo, ChoosePresentMode([]driver.PresentMode{driver.PresentModeFifo}, true))
}

func TestComputeExtentClamps(t *testing.T) {
	caps := driver.SurfaceCapabilities{
		CurrentExtent:  driver.Extent2D{Width: driver.CurrentExtentUndefined, Height: driver.CurrentExtentUndefined},
		MinImageExtent: driver.Extent2D{Width: 64, Height: 32},
		MaxImageExtent: driver.Extent2D{Width: 2048, Height: 1024},
	}
	for _, req := range []driver.Extent2D{
		{Width: 0, Height: 0},
		{Width: 10, Height: 5000},
		{Width: 800, Height: 600},
		{Width: 100000, Height: 100000},
	} {
		got := ComputeExtent(caps, req.Width, req.Height)
		assert.GreaterOrEqual(t, got.Width, caps.MinImageExtent.Width)
		assert.LessOrEqual(t, got.Width, caps.MaxImageExtent.Width)
		assert.GreaterOrEqual(t, got.Height, caps.MinImageExtent.Height)
		assert.LessOrEqual(t, got.Height, caps.MaxImageExtent.Height)
	}
	assert.Equal(t, driver.Extent2D{Width: 800, Height: 600}, ComputeExtent(caps, 800, 600))
}

func TestComputeExtentUsesCurrentExtent(t *testing.T) {
	caps := driver.SurfaceCapabilities{
		CurrentExtent:  driver.Extent2D{Width: 1920, Height: 1080},
		MinImageExtent: driver.Extent2D{Width: 1, Height: 1},
		MaxImageExtent: driver.Extent2D{Width: 1024, Height: 1024},
	}
	assert.Equal(t, caps.CurrentExtent, ComputeExtent(caps, 800, 600))
}

func TestComputeImageCount(t *testing.T) {
	assert.Equal(t, uint32(3), ComputeImageCount(driver.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 0}))
	assert.Equal(t, uint32(3), ComputeImageCount(driver.SurfaceCapabilities{MinImageCount: 3, MaxImageCount: 3}))
	assert.Equal(t, uint32(3), ComputeImageCount(driver.SurfaceCapabilities{MinImageCount: 2, MaxImageCount: 8}))
	for min := uint32(1); min < 6; min++ {
		for max := uint32(0); max < 8; max++ {
			if max != 0 && max < min {
				continue
			}
			n := ComputeImageCount(driver.SurfaceCapabilities{MinImageCount: min, MaxImageCount: max})
			assert.GreaterOrEqual(t, n, min)
			if max > 0 {
				assert.LessOrEqual(t, n, max)
			}
		}
	}
}
