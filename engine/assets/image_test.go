package assets

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPixelFormatRoundTrip(t *testing.T) {
	seen := map[driver.Format]bool{}
	for p := PixelFormatNone; p < pixelFormatCount; p++ {
		f := p.Driver()
		assert.False(t, seen[f], "%s shares driver format %d", p, f)
		seen[f] = true
		assert.Equal(t, p, PixelFormatOf(f), p.String())
	}
	assert.Equal(t, driver.FormatUndefined, PixelFormatNone.Driver())
	assert.Equal(t, driver.FormatUndefined, PixelFormat(99).Driver())
	assert.Equal(t, PixelFormatNone, PixelFormatOf(driver.FormatD32Sfloat))
	assert.Equal(t, "PixelFormat(99)", PixelFormat(99).String())
}

func TestLevelSize(t *testing.T) {
	assert.Equal(t, 64, PixelFormatRGBA8.LevelSize(4, 4))
	assert.Equal(t, 8, PixelFormatBC1.LevelSize(1, 1))
	assert.Equal(t, 32, PixelFormatBC7.LevelSize(5, 4))
	assert.True(t, PixelFormatBC5.Compressed())
	assert.False(t, PixelFormatRGBA16F.Compressed())
}

func TestFullMipCount(t *testing.T) {
	assert.Equal(t, uint32(1), FullMipCount(1, 1))
	assert.Equal(t, uint32(4), FullMipCount(8, 2))
	assert.Equal(t, uint32(11), FullMipCount(1024, 768))
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func TestGenerateMips(t *testing.T) {
	red := color.RGBA{R: 200, A: 255}
	img := NewImageData(solid(8, 4, red), true)
	require.NoError(t, img.GenerateMips())

	assert.Equal(t, uint32(4), img.MipLevels)
	assert.Equal(t, 4*(32+8+2+1), len(img.Pixels))
	require.NoError(t, img.Validate())

	// a flat image filters to itself at every level
	last := img.Pixels[img.LevelOffset(0, 3):]
	assert.Equal(t, []byte{200, 0, 0, 255}, last)

	regions := img.Regions()
	require.Len(t, regions, 4)
	assert.Equal(t, uint64(4*(32+8)), regions[2].BufferOffset)
	assert.Equal(t, driver.Extent2D{Width: 2, Height: 1}, regions[2].Extent)

	assert.Error(t, img.GenerateMips())
}

func TestGenerateMipsLayers(t *testing.T) {
	a := NewImageData(solid(2, 2, color.RGBA{G: 10, A: 255}), false)
	b := NewImageData(solid(2, 2, color.RGBA{B: 90, A: 255}), false)
	img := &ImageData{Width: 2, Height: 2, MipLevels: 1, Layers: 2, Format: PixelFormatRGBA8, Pixels: append(a.Pixels, b.Pixels...)}
	require.NoError(t, img.GenerateMips())

	assert.Equal(t, uint32(2), img.MipLevels)
	assert.Equal(t, []byte{0, 0, 90, 255}, img.Pixels[img.LevelOffset(1, 1):img.LevelOffset(1, 1)+4])
	regions := img.Regions()
	require.Len(t, regions, 4)
	assert.Equal(t, uint32(1), regions[3].BaseLayer)
	assert.Equal(t, uint32(1), regions[3].MipLevel)
}

func TestGenerateMipsUnsupported(t *testing.T) {
	img := &ImageData{Width: 4, Height: 4, MipLevels: 1, Layers: 1, Format: PixelFormatBC1, Pixels: make([]byte, 8)}
	assert.ErrorIs(t, img.GenerateMips(), core.ErrNotSupported)

	img = &ImageData{Width: 4, Height: 4, MipLevels: 1, Layers: 1, Pixels: make([]byte, 64)}
	assert.ErrorIs(t, img.GenerateMips(), core.ErrNotSupported)
}

func TestLoadImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	src := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	src.SetNRGBA(2, 1, color.NRGBA{R: 1, G: 2, B: 3, A: 255})
	require.NoError(t, png.Encode(f, src))
	require.NoError(t, f.Close())

	img, err := LoadImage(path, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), img.Width)
	assert.Equal(t, uint32(2), img.Height)
	assert.Equal(t, PixelFormatRGBA8, img.Format)
	assert.Equal(t, []byte{1, 2, 3, 255}, img.Pixels[len(img.Pixels)-4:])

	_, err = LoadImage(filepath.Join(t.TempDir(), "missing.png"), false)
	assert.ErrorIs(t, err, core.ErrNotFound)
}
