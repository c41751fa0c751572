package assets

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// PixelFormat is the engine side name of a texel layout. Every value maps to
// exactly one driver format and back.
type PixelFormat int

const (
	PixelFormatNone PixelFormat = iota
	PixelFormatR8
	PixelFormatRG8
	PixelFormatRGBA8
	PixelFormatRGBA8Srgb
	PixelFormatBGRA8
	PixelFormatBGRA8Srgb
	PixelFormatRGBA16F
	PixelFormatR32F
	PixelFormatRG32F
	PixelFormatRGB32F
	PixelFormatRGBA32F
	PixelFormatBC1
	PixelFormatBC3
	PixelFormatBC5
	PixelFormatBC7
	pixelFormatCount
)

type formatInfo struct {
	name   string
	format driver.Format
	// bytes per texel, or per 4x4 block when compressed
	size       int
	compressed bool
}

var pixelFormats = [pixelFormatCount]formatInfo{
	PixelFormatNone:      {"none", driver.FormatUndefined, 0, false},
	PixelFormatR8:        {"r8", driver.FormatR8Unorm, 1, false},
	PixelFormatRG8:       {"rg8", driver.FormatR8G8Unorm, 2, false},
	PixelFormatRGBA8:     {"rgba8", driver.FormatR8G8B8A8Unorm, 4, false},
	PixelFormatRGBA8Srgb: {"rgba8_srgb", driver.FormatR8G8B8A8Srgb, 4, false},
	PixelFormatBGRA8:     {"bgra8", driver.FormatB8G8R8A8Unorm, 4, false},
	PixelFormatBGRA8Srgb: {"bgra8_srgb", driver.FormatB8G8R8A8Srgb, 4, false},
	PixelFormatRGBA16F:   {"rgba16f", driver.FormatR16G16B16A16Sfloat, 8, false},
	PixelFormatR32F:      {"r32f", driver.FormatR32Sfloat, 4, false},
	PixelFormatRG32F:     {"rg32f", driver.FormatR32G32Sfloat, 8, false},
	PixelFormatRGB32F:    {"rgb32f", driver.FormatR32G32B32Sfloat, 12, false},
	PixelFormatRGBA32F:   {"rgba32f", driver.FormatR32G32B32A32Sfloat, 16, false},
	PixelFormatBC1:       {"bc1", driver.FormatBC1RGBAUnorm, 8, true},
	PixelFormatBC3:       {"bc3", driver.FormatBC3Unorm, 16, true},
	PixelFormatBC5:       {"bc5", driver.FormatBC5Unorm, 16, true},
	PixelFormatBC7:       {"bc7", driver.FormatBC7Unorm, 16, true},
}

var driverFormats = func() map[driver.Format]PixelFormat {
	m := make(map[driver.Format]PixelFormat, pixelFormatCount)
	for p, info := range pixelFormats {
		m[info.format] = PixelFormat(p)
	}
	return m
}()

func (p PixelFormat) valid() bool {
	return p >= 0 && p < pixelFormatCount
}

func (p PixelFormat) String() string {
	if !p.valid() {
		return fmt.Sprintf("PixelFormat(%d)", int(p))
	}
	return pixelFormats[p].name
}

// Driver returns the matching driver format, FormatUndefined for None or an
// unknown value.
func (p PixelFormat) Driver() driver.Format {
	if !p.valid() {
		return driver.FormatUndefined
	}
	return pixelFormats[p].format
}

// PixelFormatOf is the inverse of Driver. Formats textures cannot use, such
// as depth formats, map to PixelFormatNone.
func PixelFormatOf(f driver.Format) PixelFormat {
	return driverFormats[f]
}

func (p PixelFormat) Compressed() bool {
	return p.valid() && pixelFormats[p].compressed
}

// LevelSize is the byte size of one w x h image in this format.
func (p PixelFormat) LevelSize(w, h uint32) int {
	if !p.valid() {
		return 0
	}
	info := pixelFormats[p]
	if info.compressed {
		return int((w+3)/4) * int((h+3)/4) * info.size
	}
	return int(w) * int(h) * info.size
}

// ImageData is decoded texel data ready for upload. Pixels holds every mip
// level of layer 0 from largest to smallest, then layer 1 and so on.
type ImageData struct {
	Width     uint32
	Height    uint32
	MipLevels uint32
	Layers    uint32
	Format    PixelFormat
	Pixels    []byte
}

// LoadImage decodes a PNG, JPEG, BMP or TIFF file into a single level RGBA8
// image. Color data is tagged sRGB when srgb is set.
func LoadImage(path string, srgb bool) (*ImageData, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(core.ErrNotFound, "image %q", path)
		}
		return nil, errors.Wrapf(err, "opening image %q", path)
	}
	defer f.Close()

	src, kind, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding image %q", path)
	}
	img := NewImageData(src, srgb)
	core.LogDebug("image %s decoded (%s, %dx%d)", path, kind, img.Width, img.Height)
	return img, nil
}

// NewImageData converts any image to tightly packed RGBA8.
func NewImageData(src image.Image, srgb bool) *ImageData {
	b := src.Bounds()
	rgba, ok := src.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	}
	format := PixelFormatRGBA8
	if srgb {
		format = PixelFormatRGBA8Srgb
	}
	return &ImageData{
		Width:     uint32(b.Dx()),
		Height:    uint32(b.Dy()),
		MipLevels: 1,
		Layers:    1,
		Format:    format,
		Pixels:    rgba.Pix,
	}
}

// LevelExtent is the size of the given mip level.
func (d *ImageData) LevelExtent(level uint32) (uint32, uint32) {
	return max(d.Width>>level, 1), max(d.Height>>level, 1)
}

func (d *ImageData) layerSize() int {
	size := 0
	for level := uint32(0); level < d.MipLevels; level++ {
		w, h := d.LevelExtent(level)
		size += d.Format.LevelSize(w, h)
	}
	return size
}

// LevelOffset is the byte offset of a level of a layer inside Pixels.
func (d *ImageData) LevelOffset(layer, level uint32) int {
	off := int(layer) * d.layerSize()
	for l := uint32(0); l < level; l++ {
		w, h := d.LevelExtent(l)
		off += d.Format.LevelSize(w, h)
	}
	return off
}

// Validate checks that Pixels holds exactly the levels and layers declared.
func (d *ImageData) Validate() error {
	if d.Format == PixelFormatNone || !d.Format.valid() {
		return errors.Wrapf(core.ErrNotSupported, "image format %s", d.Format)
	}
	if d.Width == 0 || d.Height == 0 || d.MipLevels == 0 || d.Layers == 0 {
		return errors.Newf("image has an empty extent %dx%d (%d levels, %d layers)", d.Width, d.Height, d.MipLevels, d.Layers)
	}
	if full := FullMipCount(d.Width, d.Height); d.MipLevels > full {
		return errors.Newf("%d mip levels requested, %dx%d allows %d", d.MipLevels, d.Width, d.Height, full)
	}
	if want := int(d.Layers) * d.layerSize(); len(d.Pixels) != want {
		return errors.Newf("image holds %d bytes, want %d", len(d.Pixels), want)
	}
	return nil
}

// Regions describes one buffer to image copy per level and layer, offsets
// relative to the start of Pixels.
func (d *ImageData) Regions() []driver.BufferImageCopy {
	regions := make([]driver.BufferImageCopy, 0, d.MipLevels*d.Layers)
	for layer := uint32(0); layer < d.Layers; layer++ {
		for level := uint32(0); level < d.MipLevels; level++ {
			w, h := d.LevelExtent(level)
			regions = append(regions, driver.BufferImageCopy{
				BufferOffset: uint64(d.LevelOffset(layer, level)),
				Aspect:       driver.AspectColor,
				MipLevel:     level,
				BaseLayer:    layer,
				LayerCount:   1,
				Extent:       driver.Extent2D{Width: w, Height: h},
			})
		}
	}
	return regions
}

// FullMipCount is the number of levels down to 1x1.
func FullMipCount(w, h uint32) uint32 {
	levels := uint32(1)
	for s := max(w, h); s > 1; s >>= 1 {
		levels++
	}
	return levels
}

// GenerateMips replaces a single level image with its full mip chain,
// filtering each level bilinearly from the one above. Only 8 bit four
// channel formats can be filtered on the CPU.
func (d *ImageData) GenerateMips() error {
	if err := d.Validate(); err != nil {
		return err
	}
	switch d.Format {
	case PixelFormatRGBA8, PixelFormatRGBA8Srgb, PixelFormatBGRA8, PixelFormatBGRA8Srgb:
	default:
		return errors.Wrapf(core.ErrNotSupported, "mip generation for %s", d.Format)
	}
	if d.MipLevels != 1 {
		return errors.Newf("image already has %d mip levels", d.MipLevels)
	}

	levels := FullMipCount(d.Width, d.Height)
	chain := *d
	chain.MipLevels = levels
	chain.Pixels = make([]byte, 0, int(d.Layers)*chain.layerSize())

	base := d.Format.LevelSize(d.Width, d.Height)
	for layer := uint32(0); layer < d.Layers; layer++ {
		src := &image.RGBA{
			Pix:    d.Pixels[int(layer)*base : int(layer+1)*base],
			Stride: int(d.Width) * 4,
			Rect:   image.Rect(0, 0, int(d.Width), int(d.Height)),
		}
		chain.Pixels = append(chain.Pixels, src.Pix...)
		for level := uint32(1); level < levels; level++ {
			w, h := d.LevelExtent(level)
			dst := image.NewRGBA(image.Rect(0, 0, int(w), int(h)))
			draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
			chain.Pixels = append(chain.Pixels, dst.Pix...)
			src = dst
		}
	}
	*d = chain
	return nil
}
