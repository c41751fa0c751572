package views

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/descriptor"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
)

// TextureStore uploads sampled images and publishes them in the bindless
// texture table. Material Albedo fields hold the slots it returns.
type TextureStore struct {
	mu     sync.Mutex
	alloc  *memory.Allocator
	up     *memory.Uploader
	table  *descriptor.TextureTable
	images map[uint32]*memory.Image
}

func NewTextureStore(alloc *memory.Allocator, up *memory.Uploader, table *descriptor.TextureTable) *TextureStore {
	return &TextureStore{alloc: alloc, up: up, table: table, images: make(map[uint32]*memory.Image)}
}

// Add uploads every level and layer of img and returns its table slot.
func (t *TextureStore) Add(name string, img *assets.ImageData) (uint32, error) {
	if err := img.Validate(); err != nil {
		return 0, errors.Wrapf(err, "texture %q", name)
	}
	image, err := t.alloc.AllocateImage(memory.ImageDesc{
		Name:        name,
		Extent:      driver.Extent2D{Width: img.Width, Height: img.Height},
		Format:      img.Format.Driver(),
		MipLevels:   img.MipLevels,
		ArrayLayers: img.Layers,
		Usage:       driver.ImageUsageSampled | driver.ImageUsageTransferDst,
		Cube:        img.Layers == 6,
	})
	if err != nil {
		return 0, err
	}
	if err := t.up.Image(image, img.Pixels, img.Regions()); err != nil {
		image.Destroy()
		return 0, errors.Wrapf(err, "uploading texture %q", name)
	}
	slots, err := t.table.Register(image.View)
	if err != nil {
		image.Destroy()
		return 0, err
	}

	t.mu.Lock()
	t.images[slots[0]] = image
	t.mu.Unlock()
	core.LogDebug("texture %q uploaded to slot %d (%s, %dx%d, %d levels)",
		name, slots[0], img.Format, img.Width, img.Height, img.MipLevels)
	return slots[0], nil
}

// Remove frees the slot and its image. No frame in flight may still sample
// it.
func (t *TextureStore) Remove(slot uint32) error {
	t.mu.Lock()
	image, ok := t.images[slot]
	delete(t.images, slot)
	t.mu.Unlock()
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "texture slot %d", slot)
	}
	image.Destroy()
	return t.table.Unregister(slot)
}

func (t *TextureStore) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.images)
}

func (t *TextureStore) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for slot, image := range t.images {
		image.Destroy()
		_ = t.table.Unregister(slot)
		delete(t.images, slot)
	}
}
