package descriptor

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// TextureTable hands out slots of a bindless combined image sampler array.
// Shaders index the array with the returned slot.
type TextureTable struct {
	mu      sync.Mutex
	set     *Set
	binding uint32
	sampler driver.Sampler
	slots   *core.IDPool
}

func NewTextureTable(set *Set, binding uint32, sampler driver.Sampler) (*TextureTable, error) {
	b, ok := set.Layout.Binding(binding)
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "texture table binding %d", binding)
	}
	if b.Type != driver.DescriptorCombinedImageSampler {
		return nil, errors.Newf("texture table binding %d must hold combined image samplers", binding)
	}
	return &TextureTable{
		set:     set,
		binding: binding,
		sampler: sampler,
		slots:   core.NewIDPool(b.Count),
	}, nil
}

// Register writes views into free slots with a single descriptor update and
// returns the slots in the same order.
func (t *TextureTable) Register(views ...driver.ImageView) ([]uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]uint32, 0, len(views))
	for _, v := range views {
		id, err := t.slots.Acquire(v)
		if err != nil {
			for _, taken := range ids {
				_ = t.slots.Release(taken)
			}
			return nil, errors.Wrap(err, "texture table full")
		}
		ids = append(ids, id)
	}
	for i, id := range ids {
		err := t.set.ConfigureImage(t.binding, id, driver.DescriptorImageInfo{
			Sampler: t.sampler,
			View:    views[i],
			Layout:  driver.ImageLayoutShaderReadOnlyOptimal,
		})
		if err != nil {
			return nil, err
		}
	}
	t.set.ApplyConfiguration()
	return ids, nil
}

// Unregister frees a slot. The descriptor is left in place; the array is
// partially bound so the stale entry is harmless until reused.
func (t *TextureTable) Unregister(slot uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.slots.Release(slot)
}

func (t *TextureTable) Set() *Set {
	return t.set
}
