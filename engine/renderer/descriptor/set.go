package descriptor

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// Set is a descriptor set with a list of staged writes. Staging is not safe
// for concurrent use; callers serialize configuration per set.
type Set struct {
	Handle driver.DescriptorSet
	Layout *Layout

	dev    driver.Device
	writes []driver.DescriptorWrite
}

func (s *Set) binding(index, arrayIndex uint32, n int, image bool) (driver.DescriptorBinding, error) {
	b, ok := s.Layout.Binding(index)
	if !ok {
		return b, errors.Wrapf(core.ErrNotFound, "binding %d is not in the layout", index)
	}
	if b.Type.IsImage() != image {
		return b, errors.Newf("binding %d has descriptor type %d, cannot write %s infos", index, b.Type, map[bool]string{true: "image", false: "buffer"}[image])
	}
	if uint64(arrayIndex)+uint64(n) > uint64(b.Count) {
		return b, errors.Wrapf(core.ErrBufferTooSmall, "binding %d holds %d descriptors, writing [%d, %d)", index, b.Count, arrayIndex, arrayIndex+uint32(n))
	}
	return b, nil
}

// ConfigureBuffer stages a write of len(infos) buffers starting at arrayIndex.
func (s *Set) ConfigureBuffer(index, arrayIndex uint32, infos ...driver.DescriptorBufferInfo) error {
	b, err := s.binding(index, arrayIndex, len(infos), false)
	if err != nil {
		return err
	}
	s.writes = append(s.writes, driver.DescriptorWrite{
		Set:          s.Handle,
		Binding:      index,
		ArrayElement: arrayIndex,
		Type:         b.Type,
		Buffers:      append([]driver.DescriptorBufferInfo(nil), infos...),
	})
	return nil
}

// ConfigureImage stages a write of len(infos) images starting at arrayIndex.
func (s *Set) ConfigureImage(index, arrayIndex uint32, infos ...driver.DescriptorImageInfo) error {
	b, err := s.binding(index, arrayIndex, len(infos), true)
	if err != nil {
		return err
	}
	s.writes = append(s.writes, driver.DescriptorWrite{
		Set:          s.Handle,
		Binding:      index,
		ArrayElement: arrayIndex,
		Type:         b.Type,
		Images:       append([]driver.DescriptorImageInfo(nil), infos...),
	})
	return nil
}

// Pending is the number of staged writes.
func (s *Set) Pending() int {
	return len(s.writes)
}

// ApplyConfiguration flushes every staged write with one update and clears
// the staging list. Without staged writes nothing is issued.
func (s *Set) ApplyConfiguration() {
	if len(s.writes) == 0 {
		return
	}
	s.dev.UpdateDescriptorSets(s.writes)
	s.writes = s.writes[:0]
}
