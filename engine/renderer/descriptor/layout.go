// Package descriptor builds descriptor set layouts and pools and batches the
// writes into descriptor sets.
package descriptor

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// bindlessFlags let unset array slots stay unset and allow updates while the
// set is bound.
const bindlessFlags = driver.BindingPartiallyBound | driver.BindingUpdateAfterBind | driver.BindingUpdateUnusedWhilePending

type LayoutBuilder struct {
	bindings map[uint32]driver.DescriptorBinding
	bindless bool
}

func NewLayoutBuilder() *LayoutBuilder {
	return &LayoutBuilder{bindings: make(map[uint32]driver.DescriptorBinding)}
}

// AddBinding declares binding index. Declaring the same index twice is a
// programming error and panics.
func (b *LayoutBuilder) AddBinding(index uint32, t driver.DescriptorType, stages driver.ShaderStage, count uint32) *LayoutBuilder {
	return b.add(index, t, stages, count, 0)
}

// AddBindlessBinding declares an array binding that may be partially
// populated and updated after it is bound.
func (b *LayoutBuilder) AddBindlessBinding(index uint32, t driver.DescriptorType, stages driver.ShaderStage, count uint32) *LayoutBuilder {
	b.bindless = true
	return b.add(index, t, stages, count, bindlessFlags)
}

func (b *LayoutBuilder) add(index uint32, t driver.DescriptorType, stages driver.ShaderStage, count uint32, flags driver.BindingFlags) *LayoutBuilder {
	if _, ok := b.bindings[index]; ok {
		panic(errors.AssertionFailedf("descriptor binding %d declared twice", index))
	}
	if count == 0 {
		count = 1
	}
	b.bindings[index] = driver.DescriptorBinding{
		Binding: index,
		Type:    t,
		Count:   count,
		Stages:  stages,
		Flags:   flags,
	}
	return b
}

// Build creates the layout. A layout with any bindless binding is created for
// update-after-bind pools.
func (b *LayoutBuilder) Build(dev driver.Device) (*Layout, error) {
	info := driver.DescriptorSetLayoutInfo{UpdateAfterBindPool: b.bindless}
	for _, binding := range b.bindings {
		info.Bindings = append(info.Bindings, binding)
	}
	sort.Slice(info.Bindings, func(i, j int) bool { return info.Bindings[i].Binding < info.Bindings[j].Binding })

	handle, err := dev.CreateDescriptorSetLayout(info)
	if err != nil {
		return nil, errors.Wrap(err, "creating descriptor set layout")
	}
	bindings := make(map[uint32]driver.DescriptorBinding, len(b.bindings))
	for k, v := range b.bindings {
		bindings[k] = v
	}
	return &Layout{Handle: handle, UpdateAfterBind: b.bindless, bindings: bindings}, nil
}

type Layout struct {
	Handle          driver.DescriptorSetLayout
	UpdateAfterBind bool
	bindings        map[uint32]driver.DescriptorBinding
}

func (l *Layout) Binding(index uint32) (driver.DescriptorBinding, bool) {
	b, ok := l.bindings[index]
	return b, ok
}

func (l *Layout) Destroy() {
	if l.Handle != nil {
		l.Handle.Destroy()
		l.Handle = nil
	}
}
