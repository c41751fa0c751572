// Package pipeline builds the graphics and compute pipelines the passes bind.
package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/descriptor"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// maxPushConstantRanges is the most ranges a layout can hold, since only
// 128 bytes with 4 byte alignment are guaranteed.
const maxPushConstantRanges = 32

/**
 * @brief Holds a pipeline and its layout.
 */
type Pipeline struct {
	/** @brief The internal pipeline handle. */
	Handle driver.Pipeline
	/** @brief The pipeline layout. */
	Layout    driver.PipelineLayout
	BindPoint driver.PipelineBindPoint
	Name      string
}

func (p *Pipeline) Bind(cmd driver.CommandBuffer) {
	cmd.BindPipeline(p.BindPoint, p.Handle)
}

// BindSets binds sets to consecutive set numbers starting at first.
func (p *Pipeline) BindSets(cmd driver.CommandBuffer, first uint32, sets ...*descriptor.Set) {
	handles := make([]driver.DescriptorSet, len(sets))
	for i, s := range sets {
		handles[i] = s.Handle
	}
	cmd.BindDescriptorSets(p.BindPoint, p.Layout, first, handles)
}

func (p *Pipeline) Push(cmd driver.CommandBuffer, stages driver.ShaderStage, offset uint32, data []byte) {
	cmd.PushConstants(p.Layout, stages, offset, data)
}

func (p *Pipeline) Destroy() {
	if p.Handle != nil {
		p.Handle.Destroy()
		p.Handle = nil
	}
	if p.Layout != nil {
		p.Layout.Destroy()
		p.Layout = nil
	}
}

type layoutConfig struct {
	setLayouts []driver.DescriptorSetLayout
	pushes     []driver.PushConstantRange
}

func (l *layoutConfig) addSets(layouts []*descriptor.Layout) {
	for _, sl := range layouts {
		l.setLayouts = append(l.setLayouts, sl.Handle)
	}
}

func (l *layoutConfig) build(dev driver.Device, name string) (driver.PipelineLayout, error) {
	if len(l.pushes) > maxPushConstantRanges {
		return nil, errors.Newf("pipeline %q: cannot have more than %d push constant ranges, got %d",
			name, maxPushConstantRanges, len(l.pushes))
	}
	limit := dev.Limits().MaxPushConstantsSize
	for _, r := range l.pushes {
		if r.Offset%4 != 0 || r.Size%4 != 0 {
			return nil, errors.Newf("pipeline %q: push constant range [%d, +%d) is not 4 byte aligned", name, r.Offset, r.Size)
		}
		if r.Offset+r.Size > limit {
			return nil, errors.Wrapf(core.ErrNotSupported, "pipeline %q: push constants end at %d, device limit is %d",
				name, r.Offset+r.Size, limit)
		}
	}
	layout, err := dev.CreatePipelineLayout(driver.PipelineLayoutInfo{
		SetLayouts:    l.setLayouts,
		PushConstants: l.pushes,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "pipeline %q: creating layout", name)
	}
	return layout, nil
}
