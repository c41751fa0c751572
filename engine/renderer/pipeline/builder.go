package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/descriptor"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
)

// GraphicsBuilder configures a graphics pipeline for dynamic rendering. The
// defaults are filled triangles, back face culling and a less-than depth test
// with writes.
type GraphicsBuilder struct {
	name   string
	info   driver.GraphicsPipelineInfo
	layout layoutConfig
}

func NewGraphics(name string) *GraphicsBuilder {
	return &GraphicsBuilder{
		name: name,
		info: driver.GraphicsPipelineInfo{
			Topology:     driver.TopologyTriangleList,
			PolygonMode:  driver.PolygonModeFill,
			CullMode:     driver.CullModeBack,
			FrontFace:    driver.FrontFaceCounterClockwise,
			DepthTest:    true,
			DepthWrite:   true,
			DepthCompare: driver.CompareLess,
			Samples:      driver.SampleCount1,
		},
	}
}

func (b *GraphicsBuilder) Shader(stage driver.ShaderStage, module driver.ShaderModule) *GraphicsBuilder {
	b.info.Stages = append(b.info.Stages, driver.ShaderStageInfo{Stage: stage, Module: module, Entry: "main"})
	return b
}

func (b *GraphicsBuilder) VertexBinding(binding, stride uint32) *GraphicsBuilder {
	b.info.VertexBindings = append(b.info.VertexBindings, driver.VertexBinding{Binding: binding, Stride: stride})
	return b
}

func (b *GraphicsBuilder) Attribute(location, binding uint32, format driver.Format, offset uint32) *GraphicsBuilder {
	b.info.VertexAttributes = append(b.info.VertexAttributes, driver.VertexAttribute{
		Location: location,
		Binding:  binding,
		Format:   format,
		Offset:   offset,
	})
	return b
}

func (b *GraphicsBuilder) SetLayouts(layouts ...*descriptor.Layout) *GraphicsBuilder {
	b.layout.addSets(layouts)
	return b
}

func (b *GraphicsBuilder) PushConstants(stages driver.ShaderStage, offset, size uint32) *GraphicsBuilder {
	b.layout.pushes = append(b.layout.pushes, driver.PushConstantRange{Stages: stages, Offset: offset, Size: size})
	return b
}

func (b *GraphicsBuilder) Topology(t driver.PrimitiveTopology) *GraphicsBuilder {
	b.info.Topology = t
	return b
}

func (b *GraphicsBuilder) Cull(mode driver.CullMode, front driver.FrontFace) *GraphicsBuilder {
	b.info.CullMode = mode
	b.info.FrontFace = front
	return b
}

func (b *GraphicsBuilder) Wireframe(on bool) *GraphicsBuilder {
	b.info.PolygonMode = driver.PolygonModeFill
	if on {
		b.info.PolygonMode = driver.PolygonModeLine
	}
	return b
}

func (b *GraphicsBuilder) Depth(test, write bool, compare driver.CompareOp) *GraphicsBuilder {
	b.info.DepthTest = test
	b.info.DepthWrite = write
	b.info.DepthCompare = compare
	return b
}

func (b *GraphicsBuilder) DepthBias(on bool) *GraphicsBuilder {
	b.info.DepthBias = on
	return b
}

func (b *GraphicsBuilder) Blend(on bool) *GraphicsBuilder {
	b.info.Blend = on
	return b
}

// Attachments declares the formats of the rendering scope the pipeline is
// used in. They must match the pass context it is bound in.
func (b *GraphicsBuilder) Attachments(depth driver.Format, colors ...driver.Format) *GraphicsBuilder {
	b.info.ColorFormats = append([]driver.Format(nil), colors...)
	b.info.DepthFormat = depth
	return b
}

func (b *GraphicsBuilder) Build(dev driver.Device) (*Pipeline, error) {
	var hasVertex bool
	for _, s := range b.info.Stages {
		if s.Module == nil {
			return nil, errors.Wrapf(core.ErrNotFound, "pipeline %q: shader stage %d has no module", b.name, s.Stage)
		}
		hasVertex = hasVertex || s.Stage == driver.ShaderStageVertex
	}
	if !hasVertex {
		return nil, errors.Newf("pipeline %q: no vertex stage", b.name)
	}
	if len(b.info.ColorFormats) == 0 && b.info.DepthFormat == driver.FormatUndefined {
		return nil, errors.Newf("pipeline %q: no attachment formats", b.name)
	}

	layout, err := b.layout.build(dev, b.name)
	if err != nil {
		return nil, err
	}
	info := b.info
	info.Layout = layout
	handle, err := dev.CreateGraphicsPipeline(info)
	if err != nil {
		layout.Destroy()
		return nil, errors.Wrapf(err, "pipeline %q", b.name)
	}
	core.LogDebug("graphics pipeline %q created", b.name)
	return &Pipeline{Handle: handle, Layout: layout, BindPoint: driver.BindPointGraphics, Name: b.name}, nil
}

type ComputeBuilder struct {
	name   string
	stage  driver.ShaderStageInfo
	layout layoutConfig
}

func NewCompute(name string) *ComputeBuilder {
	return &ComputeBuilder{name: name}
}

func (b *ComputeBuilder) Shader(module driver.ShaderModule) *ComputeBuilder {
	b.stage = driver.ShaderStageInfo{Stage: driver.ShaderStageCompute, Module: module, Entry: "main"}
	return b
}

func (b *ComputeBuilder) SetLayouts(layouts ...*descriptor.Layout) *ComputeBuilder {
	b.layout.addSets(layouts)
	return b
}

func (b *ComputeBuilder) PushConstants(offset, size uint32) *ComputeBuilder {
	b.layout.pushes = append(b.layout.pushes, driver.PushConstantRange{
		Stages: driver.ShaderStageCompute,
		Offset: offset,
		Size:   size,
	})
	return b
}

func (b *ComputeBuilder) Build(dev driver.Device) (*Pipeline, error) {
	if b.stage.Module == nil {
		return nil, errors.Wrapf(core.ErrNotFound, "pipeline %q: no compute shader", b.name)
	}
	layout, err := b.layout.build(dev, b.name)
	if err != nil {
		return nil, err
	}
	handle, err := dev.CreateComputePipeline(driver.ComputePipelineInfo{Layout: layout, Stage: b.stage})
	if err != nil {
		layout.Destroy()
		return nil, errors.Wrapf(err, "pipeline %q", b.name)
	}
	core.LogDebug("compute pipeline %q created", b.name)
	return &Pipeline{Handle: handle, Layout: layout, BindPoint: driver.BindPointCompute, Name: b.name}, nil
}
