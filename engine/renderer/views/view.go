// Package views holds the passes of the deferred scene renderer and the GPU
// state they share.
package views

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/graph"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
)

// View is one pass of the frame together with the pipelines and targets it
// owns.
type View interface {
	Name() string
	// Context is the pass context template registered with the graph.
	Context() *pass.Context
	// Shaders are the shader files the view's pipelines are built from.
	Shaders() []string
	/**
	 * @brief Builds the pipelines of the view. Calling it again destroys and
	 * rebuilds them, which is how reloaded shaders are picked up.
	 *
	 * @param layout The attachment formats of the presentable images.
	 */
	OnCreate(layout swap.RenderingLayout) error
	/**
	 * @brief Called when the surface was recreated. Views owning screen sized
	 * targets recreate them here.
	 */
	OnResize(extent driver.Extent2D) error
	OnDestroy()
	// Record is the graph callback of the view.
	Record(f *pass.Frame, ctx *pass.Context) error
}

// Register adds the views to g in order, each with its own context.
func Register(g *graph.Graph, views ...View) error {
	for _, v := range views {
		g.AddPass(v.Name(), v.Record)
		if err := g.SetPassContext(v.Name(), v.Context()); err != nil {
			return err
		}
	}
	return nil
}

type base struct {
	name    string
	shared  *Shared
	shaders *pipeline.ShaderCache
	ctx     *pass.Context
	pipe    *pipeline.Pipeline
	files   []string
}

func (b *base) Name() string                              { return b.name }
func (b *base) Context() *pass.Context                    { return b.ctx }
func (b *base) Shaders() []string                         { return b.files }
func (b *base) OnResize(driver.Extent2D) error            { return nil }
func (b *base) Pipeline() *pipeline.Pipeline              { return b.pipe }
func (b *base) device() driver.Device                     { return b.shared.dev }
func (b *base) module(i int) (driver.ShaderModule, error) { return b.shaders.Module(b.files[i]) }

func (b *base) OnDestroy() {
	b.destroyPipeline()
}

func (b *base) ready() error {
	if b.pipe == nil {
		return errors.Wrapf(core.ErrInitializationFailed, "view %q: pipeline not built", b.name)
	}
	return nil
}

func (b *base) destroyPipeline() {
	if b.pipe != nil {
		b.pipe.Destroy()
		b.pipe = nil
	}
}

// target returns the view owned image name, allocating it when missing or
// when its extent changed.
func (b *base) target(name string, extent driver.Extent2D, format driver.Format, usage driver.ImageUsage) (*memory.Image, error) {
	if img, ok := b.shared.Targets[name]; ok {
		if img.Extent == extent {
			return img, nil
		}
		img.Destroy()
		delete(b.shared.Targets, name)
	}
	img, err := b.shared.alloc.AllocateImage(memory.ImageDesc{
		Name:   name,
		Extent: extent,
		Format: format,
		Usage:  usage,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "view %q", b.name)
	}
	b.shared.Targets[name] = img
	return img, nil
}

func (b *base) dropTarget(name string) {
	if img, ok := b.shared.Targets[name]; ok {
		img.Destroy()
		delete(b.shared.Targets, name)
	}
}

// graphics builds a pipeline from a vertex and a fragment shader, the first
// two files of the view.
func (b *base) graphics(configure func(*pipeline.GraphicsBuilder)) error {
	vert, err := b.module(0)
	if err != nil {
		return err
	}
	frag, err := b.module(1)
	if err != nil {
		return err
	}
	builder := pipeline.NewGraphics(b.name).
		Shader(driver.ShaderStageVertex, vert).
		Shader(driver.ShaderStageFragment, frag)
	configure(builder)

	p, err := builder.Build(b.device())
	if err != nil {
		return errors.Wrapf(err, "view %q", b.name)
	}
	b.destroyPipeline()
	b.pipe = p
	return nil
}

// meshVertexInput declares the Vertex layout as binding 0.
func meshVertexInput(builder *pipeline.GraphicsBuilder) *pipeline.GraphicsBuilder {
	return builder.
		VertexBinding(0, VertexSize).
		Attribute(0, 0, driver.FormatR32G32B32Sfloat, 0).
		Attribute(1, 0, driver.FormatR32G32B32Sfloat, 12).
		Attribute(2, 0, driver.FormatR32G32Sfloat, 24)
}
