package views

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/renderer/descriptor"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
)

// LightingView resolves the G-buffer and the shadow map into the
// backbuffer with a single fullscreen triangle.
type LightingView struct {
	base
	layout *descriptor.Layout
	pool   *descriptor.Pool
	set    *descriptor.Set
}

func NewLightingView(shared *Shared, shaders *pipeline.ShaderCache, clear [4]float32) *LightingView {
	ctx := pass.New("lighting").
		QueueBarrier(GBufferAlbedo, driver.ImageLayoutShaderReadOnlyOptimal).
		QueueBarrier(GBufferNormal, driver.ImageLayoutShaderReadOnlyOptimal).
		QueueBarrier(ShadowMap, driver.ImageLayoutDepthStencilReadOnlyOptimal).
		AddColor(pass.Backbuffer, driver.LoadOpClear, driver.StoreOpStore, clear)
	return &LightingView{base: base{
		name:    "lighting",
		shared:  shared,
		shaders: shaders,
		ctx:     ctx,
		files:   []string{"lighting.vert.spv", "lighting.frag.spv"},
	}}
}

func (v *LightingView) OnCreate(layout swap.RenderingLayout) error {
	if v.set == nil {
		if err := v.createSet(); err != nil {
			return err
		}
	}
	return v.graphics(func(b *pipeline.GraphicsBuilder) {
		b.SetLayouts(v.shared.FrameLayout, v.layout).
			Cull(driver.CullModeNone, driver.FrontFaceCounterClockwise).
			Depth(false, false, driver.CompareAlways).
			Attachments(driver.FormatUndefined, layout.ColorFormats...)
	})
}

func (v *LightingView) createSet() error {
	var err error
	if v.layout, err = descriptor.NewLayoutBuilder().
		AddBinding(0, driver.DescriptorCombinedImageSampler, driver.ShaderStageFragment, 1).
		AddBinding(1, driver.DescriptorCombinedImageSampler, driver.ShaderStageFragment, 1).
		AddBinding(2, driver.DescriptorCombinedImageSampler, driver.ShaderStageFragment, 1).
		Build(v.device()); err != nil {
		return err
	}
	if v.pool, err = descriptor.NewPoolBuilder().
		AddPoolSize(driver.DescriptorCombinedImageSampler, 3).
		Build(v.device(), 1, 0); err != nil {
		return err
	}
	sets, err := v.pool.Allocate(v.layout)
	if err != nil {
		return err
	}
	v.set = sets[0]
	return nil
}

// OnResize points the inputs at the recreated G-buffer. The geometry view
// must have been resized first.
func (v *LightingView) OnResize(driver.Extent2D) error {
	if v.set == nil {
		return errors.AssertionFailedf("view %q resized before it was created", v.name)
	}
	inputs := []struct {
		name    string
		layout  driver.ImageLayout
		sampler driver.Sampler
	}{
		{GBufferAlbedo, driver.ImageLayoutShaderReadOnlyOptimal, v.shared.Sampler},
		{GBufferNormal, driver.ImageLayoutShaderReadOnlyOptimal, v.shared.Sampler},
		{ShadowMap, driver.ImageLayoutDepthStencilReadOnlyOptimal, v.shared.ShadowSampler},
	}
	for i, in := range inputs {
		img, ok := v.shared.Targets[in.name]
		if !ok {
			return errors.Newf("view %q: input %q does not exist", v.name, in.name)
		}
		if err := v.set.ConfigureImage(uint32(i), 0, driver.DescriptorImageInfo{
			Sampler: in.sampler,
			View:    img.View,
			Layout:  in.layout,
		}); err != nil {
			return err
		}
	}
	v.set.ApplyConfiguration()
	return nil
}

func (v *LightingView) OnDestroy() {
	v.destroyPipeline()
	if v.pool != nil {
		v.pool.Destroy()
		v.pool, v.set = nil, nil
	}
	if v.layout != nil {
		v.layout.Destroy()
		v.layout = nil
	}
}

func (v *LightingView) Record(f *pass.Frame, ctx *pass.Context) error {
	if err := v.ready(); err != nil {
		return err
	}
	cmd := ctx.Cmd()
	v.pipe.Bind(cmd)
	v.pipe.BindSets(cmd, 0, v.shared.FrameSet(f.Slot), v.set)
	cmd.Draw(3, 1, 0, 0)
	return nil
}
