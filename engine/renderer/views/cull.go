package views

import (
	"github.com/spaghettifunk/vireo/engine/math"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
)

const cullGroupSize = 64

// CullView is a compute pass that tests every draw against the camera
// frustum and zeroes the instance count of the indirect commands that fail.
// It has no attachments.
type CullView struct {
	base
}

func NewCullView(shared *Shared, shaders *pipeline.ShaderCache) *CullView {
	return &CullView{base{
		name:    "cull",
		shared:  shared,
		shaders: shaders,
		ctx:     pass.New("cull"),
		files:   []string{"cull.comp.spv"},
	}}
}

func (v *CullView) OnCreate(swap.RenderingLayout) error {
	comp, err := v.module(0)
	if err != nil {
		return err
	}
	p, err := pipeline.NewCompute(v.name).
		Shader(comp).
		SetLayouts(v.shared.FrameLayout, v.shared.InstanceLayout).
		PushConstants(0, 16).
		Build(v.device())
	if err != nil {
		return err
	}
	v.destroyPipeline()
	v.pipe = p
	return nil
}

func (v *CullView) Record(f *pass.Frame, ctx *pass.Context) error {
	if err := v.ready(); err != nil {
		return err
	}
	count := uint32(len(v.shared.Draws()))
	if count == 0 {
		return nil
	}
	cmd := ctx.Cmd()
	v.pipe.Bind(cmd)
	v.pipe.BindSets(cmd, SetFrame, v.shared.FrameSet(f.Slot), v.shared.InstanceSet(f.Slot))
	push := make([]byte, 16)
	putU32(push, count)
	v.pipe.Push(cmd, driver.ShaderStageCompute, 0, push)
	cmd.Dispatch(math.DivCeil(count, cullGroupSize), 1, 1)

	// the geometry pass consumes the commands as indirect arguments
	ctx.InsertBufferBarrier(v.shared.Indirect,
		driver.StageComputeShader, driver.StageDrawIndirect,
		driver.AccessShaderWrite, driver.AccessIndirectCommandRead)
	return nil
}
