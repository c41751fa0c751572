package views

import (
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
)

const (
	ShadowMapSize   = 2048
	ShadowMapFormat = driver.FormatD32Sfloat
)

// ShadowView renders the depth of every draw from the sun into the shadow
// map.
type ShadowView struct {
	base
}

func NewShadowView(shared *Shared, shaders *pipeline.ShaderCache) *ShadowView {
	return &ShadowView{base{
		name:    "shadow",
		shared:  shared,
		shaders: shaders,
		ctx:     pass.New("shadow").SetDepth(ShadowMap, driver.LoadOpClear, driver.StoreOpStore, 1),
		files:   []string{"shadow.vert.spv", "shadow.frag.spv"},
	}}
}

func (v *ShadowView) OnCreate(swap.RenderingLayout) error {
	if _, err := v.target(ShadowMap, driver.Extent2D{Width: ShadowMapSize, Height: ShadowMapSize}, ShadowMapFormat,
		driver.ImageUsageDepthStencilAttachment|driver.ImageUsageSampled); err != nil {
		return err
	}
	return v.graphics(func(b *pipeline.GraphicsBuilder) {
		meshVertexInput(b).
			SetLayouts(v.shared.FrameLayout, v.shared.InstanceLayout).
			PushConstants(driver.ShaderStageVertex, 0, 16).
			Cull(driver.CullModeFront, driver.FrontFaceCounterClockwise).
			DepthBias(true).
			Attachments(ShadowMapFormat)
	})
}

func (v *ShadowView) OnDestroy() {
	v.destroyPipeline()
	v.dropTarget(ShadowMap)
}

func (v *ShadowView) Record(f *pass.Frame, ctx *pass.Context) error {
	if err := v.ready(); err != nil {
		return err
	}
	draws := v.shared.Draws()
	if len(draws) == 0 {
		return nil
	}
	cmd := ctx.Cmd()
	v.pipe.Bind(cmd)
	v.pipe.BindSets(cmd, SetFrame, v.shared.FrameSet(f.Slot), v.shared.InstanceSet(f.Slot))
	recordDraws(cmd, v.pipe, v.shared, draws, driver.ShaderStageVertex)
	return nil
}

// recordDraws issues one indexed draw per item, rebinding the geometry only
// when the mesh changes. The instance row is passed both as first instance
// and as push constant.
func recordDraws(cmd driver.CommandBuffer, p *pipeline.Pipeline, shared *Shared, draws []DrawItem, stages driver.ShaderStage) {
	var bound *Mesh
	push := make([]byte, 16)
	for _, item := range draws {
		mesh, ok := shared.Meshes.Get(item.Mesh)
		if !ok {
			continue
		}
		if mesh != bound {
			mesh.Bind(cmd)
			bound = mesh
		}
		putU32(push, item.Instance)
		putU32(push[4:], item.Material)
		p.Push(cmd, stages, 0, push)
		cmd.DrawIndexed(mesh.IndexCount, 1, 0, 0, item.Instance)
	}
}
