package views

import (
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
)

// SkyboxView draws a procedural sky behind the lit scene. The cube is
// generated in the vertex shader and only passes the depth test where the
// geometry pass left the far plane.
type SkyboxView struct {
	base
}

func NewSkyboxView(shared *Shared, shaders *pipeline.ShaderCache) *SkyboxView {
	ctx := pass.New("skybox").
		AddColor(pass.Backbuffer, driver.LoadOpLoad, driver.StoreOpStore, [4]float32{}).
		SetDepth(pass.Depth, driver.LoadOpLoad, driver.StoreOpStore, 1)
	return &SkyboxView{base{
		name:    "skybox",
		shared:  shared,
		shaders: shaders,
		ctx:     ctx,
		files:   []string{"skybox.vert.spv", "skybox.frag.spv"},
	}}
}

func (v *SkyboxView) OnCreate(layout swap.RenderingLayout) error {
	return v.graphics(func(b *pipeline.GraphicsBuilder) {
		b.SetLayouts(v.shared.FrameLayout).
			PushConstants(driver.ShaderStageVertex, 0, 64).
			Cull(driver.CullModeNone, driver.FrontFaceCounterClockwise).
			Depth(true, false, driver.CompareLessOrEqual).
			Attachments(layout.DepthFormat, layout.ColorFormats...)
	})
}

func (v *SkyboxView) Record(f *pass.Frame, ctx *pass.Context) error {
	if err := v.ready(); err != nil {
		return err
	}
	if f.Camera == nil {
		return nil
	}
	ext := ctx.Extent()
	aspect := float32(1)
	if ext.Height > 0 {
		aspect = float32(ext.Width) / float32(ext.Height)
	}
	// rotation only, the sky never moves with the camera
	view := f.Camera.View().Mat3().Mat4()
	push := make([]byte, 64)
	putMat4(push, f.Camera.Projection(aspect).Mul4(view))

	cmd := ctx.Cmd()
	v.pipe.Bind(cmd)
	v.pipe.BindSets(cmd, SetFrame, v.shared.FrameSet(f.Slot))
	v.pipe.Push(cmd, driver.ShaderStageVertex, 0, push)
	cmd.Draw(36, 1, 0, 0)
	return nil
}
