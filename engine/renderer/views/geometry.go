package views

import (
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
)

const (
	AlbedoFormat = driver.FormatR8G8B8A8Unorm
	NormalFormat = driver.FormatR16G16B16A16Sfloat
)

// GeometryView fills the G-buffer. The draw list is split across the
// frame's worker command buffers.
type GeometryView struct {
	base
	// UseIndirect draws from the culled indirect commands instead of issuing
	// direct draws.
	UseIndirect bool
}

func NewGeometryView(shared *Shared, shaders *pipeline.ShaderCache, workers int) *GeometryView {
	ctx := pass.New("geometry").
		AddColor(GBufferAlbedo, driver.LoadOpClear, driver.StoreOpStore, [4]float32{}).
		AddColor(GBufferNormal, driver.LoadOpClear, driver.StoreOpStore, [4]float32{}).
		SetDepth(pass.Depth, driver.LoadOpClear, driver.StoreOpStore, 1).
		SetParallelism(workers)
	return &GeometryView{base: base{
		name:    "geometry",
		shared:  shared,
		shaders: shaders,
		ctx:     ctx,
		files:   []string{"geometry.vert.spv", "geometry.frag.spv"},
	}}
}

func (v *GeometryView) OnCreate(layout swap.RenderingLayout) error {
	return v.graphics(func(b *pipeline.GraphicsBuilder) {
		meshVertexInput(b).
			SetLayouts(v.shared.FrameLayout, v.shared.InstanceLayout, v.shared.MaterialLayout, v.shared.TextureLayout).
			PushConstants(driver.ShaderStageVertex|driver.ShaderStageFragment, 0, 16).
			Attachments(layout.DepthFormat, AlbedoFormat, NormalFormat)
	})
}

// OnResize recreates the G-buffer at the new extent.
func (v *GeometryView) OnResize(extent driver.Extent2D) error {
	usage := driver.ImageUsageColorAttachment | driver.ImageUsageSampled
	if _, err := v.target(GBufferAlbedo, extent, AlbedoFormat, usage); err != nil {
		return err
	}
	_, err := v.target(GBufferNormal, extent, NormalFormat, usage)
	return err
}

func (v *GeometryView) OnDestroy() {
	v.destroyPipeline()
	v.dropTarget(GBufferAlbedo)
	v.dropTarget(GBufferNormal)
}

func (v *GeometryView) Record(f *pass.Frame, ctx *pass.Context) error {
	if err := v.ready(); err != nil {
		return err
	}
	draws := v.shared.Draws()
	sets := v.shared.SceneSets(f.Slot)
	indirect := v.shared.IndirectOffset(f.Slot)
	stages := driver.ShaderStageVertex | driver.ShaderStageFragment

	return ctx.RecordParallel(len(draws), func(_ int, cmd driver.CommandBuffer, r pass.Range) error {
		v.pipe.Bind(cmd)
		v.pipe.BindSets(cmd, SetFrame, sets...)
		if !v.UseIndirect {
			recordDraws(cmd, v.pipe, v.shared, draws[r.Begin:r.End], stages)
			return nil
		}
		var bound *Mesh
		for _, item := range draws[r.Begin:r.End] {
			mesh, ok := v.shared.Meshes.Get(item.Mesh)
			if !ok {
				continue
			}
			if mesh != bound {
				mesh.Bind(cmd)
				bound = mesh
			}
			cmd.DrawIndexedIndirect(v.shared.Indirect.Handle, indirect+uint64(item.Instance)*IndirectStride, 1, IndirectStride)
		}
		return nil
	})
}
