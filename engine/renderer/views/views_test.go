package views

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/driver/drivertest"
	"github.com/spaghettifunk/vireo/engine/renderer/graph"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
	"github.com/spaghettifunk/vireo/engine/renderer/pipeline"
	"github.com/spaghettifunk/vireo/engine/renderer/swap"
	"github.com/spaghettifunk/vireo/engine/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type bytecode map[string][]byte

func (b bytecode) Bytecode(name string) ([]byte, error) {
	code, ok := b[name]
	if !ok {
		return nil, errors.Wrapf(core.ErrNotFound, "shader %q", name)
	}
	return code, nil
}

type fixture struct {
	dev     *drivertest.Device
	alloc   *memory.Allocator
	shared  *Shared
	shaders *pipeline.ShaderCache
	world   *scene.World
	cube    uint32
	primary *drivertest.CommandBuffer
	frame   *pass.Frame
}

var layout = swap.RenderingLayout{
	ColorFormats: []driver.Format{driver.FormatB8G8R8A8Unorm},
	DepthFormat:  driver.FormatD32Sfloat,
	Samples:      driver.SampleCount1,
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	dev := drivertest.NewDevice()
	alloc, err := memory.New(dev, memory.Config{BlockSize: 1 << 24, BudgetFraction: 1})
	require.NoError(t, err)
	up, err := memory.NewUploader(alloc, time.Second)
	require.NoError(t, err)
	t.Cleanup(up.Destroy)

	shared, err := NewShared(alloc, up, 2)
	require.NoError(t, err)
	code := bytecode{}
	for _, name := range []string{"cull.comp.spv", "shadow.vert.spv", "shadow.frag.spv", "geometry.vert.spv",
		"geometry.frag.spv", "lighting.vert.spv", "lighting.frag.spv", "skybox.vert.spv", "skybox.frag.spv"} {
		code[name] = make([]byte, 16)
	}

	vertices, indices := Cube()
	cube, err := shared.Meshes.Add("cube", vertices, indices)
	require.NoError(t, err)

	pool, err := dev.CreateCommandPool()
	require.NoError(t, err)
	primary, err := pool.Allocate(driver.CommandBufferLevelPrimary, 1)
	require.NoError(t, err)
	secondaries, err := pool.Allocate(driver.CommandBufferLevelSecondary, workers)
	require.NoError(t, err)
	require.NoError(t, primary[0].Begin(driver.BeginInfo{OneTimeSubmit: true}))

	extent := driver.Extent2D{Width: 320, Height: 240}
	images := map[string]*memory.Image{}
	for name, desc := range map[string]memory.ImageDesc{
		pass.Backbuffer: {Format: driver.FormatB8G8R8A8Unorm, Usage: driver.ImageUsageColorAttachment},
		pass.Depth:      {Format: driver.FormatD32Sfloat, Usage: driver.ImageUsageDepthStencilAttachment},
	} {
		desc.Name, desc.Extent = name, extent
		img, err := alloc.AllocateImage(desc)
		require.NoError(t, err)
		images[name] = img
	}

	world := scene.NewWorld()
	return &fixture{
		dev:     dev,
		alloc:   alloc,
		shared:  shared,
		shaders: pipeline.NewShaderCache(dev, code),
		world:   world,
		cube:    cube,
		primary: primary[0].(*drivertest.CommandBuffer),
		frame: &pass.Frame{
			Slot:        1,
			Extent:      extent,
			Cmd:         primary[0],
			Secondaries: secondaries,
			Images:      images,
			Buffers:     shared.Buffers(),
			Scene:       world,
			Camera:      world.Camera,
			Sun:         world.Sun,
		},
	}
}

// bind adds the view targets to the frame, as the renderer does.
func (fx *fixture) bind() {
	for name, img := range fx.shared.Targets {
		fx.frame.Images[name] = img
	}
}

func u32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func TestPrepareWritesDrawList(t *testing.T) {
	fx := newFixture(t, 0)
	_, err := fx.world.Spawn([]uint32{fx.cube}, []uint32{7}, mgl32.Translate3D(1, 2, 3))
	require.NoError(t, err)
	// unknown meshes are skipped
	_, err = fx.world.Spawn([]uint32{99, fx.cube}, []uint32{1, 2}, mgl32.Ident4())
	require.NoError(t, err)

	require.NoError(t, fx.shared.Prepare(fx.frame))
	draws := fx.shared.Draws()
	require.Len(t, draws, 2)
	assert.Equal(t, DrawItem{Entity: 1, Mesh: fx.cube, Material: 7, Instance: 0}, draws[0])
	assert.Equal(t, DrawItem{Entity: 2, Mesh: fx.cube, Material: 2, Instance: 1}, draws[1])

	rows := fx.shared.Instances.Mapped()[fx.shared.instanceStride:]
	assert.Equal(t, uint32(7), u32(rows[64:]))
	assert.Equal(t, uint32(2), u32(rows[InstanceStride+64:]))

	cmds := fx.shared.Indirect.Mapped()[fx.shared.IndirectOffset(1):]
	assert.Equal(t, uint32(36), u32(cmds[0:]))
	assert.Equal(t, uint32(1), u32(cmds[4:]))
	assert.Equal(t, uint32(1), u32(cmds[IndirectStride+16:]))

	uniforms := fx.shared.FrameUniforms.Mapped()[fx.shared.frameStride:]
	assert.Equal(t, uint32(2), u32(uniforms[304:]))
	// slot 0 was left alone
	assert.Equal(t, uint32(0), u32(fx.shared.FrameUniforms.Mapped()[304:]))
}

func TestPrepareCapsDrawList(t *testing.T) {
	fx := newFixture(t, 0)
	meshes := make([]uint32, MaxDraws+10)
	for i := range meshes {
		meshes[i] = fx.cube
	}
	_, err := fx.world.Spawn(meshes, make([]uint32, len(meshes)), mgl32.Ident4())
	require.NoError(t, err)

	require.NoError(t, fx.shared.Prepare(fx.frame))
	assert.Len(t, fx.shared.Draws(), MaxDraws)
}

func TestCullDispatchesAndGuardsIndirect(t *testing.T) {
	fx := newFixture(t, 0)
	for i := 0; i < 100; i++ {
		_, err := fx.world.Spawn([]uint32{fx.cube}, []uint32{0}, mgl32.Ident4())
		require.NoError(t, err)
	}
	require.NoError(t, fx.shared.Prepare(fx.frame))

	v := NewCullView(fx.shared, fx.shaders)
	require.NoError(t, v.OnCreate(layout))
	g := graph.New()
	require.NoError(t, Register(g, v))
	require.NoError(t, g.Execute(fx.frame))

	assert.Equal(t, []string{"BeginLabel", "BindPipeline", "BindDescriptorSets", "PushConstants", "Dispatch",
		"PipelineBarrier", "EndLabel"}, fx.primary.Names())
	assert.Equal(t, [3]uint32{2, 1, 1}, fx.primary.Find("Dispatch")[0].Args)
	b := fx.primary.Find("PipelineBarrier")[0].Args.(driver.Barrier)
	require.Len(t, b.Buffers, 1)
	assert.Equal(t, driver.StageDrawIndirect, b.DstStage)
	assert.Equal(t, driver.AccessIndirectCommandRead, b.Buffers[0].DstAccess)
}

func TestGeometryRecordsAcrossWorkers(t *testing.T) {
	fx := newFixture(t, 3)
	for i := 0; i < 10; i++ {
		_, err := fx.world.Spawn([]uint32{fx.cube}, []uint32{0}, mgl32.Ident4())
		require.NoError(t, err)
	}
	require.NoError(t, fx.shared.Prepare(fx.frame))

	v := NewGeometryView(fx.shared, fx.shaders, 3)
	require.NoError(t, v.OnCreate(layout))
	require.NoError(t, v.OnResize(fx.frame.Extent))
	fx.bind()

	g := graph.New()
	require.NoError(t, Register(g, v))
	require.NoError(t, g.Execute(fx.frame))

	assert.Len(t, fx.primary.Find("ExecuteCommands"), 1)
	assert.Empty(t, fx.primary.Find("DrawIndexed"))
	total := 0
	for _, sec := range fx.frame.Secondaries {
		cb := sec.(*drivertest.CommandBuffer)
		binds := cb.Find("BindDescriptorSets")
		require.Len(t, binds, 1)
		assert.Len(t, binds[0].Args.(drivertest.BindSetsArgs).Sets, 4)
		// one mesh, bound once per worker
		assert.Len(t, cb.Find("BindIndexBuffer"), 1)
		total += len(cb.Find("DrawIndexed"))
	}
	assert.Equal(t, 10, total)

	albedo := fx.shared.Targets[GBufferAlbedo]
	assert.Equal(t, driver.ImageLayoutColorAttachmentOptimal, albedo.Layout)
}

func TestGeometryIndirect(t *testing.T) {
	fx := newFixture(t, 0)
	_, err := fx.world.Spawn([]uint32{fx.cube, fx.cube}, []uint32{0, 0}, mgl32.Ident4())
	require.NoError(t, err)
	require.NoError(t, fx.shared.Prepare(fx.frame))

	v := NewGeometryView(fx.shared, fx.shaders, 1)
	v.UseIndirect = true
	require.NoError(t, v.OnCreate(layout))
	require.NoError(t, v.OnResize(fx.frame.Extent))
	fx.bind()

	g := graph.New()
	require.NoError(t, Register(g, v))
	require.NoError(t, g.Execute(fx.frame))
	assert.Len(t, fx.primary.Find("DrawIndexedIndirect"), 2)
	assert.Empty(t, fx.primary.Find("DrawIndexed"))
}

func TestFullFrame(t *testing.T) {
	fx := newFixture(t, 2)
	_, err := fx.world.Spawn([]uint32{fx.cube}, []uint32{0}, mgl32.Ident4())
	require.NoError(t, err)
	require.NoError(t, fx.shared.Prepare(fx.frame))

	all := []View{
		NewCullView(fx.shared, fx.shaders),
		NewShadowView(fx.shared, fx.shaders),
		NewGeometryView(fx.shared, fx.shaders, 2),
		NewLightingView(fx.shared, fx.shaders, [4]float32{0, 0, 0, 1}),
		NewSkyboxView(fx.shared, fx.shaders),
	}
	for _, v := range all {
		require.NoError(t, v.OnCreate(layout))
	}
	for _, v := range all {
		require.NoError(t, v.OnResize(fx.frame.Extent))
	}
	fx.bind()

	g := graph.New()
	require.NoError(t, Register(g, all...))
	assert.Equal(t, []string{"cull", "shadow", "geometry", "lighting", "skybox"}, g.Passes())
	require.NoError(t, g.Execute(fx.frame))

	assert.Equal(t, driver.ImageLayoutShaderReadOnlyOptimal, fx.shared.Targets[GBufferNormal].Layout)
	assert.Equal(t, driver.ImageLayoutDepthStencilReadOnlyOptimal, fx.shared.Targets[ShadowMap].Layout)
	assert.Len(t, fx.primary.Find("BeginRendering"), 4)
	assert.Len(t, fx.primary.Find("Draw"), 2)

	// rebuilding replaces the pipelines without leaking
	before := fx.dev.Live("Pipeline")
	for _, v := range all {
		require.NoError(t, v.OnCreate(layout))
	}
	assert.Equal(t, before, fx.dev.Live("Pipeline"))

	for _, v := range all {
		v.OnDestroy()
	}
	assert.Zero(t, fx.dev.Live("Pipeline"))
	assert.Zero(t, fx.dev.Live("PipelineLayout"))
	assert.Empty(t, fx.shared.Targets)
}

func TestRecordWithoutPipeline(t *testing.T) {
	fx := newFixture(t, 0)
	v := NewSkyboxView(fx.shared, fx.shaders)
	g := graph.New()
	require.NoError(t, Register(g, v))
	err := g.Execute(fx.frame)
	assert.ErrorIs(t, err, core.ErrInitializationFailed)
}

func TestMaterialTable(t *testing.T) {
	fx := newFixture(t, 0)
	id, err := fx.shared.Materials.Add(Material{BaseColor: mgl32.Vec4{1, 0, 0, 1}, Albedo: 3, Roughness: 0.5})
	require.NoError(t, err)
	row := fx.shared.MaterialBuffer.Mapped()[id*MaterialStride:]
	assert.Equal(t, uint32(3), u32(row[16:]))
	require.NoError(t, fx.shared.Materials.Remove(id))
	again, err := fx.shared.Materials.Add(Material{})
	require.NoError(t, err)
	assert.Equal(t, id, again)
}

func TestSharedDestroyReleasesEverything(t *testing.T) {
	fx := newFixture(t, 0)
	fx.shared.Destroy()
	fx.shared.Destroy()
	assert.Zero(t, fx.dev.Live("Buffer"))
	assert.Zero(t, fx.dev.Live("DescriptorPool"))
	assert.Zero(t, fx.dev.Live("Sampler"))
}

func TestTextureStoreUploadsMipChain(t *testing.T) {
	fx := newFixture(t, 0)
	img := &assets.ImageData{Width: 8, Height: 4, MipLevels: 1, Layers: 1, Format: assets.PixelFormatRGBA8Srgb, Pixels: make([]byte, 8*4*4)}
	require.NoError(t, img.GenerateMips())

	slot, err := fx.shared.Images.Add("checker", img)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.shared.Images.Len())

	last := fx.dev.Submits[len(fx.dev.Submits)-1].CommandBuffers[0].(*drivertest.CommandBuffer)
	copies := last.Find("CopyBufferToImage")
	require.Len(t, copies, 1)

	writes := fx.dev.DescriptorUpdates[len(fx.dev.DescriptorUpdates)-1]
	require.Len(t, writes, 1)
	assert.Equal(t, slot, writes[0].ArrayElement)
	assert.Equal(t, driver.ImageLayoutShaderReadOnlyOptimal, writes[0].Images[0].Layout)

	require.NoError(t, fx.shared.Images.Remove(slot))
	assert.ErrorIs(t, fx.shared.Images.Remove(slot), core.ErrNotFound)
	assert.Zero(t, fx.shared.Images.Len())
}

func TestTextureStoreRejectsBadImage(t *testing.T) {
	fx := newFixture(t, 0)
	_, err := fx.shared.Images.Add("short", &assets.ImageData{Width: 4, Height: 4, MipLevels: 1, Layers: 1, Format: assets.PixelFormatRGBA8, Pixels: make([]byte, 3)})
	assert.Error(t, err)
	_, err = fx.shared.Images.Add("none", &assets.ImageData{Width: 1, Height: 1, MipLevels: 1, Layers: 1, Pixels: make([]byte, 4)})
	assert.ErrorIs(t, err, core.ErrNotSupported)
	assert.Zero(t, fx.shared.Images.Len())
}
