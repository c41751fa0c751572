package views

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/math"
	"github.com/spaghettifunk/vireo/engine/renderer/descriptor"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
	"github.com/spaghettifunk/vireo/engine/renderer/pass"
)

const (
	MaxDraws     = 4096
	MaxMaterials = 1024
	MaxTextures  = 1024

	// per draw instance row: model matrix, material, mesh, padding
	InstanceStride = 80
	// indexCount, instanceCount, firstIndex, vertexOffset, firstInstance
	IndirectStride = 20
	MaterialStride = 32
	// view, projection, view-projection and light matrices followed by the
	// camera position, sun direction, sun color and the draw count
	FrameUniformSize = 4*64 + 4*16
)

// Descriptor set numbers of the scene passes.
const (
	SetFrame     = 0
	SetInstances = 1
	SetMaterials = 2
	SetTextures  = 3
)

// Resource names shared between passes.
const (
	IndirectBuffer = "indirect"
	InstanceBuffer = "instances"
	ShadowMap      = "shadow"
	GBufferAlbedo  = "gbuffer.albedo"
	GBufferNormal  = "gbuffer.normal"
)

// DrawItem is one mesh of one scene instance, in draw order.
type DrawItem struct {
	Entity   uint64
	Mesh     uint32
	Material uint32
	// Instance is the row of the item in the instance and indirect buffers.
	Instance uint32
}

// Shared owns the GPU resources every scene pass reads: per slot uniform,
// instance and indirect slices, the material table, the bindless texture
// table and the four descriptor sets the geometry pass binds.
type Shared struct {
	dev   driver.Device
	alloc *memory.Allocator
	slots int

	FrameUniforms  *memory.Buffer
	Instances      *memory.Buffer
	Indirect       *memory.Buffer
	MaterialBuffer *memory.Buffer

	FrameLayout    *descriptor.Layout
	InstanceLayout *descriptor.Layout
	MaterialLayout *descriptor.Layout
	TextureLayout  *descriptor.Layout

	pool         *descriptor.Pool
	bindlessPool *descriptor.Pool
	frameSets    []*descriptor.Set
	instanceSets []*descriptor.Set
	MaterialSet  *descriptor.Set
	Textures     *descriptor.TextureTable

	Sampler       driver.Sampler
	ShadowSampler driver.Sampler

	Meshes    *MeshTable
	Materials *MaterialTable
	Images    *TextureStore

	// Targets are the images owned by views, keyed by resource name.
	Targets map[string]*memory.Image

	frameStride    uint64
	instanceStride uint64
	indirectStride uint64
	draws          []DrawItem
	dropped        bool
}

// NewShared allocates everything up front. On failure nothing is left
// allocated.
func NewShared(alloc *memory.Allocator, up *memory.Uploader, slots int) (_ *Shared, err error) {
	dev := alloc.Device()
	lims := dev.Limits()
	s := &Shared{
		dev:            dev,
		alloc:          alloc,
		slots:          slots,
		Targets:        make(map[string]*memory.Image),
		frameStride:    math.AlignUp(uint64(FrameUniformSize), lims.MinUniformBufferOffsetAlignment),
		instanceStride: math.AlignUp(uint64(MaxDraws*InstanceStride), lims.MinStorageBufferOffsetAlignment),
		indirectStride: math.AlignUp(uint64(MaxDraws*IndirectStride), lims.MinStorageBufferOffsetAlignment),
	}
	defer func() {
		if err != nil {
			s.Destroy()
		}
	}()

	mapped := memory.PersistentlyMapped | memory.HostSequentialWrite
	if s.FrameUniforms, err = alloc.AllocateBuffer("frame.uniforms", uint64(slots)*s.frameStride, driver.BufferUsageUniform, mapped); err != nil {
		return nil, err
	}
	if s.Instances, err = alloc.AllocateBuffer("instances", uint64(slots)*s.instanceStride, driver.BufferUsageStorage, mapped); err != nil {
		return nil, err
	}
	if s.Indirect, err = alloc.AllocateBuffer("indirect", uint64(slots)*s.indirectStride,
		driver.BufferUsageIndirect|driver.BufferUsageStorage, mapped); err != nil {
		return nil, err
	}
	if s.MaterialBuffer, err = alloc.AllocateBuffer("materials", MaxMaterials*MaterialStride, driver.BufferUsageStorage, mapped); err != nil {
		return nil, err
	}

	allStages := driver.ShaderStageAllGraphics | driver.ShaderStageCompute
	if s.FrameLayout, err = descriptor.NewLayoutBuilder().
		AddBinding(0, driver.DescriptorUniformBuffer, allStages, 1).
		Build(dev); err != nil {
		return nil, err
	}
	if s.InstanceLayout, err = descriptor.NewLayoutBuilder().
		AddBinding(0, driver.DescriptorStorageBuffer, allStages, 1).
		AddBinding(1, driver.DescriptorStorageBuffer, driver.ShaderStageCompute, 1).
		Build(dev); err != nil {
		return nil, err
	}
	if s.MaterialLayout, err = descriptor.NewLayoutBuilder().
		AddBinding(0, driver.DescriptorStorageBuffer, driver.ShaderStageFragment, 1).
		Build(dev); err != nil {
		return nil, err
	}
	if s.TextureLayout, err = descriptor.NewLayoutBuilder().
		AddBindlessBinding(0, driver.DescriptorCombinedImageSampler, driver.ShaderStageFragment, MaxTextures).
		Build(dev); err != nil {
		return nil, err
	}

	if s.pool, err = descriptor.NewPoolBuilder().
		AddPoolSize(driver.DescriptorUniformBuffer, uint32(slots)).
		AddPoolSize(driver.DescriptorStorageBuffer, uint32(2*slots+1)).
		Build(dev, uint32(2*slots+1), 0); err != nil {
		return nil, err
	}
	if s.bindlessPool, err = descriptor.NewPoolBuilder().
		AddPoolSize(driver.DescriptorCombinedImageSampler, MaxTextures).
		Build(dev, 1, driver.DescriptorPoolUpdateAfterBind); err != nil {
		return nil, err
	}

	if err = s.allocateSets(); err != nil {
		return nil, err
	}

	if s.Sampler, err = dev.CreateSampler(driver.SamplerInfo{Linear: true, Repeat: true, MaxLOD: 16, Anisotropy: 8}); err != nil {
		return nil, errors.Wrap(err, "creating sampler")
	}
	if s.ShadowSampler, err = dev.CreateSampler(driver.SamplerInfo{Linear: true, Compare: true}); err != nil {
		return nil, errors.Wrap(err, "creating shadow sampler")
	}
	sets, err := s.bindlessPool.Allocate(s.TextureLayout)
	if err != nil {
		return nil, err
	}
	if s.Textures, err = descriptor.NewTextureTable(sets[0], 0, s.Sampler); err != nil {
		return nil, err
	}

	s.Meshes = NewMeshTable(alloc, up)
	s.Images = NewTextureStore(alloc, up, s.Textures)
	s.Materials = &MaterialTable{buf: s.MaterialBuffer, ids: core.NewIDPool(MaxMaterials)}
	return s, nil
}

func (s *Shared) allocateSets() error {
	s.frameSets = make([]*descriptor.Set, s.slots)
	s.instanceSets = make([]*descriptor.Set, s.slots)
	for i := 0; i < s.slots; i++ {
		sets, err := s.pool.Allocate(s.FrameLayout, s.InstanceLayout)
		if err != nil {
			return err
		}
		s.frameSets[i], s.instanceSets[i] = sets[0], sets[1]

		if err := sets[0].ConfigureBuffer(0, 0, driver.DescriptorBufferInfo{
			Buffer: s.FrameUniforms.Handle,
			Offset: uint64(i) * s.frameStride,
			Range:  FrameUniformSize,
		}); err != nil {
			return err
		}
		sets[0].ApplyConfiguration()

		if err := sets[1].ConfigureBuffer(0, 0, driver.DescriptorBufferInfo{
			Buffer: s.Instances.Handle,
			Offset: uint64(i) * s.instanceStride,
			Range:  MaxDraws * InstanceStride,
		}); err != nil {
			return err
		}
		if err := sets[1].ConfigureBuffer(1, 0, driver.DescriptorBufferInfo{
			Buffer: s.Indirect.Handle,
			Offset: uint64(i) * s.indirectStride,
			Range:  MaxDraws * IndirectStride,
		}); err != nil {
			return err
		}
		sets[1].ApplyConfiguration()
	}

	sets, err := s.pool.Allocate(s.MaterialLayout)
	if err != nil {
		return err
	}
	s.MaterialSet = sets[0]
	if err := s.MaterialSet.ConfigureBuffer(0, 0, driver.DescriptorBufferInfo{
		Buffer: s.MaterialBuffer.Handle,
		Range:  MaxMaterials * MaterialStride,
	}); err != nil {
		return err
	}
	s.MaterialSet.ApplyConfiguration()
	return nil
}

func (s *Shared) Slots() int                           { return s.slots }
func (s *Shared) FrameSet(slot int) *descriptor.Set    { return s.frameSets[slot] }
func (s *Shared) InstanceSet(slot int) *descriptor.Set { return s.instanceSets[slot] }

// SceneSets returns the four sets the geometry pass binds, in set order.
func (s *Shared) SceneSets(slot int) []*descriptor.Set {
	return []*descriptor.Set{s.frameSets[slot], s.instanceSets[slot], s.MaterialSet, s.Textures.Set()}
}

// Draws is the draw list written by the last Prepare.
func (s *Shared) Draws() []DrawItem {
	return s.draws
}

// IndirectOffset is the byte offset of the slot's first indirect command.
func (s *Shared) IndirectOffset(slot int) uint64 {
	return uint64(slot) * s.indirectStride
}

// Buffers returns the shared buffers by resource name.
func (s *Shared) Buffers() map[string]*memory.Buffer {
	return map[string]*memory.Buffer{
		IndirectBuffer: s.Indirect,
		InstanceBuffer: s.Instances,
	}
}

// Prepare walks the scene and writes the slot's uniforms, instance rows and
// indirect command templates. The slot's fence must have signaled.
func (s *Shared) Prepare(f *pass.Frame) error {
	s.draws = s.draws[:0]
	rows := make([]byte, 0, 64*InstanceStride)
	cmds := make([]byte, 0, 64*IndirectStride)

	if f.Scene != nil {
	drawables:
		for d := range f.Scene.Drawables() {
			for i, meshID := range d.Meshes {
				mesh, ok := s.Meshes.Get(meshID)
				if !ok {
					core.LogWarn("entity %d references unknown mesh %d", d.Entity, meshID)
					continue
				}
				if len(s.draws) == MaxDraws {
					if !s.dropped {
						core.LogWarn("draw list is full (%d), dropping the rest of the scene", MaxDraws)
						s.dropped = true
					}
					break drawables
				}
				var material uint32
				if i < len(d.Materials) {
					material = d.Materials[i]
				}
				item := DrawItem{Entity: d.Entity, Mesh: meshID, Material: material, Instance: uint32(len(s.draws))}
				s.draws = append(s.draws, item)
				rows = appendInstance(rows, d.Transform, item)
				cmds = appendIndirect(cmds, mesh.IndexCount, item.Instance)
			}
		}
	}

	slot := uint64(f.Slot)
	if len(rows) > 0 {
		if err := s.Instances.Write(slot*s.instanceStride, rows); err != nil {
			return errors.Wrap(err, "writing instance rows")
		}
		if err := s.Indirect.Write(slot*s.indirectStride, cmds); err != nil {
			return errors.Wrap(err, "writing indirect commands")
		}
	}
	if err := s.FrameUniforms.Write(slot*s.frameStride, s.frameUniforms(f)); err != nil {
		return errors.Wrap(err, "writing frame uniforms")
	}
	return nil
}

func appendInstance(b []byte, model mgl32.Mat4, item DrawItem) []byte {
	row := make([]byte, InstanceStride)
	putMat4(row, model)
	putU32(row[64:], item.Material)
	putU32(row[68:], item.Mesh)
	return append(b, row...)
}

func appendIndirect(b []byte, indexCount, instance uint32) []byte {
	cmd := make([]byte, IndirectStride)
	putU32(cmd[0:], indexCount)
	putU32(cmd[4:], 1)
	putU32(cmd[8:], 0)
	putU32(cmd[12:], 0)
	putU32(cmd[16:], instance)
	return append(b, cmd...)
}

func (s *Shared) frameUniforms(f *pass.Frame) []byte {
	b := make([]byte, FrameUniformSize)
	view, proj := mgl32.Ident4(), mgl32.Ident4()
	var eye mgl32.Vec3
	if f.Camera != nil {
		aspect := float32(1)
		if f.Extent.Height > 0 {
			aspect = float32(f.Extent.Width) / float32(f.Extent.Height)
		}
		view, proj = f.Camera.View(), f.Camera.Projection(aspect)
		eye = f.Camera.Position
	}
	putMat4(b[0:], view)
	putMat4(b[64:], proj)
	putMat4(b[128:], proj.Mul4(view))
	putMat4(b[192:], f.Sun.ViewProjection(50))
	putVec4(b[256:], eye.Vec4(1))
	putVec4(b[272:], f.Sun.Direction.Vec4(0))
	putVec4(b[288:], f.Sun.Color.Mul(f.Sun.Intensity).Vec4(1))
	putU32(b[304:], uint32(len(s.draws)))
	return b
}

// Destroy releases everything. The device must be idle.
func (s *Shared) Destroy() {
	for name, img := range s.Targets {
		img.Destroy()
		delete(s.Targets, name)
	}
	if s.Images != nil {
		s.Images.Destroy()
		s.Images = nil
	}
	if s.Meshes != nil {
		s.Meshes.Destroy()
		s.Meshes = nil
	}
	for _, smp := range []*driver.Sampler{&s.Sampler, &s.ShadowSampler} {
		if *smp != nil {
			(*smp).Destroy()
			*smp = nil
		}
	}
	for _, p := range []**descriptor.Pool{&s.pool, &s.bindlessPool} {
		if *p != nil {
			(*p).Destroy()
			*p = nil
		}
	}
	for _, l := range []**descriptor.Layout{&s.FrameLayout, &s.InstanceLayout, &s.MaterialLayout, &s.TextureLayout} {
		if *l != nil {
			(*l).Destroy()
			*l = nil
		}
	}
	for _, b := range []**memory.Buffer{&s.FrameUniforms, &s.Instances, &s.Indirect, &s.MaterialBuffer} {
		if *b != nil {
			(*b).Destroy()
			*b = nil
		}
	}
}

// MaterialTable stores material rows in the shared material buffer.
type MaterialTable struct {
	buf *memory.Buffer
	ids *core.IDPool
}

type Material struct {
	BaseColor mgl32.Vec4
	// Albedo is a slot of the bindless texture table.
	Albedo    uint32
	Roughness float32
	Metallic  float32
}

func (t *MaterialTable) Add(m Material) (uint32, error) {
	id, err := t.ids.Acquire(m)
	if err != nil {
		return 0, errors.Wrap(err, "material table full")
	}
	row := make([]byte, MaterialStride)
	putVec4(row, m.BaseColor)
	putU32(row[16:], m.Albedo)
	putF32(row[20:], m.Roughness)
	putF32(row[24:], m.Metallic)
	if err := t.buf.Write(uint64(id)*MaterialStride, row); err != nil {
		_ = t.ids.Release(id)
		return 0, err
	}
	return id, nil
}

func (t *MaterialTable) Remove(id uint32) error {
	return t.ids.Release(id)
}
