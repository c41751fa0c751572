package views

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/driver"
	"github.com/spaghettifunk/vireo/engine/renderer/memory"
)

type Mesh struct {
	Name       string
	Vertices   *memory.Buffer
	Indices    *memory.Buffer
	IndexCount uint32
}

// Bind binds the vertex and index buffers of the mesh.
func (m *Mesh) Bind(cmd driver.CommandBuffer) {
	cmd.BindVertexBuffers(0, []driver.Buffer{m.Vertices.Handle}, []uint64{0})
	cmd.BindIndexBuffer(m.Indices.Handle, 0, driver.IndexTypeUint32)
}

// MeshTable owns the device local geometry referenced by scene drawables.
// Mesh ids are indices into the table.
type MeshTable struct {
	mu     sync.RWMutex
	alloc  *memory.Allocator
	up     *memory.Uploader
	meshes []*Mesh
}

func NewMeshTable(alloc *memory.Allocator, up *memory.Uploader) *MeshTable {
	return &MeshTable{alloc: alloc, up: up}
}

// Add uploads the geometry and returns the mesh id.
func (t *MeshTable) Add(name string, vertices []Vertex, indices []uint32) (uint32, error) {
	if len(vertices) == 0 || len(indices) == 0 {
		return 0, errors.Newf("mesh %q has no geometry", name)
	}
	vb, err := t.alloc.AllocateBuffer(name+".vertices", uint64(len(vertices)*VertexSize),
		driver.BufferUsageVertex|driver.BufferUsageTransferDst, 0)
	if err != nil {
		return 0, err
	}
	ib, err := t.alloc.AllocateBuffer(name+".indices", uint64(len(indices)*4),
		driver.BufferUsageIndex|driver.BufferUsageTransferDst, 0)
	if err != nil {
		vb.Destroy()
		return 0, err
	}
	if err := t.up.Buffer(vb, 0, encodeVertices(vertices)); err != nil {
		vb.Destroy()
		ib.Destroy()
		return 0, errors.Wrapf(err, "uploading mesh %q", name)
	}
	if err := t.up.Buffer(ib, 0, encodeIndices(indices)); err != nil {
		vb.Destroy()
		ib.Destroy()
		return 0, errors.Wrapf(err, "uploading mesh %q", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.meshes = append(t.meshes, &Mesh{Name: name, Vertices: vb, Indices: ib, IndexCount: uint32(len(indices))})
	core.LogDebug("mesh %q uploaded: %d vertices, %d indices", name, len(vertices), len(indices))
	return uint32(len(t.meshes) - 1), nil
}

func (t *MeshTable) Get(id uint32) (*Mesh, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if int(id) >= len(t.meshes) {
		return nil, false
	}
	return t.meshes[id], true
}

func (t *MeshTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.meshes)
}

func (t *MeshTable) Destroy() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, m := range t.meshes {
		m.Vertices.Destroy()
		m.Indices.Destroy()
	}
	t.meshes = nil
}

// Cube returns a unit cube centered on the origin.
func Cube() ([]Vertex, []uint32) {
	faces := [6]struct{ n, u, v [3]float32 }{
		{[3]float32{0, 0, 1}, [3]float32{1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{0, 0, -1}, [3]float32{-1, 0, 0}, [3]float32{0, 1, 0}},
		{[3]float32{1, 0, 0}, [3]float32{0, 0, -1}, [3]float32{0, 1, 0}},
		{[3]float32{-1, 0, 0}, [3]float32{0, 0, 1}, [3]float32{0, 1, 0}},
		{[3]float32{0, 1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, -1}},
		{[3]float32{0, -1, 0}, [3]float32{1, 0, 0}, [3]float32{0, 0, 1}},
	}
	var vertices []Vertex
	var indices []uint32
	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range faces {
		base := uint32(len(vertices))
		for _, c := range corners {
			var v Vertex
			for k := 0; k < 3; k++ {
				v.Position[k] = 0.5 * (f.n[k] + c[0]*f.u[k] + c[1]*f.v[k])
			}
			v.Normal = f.n
			v.UV = [2]float32{(c[0] + 1) / 2, (c[1] + 1) / 2}
			vertices = append(vertices, v)
		}
		indices = append(indices, base, base+1, base+2, base+2, base+3, base)
	}
	return vertices, indices
}
