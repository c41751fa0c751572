// Package scene is the renderer's view of the world: a restartable sequence
// of drawable instances plus the camera and light used to render them.
package scene

import (
	"iter"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/core"
)

// Drawable is one renderable instance. Meshes[i] is drawn with Materials[i].
type Drawable struct {
	Entity    uint64
	Meshes    []uint32
	Materials []uint32
	Transform mgl32.Mat4
}

// Source yields the drawables of a frame. Every call to Drawables starts a
// fresh pass over the same instances.
type Source interface {
	Drawables() iter.Seq[Drawable]
}

// DirectionalLight lights the whole scene and casts the shadow map.
type DirectionalLight struct {
	Direction mgl32.Vec3
	Color     mgl32.Vec3
	Intensity float32
}

// ViewProjection returns an orthographic light space matrix covering a
// box of the given half size around the origin.
func (l DirectionalLight) ViewProjection(halfSize float32) mgl32.Mat4 {
	dir := l.Direction.Normalize()
	eye := dir.Mul(-halfSize)
	up := mgl32.Vec3{0, 1, 0}
	if mgl32.Abs(dir.Dot(up)) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, mgl32.Vec3{}, up)
	proj := mgl32.Ortho(-halfSize, halfSize, -halfSize, halfSize, 0, 2*halfSize)
	return clipCorrection.Mul4(proj).Mul4(view)
}

// clipCorrection maps OpenGL clip space (y up, z in [-1, 1]) to the Vulkan
// one (y down, z in [0, 1]).
var clipCorrection = mgl32.Mat4{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 0.5, 0,
	0, 0, 0.5, 1,
}

// World is a simple in-memory Source. It is safe for concurrent use.
type World struct {
	mu       sync.RWMutex
	entities map[uint64]*Drawable
	nextID   uint64

	Camera *Camera
	Sun    DirectionalLight
}

func NewWorld() *World {
	return &World{
		entities: make(map[uint64]*Drawable),
		nextID:   1,
		Camera:   NewCamera(),
		Sun: DirectionalLight{
			Direction: mgl32.Vec3{-0.3, -1, -0.2},
			Color:     mgl32.Vec3{1, 1, 1},
			Intensity: 1,
		},
	}
}

// Spawn adds an instance and returns its entity id.
func (w *World) Spawn(meshes, materials []uint32, transform mgl32.Mat4) (uint64, error) {
	if len(meshes) != len(materials) {
		return 0, errors.Newf("%d meshes but %d materials", len(meshes), len(materials))
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.nextID
	w.nextID++
	w.entities[id] = &Drawable{
		Entity:    id,
		Meshes:    append([]uint32(nil), meshes...),
		Materials: append([]uint32(nil), materials...),
		Transform: transform,
	}
	return id, nil
}

func (w *World) SetTransform(entity uint64, transform mgl32.Mat4) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	d, ok := w.entities[entity]
	if !ok {
		return errors.Wrapf(core.ErrNotFound, "entity %d", entity)
	}
	d.Transform = transform
	return nil
}

func (w *World) Despawn(entity uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.entities, entity)
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

// Drawables yields a snapshot of the instances ordered by entity id.
func (w *World) Drawables() iter.Seq[Drawable] {
	return func(yield func(Drawable) bool) {
		w.mu.RLock()
		snapshot := make([]Drawable, 0, len(w.entities))
		for _, d := range w.entities {
			snapshot = append(snapshot, *d)
		}
		w.mu.RUnlock()
		sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].Entity < snapshot[j].Entity })

		for _, d := range snapshot {
			if !yield(d) {
				return
			}
		}
	}
}
