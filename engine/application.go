package engine

import (
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer"
	"github.com/spaghettifunk/vireo/engine/renderer/views"
	"github.com/spaghettifunk/vireo/engine/scene"
)

// Context holds the subsystems a game works with. The engine builds it once
// and passes it to every hook; nothing in it is global.
type Context struct {
	Config   *core.Config
	Events   *core.EventBus
	World    *scene.World
	Shaders  *assets.ShaderLibrary
	Renderer *renderer.Renderer
}

// AddMesh uploads geometry and returns its mesh id.
func (c *Context) AddMesh(name string, vertices []views.Vertex, indices []uint32) (uint32, error) {
	return c.Renderer.Shared().Meshes.Add(name, vertices, indices)
}

// AddTexture uploads an image and returns its bindless slot.
func (c *Context) AddTexture(name string, img *assets.ImageData) (uint32, error) {
	return c.Renderer.Shared().Images.Add(name, img)
}

func (c *Context) AddMaterial(m views.Material) (uint32, error) {
	return c.Renderer.Shared().Materials.Add(m)
}

// Spawn places meshes drawn with the matching materials into the world.
func (c *Context) Spawn(meshes, materials []uint32, transform mgl32.Mat4) (uint64, error) {
	return c.World.Spawn(meshes, materials, transform)
}

// Quit asks the engine to stop after the current frame.
func (c *Context) Quit() {
	c.Events.Fire(core.EventContext{Type: core.EVENT_CODE_APPLICATION_QUIT})
}
