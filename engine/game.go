package engine

// Game is the application plugged into the engine. Every hook is optional.
type Game struct {
	State        interface{}
	FnInitialize Initialize
	FnUpdate     Update
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Initialize runs once the renderer is up; meshes, textures and materials
// can be created through ctx.
type Initialize func(ctx *Context) error

// Update runs before every rendered frame with the seconds since the last one.
type Update func(ctx *Context, deltaTime float64) error

type OnResize func(width uint32, height uint32) error

type Shutdown func() error
