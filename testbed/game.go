// Package testbed is a small demo scene: a field of spinning textured cubes
// on a floor, lit by the sun.
package testbed

import (
	"image"
	"image/color"
	"math"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/vireo/engine"
	"github.com/spaghettifunk/vireo/engine/assets"
	"github.com/spaghettifunk/vireo/engine/core"
	"github.com/spaghettifunk/vireo/engine/renderer/views"
)

const (
	gridSize    = 8
	spacing     = 3
	checkerSize = 256
	checkerTile = 32
)

type TestGame struct {
	*engine.Game
	// TexturePath is decoded for the cube albedo when set; otherwise a
	// checker pattern is generated.
	TexturePath string
}

type gameState struct {
	cubes   []uint64
	elapsed float64
	width   uint32
	height  uint32
}

func NewTestGame(texturePath string) *TestGame {
	tg := &TestGame{
		Game:        &engine.Game{State: &gameState{}},
		TexturePath: texturePath,
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) Initialize(ctx *engine.Context) error {
	state := g.State.(*gameState)

	albedo, err := g.loadAlbedo()
	if err != nil {
		return err
	}
	if err := albedo.GenerateMips(); err != nil {
		return err
	}
	slot, err := ctx.AddTexture("cube.albedo", albedo)
	if err != nil {
		return err
	}

	vertices, indices := views.Cube()
	cube, err := ctx.AddMesh("cube", vertices, indices)
	if err != nil {
		return err
	}
	textured, err := ctx.AddMaterial(views.Material{BaseColor: mgl32.Vec4{1, 1, 1, 1}, Albedo: slot, Roughness: 0.6})
	if err != nil {
		return err
	}
	floor, err := ctx.AddMaterial(views.Material{BaseColor: mgl32.Vec4{0.35, 0.35, 0.4, 1}, Albedo: slot, Roughness: 0.9})
	if err != nil {
		return err
	}

	half := float32(gridSize-1) * spacing / 2
	for x := 0; x < gridSize; x++ {
		for z := 0; z < gridSize; z++ {
			pos := mgl32.Translate3D(float32(x)*spacing-half, 0, float32(z)*spacing-half)
			id, err := ctx.Spawn([]uint32{cube}, []uint32{textured}, pos)
			if err != nil {
				return err
			}
			state.cubes = append(state.cubes, id)
		}
	}
	ground := mgl32.Translate3D(0, -1.5, 0).Mul4(mgl32.Scale3D(half+spacing, 0.5, half+spacing))
	if _, err := ctx.Spawn([]uint32{cube}, []uint32{floor}, ground); err != nil {
		return err
	}

	cam := ctx.World.Camera
	cam.SetPosition(mgl32.Vec3{0, 8, 28})
	cam.SetEulerRotation(mgl32.Vec3{mgl32.DegToRad(-15), 0, 0})
	core.LogInfo("testbed scene ready: %d entities", ctx.World.Len())
	return nil
}

func (g *TestGame) loadAlbedo() (*assets.ImageData, error) {
	if g.TexturePath == "" {
		return assets.NewImageData(checker(), true), nil
	}
	img, err := assets.LoadImage(g.TexturePath, true)
	if err != nil {
		return nil, errors.Wrap(err, "loading cube texture")
	}
	return img, nil
}

func checker() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, checkerSize, checkerSize))
	light := color.RGBA{R: 230, G: 225, B: 210, A: 255}
	dark := color.RGBA{R: 60, G: 90, B: 120, A: 255}
	for y := 0; y < checkerSize; y++ {
		for x := 0; x < checkerSize; x++ {
			c := dark
			if (x/checkerTile+y/checkerTile)%2 == 0 {
				c = light
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func (g *TestGame) Update(ctx *engine.Context, deltaTime float64) error {
	state := g.State.(*gameState)
	state.elapsed += deltaTime

	half := float32(gridSize-1) * spacing / 2
	for i, id := range state.cubes {
		x := float32(i/gridSize)*spacing - half
		z := float32(i%gridSize)*spacing - half
		angle := float32(state.elapsed) * (0.5 + float32(i%5)*0.1)
		bob := float32(math.Sin(state.elapsed*2+float64(i))) * 0.25
		m := mgl32.Translate3D(x, bob, z).Mul4(mgl32.HomogRotate3DY(angle))
		if err := ctx.World.SetTransform(id, m); err != nil {
			return err
		}
	}

	sunAngle := state.elapsed * 0.1
	ctx.World.Sun.Direction = mgl32.Vec3{float32(math.Cos(sunAngle)), -1, float32(math.Sin(sunAngle))}
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	state := g.State.(*gameState)
	state.width, state.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogDebug("testbed shutting down")
	return nil
}
