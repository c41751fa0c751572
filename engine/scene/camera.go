package scene

import (
	"github.com/go-gl/mathgl/mgl32"
)

/**
 * @brief Represents a camera that can be used for
 * a variety of things, especially rendering.
 */
type Camera struct {
	/**
	 * @brief The position of this camera.
	 * NOTE: Do not set this directly, use SetPosition() instead
	 * so the view matrix is recalculated when needed.
	 */
	Position mgl32.Vec3
	/**
	 * @brief The rotation of this camera using Euler angles (pitch, yaw, roll).
	 * NOTE: Do not set this directly, use SetEulerRotation() instead
	 * so the view matrix is recalculated when needed.
	 */
	EulerRotation mgl32.Vec3
	/** @brief Vertical field of view in radians. */
	FOV       float32
	Near, Far float32

	isDirty    bool
	viewMatrix mgl32.Mat4
}

func NewCamera() *Camera {
	camera := &Camera{}
	camera.Reset()
	return camera
}

func (c *Camera) Reset() {
	c.EulerRotation = mgl32.Vec3{}
	c.Position = mgl32.Vec3{}
	c.FOV = mgl32.DegToRad(45)
	c.Near, c.Far = 0.1, 1000
	c.isDirty = false
	c.viewMatrix = mgl32.Ident4()
}

func (c *Camera) SetPosition(position mgl32.Vec3) {
	c.Position = position
	c.isDirty = true
}

func (c *Camera) SetEulerRotation(rotation mgl32.Vec3) {
	c.EulerRotation = rotation
	c.isDirty = true
}

func (c *Camera) View() mgl32.Mat4 {
	if c.isDirty {
		rotation := mgl32.AnglesToQuat(c.EulerRotation.X(), c.EulerRotation.Y(), c.EulerRotation.Z(), mgl32.XYZ).Mat4()
		translation := mgl32.Translate3D(c.Position.X(), c.Position.Y(), c.Position.Z())

		c.viewMatrix = translation.Mul4(rotation).Inv()
		c.isDirty = false
	}
	return c.viewMatrix
}

// Projection is a perspective projection for the given aspect ratio in the
// native clip space: Y down, depth from 0 at the near plane to 1.
func (c *Camera) Projection(aspect float32) mgl32.Mat4 {
	return clipCorrection.Mul4(mgl32.Perspective(c.FOV, aspect, c.Near, c.Far))
}

func (c *Camera) Forward() mgl32.Vec3 {
	v := c.View()
	return mgl32.Vec3{-v[2], -v[6], -v[10]}.Normalize()
}

func (c *Camera) Right() mgl32.Vec3 {
	v := c.View()
	return mgl32.Vec3{v[0], v[4], v[8]}.Normalize()
}

func (c *Camera) MoveForward(amount float32) {
	c.Position = c.Position.Add(c.Forward().Mul(amount))
	c.isDirty = true
}

func (c *Camera) MoveRight(amount float32) {
	c.Position = c.Position.Add(c.Right().Mul(amount))
	c.isDirty = true
}

func (c *Camera) Yaw(amount float32) {
	c.EulerRotation[1] += amount
	c.isDirty = true
}

func (c *Camera) Pitch(amount float32) {
	c.EulerRotation[0] += amount

	// Clamp to avoid Gimball lock.
	limit := mgl32.DegToRad(89)
	c.EulerRotation[0] = mgl32.Clamp(c.EulerRotation[0], -limit, limit)
	c.isDirty = true
}
