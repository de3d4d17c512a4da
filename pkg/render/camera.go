package render

import (
	"math"

	"github.com/taigrr/diorama/pkg/math3d"
)

// Camera is a perspective camera. It looks down its local -Z axis with +Y up.
//
// Changes to FOV, Aspect, Near or Far take effect after
// UpdateProjectionMatrix; the transform is read live from the node.
type Camera struct {
	Node

	FOV    float64 // vertical field of view in degrees
	Aspect float64 // width / height
	Near   float64
	Far    float64

	proj math3d.Mat4
}

// NewPerspectiveCamera creates a camera at the origin.
func NewPerspectiveCamera(fov, aspect, near, far float64) *Camera {
	c := &Camera{FOV: fov, Aspect: aspect, Near: near, Far: far}
	c.Init(c)
	c.UpdateProjectionMatrix()
	return c
}

// UpdateProjectionMatrix recomputes the projection from the lens fields.
func (c *Camera) UpdateProjectionMatrix() {
	aspect := c.Aspect
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = 1
	}
	c.proj = math3d.Perspective(c.FOV*math.Pi/180, aspect, c.Near, c.Far)
}

// SetAspect changes the aspect ratio and updates the projection.
func (c *Camera) SetAspect(aspect float64) {
	c.Aspect = aspect
	c.UpdateProjectionMatrix()
}

// ProjectionMatrix returns the projection computed by the last
// UpdateProjectionMatrix call.
func (c *Camera) ProjectionMatrix() math3d.Mat4 {
	return c.proj
}

// ViewMatrix returns the world-to-camera transform.
func (c *Camera) ViewMatrix() math3d.Mat4 {
	return c.WorldMatrix().Inverse()
}

// ViewProjectionMatrix returns projection × view.
func (c *Camera) ViewProjectionMatrix() math3d.Mat4 {
	return c.proj.Mul(c.ViewMatrix())
}

// LookAt rotates the camera so that it faces target. When target is straight
// above or below, screen up becomes -Z.
func (c *Camera) LookAt(target math3d.Vec3) {
	eye := c.WorldPosition()
	if target.Sub(eye).LenSq() == 0 {
		return
	}
	up := math3d.Up()
	if target.Sub(eye).Normalize().Cross(up).LenSq() < 1e-12 {
		up = math3d.V3(0, 0, -1)
	}
	view := math3d.LookAt(eye, target, up)
	c.Rotation = math3d.QuatFromMat4(view.Inverse())
}

// Forward returns the world-space viewing direction.
func (c *Camera) Forward() math3d.Vec3 {
	return c.WorldMatrix().MulVec3Dir(math3d.V3(0, 0, -1)).Normalize()
}

// Project maps a world point to normalized device coordinates.
func (c *Camera) Project(world math3d.Vec3) math3d.Vec3 {
	return c.ViewProjectionMatrix().MulVec3(world)
}

// Unproject maps normalized device coordinates back to world space.
func (c *Camera) Unproject(ndc math3d.Vec3) math3d.Vec3 {
	return c.ViewProjectionMatrix().Inverse().MulVec3(ndc)
}

// WorldToScreen projects a world point into a width × height viewport with
// the origin at the top left. visible is false behind the camera or outside
// the frustum.
func (c *Camera) WorldToScreen(worldPos math3d.Vec3, width, height int) (x, y, depth float64, visible bool) {
	clip := c.ViewProjectionMatrix().MulVec4(math3d.V4FromV3(worldPos, 1))
	if clip.W <= 0 {
		return 0, 0, 0, false
	}
	ndc := clip.PerspectiveDivide()
	if ndc.X < -1 || ndc.X > 1 || ndc.Y < -1 || ndc.Y > 1 || ndc.Z < -1 || ndc.Z > 1 {
		return 0, 0, 0, false
	}
	x = (ndc.X + 1) * 0.5 * float64(width)
	y = (1 - ndc.Y) * 0.5 * float64(height)
	return x, y, ndc.Z, true
}

// Frustum returns the camera's view frustum in world space.
func (c *Camera) Frustum() Frustum {
	return NewFrustumFromMatrix(c.ViewProjectionMatrix())
}
