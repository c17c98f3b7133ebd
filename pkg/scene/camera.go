package scene

import (
	"math"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

// Camera is a pinhole camera. Like a glTF camera node it looks down its
// local -Z axis with +Y up; Transform places it in the world.
type Camera struct {
	Transform   math3d.Mat4 // camera-to-world
	FOV         float64     // Vertical field of view in radians
	AspectRatio float64     // Width / Height; 0 follows the image

	// Derived by Setup
	width, height float64
	origin        math3d.Vec3
	right, up     math3d.Vec3
	forward       math3d.Vec3
}

// NewCamera creates a camera at the origin with a 60 degree field of view.
func NewCamera() *Camera {
	return &Camera{
		Transform: math3d.Identity(),
		FOV:       math.Pi / 3,
	}
}

// LookAt places the camera at eye, facing target.
func (c *Camera) LookAt(eye, target math3d.Vec3) {
	up := math3d.Up()
	if math.Abs(target.Sub(eye).Normalize().Dot(up)) > 0.999 {
		up = math3d.V3(0, 0, -1)
	}
	c.Transform = math3d.LookAt(eye, target, up)
}

// SetFOV sets the vertical field of view (in radians).
func (c *Camera) SetFOV(fov float64) {
	c.FOV = fov
}

// Position returns the camera position in world space.
func (c *Camera) Position() math3d.Vec3 {
	return c.Transform.Translation()
}

// Forward returns the world-space view direction.
func (c *Camera) Forward() math3d.Vec3 {
	return c.Transform.MulVec3Dir(math3d.Forward()).Normalize()
}

// Setup prepares the camera for an image of the given size. It must be
// called before RayFrom; afterwards the camera is read-only.
func (c *Camera) Setup(width, height int) {
	c.width = float64(width)
	c.height = float64(height)

	aspect := c.AspectRatio
	if aspect <= 0 {
		aspect = c.width / c.height
	}
	halfH := math.Tan(c.FOV / 2)

	c.origin = c.Transform.Translation()
	c.forward = c.Forward()
	c.right = c.Transform.MulVec3Dir(math3d.V3(1, 0, 0)).Normalize().Scale(halfH * aspect)
	c.up = c.Transform.MulVec3Dir(math3d.Up()).Normalize().Scale(halfH)
}

// RayFrom returns the primary ray through the continuous pixel coordinate
// (x, y), with (0, 0) the top left corner of the image and (width,
// height) the bottom right.
func (c *Camera) RayFrom(x, y float64) geometry.Ray {
	u := 2*x/c.width - 1
	v := 1 - 2*y/c.height
	dir := c.forward.Add(c.right.Scale(u)).Add(c.up.Scale(v)).Normalize()
	return geometry.NewRay(c.origin, dir)
}

// FrameCamera returns a camera looking at the center of bounds from the
// +Z side, far enough back to fit the whole box in view.
func FrameCamera(bounds geometry.AABB, fov float64) Camera {
	cam := NewCamera()
	cam.SetFOV(fov)
	if bounds.IsEmpty() {
		return *cam
	}

	center := bounds.Center()
	radius := bounds.Size().Len() / 2
	if radius == 0 {
		radius = 1
	}
	dist := radius / math.Sin(fov/2)
	cam.LookAt(center.Add(math3d.V3(0, 0, dist)), center)
	return *cam
}
