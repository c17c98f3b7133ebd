// Package geometry holds the value types shared by the acceleration
// structure, the materials and the integrator: rays, boxes, colors and
// triangles.
package geometry

import "github.com/taigrr/pathtrace/pkg/math3d"

// Ray is a half-line with a cached reciprocal direction for the slab test.
type Ray struct {
	Origin    math3d.Vec3
	Direction math3d.Vec3
	DirInv    math3d.Vec3
}

// NewRay creates a ray and precomputes its reciprocal direction.
// The direction is stored as given; callers normalize when they need to.
func NewRay(origin, direction math3d.Vec3) Ray {
	return Ray{
		Origin:    origin,
		Direction: direction,
		DirInv:    direction.Recip(),
	}
}

// At returns the point at parametric distance t along the ray.
func (r Ray) At(t float64) math3d.Vec3 {
	return r.Origin.Add(r.Direction.Scale(t))
}
