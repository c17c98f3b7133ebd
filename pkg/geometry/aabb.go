package geometry

import (
	"math"

	"github.com/taigrr/pathtrace/pkg/math3d"
)

// AABB represents an axis-aligned bounding box.
type AABB struct {
	Min math3d.Vec3
	Max math3d.Vec3
}

// NewAABB creates an AABB from min and max points.
func NewAABB(min, max math3d.Vec3) AABB {
	return AABB{Min: min, Max: max}
}

// EmptyAABB returns the inverted box (+Inf, -Inf). It contains nothing and
// is the identity for Grow and GrowBox.
func EmptyAABB() AABB {
	return AABB{
		Min: math3d.Splat3(math.Inf(1)),
		Max: math3d.Splat3(math.Inf(-1)),
	}
}

// IsEmpty reports whether the box has not been grown on some axis.
func (b AABB) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Grow extends the box to contain p.
func (b *AABB) Grow(p math3d.Vec3) {
	b.Min = b.Min.Min(p)
	b.Max = b.Max.Max(p)
}

// GrowBox extends the box to contain o.
func (b *AABB) GrowBox(o AABB) {
	b.Min = b.Min.Min(o.Min)
	b.Max = b.Max.Max(o.Max)
}

// Center returns the center of the AABB.
func (b AABB) Center() math3d.Vec3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// Size returns the dimensions of the AABB.
func (b AABB) Size() math3d.Vec3 {
	return b.Max.Sub(b.Min)
}

// Area returns half the surface area. Only ratios of areas matter to the
// split cost, so the factor of two is dropped. An empty box has zero area.
func (b AABB) Area() float64 {
	if b.IsEmpty() {
		return 0
	}
	e := b.Size()
	return e.X*e.Y + e.Y*e.Z + e.Z*e.X
}

// ContainsPoint returns true if the point is inside the AABB.
func (b AABB) ContainsPoint(p math3d.Vec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// ContainsBox returns true if o lies entirely inside b.
func (b AABB) ContainsBox(o AABB) bool {
	return b.ContainsPoint(o.Min) && b.ContainsPoint(o.Max)
}

// Hit intersects the ray with the box using the slab method and returns
// the entry distance, clamped to zero when the origin is inside. Boxes
// entirely behind the origin, or entered at or beyond tMax, are misses.
//
// Axis-parallel rays carry ±Inf in DirInv. When the origin also lies
// exactly on one of that axis' planes the product is NaN; the origin is
// then inside the closed slab, so the axis is skipped.
func (b AABB) Hit(r Ray, tMax float64) (float64, bool) {
	tmin := math.Inf(-1)
	tmax := math.Inf(1)

	for axis := range 3 {
		o := r.Origin.Axis(axis)
		inv := r.DirInv.Axis(axis)
		t1 := (b.Min.Axis(axis) - o) * inv
		t2 := (b.Max.Axis(axis) - o) * inv
		if math.IsNaN(t1) || math.IsNaN(t2) {
			continue
		}

		tmin = math.Max(tmin, math.Min(t1, t2))
		tmax = math.Min(tmax, math.Max(t1, t2))
	}

	entry := math.Max(tmin, 0)
	if tmax < entry || entry >= tMax {
		return 0, false
	}
	return entry, true
}
