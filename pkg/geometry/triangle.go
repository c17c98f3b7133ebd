package geometry

import (
	"math"

	"github.com/taigrr/pathtrace/pkg/math3d"
)

// Epsilon guards the Möller–Trumbore determinant and the minimum accepted
// hit distance.
const Epsilon = 1e-7

// NoMaterial marks a triangle without a material reference.
const NoMaterial = -1

// Vertex holds the attributes interpolated across a triangle.
type Vertex struct {
	Position math3d.Vec3
	Normal   math3d.Vec3 // not necessarily unit length
	UV       math3d.Vec2
	HasUV    bool
}

// Triangle is a single scene primitive. The centroid is computed once at
// construction and drives the BVH split decisions.
type Triangle struct {
	V        [3]Vertex
	Centroid math3d.Vec3
	Material int // index into the scene material table, or NoMaterial
}

// NewTriangle builds a triangle and its centroid.
func NewTriangle(a, b, c Vertex, material int) Triangle {
	return Triangle{
		V:        [3]Vertex{a, b, c},
		Centroid: a.Position.Add(b.Position).Add(c.Position).Scale(1.0 / 3),
		Material: material,
	}
}

// Bounds returns the box around the three vertex positions.
func (t *Triangle) Bounds() AABB {
	b := EmptyAABB()
	for i := range t.V {
		b.Grow(t.V[i].Position)
	}
	return b
}

// GeometricNormal returns the unnormalized face normal e1 × e2.
func (t *Triangle) GeometricNormal() math3d.Vec3 {
	e1 := t.V[1].Position.Sub(t.V[0].Position)
	e2 := t.V[2].Position.Sub(t.V[0].Position)
	return e1.Cross(e2)
}

// Hit returns the distance along r to the triangle using Möller–Trumbore.
// Parallel rays and degenerate triangles never hit, and neither do hits at
// or behind the origin.
func (t *Triangle) Hit(r Ray) (float64, bool) {
	dist, _, _, ok := t.intersect(r)
	return dist, ok
}

func (t *Triangle) intersect(r Ray) (dist, u, v float64, ok bool) {
	p0 := t.V[0].Position
	e1 := t.V[1].Position.Sub(p0)
	e2 := t.V[2].Position.Sub(p0)

	rayCrossE2 := r.Direction.Cross(e2)
	det := e1.Dot(rayCrossE2)
	if math.Abs(det) < Epsilon {
		return 0, 0, 0, false
	}

	invDet := 1 / det
	s := r.Origin.Sub(p0)
	u = invDet * s.Dot(rayCrossE2)
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}

	sCrossE1 := s.Cross(e1)
	v = invDet * r.Direction.Dot(sCrossE1)
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}

	dist = invDet * e2.Dot(sCrossE1)
	if dist <= Epsilon {
		return 0, 0, 0, false
	}
	return dist, u, v, true
}

// Record builds the hit record for a distance previously returned by Hit.
// The barycentric weights are recomputed at dist to interpolate the
// shading normal and UV. The hit is a front face when the geometric
// normal opposes the ray. The shading normal is first turned to the
// geometric side, then flipped with it on back faces.
func (t *Triangle) Record(r Ray, dist float64) HitRecord {
	p := r.At(dist)
	w0, w1, w2 := t.barycentric(p)

	geo := t.GeometricNormal()
	n := t.V[0].Normal.Scale(w0).
		Add(t.V[1].Normal.Scale(w1)).
		Add(t.V[2].Normal.Scale(w2))
	if n.NearZero() {
		n = geo
	}
	n = n.Normalize()
	if n.Dot(geo) < 0 {
		n = n.Negate()
	}

	rec := HitRecord{
		T:         dist,
		Point:     p,
		Normal:    n,
		FrontFace: r.Direction.Dot(geo) < 0,
		Material:  t.Material,
	}
	if !rec.FrontFace {
		rec.Normal = n.Negate()
	}

	if t.V[0].HasUV && t.V[1].HasUV && t.V[2].HasUV {
		rec.HasUV = true
		rec.UV = t.V[0].UV.Scale(w0).
			Add(t.V[1].UV.Scale(w1)).
			Add(t.V[2].UV.Scale(w2))
	}
	return rec
}

// barycentric returns the weights of p relative to the three vertices.
func (t *Triangle) barycentric(p math3d.Vec3) (w0, w1, w2 float64) {
	p0 := t.V[0].Position
	e1 := t.V[1].Position.Sub(p0)
	e2 := t.V[2].Position.Sub(p0)
	d := p.Sub(p0)

	d11 := e1.Dot(e1)
	d12 := e1.Dot(e2)
	d22 := e2.Dot(e2)
	d31 := d.Dot(e1)
	d32 := d.Dot(e2)

	denom := d11*d22 - d12*d12
	if denom == 0 {
		return 1, 0, 0
	}
	w1 = (d22*d31 - d12*d32) / denom
	w2 = (d11*d32 - d12*d31) / denom
	return 1 - w1 - w2, w1, w2
}

// HitRecord describes the nearest surface interaction along a ray. It is
// consumed by the material scatter step and never stored.
type HitRecord struct {
	T         float64
	Point     math3d.Vec3
	Normal    math3d.Vec3 // unit length, facing the incoming ray
	UV        math3d.Vec2
	HasUV     bool
	FrontFace bool
	Material  int
}
