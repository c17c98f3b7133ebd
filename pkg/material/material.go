// Package material describes how surfaces respond to incoming light.
//
// A Material is a closed tagged union over four kinds. Scatter turns an
// incoming ray and a surface hit into either a continuation ray with an
// attenuation, or a terminal color.
package material

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

// SurfaceBias offsets continuation rays from the surface they leave.
const SurfaceBias = 1e-4

// DefaultIOR is the refractive index used for glass without an explicit one.
const DefaultIOR = 1.5

// Kind selects the scattering model of a Material.
type Kind int

const (
	Diffuse Kind = iota
	Metal
	Glass
	Emissive
)

func (k Kind) String() string {
	switch k {
	case Diffuse:
		return "diffuse"
	case Metal:
		return "metal"
	case Glass:
		return "glass"
	case Emissive:
		return "emissive"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Material is immutable scene data shared by all render workers.
type Material struct {
	Name      string
	Kind      Kind
	Color     Sampler        // base color for Diffuse, Metal and Glass
	Roughness float64        // Metal only, 0 is a perfect mirror
	IOR       float64        // Glass only
	Emission  geometry.Color // Emissive only
}

// NewDiffuse returns a Lambertian-like material.
func NewDiffuse(color Sampler) Material {
	return Material{Kind: Diffuse, Color: color}
}

// NewMetal returns a reflective material. Roughness is clamped to [0, 1].
func NewMetal(color Sampler, roughness float64) Material {
	return Material{Kind: Metal, Color: color, Roughness: math.Max(0, math.Min(1, roughness))}
}

// NewGlass returns a dielectric. A non-positive ior falls back to DefaultIOR.
func NewGlass(color Sampler, ior float64) Material {
	if ior <= 0 {
		ior = DefaultIOR
	}
	return Material{Kind: Glass, Color: color, IOR: ior}
}

// NewEmissive returns a light source that terminates every path reaching it.
func NewEmissive(emission geometry.Color) Material {
	return Material{Kind: Emissive, Emission: emission}
}

// Named returns a copy of m with its name set.
func (m Material) Named(name string) Material {
	m.Name = name
	return m
}

// Scatter computes the material response at hit. When ok is false the path
// ends and attenuation is the color it returns; otherwise the integrator
// continues along scattered and multiplies the result by attenuation.
func (m *Material) Scatter(in geometry.Ray, hit geometry.HitRecord, textures []Texture, rng *rand.Rand) (scattered geometry.Ray, attenuation geometry.Color, ok bool) {
	switch m.Kind {
	case Diffuse:
		dir := RandomUnitVector(rng)
		if dir.Dot(hit.Normal) < 0 {
			dir = dir.Negate()
		}
		return leave(hit, dir), m.Color.Sample(hit.UV, hit.HasUV, textures), true

	case Metal:
		reflected := in.Direction.Normalize().Reflect(hit.Normal)
		dir := reflected.Add(RandomInHemisphere(rng, hit.Normal).Scale(m.Roughness)).Normalize()
		if dir.Dot(hit.Normal) <= 0 {
			return geometry.Ray{}, geometry.Black, false
		}
		return leave(hit, dir), m.Color.Sample(hit.UV, hit.HasUV, textures), true

	case Glass:
		eta := m.IOR
		if hit.FrontFace {
			eta = 1 / m.IOR
		}
		unit := in.Direction.Normalize()
		cosTheta := math.Min(-unit.Dot(hit.Normal), 1)
		sinTheta := math.Sqrt(math.Max(0, 1-cosTheta*cosTheta))

		var dir math3d.Vec3
		if eta*sinTheta > 1 || Reflectance(cosTheta, eta) > rng.Float64() {
			dir = unit.Reflect(hit.Normal)
		} else {
			dir = Refract(unit, hit.Normal, eta)
		}
		return leave(hit, dir), m.Color.Sample(hit.UV, hit.HasUV, textures), true

	case Emissive:
		return geometry.Ray{}, m.Emission, false
	}

	return geometry.Ray{}, geometry.Black, false
}

// leave starts a ray at the hit point, nudged to the side of the surface
// the direction points into.
func leave(hit geometry.HitRecord, dir math3d.Vec3) geometry.Ray {
	offset := hit.Normal.Scale(SurfaceBias)
	if dir.Dot(hit.Normal) < 0 {
		offset = offset.Negate()
	}
	return geometry.NewRay(hit.Point.Add(offset), dir)
}

// Reflectance is Schlick's approximation of the Fresnel reflectance.
func Reflectance(cosine, eta float64) float64 {
	r0 := (1 - eta) / (1 + eta)
	r0 *= r0
	return r0 + (1-r0)*math.Pow(1-cosine, 5)
}

// Refract bends the unit vector uv through a surface with normal n using
// Snell's law, eta being the ratio of refractive indices.
func Refract(uv, n math3d.Vec3, eta float64) math3d.Vec3 {
	cosTheta := math.Min(-uv.Dot(n), 1)
	perp := uv.Add(n.Scale(cosTheta)).Scale(eta)
	parallel := n.Scale(-math.Sqrt(math.Abs(1 - perp.LenSq())))
	return perp.Add(parallel)
}
