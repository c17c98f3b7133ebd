package material

import (
	"math/rand"

	"github.com/taigrr/pathtrace/pkg/math3d"
)

// RandomInUnitSphere rejection-samples a point inside the unit sphere.
func RandomInUnitSphere(rng *rand.Rand) math3d.Vec3 {
	for {
		p := math3d.V3(2*rng.Float64()-1, 2*rng.Float64()-1, 2*rng.Float64()-1)
		if p.LenSq() < 1 {
			return p
		}
	}
}

// RandomUnitVector returns a uniformly distributed direction.
func RandomUnitVector(rng *rand.Rand) math3d.Vec3 {
	for {
		p := RandomInUnitSphere(rng)
		if l := p.LenSq(); l > 1e-12 {
			return p.Normalize()
		}
	}
}

// RandomInHemisphere returns a unit vector on the side of n.
func RandomInHemisphere(rng *rand.Rand, n math3d.Vec3) math3d.Vec3 {
	v := RandomUnitVector(rng)
	if v.Dot(n) < 0 {
		return v.Negate()
	}
	return v
}
