package material

import (
	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

// NoTexture marks a constant Sampler.
const NoTexture = -1

// Sampler resolves a base color: either a constant, or a texture lookup
// scaled by Color.
type Sampler struct {
	Texture int // index into the scene texture table, or NoTexture
	Color   geometry.Color
}

// Solid returns a constant sampler.
func Solid(c geometry.Color) Sampler {
	return Sampler{Texture: NoTexture, Color: c}
}

// Textured returns a sampler reading texture index, unscaled.
func Textured(index int) Sampler {
	return Sampler{Texture: index, Color: geometry.White}
}

// IsTexture reports whether the sampler reads a texture.
func (s Sampler) IsTexture() bool {
	return s.Texture != NoTexture
}

// Sample returns the color at uv. Surfaces without texture coordinates
// read the texel at (0, 0). A texture index outside textures yields
// magenta so the broken reference is visible in the image.
func (s Sampler) Sample(uv math3d.Vec2, hasUV bool, textures []Texture) geometry.Color {
	if !s.IsTexture() {
		return s.Color
	}
	if s.Texture < 0 || s.Texture >= len(textures) {
		return geometry.Magenta
	}
	if !hasUV {
		uv = math3d.Vec2{}
	}
	return textures[s.Texture].Sample(uv).Mul(s.Color)
}
