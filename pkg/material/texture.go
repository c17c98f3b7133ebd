package material

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"math"
	"os"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

// WrapMode determines how texture coordinates outside [0,1] are handled.
type WrapMode int

const (
	WrapRepeat WrapMode = iota // Tile the texture
	WrapClamp                  // Clamp to edge
	WrapMirror                 // Tile, mirroring every other copy
)

// Texture is a linear-space image sampled with nearest-texel lookup.
// Row 0 is the top of the image and v grows downwards, matching glTF.
type Texture struct {
	Width  int
	Height int
	Pixels []geometry.Color // Row-major pixel data
	WrapU  WrapMode
	WrapV  WrapMode
}

// NewTexture creates a black texture with the given dimensions.
func NewTexture(width, height int) *Texture {
	return &Texture{
		Width:  width,
		Height: height,
		Pixels: make([]geometry.Color, width*height),
	}
}

// LoadTexture decodes a PNG or JPEG file. See TextureFromImage for srgb.
func LoadTexture(path string, srgb bool) (*Texture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open texture: %w", err)
	}
	return DecodeTexture(data, srgb)
}

// DecodeTexture decodes encoded PNG or JPEG bytes.
func DecodeTexture(data []byte, srgb bool) (*Texture, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode texture: %w", err)
	}
	return TextureFromImage(img, srgb), nil
}

// TextureFromImage converts an image to a texture. Color textures are
// stored sRGB-encoded and need srgb set so they are decoded back to
// linear reflectance; data textures pass srgb=false.
func TextureFromImage(img image.Image, srgb bool) *Texture {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	tex := NewTexture(width, height)

	for y := range height {
		for x := range width {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit values, scale to 8-bit
			c := geometry.RGB8(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			if srgb {
				c = c.GammaDecode()
			}
			tex.SetPixel(x, y, c)
		}
	}

	return tex
}

// NewCheckerTexture creates a procedural checkerboard texture.
func NewCheckerTexture(width, height, checkSize int, c1, c2 geometry.Color) *Texture {
	tex := NewTexture(width, height)
	for y := range height {
		for x := range width {
			if (x/checkSize+y/checkSize)%2 == 0 {
				tex.SetPixel(x, y, c1)
			} else {
				tex.SetPixel(x, y, c2)
			}
		}
	}
	return tex
}

// SetPixel sets a pixel in the texture.
func (t *Texture) SetPixel(x, y int, c geometry.Color) {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return
	}
	t.Pixels[y*t.Width+x] = c
}

// GetPixel returns the pixel at (x, y) with bounds checking.
func (t *Texture) GetPixel(x, y int) geometry.Color {
	if x < 0 || x >= t.Width || y < 0 || y >= t.Height {
		return geometry.Black
	}
	return t.Pixels[y*t.Width+x]
}

// Sample returns the texel nearest to uv after wrapping:
// x = round(frac(u) * (w-1)), likewise for y.
func (t *Texture) Sample(uv math3d.Vec2) geometry.Color {
	if t.Width == 0 || t.Height == 0 {
		return geometry.Magenta
	}
	u := wrapCoord(uv.X, t.WrapU)
	v := wrapCoord(uv.Y, t.WrapV)

	x := int(math.Round(u * float64(t.Width-1)))
	y := int(math.Round(v * float64(t.Height-1)))
	return t.GetPixel(x, y)
}

// wrapCoord maps a coordinate into [0, 1].
func wrapCoord(c float64, mode WrapMode) float64 {
	switch mode {
	case WrapClamp:
		return math.Max(0, math.Min(1, c))
	case WrapMirror:
		f := c - 2*math.Floor(c/2)
		if f > 1 {
			f = 2 - f
		}
		return f
	default:
		return c - math.Floor(c)
	}
}
