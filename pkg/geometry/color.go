package geometry

import (
	"fmt"
	"image/color"
	"math"
)

// Color is a linear RGB radiance or reflectance value.
type Color struct {
	R, G, B float64
}

// Colors for convenience
var (
	Black   = Color{0, 0, 0}
	White   = Color{1, 1, 1}
	Magenta = Color{1, 0, 1}
)

// RGB creates a color from linear components.
func RGB(r, g, b float64) Color {
	return Color{r, g, b}
}

// Gray creates a color with all channels set to v.
func Gray(v float64) Color {
	return Color{v, v, v}
}

// RGB8 creates a color from 8-bit channels, mapping 255 to 1.
// No transfer function is applied.
func RGB8(r, g, b uint8) Color {
	return Color{float64(r) / 255, float64(g) / 255, float64(b) / 255}
}

// Add returns the channel-wise sum.
func (c Color) Add(o Color) Color {
	return Color{c.R + o.R, c.G + o.G, c.B + o.B}
}

// Mul returns the channel-wise product (attenuation).
func (c Color) Mul(o Color) Color {
	return Color{c.R * o.R, c.G * o.G, c.B * o.B}
}

// Scale multiplies every channel by s.
func (c Color) Scale(s float64) Color {
	return Color{c.R * s, c.G * s, c.B * s}
}

// Div divides every channel by s.
func (c Color) Div(s float64) Color {
	return Color{c.R / s, c.G / s, c.B / s}
}

// Lerp linearly interpolates from c to o.
func (c Color) Lerp(o Color, t float64) Color {
	return c.Scale(1 - t).Add(o.Scale(t))
}

// MaxChannel returns the largest channel value.
func (c Color) MaxChannel() float64 {
	return math.Max(c.R, math.Max(c.G, c.B))
}

// GammaCorrect applies the sRGB encoding curve to each channel.
func (c Color) GammaCorrect() Color {
	return Color{srgbEncode(c.R), srgbEncode(c.G), srgbEncode(c.B)}
}

// GammaDecode applies the inverse sRGB curve, turning 8-bit texture data
// back into linear reflectance.
func (c Color) GammaDecode() Color {
	return Color{srgbDecode(c.R), srgbDecode(c.G), srgbDecode(c.B)}
}

func srgbEncode(v float64) float64 {
	if v <= 0.0031308 {
		return 12.92 * v
	}
	return 1.055*math.Pow(v, 1/2.4) - 0.055
}

func srgbDecode(v float64) float64 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return math.Pow((v+0.055)/1.055, 2.4)
}

// Pack quantizes the color to 0xRRGGBB. Channels are clamped to [0, 1].
func (c Color) Pack() uint32 {
	return uint32(quantize(c.R))<<16 | uint32(quantize(c.G))<<8 | uint32(quantize(c.B))
}

// Unpack is the inverse of Pack, up to quantization.
func Unpack(p uint32) Color {
	return RGB8(uint8(p>>16), uint8(p>>8), uint8(p))
}

// RGBA returns the quantized color as an opaque color.RGBA.
func (c Color) RGBA() color.RGBA {
	return color.RGBA{quantize(c.R), quantize(c.G), quantize(c.B), 255}
}

func quantize(v float64) uint8 {
	if !(v > 0) {
		return 0
	}
	if v >= 1 {
		return 255
	}
	return uint8(v * 255)
}

func (c Color) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f)", c.R, c.G, c.B)
}
