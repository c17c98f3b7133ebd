package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"

	"github.com/taigrr/pathtrace/pkg/geometry"
)

// Image is the render output. Linear keeps the averaged radiance; Pixels
// holds the same values gamma-corrected and packed as 0xRRGGBB.
type Image struct {
	Width  int
	Height int
	Pixels []uint32         // Row-major packed sRGB
	Linear []geometry.Color // Row-major linear radiance
}

// NewImage creates a black image.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pixels: make([]uint32, width*height),
		Linear: make([]geometry.Color, width*height),
	}
}

// Set stores the linear color c at (x, y) and its packed encoding.
// Out-of-bounds writes are ignored.
func (img *Image) Set(x, y int, c geometry.Color) {
	if x < 0 || x >= img.Width || y < 0 || y >= img.Height {
		return
	}
	i := y*img.Width + x
	img.Linear[i] = c
	img.Pixels[i] = c.GammaCorrect().Pack()
}

// Pixel returns the packed color at (x, y), or 0 out of bounds.
func (img *Image) Pixel(x, y int) uint32 {
	if x < 0 || x >= img.Width || y < 0 || y >= img.Height {
		return 0
	}
	return img.Pixels[y*img.Width+x]
}

// At returns the linear color at (x, y), or black out of bounds.
func (img *Image) At(x, y int) geometry.Color {
	if x < 0 || x >= img.Width || y < 0 || y >= img.Height {
		return geometry.Black
	}
	return img.Linear[y*img.Width+x]
}

// RGBA returns the display color at (x, y).
func (img *Image) RGBA(x, y int) color.RGBA {
	p := img.Pixel(x, y)
	return color.RGBA{uint8(p >> 16), uint8(p >> 8), uint8(p), 255}
}

// ToImage converts the packed pixels to a standard Go image.RGBA.
func (img *Image) ToImage() *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out.SetRGBA(x, y, img.RGBA(x, y))
		}
	}
	return out
}

// SavePNG saves the image as a PNG file.
func (img *Image) SavePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save png: %w", err)
	}
	if err := png.Encode(f, img.ToImage()); err != nil {
		f.Close()
		return fmt.Errorf("save png: %w", err)
	}
	return f.Close()
}
