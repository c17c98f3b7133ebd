// Package render turns a scene and its BVH into an image by Monte-Carlo
// path tracing, and provides the outputs around it: PNG files, a terminal
// preview, a progress bar and a statistics table.
package render

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/taigrr/pathtrace/pkg/bvh"
	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/log"
	"github.com/taigrr/pathtrace/pkg/scene"
)

// FallbackColor is returned for surfaces whose material cannot be resolved.
var FallbackColor = geometry.Magenta

var logger = log.New("render")

// Background gives the radiance seen by rays that leave the scene.
type Background func(r geometry.Ray) geometry.Color

// SkyBackground blends from white at the horizon below to light blue above.
func SkyBackground(r geometry.Ray) geometry.Color {
	a := 0.5 * (r.Direction.Normalize().Y + 1)
	return geometry.White.Scale(1 - a).Add(geometry.RGB(0.5, 0.7, 1.0).Scale(a))
}

// SolidBackground returns a background of constant color c.
func SolidBackground(c geometry.Color) Background {
	return func(geometry.Ray) geometry.Color { return c }
}

// Options configures a render.
type Options struct {
	Width  int
	Height int

	AA              int  // Sub-pixel grid is AA x AA
	SamplesPerPixel int  // Paths traced per sub-pixel
	Bounces         int  // Maximum path depth
	Jitter          bool // Randomize samples inside each sub-pixel cell

	Workers int   // Rows rendered concurrently; 0 means GOMAXPROCS
	Seed    int64 // Row y draws from a generator seeded with Seed+y

	Background Background // nil means SkyBackground
}

// DefaultOptions returns options for a quick 320x240 preview quality render.
func DefaultOptions() Options {
	return Options{
		Width:           320,
		Height:          240,
		AA:              2,
		SamplesPerPixel: 4,
		Bounces:         8,
		Jitter:          true,
		Seed:            1,
	}
}

// Validate reports the first unusable option.
func (o Options) Validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("invalid image size %dx%d", o.Width, o.Height)
	case o.AA <= 0:
		return fmt.Errorf("aa must be positive, got %d", o.AA)
	case o.SamplesPerPixel <= 0:
		return fmt.Errorf("samples per pixel must be positive, got %d", o.SamplesPerPixel)
	case o.Bounces < 0:
		return fmt.Errorf("bounces must not be negative, got %d", o.Bounces)
	case o.Workers < 0:
		return fmt.Errorf("workers must not be negative, got %d", o.Workers)
	}
	return nil
}

func (o Options) workers() int {
	if o.Workers > 0 {
		return o.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Renderer traces paths through one scene. All of its state is read-only
// while rendering.
type Renderer struct {
	scene      *scene.Scene
	accel      *bvh.BVH
	background Background
	opts       Options

	// Progress, when set, counts finished rows.
	Progress *Progress
}

// NewRenderer prepares a renderer. The BVH must have been built over the
// scene's triangles.
func NewRenderer(sc *scene.Scene, accel *bvh.BVH, opts Options) (*Renderer, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("render options: %w", err)
	}
	bg := opts.Background
	if bg == nil {
		bg = SkyBackground
	}
	return &Renderer{scene: sc, accel: accel, background: bg, opts: opts}, nil
}

// Trace returns the radiance arriving along r after at most bounces
// surface interactions.
func (r *Renderer) Trace(ray geometry.Ray, bounces int, rng *rand.Rand) geometry.Color {
	if bounces <= 0 {
		return geometry.Black
	}

	hit, ok := r.accel.Intersect(ray)
	if !ok {
		return r.background(ray)
	}
	if hit.Material < 0 || hit.Material >= len(r.scene.Materials) {
		return FallbackColor
	}

	mat := &r.scene.Materials[hit.Material]
	next, attenuation, more := mat.Scatter(ray, hit, r.scene.Textures, rng)
	if !more {
		return attenuation
	}
	return attenuation.Mul(r.Trace(next, bounces-1, rng))
}

// Render traces every pixel. Rows are independent units of work spread
// over Options.Workers goroutines; ctx is checked before each row starts.
func (r *Renderer) Render(ctx context.Context) (*Image, error) {
	o := r.opts
	img := NewImage(o.Width, o.Height)

	cam := r.scene.Camera
	cam.Setup(o.Width, o.Height)

	logger.Infof("rendering %q at %dx%d, %dx%d aa, %d spp, %d bounces, %d workers",
		r.scene.Name, o.Width, o.Height, o.AA, o.AA, o.SamplesPerPixel, o.Bounces, o.workers())
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers())

	for y := range o.Height {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rng := rand.New(rand.NewSource(o.Seed + int64(y)))
			for x := range o.Width {
				img.Set(x, y, r.pixel(&cam, x, y, rng))
			}
			if r.Progress != nil {
				r.Progress.Add(1)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}

	if err := r.accel.Err(); err != nil {
		logger.Warningf("some rays were cut short: %v", err)
	}
	logger.Infof("rendered %q in %v", r.scene.Name, time.Since(start).Round(time.Millisecond))
	return img, nil
}

// pixel averages AA x AA sub-pixel cells, each traced SamplesPerPixel times.
func (r *Renderer) pixel(cam *scene.Camera, x, y int, rng *rand.Rand) geometry.Color {
	o := r.opts
	cell := 1 / float64(o.AA)

	var sum geometry.Color
	for sy := range o.AA {
		for sx := range o.AA {
			for range o.SamplesPerPixel {
				dx, dy := 0.5, 0.5
				if o.Jitter {
					dx, dy = rng.Float64(), rng.Float64()
				}
				ray := cam.RayFrom(
					float64(x)+(float64(sx)+dx)*cell,
					float64(y)+(float64(sy)+dy)*cell,
				)
				sum = sum.Add(r.Trace(ray, o.Bounces, rng))
			}
		}
	}
	return sum.Div(float64(o.AA * o.AA * o.SamplesPerPixel))
}

// Render builds a renderer for sc and renders it in one call.
func Render(ctx context.Context, sc *scene.Scene, accel *bvh.BVH, opts Options) (*Image, error) {
	r, err := NewRenderer(sc, accel, opts)
	if err != nil {
		return nil, err
	}
	return r.Render(ctx)
}

// IsCanceled reports whether err came from a canceled or expired context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
