package render

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"slices"
	"testing"

	"github.com/taigrr/pathtrace/pkg/bvh"
	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/math3d"
	"github.com/taigrr/pathtrace/pkg/scene"
)

func colorNear(a, b geometry.Color, tol float64) bool {
	return math.Abs(a.R-b.R) <= tol && math.Abs(a.G-b.G) <= tol && math.Abs(a.B-b.B) <= tol
}

func builtin(t testing.TB, name string) (*scene.Scene, *bvh.BVH) {
	t.Helper()
	sc, err := scene.Builtin(name)
	if err != nil {
		t.Fatal(err)
	}
	return sc, bvh.New(sc.Triangles)
}

// TestEmissiveTriangle renders the single light and checks every pixel is
// either exactly the emission or exactly the background, depending on
// whether its sub-pixel rays hit the triangle.
func TestEmissiveTriangle(t *testing.T) {
	for _, aa := range []int{1, 2} {
		t.Run(fmt.Sprintf("aa=%d", aa), func(t *testing.T) {
			sc, accel := builtin(t, "triangle")
			bg := geometry.RGB(0.1, 0.2, 0.3)

			opts := Options{
				Width: 32, Height: 24,
				AA: aa, SamplesPerPixel: 1, Bounces: 1,
				Workers: 4, Seed: 7,
				Background: SolidBackground(bg),
			}
			img, err := Render(context.Background(), sc, accel, opts)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}

			cam := sc.Camera
			cam.Setup(opts.Width, opts.Height)
			cell := 1 / float64(aa)

			var covered, empty int
			for y := range opts.Height {
				for x := range opts.Width {
					hits := 0
					for sy := range aa {
						for sx := range aa {
							r := cam.RayFrom(float64(x)+(float64(sx)+0.5)*cell, float64(y)+(float64(sy)+0.5)*cell)
							if _, ok := accel.IntersectBrute(r); ok {
								hits++
							}
						}
					}

					got := img.At(x, y)
					switch hits {
					case aa * aa:
						covered++
						if !colorNear(got, scene.TriangleEmission, 1e-12) {
							t.Fatalf("pixel (%d, %d) = %v, want emission %v", x, y, got, scene.TriangleEmission)
						}
					case 0:
						empty++
						if !colorNear(got, bg, 1e-12) {
							t.Fatalf("pixel (%d, %d) = %v, want background %v", x, y, got, bg)
						}
					}
				}
			}

			if covered == 0 || empty == 0 {
				t.Errorf("covered = %d, empty = %d; want both non-zero", covered, empty)
			}
		})
	}
}

func TestTrace(t *testing.T) {
	sc, accel := builtin(t, "triangle")
	r, err := NewRenderer(sc, accel, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	rng := rand.New(rand.NewSource(1))

	toward := geometry.NewRay(math3d.V3(0, 0, 2), math3d.V3(0, 0, -1))
	away := geometry.NewRay(math3d.V3(0, 0, 2), math3d.V3(0, 1, 0))

	tests := []struct {
		name    string
		ray     geometry.Ray
		bounces int
		want    geometry.Color
	}{
		{"no bounces left", toward, 0, geometry.Black},
		{"hits light", toward, 1, scene.TriangleEmission},
		{"sky straight up", away, 3, geometry.RGB(0.5, 0.7, 1.0)},
		{"sky at horizon", geometry.NewRay(math3d.V3(0, 0, 5), math3d.V3(1, 0, 0)), 3, geometry.RGB(0.75, 0.85, 1.0)},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.Trace(tc.ray, tc.bounces, rng); !colorNear(got, tc.want, 1e-12) {
				t.Errorf("Trace = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestTraceFallbackColor(t *testing.T) {
	sc := scene.New("unresolved")
	mesh := scene.NewMesh("tri")
	mesh.Vertices = []scene.MeshVertex{
		{Position: math3d.V3(-1, -1, 0), Normal: math3d.V3(0, 0, 1)},
		{Position: math3d.V3(1, -1, 0), Normal: math3d.V3(0, 0, 1)},
		{Position: math3d.V3(0, 1, 0), Normal: math3d.V3(0, 0, 1)},
	}
	mesh.Faces = []scene.Face{{V: [3]int{0, 1, 2}, Material: geometry.NoMaterial}}
	sc.AddMesh(mesh)
	mesh.Faces[0].Material = 3
	sc.AddMesh(mesh)

	r, err := NewRenderer(sc, bvh.New(sc.Triangles), DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	ray := geometry.NewRay(math3d.V3(0, 0, 1), math3d.V3(0, 0, -1))
	if got := r.Trace(ray, 2, rand.New(rand.NewSource(1))); got != FallbackColor {
		t.Errorf("Trace = %v, want fallback %v", got, FallbackColor)
	}
}

// TestRenderDeterministic renders the same frame with different worker
// counts and expects identical output.
func TestRenderDeterministic(t *testing.T) {
	opts := DefaultOptions()
	opts.Width, opts.Height = 16, 12
	opts.AA, opts.SamplesPerPixel = 1, 2

	var frames [][]uint32
	for _, workers := range []int{1, 3, 8} {
		sc, accel := builtin(t, "cornell")
		opts.Workers = workers
		img, err := Render(context.Background(), sc, accel, opts)
		if err != nil {
			t.Fatalf("workers=%d: %v", workers, err)
		}
		frames = append(frames, img.Pixels)
	}
	for i := 1; i < len(frames); i++ {
		if !slices.Equal(frames[0], frames[i]) {
			t.Errorf("frame %d differs from frame 0", i)
		}
	}
}

func TestRenderCanceled(t *testing.T) {
	sc, accel := builtin(t, "cornell")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	img, err := Render(ctx, sc, accel, DefaultOptions())
	if err == nil {
		t.Fatal("expected an error from a canceled render")
	}
	if img != nil {
		t.Error("canceled render returned an image")
	}
	if !IsCanceled(err) || !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestRenderProgress(t *testing.T) {
	sc, accel := builtin(t, "triangle")
	opts := DefaultOptions()
	opts.Width, opts.Height = 8, 6
	opts.AA, opts.SamplesPerPixel = 1, 1

	r, err := NewRenderer(sc, accel, opts)
	if err != nil {
		t.Fatal(err)
	}
	r.Progress = NewProgress(opts.Height, 30)
	if _, err := r.Render(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.Progress.Done() != int64(opts.Height) || r.Progress.Fraction() != 1 {
		t.Errorf("progress = %d rows (%v)", r.Progress.Done(), r.Progress.Fraction())
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
		ok     bool
	}{
		{"defaults", func(o *Options) {}, true},
		{"zero bounces", func(o *Options) { o.Bounces = 0 }, true},
		{"zero width", func(o *Options) { o.Width = 0 }, false},
		{"negative height", func(o *Options) { o.Height = -1 }, false},
		{"zero aa", func(o *Options) { o.AA = 0 }, false},
		{"zero spp", func(o *Options) { o.SamplesPerPixel = 0 }, false},
		{"negative bounces", func(o *Options) { o.Bounces = -1 }, false},
		{"negative workers", func(o *Options) { o.Workers = -2 }, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			o := DefaultOptions()
			tc.modify(&o)
			err := o.Validate()
			if (err == nil) != tc.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tc.ok)
			}
		})
	}

	t.Run("renderer rejects", func(t *testing.T) {
		sc, accel := builtin(t, "triangle")
		o := DefaultOptions()
		o.AA = 0
		if _, err := NewRenderer(sc, accel, o); err == nil {
			t.Error("NewRenderer accepted invalid options")
		}
	})
}

func BenchmarkRenderCornell(b *testing.B) {
	sc, accel := builtin(b, "cornell")
	opts := DefaultOptions()
	opts.Width, opts.Height = 64, 48
	opts.AA, opts.SamplesPerPixel = 1, 1

	for b.Loop() {
		if _, err := Render(context.Background(), sc, accel, opts); err != nil {
			b.Fatal(err)
		}
	}
}
