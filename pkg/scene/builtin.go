package scene

import (
	"fmt"
	"math"
	"slices"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/material"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

var builtins = map[string]func() *Scene{
	"cornell":  cornellBox,
	"triangle": emissiveTriangle,
}

// BuiltinNames lists the scenes Builtin knows, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Builtin returns a freshly built copy of a named scene.
func Builtin(name string) (*Scene, error) {
	build, ok := builtins[name]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownScene, name, BuiltinNames())
	}
	return build(), nil
}

// TriangleEmission is the color of the "triangle" scene's light.
var TriangleEmission = geometry.RGB(1, 0.5, 0.25)

// emissiveTriangle is a single light facing the camera over an empty sky.
func emissiveTriangle() *Scene {
	sc := New("triangle")
	light := sc.AddMaterial(material.NewEmissive(TriangleEmission).Named("light"))

	n := math3d.V3(0, 0, 1)
	mesh := NewMesh("triangle")
	mesh.Vertices = []MeshVertex{
		{Position: math3d.V3(-0.5, -0.5, 0), Normal: n},
		{Position: math3d.V3(0.5, -0.5, 0), Normal: n},
		{Position: math3d.V3(0, 0.5, 0), Normal: n},
	}
	mesh.Faces = []Face{{V: [3]int{0, 1, 2}, Material: light}}
	sc.AddMesh(mesh)

	sc.Camera.LookAt(math3d.V3(0, 0, 2), math3d.Zero3())
	sc.Camera.SetFOV(math.Pi / 3)
	return sc
}

// cornellBox is the classic box: red and green side walls, a ceiling
// light, a checkered floor, a rough metal block and a glass block.
func cornellBox() *Scene {
	sc := New("cornell")

	checker := sc.AddTexture(material.NewCheckerTexture(64, 64, 8, geometry.Gray(0.73), geometry.Gray(0.25)))
	white := sc.AddMaterial(material.NewDiffuse(material.Solid(geometry.Gray(0.73))).Named("white"))
	red := sc.AddMaterial(material.NewDiffuse(material.Solid(geometry.RGB(0.65, 0.05, 0.05))).Named("red"))
	green := sc.AddMaterial(material.NewDiffuse(material.Solid(geometry.RGB(0.12, 0.45, 0.15))).Named("green"))
	floor := sc.AddMaterial(material.NewDiffuse(material.Textured(checker)).Named("floor"))
	light := sc.AddMaterial(material.NewEmissive(geometry.Gray(12)).Named("light"))
	metal := sc.AddMaterial(material.NewMetal(material.Solid(geometry.RGB(0.8, 0.85, 0.88)), 0.1).Named("metal"))
	glass := sc.AddMaterial(material.NewGlass(material.Solid(geometry.White), 1.5).Named("glass"))

	room := NewMesh("room")
	// Corners are listed so every face looks into the box.
	quad(room, math3d.V3(-1, -1, 1), math3d.V3(1, -1, 1), math3d.V3(1, -1, -1), math3d.V3(-1, -1, -1), floor)
	quad(room, math3d.V3(-1, 1, -1), math3d.V3(1, 1, -1), math3d.V3(1, 1, 1), math3d.V3(-1, 1, 1), white)
	quad(room, math3d.V3(-1, -1, -1), math3d.V3(1, -1, -1), math3d.V3(1, 1, -1), math3d.V3(-1, 1, -1), white)
	quad(room, math3d.V3(-1, -1, 1), math3d.V3(-1, -1, -1), math3d.V3(-1, 1, -1), math3d.V3(-1, 1, 1), red)
	quad(room, math3d.V3(1, -1, -1), math3d.V3(1, -1, 1), math3d.V3(1, 1, 1), math3d.V3(1, 1, -1), green)
	quad(room, math3d.V3(-0.3, 0.998, -0.3), math3d.V3(0.3, 0.998, -0.3), math3d.V3(0.3, 0.998, 0.3), math3d.V3(-0.3, 0.998, 0.3), light)
	sc.AddMesh(room)

	tall := box(math3d.V3(-0.3, -1, -0.3), math3d.V3(0.3, 0.2, 0.3), metal)
	tall.Transform(math3d.Translate(math3d.V3(-0.35, 0, -0.35)).Mul(math3d.RotateY(0.3)))
	sc.AddMesh(tall)

	short := box(math3d.V3(-0.3, -1, -0.3), math3d.V3(0.3, -0.4, 0.3), glass)
	short.Transform(math3d.Translate(math3d.V3(0.4, 0, 0.3)).Mul(math3d.RotateY(-0.3)))
	sc.AddMesh(short)

	sc.Camera.LookAt(math3d.V3(0, 0, 3.4), math3d.Zero3())
	sc.Camera.SetFOV(40 * math.Pi / 180)
	return sc
}

// quad appends a planar quad a-b-c-d as two triangles with flat normals
// and UVs spanning [0, 1].
func quad(m *Mesh, a, b, c, d math3d.Vec3, mat int) {
	n := b.Sub(a).Cross(d.Sub(a)).Normalize()
	base := len(m.Vertices)
	m.Vertices = append(m.Vertices,
		MeshVertex{Position: a, Normal: n, UV: math3d.V2(0, 0), HasUV: true},
		MeshVertex{Position: b, Normal: n, UV: math3d.V2(1, 0), HasUV: true},
		MeshVertex{Position: c, Normal: n, UV: math3d.V2(1, 1), HasUV: true},
		MeshVertex{Position: d, Normal: n, UV: math3d.V2(0, 1), HasUV: true},
	)
	m.Faces = append(m.Faces,
		Face{V: [3]int{base, base + 1, base + 2}, Material: mat},
		Face{V: [3]int{base, base + 2, base + 3}, Material: mat},
	)
	m.CalculateBounds()
}

// box returns an axis-aligned box with outward-facing sides.
func box(lo, hi math3d.Vec3, mat int) *Mesh {
	m := NewMesh("box")
	x0, y0, z0 := lo.X, lo.Y, lo.Z
	x1, y1, z1 := hi.X, hi.Y, hi.Z

	quad(m, math3d.V3(x0, y0, z1), math3d.V3(x1, y0, z1), math3d.V3(x1, y1, z1), math3d.V3(x0, y1, z1), mat) // +Z
	quad(m, math3d.V3(x1, y0, z0), math3d.V3(x0, y0, z0), math3d.V3(x0, y1, z0), math3d.V3(x1, y1, z0), mat) // -Z
	quad(m, math3d.V3(x1, y0, z1), math3d.V3(x1, y0, z0), math3d.V3(x1, y1, z0), math3d.V3(x1, y1, z1), mat) // +X
	quad(m, math3d.V3(x0, y0, z0), math3d.V3(x0, y0, z1), math3d.V3(x0, y1, z1), math3d.V3(x0, y1, z0), mat) // -X
	quad(m, math3d.V3(x0, y1, z1), math3d.V3(x1, y1, z1), math3d.V3(x1, y1, z0), math3d.V3(x0, y1, z0), mat) // +Y
	quad(m, math3d.V3(x0, y0, z0), math3d.V3(x1, y0, z0), math3d.V3(x1, y0, z1), math3d.V3(x0, y0, z1), mat) // -Y
	return m
}
