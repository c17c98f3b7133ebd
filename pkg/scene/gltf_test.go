package scene

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/material"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

func intPtr(i int) *int           { return &i }
func floatPtr(f float64) *float64 { return &f }

// quadDocument builds a document holding a unit quad in the XY plane as
// indexed triangles, placed by a translated node under a parent node.
func quadDocument(t *testing.T) *gltf.Document {
	t.Helper()

	var buf bytes.Buffer
	write := func(v any) {
		if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
			t.Fatal(err)
		}
	}
	write([]float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}) // positions, 48 bytes
	write([]float32{0, 0, 1, 0, 1, 1, 0, 1})             // uvs, 32 bytes
	write([]uint16{0, 1, 2, 0, 2, 3})                    // indices, 12 bytes

	return &gltf.Document{
		Asset:   gltf.Asset{Version: "2.0"},
		Buffers: []*gltf.Buffer{{ByteLength: buf.Len(), Data: buf.Bytes()}},
		BufferViews: []*gltf.BufferView{
			{Buffer: 0, ByteOffset: 0, ByteLength: 48},
			{Buffer: 0, ByteOffset: 48, ByteLength: 32},
			{Buffer: 0, ByteOffset: 80, ByteLength: 12},
		},
		Accessors: []*gltf.Accessor{
			{BufferView: intPtr(0), ComponentType: gltf.ComponentFloat, Count: 4, Type: gltf.AccessorVec3},
			{BufferView: intPtr(1), ComponentType: gltf.ComponentFloat, Count: 4, Type: gltf.AccessorVec2},
			{BufferView: intPtr(2), ComponentType: gltf.ComponentUshort, Count: 6, Type: gltf.AccessorScalar},
		},
		Materials: []*gltf.Material{{
			Name: "paint",
			PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorFactor: &[4]float64{0.5, 0.25, 1, 1},
				MetallicFactor:  floatPtr(0),
			},
		}},
		Meshes: []*gltf.Mesh{{
			Name: "quad",
			Primitives: []*gltf.Primitive{{
				Attributes: map[string]int{gltf.POSITION: 0, gltf.TEXCOORD_0: 1},
				Indices:    intPtr(2),
				Material:   intPtr(0),
				Mode:       gltf.PrimitiveTriangles,
			}},
		}},
		Nodes: []*gltf.Node{
			{
				Name:        "parent",
				Children:    []int{1},
				Translation: [3]float64{0, 0, -3},
				Rotation:    [4]float64{0, 0, 0, 1},
				Scale:       [3]float64{1, 1, 1},
				Matrix:      [16]float64(math3d.Identity()),
			},
			{
				Name:        "child",
				Mesh:        intPtr(0),
				Translation: [3]float64{2, 0, 0},
				Rotation:    [4]float64{0, 0, 0, 1},
				Scale:       [3]float64{1, 1, 1},
				Matrix:      [16]float64(math3d.Identity()),
			},
		},
		Scenes: []*gltf.Scene{{Nodes: []int{0}}},
		Scene:  intPtr(0),
	}
}

func TestConvert(t *testing.T) {
	doc := quadDocument(t)
	sc, err := NewGLTFLoader().Convert(doc, "", "quad")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if len(sc.Triangles) != 2 {
		t.Fatalf("triangles = %d, want 2", len(sc.Triangles))
	}
	b := sc.Bounds()
	if b.Min != math3d.V3(2, 0, -3) || b.Max != math3d.V3(3, 1, -3) {
		t.Errorf("bounds = %v..%v, want node transforms applied", b.Min, b.Max)
	}

	tri := sc.Triangles[0]
	if tri.Material != 0 {
		t.Errorf("material = %d, want 0", tri.Material)
	}
	if !tri.V[0].HasUV || tri.V[1].UV != math3d.V2(1, 0) {
		t.Errorf("uv not carried through: %+v", tri.V[1])
	}
	// No normals in the file, so they are computed from the winding.
	if n := tri.V[0].Normal; n.Sub(math3d.V3(0, 0, 1)).Len() > 1e-9 {
		t.Errorf("computed normal = %v, want (0, 0, 1)", n)
	}

	m := sc.Materials[0]
	if m.Kind != material.Diffuse || m.Name != "paint" {
		t.Errorf("material = %v %q", m.Kind, m.Name)
	}
	if m.Color.Color != geometry.RGB(0.5, 0.25, 1) {
		t.Errorf("color = %v", m.Color.Color)
	}

	// No camera node, so the scene is framed from +Z.
	if f := sc.Camera.Forward(); f.Sub(math3d.V3(0, 0, -1)).Len() > 1e-9 {
		t.Errorf("framing camera forward = %v", f)
	}
}

func TestConvertCamera(t *testing.T) {
	doc := quadDocument(t)
	doc.Cameras = []*gltf.Camera{{
		Name:        "cam",
		Perspective: &gltf.Perspective{Yfov: 0.8, Znear: 0.1},
	}}
	doc.Nodes = append(doc.Nodes, &gltf.Node{
		Name:        "camera",
		Camera:      intPtr(0),
		Translation: [3]float64{0, 1, 5},
	})
	doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, 2)

	sc, err := NewGLTFLoader().Convert(doc, "", "quad")
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if sc.Camera.FOV != 0.8 {
		t.Errorf("FOV = %v, want 0.8", sc.Camera.FOV)
	}
	if p := sc.Camera.Position(); p != math3d.V3(0, 1, 5) {
		t.Errorf("camera position = %v", p)
	}
}

func TestConvertErrors(t *testing.T) {
	t.Run("no geometry", func(t *testing.T) {
		doc := quadDocument(t)
		doc.Nodes[1].Mesh = nil
		if _, err := NewGLTFLoader().Convert(doc, "", "empty"); !errors.Is(err, ErrNoGeometry) {
			t.Errorf("err = %v, want ErrNoGeometry", err)
		}
	})

	t.Run("cycle", func(t *testing.T) {
		doc := quadDocument(t)
		doc.Nodes[1].Children = []int{0}
		if _, err := NewGLTFLoader().Convert(doc, "", "cycle"); err == nil {
			t.Error("expected an error for a node cycle")
		}
	})

	t.Run("index out of range", func(t *testing.T) {
		doc := quadDocument(t)
		binary.LittleEndian.PutUint16(doc.Buffers[0].Data[80:], 9)
		if _, err := NewGLTFLoader().Convert(doc, "", "bad"); err == nil {
			t.Error("expected an error for an out of range index")
		}
	})

	t.Run("truncated buffer view", func(t *testing.T) {
		doc := quadDocument(t)
		doc.Accessors[0].Count = 40
		if _, err := NewGLTFLoader().Convert(doc, "", "short"); err == nil {
			t.Error("expected an error for an accessor past its buffer view")
		}
	})

	t.Run("lines are skipped", func(t *testing.T) {
		doc := quadDocument(t)
		doc.Meshes[0].Primitives[0].Mode = gltf.PrimitiveLines
		if _, err := NewGLTFLoader().Convert(doc, "", "lines"); !errors.Is(err, ErrNoGeometry) {
			t.Errorf("err = %v, want ErrNoGeometry", err)
		}
	})
}

func TestSaveAndLoadGLB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quad.glb")
	if err := gltf.SaveBinary(quadDocument(t), path); err != nil {
		t.Fatalf("SaveBinary: %v", err)
	}

	sc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sc.Name != "quad" {
		t.Errorf("name = %q, want quad", sc.Name)
	}
	if len(sc.Triangles) != 2 {
		t.Errorf("triangles = %d, want 2", len(sc.Triangles))
	}
}

func TestTriangulate(t *testing.T) {
	idx := []int{0, 1, 2, 3, 4}
	tests := []struct {
		name string
		mode gltf.PrimitiveMode
		want [][3]int
	}{
		{"list", gltf.PrimitiveTriangles, [][3]int{{0, 1, 2}}},
		{"strip", gltf.PrimitiveTriangleStrip, [][3]int{{0, 1, 2}, {2, 1, 3}, {2, 3, 4}}},
		{"fan", gltf.PrimitiveTriangleFan, [][3]int{{0, 1, 2}, {0, 2, 3}, {0, 3, 4}}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := triangulate(tc.mode, idx)
			if len(got) != len(tc.want) {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Errorf("triangle %d = %v, want %v", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestConvertMaterial(t *testing.T) {
	tests := []struct {
		name  string
		mat   *gltf.Material
		kind  material.Kind
		check func(t *testing.T, m material.Material)
	}{
		{
			name: "defaults are metal",
			mat:  &gltf.Material{},
			kind: material.Metal,
			check: func(t *testing.T, m material.Material) {
				if m.Roughness != 1 || m.Name != "material3" {
					t.Errorf("roughness %v name %q", m.Roughness, m.Name)
				}
			},
		},
		{
			name: "dielectric is diffuse",
			mat: &gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				MetallicFactor: floatPtr(0.5),
			}},
			kind: material.Diffuse,
		},
		{
			name: "metal keeps roughness",
			mat: &gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				MetallicFactor:  floatPtr(1),
				RoughnessFactor: floatPtr(0.2),
			}},
			kind: material.Metal,
			check: func(t *testing.T, m material.Material) {
				if m.Roughness != 0.2 {
					t.Errorf("roughness = %v", m.Roughness)
				}
			},
		},
		{
			name: "emissive with strength",
			mat: &gltf.Material{
				EmissiveFactor: [3]float64{1, 0.5, 0},
				Extensions: gltf.Extensions{
					extEmissiveStrength: json.RawMessage(`{"emissiveStrength": 4}`),
				},
			},
			kind: material.Emissive,
			check: func(t *testing.T, m material.Material) {
				if m.Emission != geometry.RGB(4, 2, 0) {
					t.Errorf("emission = %v", m.Emission)
				}
			},
		},
		{
			name: "transmission is glass",
			mat: &gltf.Material{Extensions: gltf.Extensions{
				extTransmission: json.RawMessage(`{"transmissionFactor": 1}`),
				extIOR:          json.RawMessage(`{"ior": 1.33}`),
			}},
			kind: material.Glass,
			check: func(t *testing.T, m material.Material) {
				if m.IOR != 1.33 {
					t.Errorf("ior = %v", m.IOR)
				}
			},
		},
		{
			name: "glass without ior",
			mat: &gltf.Material{Extensions: gltf.Extensions{
				extTransmission: json.RawMessage(`{"transmissionFactor": 1}`),
			}},
			kind: material.Glass,
			check: func(t *testing.T, m material.Material) {
				if m.IOR != material.DefaultIOR {
					t.Errorf("ior = %v", m.IOR)
				}
			},
		},
		{
			name: "base color texture",
			mat: &gltf.Material{PBRMetallicRoughness: &gltf.PBRMetallicRoughness{
				BaseColorTexture: &gltf.TextureInfo{Index: 1},
				MetallicFactor:   floatPtr(0),
			}},
			kind: material.Diffuse,
			check: func(t *testing.T, m material.Material) {
				if m.Color.Texture != 1 || m.Color.Color != geometry.White {
					t.Errorf("sampler = %+v", m.Color)
				}
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := convertMaterial(3, tc.mat)
			if m.Kind != tc.kind {
				t.Fatalf("kind = %v, want %v", m.Kind, tc.kind)
			}
			if tc.check != nil {
				tc.check(t, m)
			}
		})
	}
}

func TestNodeMatrix(t *testing.T) {
	t.Run("zero node is identity", func(t *testing.T) {
		if m := nodeMatrix(&gltf.Node{}); m != math3d.Identity() {
			t.Errorf("nodeMatrix = %v", m)
		}
	})

	t.Run("explicit matrix wins", func(t *testing.T) {
		want := math3d.Translate(math3d.V3(1, 2, 3))
		n := &gltf.Node{Matrix: [16]float64(want), Translation: [3]float64{9, 9, 9}}
		if m := nodeMatrix(n); m != want {
			t.Errorf("nodeMatrix = %v", m)
		}
	})

	t.Run("trs", func(t *testing.T) {
		s := math.Sqrt2 / 2
		n := &gltf.Node{
			Translation: [3]float64{1, 0, 0},
			Rotation:    [4]float64{0, s, 0, s}, // 90 degrees about Y
			Scale:       [3]float64{2, 2, 2},
		}
		got := nodeMatrix(n).MulVec3(math3d.V3(1, 0, 0))
		if got.Sub(math3d.V3(1, 0, -2)).Len() > 1e-9 {
			t.Errorf("transformed point = %v, want (1, 0, -2)", got)
		}
	})
}

func TestWrapMode(t *testing.T) {
	tests := []struct {
		in   gltf.WrappingMode
		want material.WrapMode
	}{
		{gltf.WrapRepeat, material.WrapRepeat},
		{gltf.WrapClampToEdge, material.WrapClamp},
		{gltf.WrapMirroredRepeat, material.WrapMirror},
	}
	for _, tc := range tests {
		if got := wrapMode(tc.in); got != tc.want {
			t.Errorf("wrapMode(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
