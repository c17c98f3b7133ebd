// Package scene holds everything a render reads: triangles, materials,
// textures and the camera. Scenes come from glTF files or from the
// built-in set.
package scene

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/log"
	"github.com/taigrr/pathtrace/pkg/material"
)

var (
	// ErrNoGeometry is returned when a scene contains no triangles.
	ErrNoGeometry = errors.New("scene has no triangles")

	// ErrUnsupportedPrimitive marks glTF primitives that are not
	// triangles, triangle strips or triangle fans.
	ErrUnsupportedPrimitive = errors.New("unsupported primitive mode")

	// ErrUnknownScene is returned by Builtin for unknown names.
	ErrUnknownScene = errors.New("unknown built-in scene")
)

var logger = log.New("scene")

// Scene is immutable once handed to the renderer.
type Scene struct {
	Name      string
	Triangles []geometry.Triangle
	Materials []material.Material
	Textures  []material.Texture
	Camera    Camera
}

// New creates an empty scene with a default camera.
func New(name string) *Scene {
	return &Scene{Name: name, Camera: *NewCamera()}
}

// AddMaterial appends m and returns its index.
func (s *Scene) AddMaterial(m material.Material) int {
	s.Materials = append(s.Materials, m)
	return len(s.Materials) - 1
}

// AddTexture appends t and returns its index.
func (s *Scene) AddTexture(t *material.Texture) int {
	s.Textures = append(s.Textures, *t)
	return len(s.Textures) - 1
}

// AddMesh flattens m into the triangle list.
func (s *Scene) AddMesh(m *Mesh) {
	s.Triangles = append(s.Triangles, m.Triangles()...)
}

// Bounds returns the box around every triangle.
func (s *Scene) Bounds() geometry.AABB {
	b := geometry.EmptyAABB()
	for i := range s.Triangles {
		b.GrowBox(s.Triangles[i].Bounds())
	}
	return b
}

// Validate checks the scene can be rendered. Triangles whose material
// index is out of range are allowed and render with the fallback color;
// a material pointing at a missing texture is an error.
func (s *Scene) Validate() error {
	if len(s.Triangles) == 0 {
		return ErrNoGeometry
	}
	for i, m := range s.Materials {
		if m.Color.IsTexture() && m.Color.Texture >= len(s.Textures) {
			return fmt.Errorf("material %d (%q): texture %d out of range", i, m.Name, m.Color.Texture)
		}
	}
	return nil
}

// Load imports a scene file, choosing the importer by extension.
func Load(path string) (*Scene, error) {
	var (
		sc  *Scene
		err error
	)

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".gltf", ".glb":
		sc, err = LoadGLTF(path)
	default:
		return nil, fmt.Errorf("load scene %s: unsupported format %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("load scene: %w", err)
	}

	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("load scene %s: %w", path, err)
	}

	logger.Infof("loaded %q: %d triangles, %d materials, %d textures",
		sc.Name, len(sc.Triangles), len(sc.Materials), len(sc.Textures))
	return sc, nil
}
