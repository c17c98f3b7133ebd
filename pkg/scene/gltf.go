package scene

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/qmuntal/gltf"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/material"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

// glTF extensions the importer understands.
const (
	extTransmission     = "KHR_materials_transmission"
	extIOR              = "KHR_materials_ior"
	extEmissiveStrength = "KHR_materials_emissive_strength"
)

// DefaultFOV is the vertical field of view of the framing camera used when
// a file has no perspective camera.
const DefaultFOV = math.Pi / 3

// GLTFLoader loads glTF and GLB files into a Scene.
type GLTFLoader struct {
	// CalculateNormals fills in normals for primitives that have none.
	CalculateNormals bool
	SmoothNormals    bool
}

// NewGLTFLoader creates a new glTF loader with default options.
func NewGLTFLoader() *GLTFLoader {
	return &GLTFLoader{
		CalculateNormals: true,
		SmoothNormals:    true,
	}
}

// LoadGLTF loads a .gltf or .glb file with the default options.
func LoadGLTF(path string) (*Scene, error) {
	return NewGLTFLoader().Load(path)
}

// Load opens path and converts the document. External buffers are
// resolved by the gltf package; external images relative to path.
func (l *GLTFLoader) Load(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open gltf: %w", err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return l.Convert(doc, filepath.Dir(path), name)
}

// Convert builds a scene from a decoded document. dir resolves relative
// image URIs.
func (l *GLTFLoader) Convert(doc *gltf.Document, dir, name string) (*Scene, error) {
	sc := New(name)

	for i, m := range doc.Materials {
		sc.Materials = append(sc.Materials, convertMaterial(i, m))
	}

	textures, err := loadTextures(doc, dir, srgbTextures(doc))
	if err != nil {
		return nil, err
	}
	sc.Textures = textures

	w := &walker{loader: l, doc: doc, scene: sc, visited: make(map[int]bool)}
	for _, idx := range rootNodes(doc) {
		if err := w.walk(idx, math3d.Identity()); err != nil {
			return nil, err
		}
	}

	if len(sc.Triangles) == 0 {
		return nil, ErrNoGeometry
	}
	if !w.hasCamera {
		logger.Notice("no perspective camera in file, framing the scene")
		sc.Camera = FrameCamera(sc.Bounds(), DefaultFOV)
	}
	return sc, nil
}

// rootNodes returns the nodes of the default scene, the first scene, or
// every parentless node when the file declares no scenes.
func rootNodes(doc *gltf.Document) []int {
	if len(doc.Scenes) > 0 {
		idx := 0
		if doc.Scene != nil && *doc.Scene < len(doc.Scenes) {
			idx = *doc.Scene
		}
		return doc.Scenes[idx].Nodes
	}

	isChild := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(isChild) {
				isChild[c] = true
			}
		}
	}
	var roots []int
	for i := range doc.Nodes {
		if !isChild[i] {
			roots = append(roots, i)
		}
	}
	return roots
}

type walker struct {
	loader    *GLTFLoader
	doc       *gltf.Document
	scene     *Scene
	visited   map[int]bool
	hasCamera bool
}

func (w *walker) walk(idx int, parent math3d.Mat4) error {
	if idx < 0 || idx >= len(w.doc.Nodes) {
		return fmt.Errorf("node %d out of range", idx)
	}
	if w.visited[idx] {
		return fmt.Errorf("node %d: cycle in node hierarchy", idx)
	}
	w.visited[idx] = true
	defer delete(w.visited, idx)

	node := w.doc.Nodes[idx]
	world := parent.Mul(nodeMatrix(node))

	if node.Mesh != nil {
		if *node.Mesh >= len(w.doc.Meshes) {
			return fmt.Errorf("node %d: mesh %d out of range", idx, *node.Mesh)
		}
		m := w.doc.Meshes[*node.Mesh]
		mesh, err := w.loader.processMesh(w.doc, m)
		if err != nil {
			return fmt.Errorf("process mesh %q: %w", m.Name, err)
		}
		mesh.Transform(world)
		w.scene.AddMesh(mesh)
	}

	if node.Camera != nil && !w.hasCamera {
		if cam, ok := convertCamera(w.doc, *node.Camera, world); ok {
			w.scene.Camera = cam
			w.hasCamera = true
		}
	}

	for _, c := range node.Children {
		if err := w.walk(c, world); err != nil {
			return err
		}
	}
	return nil
}

// nodeMatrix returns the local transform of a node. A node carries
// either a matrix or a TRS triple; zero values mean the defaults.
func nodeMatrix(n *gltf.Node) math3d.Mat4 {
	m := math3d.Mat4(n.Matrix)
	if m != (math3d.Mat4{}) && m != math3d.Identity() {
		return m
	}

	t := math3d.V3(n.Translation[0], n.Translation[1], n.Translation[2])
	r := n.Rotation
	if r == [4]float64{} {
		r = [4]float64{0, 0, 0, 1}
	}
	s := math3d.V3(n.Scale[0], n.Scale[1], n.Scale[2])
	if s == (math3d.Vec3{}) {
		s = math3d.Splat3(1)
	}
	return math3d.TRS(t, r, s)
}

func convertCamera(doc *gltf.Document, idx int, world math3d.Mat4) (Camera, bool) {
	if idx < 0 || idx >= len(doc.Cameras) {
		return Camera{}, false
	}
	c := doc.Cameras[idx]
	if c.Perspective == nil {
		logger.Warningf("camera %q: only perspective cameras are supported", c.Name)
		return Camera{}, false
	}

	cam := Camera{Transform: world, FOV: c.Perspective.Yfov}
	if c.Perspective.AspectRatio != nil {
		cam.AspectRatio = *c.Perspective.AspectRatio
	}
	if cam.FOV <= 0 {
		cam.FOV = DefaultFOV
	}
	return cam, true
}

// processMesh extracts the triangles of every primitive of m.
func (l *GLTFLoader) processMesh(doc *gltf.Document, m *gltf.Mesh) (*Mesh, error) {
	mesh := NewMesh(m.Name)

	for i, prim := range m.Primitives {
		part, err := l.processPrimitive(doc, prim)
		if errors.Is(err, ErrUnsupportedPrimitive) {
			logger.Warningf("mesh %q primitive %d: %v, skipping", m.Name, i, err)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("primitive %d: %w", i, err)
		}
		mesh.Append(part)
	}
	return mesh, nil
}

func (l *GLTFLoader) processPrimitive(doc *gltf.Document, prim *gltf.Primitive) (*Mesh, error) {
	switch prim.Mode {
	case gltf.PrimitiveTriangles, gltf.PrimitiveTriangleStrip, gltf.PrimitiveTriangleFan:
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPrimitive, prim.Mode)
	}

	mesh := NewMesh("")

	posIdx, ok := prim.Attributes[gltf.POSITION]
	if !ok {
		return mesh, nil
	}
	positions, err := readVec3Accessor(doc, posIdx)
	if err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}

	var normals []math3d.Vec3
	if normIdx, ok := prim.Attributes[gltf.NORMAL]; ok {
		normals, err = readVec3Accessor(doc, normIdx)
		if err != nil {
			return nil, fmt.Errorf("read normals: %w", err)
		}
	}

	var uvs []math3d.Vec2
	if uvIdx, ok := prim.Attributes[gltf.TEXCOORD_0]; ok {
		uvs, err = readVec2Accessor(doc, uvIdx)
		if err != nil {
			return nil, fmt.Errorf("read uvs: %w", err)
		}
	}

	for i := range positions {
		v := MeshVertex{Position: positions[i]}
		if i < len(normals) {
			v.Normal = normals[i]
		}
		if i < len(uvs) {
			v.UV = uvs[i]
			v.HasUV = true
		}
		mesh.Vertices = append(mesh.Vertices, v)
	}

	var indices []int
	if prim.Indices != nil {
		indices, err = readIndices(doc, *prim.Indices)
		if err != nil {
			return nil, fmt.Errorf("read indices: %w", err)
		}
	} else {
		indices = make([]int, len(positions))
		for i := range indices {
			indices[i] = i
		}
	}
	for _, idx := range indices {
		if idx < 0 || idx >= len(positions) {
			return nil, fmt.Errorf("index %d out of range for %d vertices", idx, len(positions))
		}
	}

	mat := geometry.NoMaterial
	if prim.Material != nil {
		mat = *prim.Material
	}
	for _, tri := range triangulate(prim.Mode, indices) {
		mesh.Faces = append(mesh.Faces, Face{V: tri, Material: mat})
	}

	if l.CalculateNormals && len(normals) == 0 {
		if l.SmoothNormals {
			mesh.CalculateSmoothNormals()
		} else {
			mesh.CalculateNormals()
		}
	}
	mesh.CalculateBounds()
	return mesh, nil
}

// triangulate turns an index stream into triangles according to mode.
func triangulate(mode gltf.PrimitiveMode, idx []int) [][3]int {
	var tris [][3]int
	switch mode {
	case gltf.PrimitiveTriangleStrip:
		for i := 0; i+2 < len(idx); i++ {
			if i%2 == 0 {
				tris = append(tris, [3]int{idx[i], idx[i+1], idx[i+2]})
			} else {
				tris = append(tris, [3]int{idx[i+1], idx[i], idx[i+2]})
			}
		}
	case gltf.PrimitiveTriangleFan:
		for i := 1; i+1 < len(idx); i++ {
			tris = append(tris, [3]int{idx[0], idx[i], idx[i+1]})
		}
	default:
		for i := 0; i+2 < len(idx); i += 3 {
			tris = append(tris, [3]int{idx[i], idx[i+1], idx[i+2]})
		}
	}
	return tris
}

// convertMaterial maps a metallic-roughness material onto the four
// material kinds: transmission makes glass, any emission makes a light,
// metallic below one is diffuse, the rest is metal.
func convertMaterial(idx int, m *gltf.Material) material.Material {
	baseFactor := [4]float64{1, 1, 1, 1}
	metallic, roughness := 1.0, 1.0
	color := material.Solid(geometry.White)

	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			baseFactor = *pbr.BaseColorFactor
		}
		if pbr.MetallicFactor != nil {
			metallic = *pbr.MetallicFactor
		}
		if pbr.RoughnessFactor != nil {
			roughness = *pbr.RoughnessFactor
		}
		base := geometry.RGB(baseFactor[0], baseFactor[1], baseFactor[2])
		color = material.Solid(base)
		if pbr.BaseColorTexture != nil {
			color = material.Sampler{Texture: pbr.BaseColorTexture.Index, Color: base}
		}
	}

	name := m.Name
	if name == "" {
		name = fmt.Sprintf("material%d", idx)
	}

	var transmission struct {
		TransmissionFactor float64 `json:"transmissionFactor"`
	}
	if extension(m.Extensions, extTransmission, &transmission) {
		ior := struct {
			IOR float64 `json:"ior"`
		}{IOR: material.DefaultIOR}
		extension(m.Extensions, extIOR, &ior)
		return material.NewGlass(color, ior.IOR).Named(name)
	}

	emission := geometry.RGB(m.EmissiveFactor[0], m.EmissiveFactor[1], m.EmissiveFactor[2])
	if emission.MaxChannel() > 0 {
		strength := struct {
			EmissiveStrength float64 `json:"emissiveStrength"`
		}{EmissiveStrength: 1}
		extension(m.Extensions, extEmissiveStrength, &strength)
		return material.NewEmissive(emission.Scale(strength.EmissiveStrength)).Named(name)
	}

	if metallic < 1 {
		return material.NewDiffuse(color).Named(name)
	}
	return material.NewMetal(color, roughness).Named(name)
}

// extension decodes the named extension into v. Unregistered extensions
// arrive as raw JSON; anything else is round-tripped through JSON.
func extension(exts gltf.Extensions, name string, v any) bool {
	raw, ok := exts[name]
	if !ok {
		return false
	}

	var data []byte
	switch r := raw.(type) {
	case json.RawMessage:
		data = r
	case []byte:
		data = r
	default:
		var err error
		if data, err = json.Marshal(r); err != nil {
			logger.Warningf("extension %s: %v", name, err)
			return true
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		logger.Warningf("extension %s: %v", name, err)
	}
	return true
}

// srgbTextures returns the textures referenced as base color. Those hold
// sRGB-encoded color and are linearized on load.
func srgbTextures(doc *gltf.Document) map[int]bool {
	srgb := make(map[int]bool)
	for _, m := range doc.Materials {
		if m.PBRMetallicRoughness != nil && m.PBRMetallicRoughness.BaseColorTexture != nil {
			srgb[m.PBRMetallicRoughness.BaseColorTexture.Index] = true
		}
	}
	return srgb
}

// loadTextures decodes one texture per glTF texture entry, in order, so a
// material's texture index addresses the result directly.
func loadTextures(doc *gltf.Document, dir string, srgb map[int]bool) ([]material.Texture, error) {
	textures := make([]material.Texture, 0, len(doc.Textures))

	for i, t := range doc.Textures {
		if t.Source == nil || *t.Source >= len(doc.Images) {
			logger.Warningf("texture %d has no image source", i)
			textures = append(textures, *material.NewCheckerTexture(2, 2, 1, geometry.Magenta, geometry.Black))
			continue
		}

		data, err := imageData(doc, doc.Images[*t.Source], dir)
		if err != nil {
			return nil, fmt.Errorf("texture %d: %w", i, err)
		}
		tex, err := material.DecodeTexture(data, srgb[i])
		if err != nil {
			return nil, fmt.Errorf("texture %d: %w", i, err)
		}

		if t.Sampler != nil && *t.Sampler < len(doc.Samplers) {
			s := doc.Samplers[*t.Sampler]
			tex.WrapU = wrapMode(s.WrapS)
			tex.WrapV = wrapMode(s.WrapT)
		}
		textures = append(textures, *tex)
	}
	return textures, nil
}

func wrapMode(m gltf.WrappingMode) material.WrapMode {
	switch m {
	case gltf.WrapClampToEdge:
		return material.WrapClamp
	case gltf.WrapMirroredRepeat:
		return material.WrapMirror
	default:
		return material.WrapRepeat
	}
}

// imageData returns the encoded bytes of an image stored in a buffer
// view, a data URI, or a file next to the document.
func imageData(doc *gltf.Document, img *gltf.Image, dir string) ([]byte, error) {
	if img.BufferView != nil {
		if *img.BufferView >= len(doc.BufferViews) {
			return nil, fmt.Errorf("image buffer view %d out of range", *img.BufferView)
		}
		return bufferViewData(doc, doc.BufferViews[*img.BufferView])
	}

	if img.IsEmbeddedResource() {
		data, err := img.MarshalData()
		if err != nil {
			return nil, fmt.Errorf("decode image data uri: %w", err)
		}
		return data, nil
	}

	if img.URI == "" {
		return nil, errors.New("image has neither uri nor buffer view")
	}
	uri, err := url.PathUnescape(img.URI)
	if err != nil {
		uri = img.URI
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(uri)))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return data, nil
}

func bufferViewData(doc *gltf.Document, bv *gltf.BufferView) ([]byte, error) {
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, fmt.Errorf("buffer %d out of range", bv.Buffer)
	}
	data := doc.Buffers[bv.Buffer].Data
	if data == nil {
		return nil, errors.New("buffer has no data")
	}
	end := bv.ByteOffset + bv.ByteLength
	if bv.ByteOffset < 0 || end > len(data) {
		return nil, fmt.Errorf("buffer view [%d, %d) exceeds buffer of %d bytes", bv.ByteOffset, end, len(data))
	}
	return data[bv.ByteOffset:end], nil
}

// readVec3Accessor reads float VEC3 data from a glTF accessor.
func readVec3Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec3, error) {
	floats, err := readFloats(doc, accessorIdx, gltf.AccessorVec3)
	if err != nil {
		return nil, err
	}
	result := make([]math3d.Vec3, len(floats))
	for i, f := range floats {
		result[i] = math3d.V3(f[0], f[1], f[2])
	}
	return result, nil
}

// readVec2Accessor reads VEC2 data, float or normalized integers.
func readVec2Accessor(doc *gltf.Document, accessorIdx int) ([]math3d.Vec2, error) {
	floats, err := readFloats(doc, accessorIdx, gltf.AccessorVec2)
	if err != nil {
		return nil, err
	}
	result := make([]math3d.Vec2, len(floats))
	for i, f := range floats {
		result[i] = math3d.V2(f[0], f[1])
	}
	return result, nil
}

// readIndices reads index data from a glTF accessor.
func readIndices(doc *gltf.Document, accessorIdx int) ([]int, error) {
	accessor, data, stride, err := accessorView(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if accessor.Type != gltf.AccessorScalar {
		return nil, fmt.Errorf("expected SCALAR indices, got %v", accessor.Type)
	}

	size := componentSize(accessor.ComponentType)
	if stride == 0 {
		stride = size
	}
	if err := checkBounds(accessor, data, stride, size); err != nil {
		return nil, err
	}

	result := make([]int, accessor.Count)
	for i := range result {
		b := data[accessor.ByteOffset+i*stride:]
		switch accessor.ComponentType {
		case gltf.ComponentUbyte:
			result[i] = int(b[0])
		case gltf.ComponentUshort:
			result[i] = int(binary.LittleEndian.Uint16(b))
		case gltf.ComponentUint:
			result[i] = int(binary.LittleEndian.Uint32(b))
		default:
			return nil, fmt.Errorf("unexpected index component type: %v", accessor.ComponentType)
		}
	}
	return result, nil
}

// readFloats reads up to three components per element as float64.
func readFloats(doc *gltf.Document, accessorIdx int, want gltf.AccessorType) ([][3]float64, error) {
	accessor, data, stride, err := accessorView(doc, accessorIdx)
	if err != nil {
		return nil, err
	}
	if accessor.Type != want {
		return nil, fmt.Errorf("expected %v, got %v", want, accessor.Type)
	}

	n := 2
	if want == gltf.AccessorVec3 {
		n = 3
	}
	size := componentSize(accessor.ComponentType)
	if size == 0 {
		return nil, fmt.Errorf("unsupported component type: %v", accessor.ComponentType)
	}
	if accessor.ComponentType != gltf.ComponentFloat && !accessor.Normalized {
		return nil, fmt.Errorf("integer %v data must be normalized", want)
	}
	if stride == 0 {
		stride = size * n
	}
	if err := checkBounds(accessor, data, stride, size*n); err != nil {
		return nil, err
	}

	result := make([][3]float64, accessor.Count)
	for i := range result {
		base := accessor.ByteOffset + i*stride
		for j := range n {
			b := data[base+j*size:]
			switch accessor.ComponentType {
			case gltf.ComponentFloat:
				result[i][j] = float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
			case gltf.ComponentUbyte:
				result[i][j] = float64(b[0]) / 255
			case gltf.ComponentUshort:
				result[i][j] = float64(binary.LittleEndian.Uint16(b)) / 65535
			default:
				return nil, fmt.Errorf("unsupported component type: %v", accessor.ComponentType)
			}
		}
	}
	return result, nil
}

// accessorView resolves the buffer view bytes and stride of an accessor.
func accessorView(doc *gltf.Document, accessorIdx int) (*gltf.Accessor, []byte, int, error) {
	if accessorIdx < 0 || accessorIdx >= len(doc.Accessors) {
		return nil, nil, 0, fmt.Errorf("accessor %d out of range", accessorIdx)
	}
	accessor := doc.Accessors[accessorIdx]
	if accessor.BufferView == nil {
		return nil, nil, 0, errors.New("accessor has no buffer view")
	}
	if *accessor.BufferView >= len(doc.BufferViews) {
		return nil, nil, 0, fmt.Errorf("buffer view %d out of range", *accessor.BufferView)
	}
	bv := doc.BufferViews[*accessor.BufferView]
	data, err := bufferViewData(doc, bv)
	if err != nil {
		return nil, nil, 0, err
	}
	return accessor, data, bv.ByteStride, nil
}

func checkBounds(a *gltf.Accessor, data []byte, stride, elem int) error {
	if a.Count == 0 {
		return nil
	}
	end := a.ByteOffset + (a.Count-1)*stride + elem
	if end > len(data) {
		return fmt.Errorf("accessor needs %d bytes, buffer view has %d", end, len(data))
	}
	return nil
}

func componentSize(c gltf.ComponentType) int {
	switch c {
	case gltf.ComponentUbyte, gltf.ComponentByte:
		return 1
	case gltf.ComponentUshort, gltf.ComponentShort:
		return 2
	case gltf.ComponentUint, gltf.ComponentFloat:
		return 4
	default:
		return 0
	}
}
