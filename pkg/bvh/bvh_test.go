package bvh

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/math3d"
)

func vertex(x, y, z float64) geometry.Vertex {
	return geometry.Vertex{Position: math3d.V3(x, y, z)}
}

// randomSoup returns n small triangles scattered through a 20 unit cube.
func randomSoup(rng *rand.Rand, n int) []geometry.Triangle {
	tris := make([]geometry.Triangle, n)
	for i := range tris {
		c := math3d.V3(rng.Float64()*20-10, rng.Float64()*20-10, rng.Float64()*20-10)
		jitter := func() math3d.Vec3 {
			return math3d.V3(rng.Float64()*2-1, rng.Float64()*2-1, rng.Float64()*2-1)
		}
		a, b, d := c.Add(jitter()), c.Add(jitter()), c.Add(jitter())
		tris[i] = geometry.NewTriangle(
			geometry.Vertex{Position: a},
			geometry.Vertex{Position: b},
			geometry.Vertex{Position: d},
			i%4,
		)
	}
	return tris
}

func randomRay(rng *rand.Rand) geometry.Ray {
	origin := math3d.V3(rng.Float64()*30-15, rng.Float64()*30-15, rng.Float64()*30-15)
	target := math3d.V3(rng.Float64()*10-5, rng.Float64()*10-5, rng.Float64()*10-5)
	return geometry.NewRay(origin, target.Sub(origin).Normalize())
}

func TestIntersectMatchesBruteForce(t *testing.T) {
	tests := []struct {
		name string
		n    int
		seed int64
	}{
		{"single", 1, 1},
		{"few", 7, 2},
		{"hundreds", 500, 3},
		{"thousands", 3000, 4},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(tc.seed))
			b := New(randomSoup(rng, tc.n))
			if err := b.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}

			hits := 0
			for range 2000 {
				r := randomRay(rng)
				got, gotOK := b.Intersect(r)
				want, wantOK := b.IntersectBrute(r)
				if gotOK != wantOK {
					t.Fatalf("ray %v: Intersect hit=%v, brute force hit=%v", r, gotOK, wantOK)
				}
				if !gotOK {
					continue
				}
				hits++
				if math.Abs(got.T-want.T) > 1e-9 {
					t.Fatalf("ray %v: t=%v, brute force t=%v", r, got.T, want.T)
				}
			}
			if tc.n >= 500 && hits == 0 {
				t.Error("expected at least some rays to hit")
			}
			if b.Overflows() != 0 {
				t.Errorf("Overflows = %d, want 0", b.Overflows())
			}
		})
	}
}

func TestPartitionInvariant(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	b := New(randomSoup(rng, 1000))
	nodes := b.Nodes()

	if len(nodes) > 2*b.Len()-1 {
		t.Fatalf("%d nodes for %d triangles", len(nodes), b.Len())
	}
	if len(nodes) == 1 {
		t.Fatal("1000 scattered triangles should split at least once")
	}

	// span returns the range covered by the leaves below idx.
	var span func(idx int) (int, int)
	span = func(idx int) (int, int) {
		n := nodes[idx]
		if n.IsLeaf() {
			return n.FirstTri, n.FirstTri + n.TriCount
		}
		ls, le := span(n.LeftChild)
		rs, re := span(n.LeftChild + 1)
		if le != rs {
			t.Errorf("node %d: left ends at %d, right starts at %d", idx, le, rs)
		}
		if ls >= le || rs >= re {
			t.Errorf("node %d has an empty child", idx)
		}
		return ls, re
	}

	first, end := span(0)
	if first != 0 || end != b.Len() {
		t.Errorf("root covers [%d, %d), want [0, %d)", first, end, b.Len())
	}
}

func TestBuildDeterminism(t *testing.T) {
	soup := randomSoup(rand.New(rand.NewSource(7)), 800)
	a := append([]geometry.Triangle(nil), soup...)
	c := append([]geometry.Triangle(nil), soup...)

	b1, b2 := New(a), New(c)
	n1, n2 := b1.Nodes(), b2.Nodes()
	if len(n1) != len(n2) {
		t.Fatalf("node counts differ: %d vs %d", len(n1), len(n2))
	}
	for i := range n1 {
		if n1[i] != n2[i] {
			t.Fatalf("node %d differs: %+v vs %+v", i, n1[i], n2[i])
		}
	}
	for i, tri := range b1.Triangles() {
		if tri != b2.Triangles()[i] {
			t.Fatalf("triangle %d differs after build", i)
		}
	}
}

func TestEmpty(t *testing.T) {
	b := New(nil)
	r := geometry.NewRay(math3d.V3(0, 0, 0), math3d.V3(0, 0, -1))
	if _, ok := b.Intersect(r); ok {
		t.Error("empty BVH reported a hit")
	}
	if err := b.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
	if s := b.Stats(); s.Nodes != 0 || s.Leaves != 0 {
		t.Errorf("Stats = %+v, want zero", s)
	}
	if !b.Bounds().IsEmpty() {
		t.Error("Bounds should be empty")
	}
}

func TestCoincidentCentroidsStayLeaf(t *testing.T) {
	// Identical triangles cannot be separated by any plane.
	tri := geometry.NewTriangle(vertex(0, 0, 0), vertex(1, 0, 0), vertex(0, 1, 0), 0)
	tris := []geometry.Triangle{tri, tri, tri, tri, tri}

	b := New(tris)
	if len(b.Nodes()) != 1 || !b.Nodes()[0].IsLeaf() {
		t.Fatalf("nodes = %+v, want a single leaf", b.Nodes())
	}
	hit, ok := b.Intersect(geometry.NewRay(math3d.V3(0.25, 0.25, 1), math3d.V3(0, 0, -1)))
	if !ok || hit.T != 1 {
		t.Errorf("hit = %+v, %v; want t=1", hit, ok)
	}
}

func TestNearestHitAcrossChildren(t *testing.T) {
	// A row of parallel quads along -Z; the ray must report the closest.
	var tris []geometry.Triangle
	for i := range 16 {
		z := -float64(i)
		tris = append(tris,
			geometry.NewTriangle(vertex(-1, -1, z), vertex(1, -1, z), vertex(1, 1, z), i),
			geometry.NewTriangle(vertex(-1, -1, z), vertex(1, 1, z), vertex(-1, 1, z), i),
		)
	}
	b := New(tris)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name     string
		origin   math3d.Vec3
		dir      math3d.Vec3
		wantT    float64
		material int
	}{
		{"from front", math3d.V3(0.1, 0.2, 5), math3d.V3(0, 0, -1), 5, 0},
		{"from back", math3d.V3(0.1, 0.2, -20), math3d.V3(0, 0, 1), 5, 15},
		{"between planes", math3d.V3(0.1, 0.2, -6.5), math3d.V3(0, 0, -1), 0.5, 7},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			hit, ok := b.Intersect(geometry.NewRay(tc.origin, tc.dir))
			if !ok {
				t.Fatal("expected hit")
			}
			if math.Abs(hit.T-tc.wantT) > 1e-9 {
				t.Errorf("t = %v, want %v", hit.T, tc.wantT)
			}
			if hit.Material != tc.material {
				t.Errorf("material = %d, want %d", hit.Material, tc.material)
			}
		})
	}
}

func TestStackOverflowAbortsRay(t *testing.T) {
	// Hand-built chain deeper than the stack: every internal node has a
	// far leaf and a near internal child, so each level pushes once.
	tri := geometry.NewTriangle(vertex(5.5, -1, -1), vertex(5.5, 2, -1), vertex(5.5, -1, 2), 0)
	chainBox := geometry.NewAABB(math3d.V3(-1, -1, -1), math3d.V3(10, 1, 1))
	leafBox := geometry.NewAABB(math3d.V3(5, -1, -1), math3d.V3(6, 2, 2))

	const depth = StackSize + 8
	var nodes []Node
	for i := range depth {
		idx := len(nodes)
		nodes = append(nodes, Node{Bounds: chainBox, LeftChild: idx + 1})
		nodes = append(nodes, Node{Bounds: leafBox, FirstTri: 0, TriCount: 1})
		if i == depth-1 {
			nodes[idx] = Node{Bounds: chainBox, FirstTri: 0, TriCount: 1}
			nodes = nodes[:idx+1]
		}
	}

	b := &BVH{nodes: nodes, triangles: []geometry.Triangle{tri}}
	r := geometry.NewRay(math3d.V3(0, 0.5, 0.5), math3d.V3(1, 0, 0))

	if _, ok := b.Intersect(r); ok {
		t.Error("overflowing traversal must report a miss")
	}
	if b.Overflows() != 1 {
		t.Errorf("Overflows = %d, want 1", b.Overflows())
	}
	if err := b.Err(); !errors.Is(err, ErrStackOverflow) {
		t.Errorf("Err = %v, want ErrStackOverflow", err)
	}
}

func TestStats(t *testing.T) {
	b := New(randomSoup(rand.New(rand.NewSource(9)), 256))
	s := b.Stats()

	if s.Triangles != 256 {
		t.Errorf("Triangles = %d, want 256", s.Triangles)
	}
	if s.Nodes != len(b.Nodes()) {
		t.Errorf("Nodes = %d, want %d", s.Nodes, len(b.Nodes()))
	}
	// A full binary tree has one more leaf than internal nodes.
	if s.Leaves != (s.Nodes+1)/2 {
		t.Errorf("Leaves = %d for %d nodes", s.Leaves, s.Nodes)
	}
	if s.MaxDepth == 0 || s.MaxDepth >= StackSize {
		t.Errorf("MaxDepth = %d", s.MaxDepth)
	}
	if math.Abs(s.AvgLeafSize*float64(s.Leaves)-256) > 1e-9 {
		t.Errorf("AvgLeafSize = %v for %d leaves", s.AvgLeafSize, s.Leaves)
	}
}

func BenchmarkBuild(b *testing.B) {
	soup := randomSoup(rand.New(rand.NewSource(1)), 10000)
	work := make([]geometry.Triangle, len(soup))

	for b.Loop() {
		copy(work, soup)
		New(work)
	}
}

func BenchmarkIntersect(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	tree := New(randomSoup(rng, 10000))
	rays := make([]geometry.Ray, 1024)
	for i := range rays {
		rays[i] = randomRay(rng)
	}

	i := 0
	for b.Loop() {
		tree.Intersect(rays[i%len(rays)])
		i++
	}
}

func BenchmarkIntersectBrute(b *testing.B) {
	rng := rand.New(rand.NewSource(1))
	tree := New(randomSoup(rng, 10000))
	rays := make([]geometry.Ray, 1024)
	for i := range rays {
		rays[i] = randomRay(rng)
	}

	i := 0
	for b.Loop() {
		tree.IntersectBrute(rays[i%len(rays)])
		i++
	}
}
