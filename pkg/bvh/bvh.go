// Package bvh implements a bounding volume hierarchy over triangles. The
// hierarchy is built once with a binned surface area heuristic and is
// read-only afterwards, so any number of goroutines may query it.
package bvh

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/log"
)

const (
	// Spaces is the number of bins per axis; Spaces-1 candidate planes
	// are evaluated on each axis.
	Spaces = 10

	// StackSize bounds the traversal stack.
	StackSize = 64
)

// ErrStackOverflow is reported by Err when at least one traversal ran out
// of stack and returned early.
var ErrStackOverflow = errors.New("bvh: traversal stack overflow")

// Node is one entry of the flattened hierarchy. Internal nodes keep their
// children at LeftChild and LeftChild+1; leaves own the triangle range
// [FirstTri, FirstTri+TriCount).
type Node struct {
	Bounds    geometry.AABB
	LeftChild int
	FirstTri  int
	TriCount  int
}

// IsLeaf reports whether the node references triangles directly.
func (n *Node) IsLeaf() bool {
	return n.TriCount > 0
}

// BVH owns the node array and the reordered triangle buffer.
type BVH struct {
	nodes     []Node
	triangles []geometry.Triangle
	overflows atomic.Int64
}

type builder struct {
	nodes     []Node
	triangles []geometry.Triangle
}

var logger = log.New("bvh")

// New builds the hierarchy over triangles. The slice is reordered in place
// and owned by the returned BVH.
func New(triangles []geometry.Triangle) *BVH {
	start := time.Now()

	n := len(triangles)
	if n == 0 {
		logger.Debug("empty triangle list, every query will miss")
		return &BVH{}
	}

	b := &builder{
		nodes:     make([]Node, 1, 2*n-1),
		triangles: triangles,
	}
	b.nodes[0] = Node{FirstTri: 0, TriCount: n}
	b.updateBounds(0)
	b.subdivide(0)

	bvh := &BVH{nodes: b.nodes, triangles: triangles}

	if log.Enabled("bvh", log.Debug) {
		s := bvh.Stats()
		logger.Debugf(
			"build time: %d ms, triangles: %d, nodes: %d, leaves: %d, max depth: %d, max leaf: %d",
			time.Since(start).Milliseconds(), s.Triangles, s.Nodes, s.Leaves, s.MaxDepth, s.MaxLeafSize,
		)
	}
	return bvh
}

func (b *builder) updateBounds(idx int) {
	node := &b.nodes[idx]
	box := geometry.EmptyAABB()
	for i := node.FirstTri; i < node.FirstTri+node.TriCount; i++ {
		tri := &b.triangles[i]
		for v := range tri.V {
			box.Grow(tri.V[v].Position)
		}
	}
	node.Bounds = box
}

// splitCost evaluates the SAH cost of splitting the node's range at pos on
// axis. Splits leaving a side empty, or costing nothing, are never taken.
func (b *builder) splitCost(node *Node, axis int, pos float64) float64 {
	left, right := geometry.EmptyAABB(), geometry.EmptyAABB()
	var lc, rc int

	for i := node.FirstTri; i < node.FirstTri+node.TriCount; i++ {
		tri := &b.triangles[i]
		if tri.Centroid.Axis(axis) < pos {
			lc++
			for v := range tri.V {
				left.Grow(tri.V[v].Position)
			}
		} else {
			rc++
			for v := range tri.V {
				right.Grow(tri.V[v].Position)
			}
		}
	}

	if lc == 0 || rc == 0 {
		return math.Inf(1)
	}
	cost := float64(lc)*left.Area() + float64(rc)*right.Area()
	if cost <= 0 {
		return math.Inf(1)
	}
	return cost
}

func (b *builder) bestSplit(node *Node) (axis int, pos, cost float64) {
	axis = -1
	cost = math.Inf(1)

	for a := range 3 {
		lo := node.Bounds.Min.Axis(a)
		extent := node.Bounds.Max.Axis(a) - lo
		for i := 1; i < Spaces; i++ {
			candidate := lo + extent*float64(i)/Spaces
			if c := b.splitCost(node, a, candidate); c < cost {
				axis, pos, cost = a, candidate, c
			}
		}
	}
	return axis, pos, cost
}

func (b *builder) subdivide(idx int) {
	node := &b.nodes[idx]

	axis, pos, cost := b.bestSplit(node)
	if axis < 0 || cost >= node.Bounds.Area()*float64(node.TriCount) {
		return
	}

	// Hoare partition of the range by centroid.
	i := node.FirstTri
	j := i + node.TriCount - 1
	for i <= j {
		if b.triangles[i].Centroid.Axis(axis) < pos {
			i++
		} else {
			b.triangles[i], b.triangles[j] = b.triangles[j], b.triangles[i]
			j--
		}
	}

	leftCount := i - node.FirstTri
	if leftCount == 0 || leftCount == node.TriCount {
		return
	}

	left := len(b.nodes)
	b.nodes = append(b.nodes,
		Node{FirstTri: node.FirstTri, TriCount: leftCount},
		Node{FirstTri: i, TriCount: node.TriCount - leftCount},
	)
	node = &b.nodes[idx]
	node.LeftChild = left
	node.TriCount = 0

	b.updateBounds(left)
	b.updateBounds(left + 1)
	b.subdivide(left)
	b.subdivide(left + 1)
}

type stackEntry struct {
	node  int
	entry float64
}

// Intersect returns the nearest triangle hit along r. A traversal that
// runs out of stack is abandoned and reported as a miss; see Err.
func (b *BVH) Intersect(r geometry.Ray) (geometry.HitRecord, bool) {
	if len(b.nodes) == 0 {
		return geometry.HitRecord{}, false
	}

	best := math.Inf(1)
	bestTri := -1

	if _, ok := b.nodes[0].Bounds.Hit(r, best); !ok {
		return geometry.HitRecord{}, false
	}

	var stack [StackSize]stackEntry
	sp := 0
	current := 0

	for {
		node := &b.nodes[current]

		if node.IsLeaf() {
			for i := node.FirstTri; i < node.FirstTri+node.TriCount; i++ {
				if t, ok := b.triangles[i].Hit(r); ok && t < best {
					best = t
					bestTri = i
				}
			}
		} else {
			l, rt := node.LeftChild, node.LeftChild+1
			tl, hitL := b.nodes[l].Bounds.Hit(r, best)
			tr, hitR := b.nodes[rt].Bounds.Hit(r, best)

			switch {
			case hitL && hitR:
				near, far, farT := l, rt, tr
				if tr < tl {
					near, far, farT = rt, l, tl
				}
				if sp == StackSize {
					b.overflows.Add(1)
					return geometry.HitRecord{}, false
				}
				stack[sp] = stackEntry{node: far, entry: farT}
				sp++
				current = near
				continue
			case hitL:
				current = l
				continue
			case hitR:
				current = rt
				continue
			}
		}

		// Pop, skipping subtrees that start beyond the best hit so far.
		for {
			if sp == 0 {
				return b.record(r, bestTri, best)
			}
			sp--
			if stack[sp].entry < best {
				current = stack[sp].node
				break
			}
		}
	}
}

func (b *BVH) record(r geometry.Ray, tri int, t float64) (geometry.HitRecord, bool) {
	if tri < 0 {
		return geometry.HitRecord{}, false
	}
	return b.triangles[tri].Record(r, t), true
}

// IntersectBrute tests every triangle. It answers the same query as
// Intersect and exists to cross-check the hierarchy.
func (b *BVH) IntersectBrute(r geometry.Ray) (geometry.HitRecord, bool) {
	best := math.Inf(1)
	bestTri := -1
	for i := range b.triangles {
		if t, ok := b.triangles[i].Hit(r); ok && t < best {
			best = t
			bestTri = i
		}
	}
	return b.record(r, bestTri, best)
}

// Nodes returns the flattened node array. Callers must not modify it.
func (b *BVH) Nodes() []Node {
	return b.nodes
}

// Triangles returns the reordered triangle buffer. Callers must not
// modify it.
func (b *BVH) Triangles() []geometry.Triangle {
	return b.triangles
}

// Len returns the number of triangles.
func (b *BVH) Len() int {
	return len(b.triangles)
}

// Bounds returns the box around the whole scene, or an empty box.
func (b *BVH) Bounds() geometry.AABB {
	if len(b.nodes) == 0 {
		return geometry.EmptyAABB()
	}
	return b.nodes[0].Bounds
}

// Overflows returns how many traversals ran out of stack.
func (b *BVH) Overflows() int64 {
	return b.overflows.Load()
}

// Err returns ErrStackOverflow if any traversal was cut short.
func (b *BVH) Err() error {
	if n := b.Overflows(); n > 0 {
		return fmt.Errorf("%w: %d rays", ErrStackOverflow, n)
	}
	return nil
}

// Stats summarizes the shape of the hierarchy.
type Stats struct {
	Triangles   int
	Nodes       int
	Leaves      int
	MaxDepth    int
	MaxLeafSize int
	AvgLeafSize float64
}

// Stats walks the hierarchy and collects its statistics.
func (b *BVH) Stats() Stats {
	s := Stats{Triangles: len(b.triangles), Nodes: len(b.nodes)}
	if len(b.nodes) == 0 {
		return s
	}
	b.collectStats(0, 0, &s)
	if s.Leaves > 0 {
		s.AvgLeafSize = float64(s.Triangles) / float64(s.Leaves)
	}
	return s
}

func (b *BVH) collectStats(idx, depth int, s *Stats) {
	node := &b.nodes[idx]
	if depth > s.MaxDepth {
		s.MaxDepth = depth
	}
	if node.IsLeaf() {
		s.Leaves++
		s.MaxLeafSize = max(s.MaxLeafSize, node.TriCount)
		return
	}
	b.collectStats(node.LeftChild, depth+1, s)
	b.collectStats(node.LeftChild+1, depth+1, s)
}

// Validate checks the structural invariants: every internal node's
// children split its triangle range without gap or overlap, the leaves
// cover the whole buffer, and every box contains its geometry.
func (b *BVH) Validate() error {
	if len(b.nodes) == 0 {
		if len(b.triangles) != 0 {
			return errors.New("bvh: triangles without nodes")
		}
		return nil
	}
	if len(b.nodes) > 2*len(b.triangles)-1 {
		return fmt.Errorf("bvh: %d nodes exceed the 2N-1 bound for %d triangles", len(b.nodes), len(b.triangles))
	}

	visited := make([]bool, len(b.nodes))
	first, count, err := b.validateNode(0, visited)
	if err != nil {
		return err
	}
	if first != 0 || count != len(b.triangles) {
		return fmt.Errorf("bvh: root covers [%d, %d), want [0, %d)", first, first+count, len(b.triangles))
	}
	return nil
}

func (b *BVH) validateNode(idx int, visited []bool) (first, count int, err error) {
	if idx < 0 || idx >= len(b.nodes) {
		return 0, 0, fmt.Errorf("bvh: node index %d out of range", idx)
	}
	if visited[idx] {
		return 0, 0, fmt.Errorf("bvh: node %d reachable twice", idx)
	}
	visited[idx] = true
	node := &b.nodes[idx]

	if node.IsLeaf() {
		end := node.FirstTri + node.TriCount
		if node.FirstTri < 0 || end > len(b.triangles) {
			return 0, 0, fmt.Errorf("bvh: leaf %d range [%d, %d) out of bounds", idx, node.FirstTri, end)
		}
		for i := node.FirstTri; i < end; i++ {
			if !node.Bounds.ContainsBox(b.triangles[i].Bounds()) {
				return 0, 0, fmt.Errorf("bvh: leaf %d does not contain triangle %d", idx, i)
			}
		}
		return node.FirstTri, node.TriCount, nil
	}

	l := node.LeftChild
	if l <= idx {
		return 0, 0, fmt.Errorf("bvh: node %d has child index %d", idx, l)
	}
	lf, lc, err := b.validateNode(l, visited)
	if err != nil {
		return 0, 0, err
	}
	rf, rc, err := b.validateNode(l+1, visited)
	if err != nil {
		return 0, 0, err
	}
	if lc == 0 || rc == 0 {
		return 0, 0, fmt.Errorf("bvh: node %d has an empty child", idx)
	}
	if lf+lc != rf {
		return 0, 0, fmt.Errorf("bvh: node %d children [%d, %d) and [%d, %d) are not contiguous", idx, lf, lf+lc, rf, rf+rc)
	}
	for _, c := range []int{l, l + 1} {
		if !node.Bounds.ContainsBox(b.nodes[c].Bounds) {
			return 0, 0, fmt.Errorf("bvh: node %d does not contain child %d", idx, c)
		}
	}
	return lf, lc + rc, nil
}
