package render

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/taigrr/pathtrace/pkg/bvh"
	"github.com/taigrr/pathtrace/pkg/scene"
)

// Stats describes a scene, its hierarchy and, after a render, the frame.
type Stats struct {
	Scene     string
	Materials int
	Textures  int
	BVH       bvh.Stats
	Overflows int64

	// Zero until a render has run.
	Options    Options
	RenderTime time.Duration
}

// NewStats gathers the scene and hierarchy figures.
func NewStats(sc *scene.Scene, accel *bvh.BVH) Stats {
	return Stats{
		Scene:     sc.Name,
		Materials: len(sc.Materials),
		Textures:  len(sc.Textures),
		BVH:       accel.Stats(),
		Overflows: accel.Overflows(),
	}
}

// Table renders the statistics as a text table.
func (s Stats) Table() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Section", "Item", "Value"})

	table.Append([]string{"Scene", "Name", s.Scene})
	table.Append([]string{"", "Triangles", fmt.Sprintf("%d", s.BVH.Triangles)})
	table.Append([]string{"", "Materials", fmt.Sprintf("%d", s.Materials)})
	table.Append([]string{"", "Textures", fmt.Sprintf("%d", s.Textures)})
	table.Append([]string{" ", " ", " "})
	table.Append([]string{"BVH", "Nodes", fmt.Sprintf("%d", s.BVH.Nodes)})
	table.Append([]string{"", "Leaves", fmt.Sprintf("%d", s.BVH.Leaves)})
	table.Append([]string{"", "Max depth", fmt.Sprintf("%d", s.BVH.MaxDepth)})
	table.Append([]string{"", "Leaf size", fmt.Sprintf("%.2f avg, %d max", s.BVH.AvgLeafSize, s.BVH.MaxLeafSize)})
	table.Append([]string{"", "Stack overflows", fmt.Sprintf("%d", s.Overflows)})

	if s.RenderTime > 0 {
		o := s.Options
		table.Append([]string{" ", " ", " "})
		table.Append([]string{"Frame", "Size", fmt.Sprintf("%dx%d", o.Width, o.Height)})
		table.Append([]string{"", "Samples", fmt.Sprintf("%dx%d aa, %d spp", o.AA, o.AA, o.SamplesPerPixel)})
		table.Append([]string{"", "Bounces", fmt.Sprintf("%d", o.Bounces)})
		table.SetFooter([]string{"", "Render time", s.RenderTime.Round(time.Millisecond).String()})
	}

	table.Render()
	return buf.String()
}
