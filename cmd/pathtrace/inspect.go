package main

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/urfave/cli"

	"github.com/taigrr/pathtrace/pkg/bvh"
	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/material"
	"github.com/taigrr/pathtrace/pkg/math3d"
	"github.com/taigrr/pathtrace/pkg/render"
	"github.com/taigrr/pathtrace/pkg/scene"
)

// InspectScene prints BVH statistics and optionally cross-checks traversal.
func InspectScene(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene argument")
	}

	var (
		sc  *scene.Scene
		err error
	)
	if ctx.Bool("builtin") {
		sc, err = scene.Builtin(ctx.Args().First())
	} else {
		sc, err = scene.Load(ctx.Args().First())
	}
	if err != nil {
		return err
	}

	accel := bvh.New(sc.Triangles)
	if err := accel.Validate(); err != nil {
		return fmt.Errorf("invalid bvh: %w", err)
	}

	if n := ctx.Int("check"); n > 0 {
		mismatches := checkTraversal(accel, n, ctx.Int64("seed"))
		if mismatches > 0 {
			return fmt.Errorf("%d of %d rays disagree with brute force", mismatches, n)
		}
		logger.Noticef("%d random rays agree with brute force", n)
	}

	fmt.Print(render.NewStats(sc, accel).Table())
	return nil
}

// checkTraversal shoots n random rays from inside the scene bounds and
// counts those where the BVH and the brute-force loop disagree.
func checkTraversal(accel *bvh.BVH, n int, seed int64) int {
	rng := rand.New(rand.NewSource(seed))
	bounds := accel.Bounds()
	size := bounds.Size()

	mismatches := 0
	for range n {
		origin := bounds.Min.Add(size.Mul(math3d.V3(rng.Float64(), rng.Float64(), rng.Float64())))
		ray := geometry.NewRay(origin, material.RandomUnitVector(rng))

		got, gotOK := accel.Intersect(ray)
		want, wantOK := accel.IntersectBrute(ray)
		if gotOK != wantOK || (gotOK && math.Abs(got.T-want.T) > 1e-9) {
			logger.Warningf("ray %v -> %v: bvh (%v, %v) brute force (%v, %v)",
				ray.Origin, ray.Direction, gotOK, got.T, wantOK, want.T)
			mismatches++
		}
	}
	return mismatches
}
