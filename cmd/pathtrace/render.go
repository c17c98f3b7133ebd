package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli"

	"github.com/taigrr/pathtrace/pkg/bvh"
	"github.com/taigrr/pathtrace/pkg/geometry"
	"github.com/taigrr/pathtrace/pkg/render"
	"github.com/taigrr/pathtrace/pkg/scene"
)

// RenderScene renders a scene file.
func RenderScene(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return errors.New("missing scene file argument")
	}
	sc, err := scene.Load(ctx.Args().First())
	if err != nil {
		return err
	}
	return renderFrame(ctx, sc, ctx.String("out"))
}

// RenderDemo renders one of the built-in scenes.
func RenderDemo(ctx *cli.Context) error {
	setupLogging(ctx)

	if ctx.NArg() != 1 {
		return fmt.Errorf("missing scene name argument (one of %s)", strings.Join(scene.BuiltinNames(), ", "))
	}
	name := ctx.Args().First()
	sc, err := scene.Builtin(name)
	if err != nil {
		return err
	}

	out := ctx.String("out")
	if out == "" {
		out = name + ".png"
	}
	return renderFrame(ctx, sc, out)
}

func renderFrame(ctx *cli.Context, sc *scene.Scene, out string) error {
	opts, err := optionsFromFlags(ctx)
	if err != nil {
		return err
	}

	buildStart := time.Now()
	accel := bvh.New(sc.Triangles)
	logger.Infof("built BVH over %d triangles in %v", accel.Len(), time.Since(buildStart))

	r, err := render.NewRenderer(sc, accel, opts)
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Progress bar
	r.Progress = render.NewProgress(opts.Height, 20)
	barCtx, stopBar := context.WithCancel(runCtx)
	barDone := make(chan struct{})
	go func() {
		defer close(barDone)
		r.Progress.Run(barCtx, os.Stderr)
	}()

	start := time.Now()
	img, err := r.Render(runCtx)
	stopBar()
	<-barDone
	if err != nil {
		if render.IsCanceled(err) {
			logger.Notice("render interrupted")
		}
		return err
	}

	stats := render.NewStats(sc, accel)
	stats.Options = opts
	stats.RenderTime = time.Since(start)
	logger.Noticef("frame statistics\n%s", stats.Table())

	if err := img.SavePNG(out); err != nil {
		return err
	}
	logger.Noticef("wrote %s", out)

	if ctx.Bool("preview") {
		return render.Preview(runCtx, img)
	}
	return nil
}

func optionsFromFlags(ctx *cli.Context) (render.Options, error) {
	opts := render.Options{
		Width:           ctx.Int("width"),
		Height:          ctx.Int("height"),
		AA:              ctx.Int("aa"),
		SamplesPerPixel: ctx.Int("spp"),
		Bounces:         ctx.Int("bounces"),
		Jitter:          ctx.BoolT("jitter"),
		Workers:         ctx.Int("workers"),
		Seed:            ctx.Int64("seed"),
	}

	bg, err := parseBackground(ctx.String("background"))
	if err != nil {
		return opts, err
	}
	opts.Background = bg

	return opts, opts.Validate()
}

// parseBackground accepts "sky" or a linear "r,g,b" triple.
func parseBackground(s string) (render.Background, error) {
	if s == "" || s == "sky" {
		return render.SkyBackground, nil
	}

	var r, g, b float64
	if _, err := fmt.Sscanf(s, "%g,%g,%g", &r, &g, &b); err != nil {
		return nil, fmt.Errorf("invalid background %q: want \"sky\" or \"r,g,b\"", s)
	}
	return render.SolidBackground(geometry.RGB(r, g, b)), nil
}
