package main

import (
	"os"

	"github.com/urfave/cli"

	"github.com/taigrr/pathtrace/pkg/render"
)

func main() {
	cli.VersionFlag = cli.BoolFlag{
		Name:  "version",
		Usage: "print only the version",
	}

	app := cli.NewApp()
	app.Name = "pathtrace"
	app.Usage = "render triangle scenes with a BVH path tracer"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "v",
			Usage: "enable verbose logging",
		},
		cli.BoolFlag{
			Name:  "vv",
			Usage: "enable even more verbose logging",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:  "render",
			Usage: "render a glTF scene to a PNG file",
			Description: `
Load a .gltf or .glb scene, build a BVH over its triangles and trace the
image. Node transforms, base colors, textures and the first perspective
camera are taken from the file; scenes without a camera are framed
automatically.`,
			ArgsUsage: "scene.glb",
			Flags:     renderFlags("frame.png"),
			Action:    RenderScene,
		},
		{
			Name:      "demo",
			Usage:     "render a built-in scene",
			ArgsUsage: "cornell|triangle",
			Flags:     renderFlags(""),
			Action:    RenderDemo,
		},
		{
			Name:  "inspect",
			Usage: "print scene and BVH statistics",
			Description: `
Build the BVH for a scene file (or a built-in scene with --builtin) and
print its shape. With --check N, N random rays are traced through both
the BVH and a brute-force loop and any disagreement is reported.`,
			ArgsUsage: "scene.glb",
			Flags: []cli.Flag{
				cli.IntFlag{
					Name:  "check",
					Value: 0,
					Usage: "number of random rays to compare against brute force",
				},
				cli.Int64Flag{
					Name:  "seed",
					Value: 1,
					Usage: "seed for the random rays",
				},
				cli.BoolFlag{
					Name:  "builtin",
					Usage: "treat the argument as a built-in scene name",
				},
			},
			Action: InspectScene,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func renderFlags(out string) []cli.Flag {
	defaults := render.DefaultOptions()
	return []cli.Flag{
		cli.IntFlag{
			Name:  "width",
			Value: defaults.Width,
			Usage: "frame width",
		},
		cli.IntFlag{
			Name:  "height",
			Value: defaults.Height,
			Usage: "frame height",
		},
		cli.IntFlag{
			Name:  "aa",
			Value: defaults.AA,
			Usage: "sub-pixel grid size (aa x aa cells per pixel)",
		},
		cli.IntFlag{
			Name:  "spp",
			Value: defaults.SamplesPerPixel,
			Usage: "paths traced per sub-pixel cell",
		},
		cli.IntFlag{
			Name:  "bounces",
			Value: defaults.Bounces,
			Usage: "maximum path depth",
		},
		cli.BoolTFlag{
			Name:  "jitter",
			Usage: "randomize sample positions inside each cell",
		},
		cli.IntFlag{
			Name:  "workers",
			Value: 0,
			Usage: "rows rendered concurrently (0 = number of CPUs)",
		},
		cli.Int64Flag{
			Name:  "seed",
			Value: defaults.Seed,
			Usage: "random seed; equal seeds give equal images",
		},
		cli.StringFlag{
			Name:  "background",
			Value: "sky",
			Usage: `"sky" for a gradient or "r,g,b" for a constant linear color`,
		},
		cli.StringFlag{
			Name:  "out, o",
			Value: out,
			Usage: "image filename for the rendered frame",
		},
		cli.BoolFlag{
			Name:  "preview",
			Usage: "show the frame in the terminal when done",
		},
	}
}
