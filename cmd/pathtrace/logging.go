package main

import (
	"github.com/urfave/cli"

	"github.com/taigrr/pathtrace/pkg/log"
)

var logger = log.New("pathtrace")

func setupLogging(ctx *cli.Context) {
	if ctx.GlobalBool("v") {
		log.SetLevel(log.Info)
	}

	if ctx.GlobalBool("vv") {
		log.SetLevel(log.Debug)
	}
}
