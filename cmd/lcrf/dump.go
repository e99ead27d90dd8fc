package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lcrf/internal/dump"
	"github.com/samcharles93/lcrf/pkg/lcrf"
)

func dumpCmd() *cli.Command {
	var model string

	return &cli.Command{
		Name:  "dump",
		Usage: "Print every chunk of an .lcrf model",
		Flags: []cli.Flag{modelFlag(&model)},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := lcrf.Open(resolveModelPath(model, modelsDir))
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()
			return dump.Text(cmd.Root().Writer, r)
		},
	}
}
