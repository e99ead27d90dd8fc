package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lcrf/internal/modelspec"
)

func buildCmd() *cli.Command {
	var (
		specPath string
		outPath  string
	)

	return &cli.Command{
		Name:  "build",
		Usage: "Write an .lcrf model from a YAML or JSON description",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "spec",
				Aliases:     []string{"s"},
				Usage:       "model description (.yaml, .yml or .json)",
				Required:    true,
				Destination: &specPath,
			},
			&cli.StringFlag{
				Name:        "out",
				Aliases:     []string{"o"},
				Usage:       "output path (default: description path with .lcrf extension)",
				Destination: &outPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			s, err := modelspec.Load(specPath)
			if err != nil {
				return err
			}
			out := outPath
			if out == "" {
				out = strings.TrimSuffix(specPath, filepath.Ext(specPath)) + ".lcrf"
			} else {
				out = resolveModelPath(out, modelsDir)
			}
			res, err := modelspec.Build(ctx, s, out)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.Root().Writer, "%s: %d bytes, %d features (%d pruned), %d labels, %d attributes\n",
				res.Path, res.Size, res.Features, res.Pruned, res.Labels, res.Attrs)
			return err
		},
	}
}
