package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lcrf/internal/dump"
	"github.com/samcharles93/lcrf/pkg/lcrf"
)

func inspectCmd() *cli.Command {
	var (
		model  string
		asJSON bool
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Summarise the header and chunks of an .lcrf model",
		Flags: []cli.Flag{
			modelFlag(&model),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the summary as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			r, err := lcrf.Open(resolveModelPath(model, modelsDir))
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			out := cmd.Root().Writer
			if asJSON {
				return dump.JSON(out, r)
			}
			s, err := dump.Summarize(r)
			if err != nil {
				return err
			}
			return printSummary(out, s)
		},
	}
}

func printSummary(w io.Writer, s dump.Summary) error {
	chunks := make([]string, 0, len(s.Chunks))
	for _, c := range s.Chunks {
		chunks = append(chunks, fmt.Sprintf("%s@%d", c.Name, c.Offset))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "format:     %s/%s v%d\n", s.Magic, s.Type, s.Version)
	fmt.Fprintf(&b, "size:       %d bytes\n", s.Size)
	fmt.Fprintf(&b, "labels:     %d\n", s.Labels)
	fmt.Fprintf(&b, "attributes: %d\n", s.Attributes)
	fmt.Fprintf(&b, "features:   %d\n", s.Features)
	fmt.Fprintf(&b, "chunks:     %s\n", strings.Join(chunks, " "))
	if s.WeightRange != nil {
		fmt.Fprintf(&b, "weights:    [%g, %g]\n", s.WeightRange[0], s.WeightRange[1])
	}
	_, err := io.WriteString(w, b.String())
	return err
}
