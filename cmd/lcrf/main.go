package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lcrf/internal/logger"
)

// cfg holds the loaded config file for commands that consult it directly.
var cfg Config

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "lcrf",
		Usage: "Build, inspect and serve lCRF model files",
		Flags: globalFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			path := configFile
			if path == "" {
				path = configPath()
			}
			loaded, err := LoadConfig(path)
			if err != nil {
				return ctx, err
			}
			cfg = loaded
			applyGlobalConfig(cmd, cfg)

			level := logLevel
			if debug {
				level = "debug"
			}
			log, err := logger.Build(os.Stderr, logFormat, level)
			if err != nil {
				return ctx, err
			}
			return logger.WithContext(ctx, log), nil
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			buildCmd(),
			dumpCmd(),
			inspectCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}
