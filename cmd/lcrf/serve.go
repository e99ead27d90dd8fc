package main

import (
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/lcrf/internal/api"
	"github.com/samcharles93/lcrf/internal/logger"
	"github.com/samcharles93/lcrf/internal/version"
	"github.com/samcharles93/lcrf/pkg/lcrf"
)

func serveCmd() *cli.Command {
	var (
		model       string
		addr        string
		readTimeout time.Duration
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve read-only lookups over an .lcrf model",
		Flags: []cli.Flag{
			modelFlag(&model),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, cfg, &addr)

			path := resolveModelPath(model, modelsDir)
			r, err := lcrf.Open(path)
			if err != nil {
				return err
			}
			defer func() { _ = r.Close() }()

			name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			api.NewServer(r, name).Register(e)

			log.Info("starting server", "address", addr, "model", path,
				"labels", r.LabelCount(), "features", r.FeatureCount(), "version", version.String())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
