package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tessera/internal/api"
	"github.com/samcharles93/tessera/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		batchLimit  int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the schedule API over HTTP",
		Flags: append(profileFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.IntFlag{
				Name:        "limit",
				Usage:       "requests of one batch scheduled at once (0 = GOMAXPROCS)",
				Destination: &batchLimit,
			},
		),
		Action: withSetup(func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, settings, &addr, &batchLimit)

			reg, err := loadRegistry()
			if err != nil {
				return err
			}
			server := api.NewServer(api.NewScheduleStore(), reg, api.Options{
				Logger:     log,
				BatchLimit: batchLimit,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)

			log.Info("starting server", "address", addr, "profiles", len(reg.All()))
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		}),
	}
}
