package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/go-svc-bridge/internal/cache"
	"github.com/example/go-svc-bridge/internal/config"
	"github.com/example/go-svc-bridge/internal/pipeline"
	"github.com/example/go-svc-bridge/internal/server"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the voice conversion HTTP server",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			store, err := cache.New(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}

			pipe := pipeline.New(cfg, store, slog.Default())

			srv := server.New(cfg, pipe).
				WithShutdownTimeout(time.Duration(cfg.Server.ShutdownTimeout) * time.Second)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return srv.Start(ctx)
		},
	}

	defaults := config.DefaultConfig()
	config.RegisterFlags(cmd.Flags(), defaults)

	return cmd
}
