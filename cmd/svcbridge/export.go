package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-svc-bridge/internal/cache"
	"github.com/example/go-svc-bridge/internal/pipeline"
)

func newExportCmd() *cobra.Command {
	var character string
	var gpuID string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Run the one-time checkpoint export for a character",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if character == "" {
				return fmt.Errorf("--character is required")
			}

			store, err := cache.New(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}

			pipe := pipeline.New(cfg, store, slog.Default())
			path, ran, err := pipe.Export(cmd.Context(), character, gpuID)
			if err != nil {
				return err
			}

			if ran {
				_, err = fmt.Fprintf(os.Stdout, "exported: %s\n", path)
			} else {
				_, err = fmt.Fprintf(os.Stdout, "already exported: %s\n", path)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&character, "character", "", "Character name to export")
	cmd.Flags().StringVar(&gpuID, "gpu-id", "", "GPU id override for the export")

	return cmd
}
