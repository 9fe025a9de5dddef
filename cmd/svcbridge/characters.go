package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-svc-bridge/internal/bundle"
	"github.com/example/go-svc-bridge/internal/pipeline"
)

func newCharactersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "characters",
		Short: "List available characters",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			names, err := bundle.ListCharacters(cfg.Paths.ModelsDir, pipeline.ArchitectureName)
			if err != nil {
				return err
			}
			for _, name := range names {
				if _, err := fmt.Fprintln(os.Stdout, name); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
