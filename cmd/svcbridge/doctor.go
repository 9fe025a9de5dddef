package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/example/go-svc-bridge/internal/doctor"
	"github.com/example/go-svc-bridge/internal/pipeline"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run local toolchain and model checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			layout := pipeline.Layout{Root: cfg.Paths.RootDir}

			result := doctor.Run(doctor.Config{
				Interpreters:      layout.Interpreters(),
				ToolScripts:       layout.ToolScripts(),
				DefaultConfigPath: layout.DefaultConfigPath(),
				ModelsDir:         cfg.Paths.ModelsDir,
				CacheDir:          cfg.Paths.CacheDir,
			}, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}
}
