package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/go-svc-bridge/internal/audio"
	"github.com/example/go-svc-bridge/internal/cache"
	"github.com/example/go-svc-bridge/internal/pipeline"
)

func newConvertCmd() *cobra.Command {
	var in string
	var out string
	var character string
	var shift int
	var gpuID string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a WAV recording to a character's voice",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if in == "" {
				return fmt.Errorf("--in is required")
			}
			if character == "" {
				return fmt.Errorf("--character is required")
			}
			if gpuID == "" {
				gpuID = cfg.Runtime.GPUID
			}

			store, err := cache.New(cfg.Paths.CacheDir)
			if err != nil {
				return err
			}

			samples, rate, err := audio.ReadWAVFile(in)
			if err != nil {
				return fmt.Errorf("read input %s: %w", in, err)
			}

			session := uuid.NewString()
			inputName := cacheKeyFor(in)
			outputName := cacheKeyFor(out)
			if err := store.Write(cache.StagePreprocessed, session, inputName, samples, rate); err != nil {
				return err
			}

			pipe := pipeline.New(cfg, store, slog.Default())
			err = pipe.Convert(cmd.Context(), pipeline.Request{
				UserAudio:  inputName,
				Character:  character,
				PitchShift: shift,
				OutputName: outputName,
				GPUID:      gpuID,
				SessionID:  session,
			})
			if err != nil {
				return err
			}

			converted, convertedRate, err := store.Read(cache.StageOutput, session, outputName)
			if err != nil {
				return err
			}
			if err := audio.WriteWAVFile(out, converted, convertedRate); err != nil {
				return fmt.Errorf("write output %s: %w", out, err)
			}

			_, err = fmt.Fprintln(os.Stdout, out)
			return err
		},
	}

	cmd.Flags().StringVar(&in, "in", "", "Input WAV file (mono 16-bit)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path")
	cmd.Flags().StringVar(&character, "character", "", "Target character name")
	cmd.Flags().IntVar(&shift, "shift", 0, "Pitch shift in semitones (signed)")
	cmd.Flags().StringVar(&gpuID, "gpu-id", "", "GPU id override for this conversion")

	return cmd
}

// cacheKeyFor derives a cache entry name from a file path: the base name
// without the .wav extension.
func cacheKeyFor(path string) string {
	return strings.TrimSuffix(filepath.Base(path), cache.Extension)
}
