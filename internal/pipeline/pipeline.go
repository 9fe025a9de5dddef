// Package pipeline orchestrates the multi-stage so-vits-svc conversion:
// audio ingestion, one-time checkpoint export, content-vector extraction,
// pitch extraction, hidden-unit extraction (V2 only), and synthesis. Each
// stage is an external tool run in its own subprocess; the orchestrator owns
// the per-run scratch directory and guarantees cleanup on every exit path.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/example/go-svc-bridge/internal/audio"
	"github.com/example/go-svc-bridge/internal/bundle"
	"github.com/example/go-svc-bridge/internal/cache"
	"github.com/example/go-svc-bridge/internal/config"
	"github.com/example/go-svc-bridge/internal/hardware"
	"github.com/example/go-svc-bridge/internal/runner"
)

// AudioCache is the audio store shared with the web layer. Implemented by
// cache.FileCache.
type AudioCache interface {
	Read(stage, session, name string) ([]float32, int, error)
	Write(stage, session, name string, samples []float32, sampleRate int) error
}

// pythonFor resolves the interpreter for a venv. Tests substitute a shell.
var pythonFor = func(l Layout, venv string) string {
	return l.Python(venv)
}

// Pipeline drives conversions. Constructed once at startup; read-only after.
type Pipeline struct {
	layout     Layout
	modelsDir  string
	defaultGPU string
	cache      AudioCache
	tools      *runner.Runner
	log        *slog.Logger
}

func New(cfg config.Config, store AudioCache, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		layout:     Layout{Root: cfg.Paths.RootDir},
		modelsDir:  cfg.Paths.ModelsDir,
		defaultGPU: cfg.Runtime.GPUID,
		cache:      store,
		tools:      runner.New(log),
		log:        log,
	}
}

// Request describes one conversion.
type Request struct {
	// UserAudio names the input entry in the preprocessed cache stage.
	UserAudio string
	Character string
	// PitchShift is a signed semitone count, passed through unvalidated; an
	// out-of-range value surfaces as a synthesis failure.
	PitchShift int
	// OutputName keys the result in the output cache stage.
	OutputName string
	// GPUID overrides the configured device for this request.
	GPUID string
	// SessionID scopes cache entries; one is generated when absent.
	SessionID string
}

// run is one conversion's execution context: the scratch directory and the
// intermediate artifact paths inside it. It lives exactly as long as the
// stage sequence and is destroyed by finalize.
type run struct {
	scratch   string
	inputPath string
	ppgPath   string
	pitchPath string
	vecPath   string
}

func newRun(l Layout) (*run, error) {
	scratch := filepath.Join(l.ScratchRoot(), uuid.NewString())
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &run{
		scratch:   scratch,
		inputPath: filepath.Join(scratch, "input"+cache.Extension),
		ppgPath:   filepath.Join(scratch, "svc_tmp.ppg.npy"),
		pitchPath: filepath.Join(scratch, "svc_tmp.pit.csv"),
		vecPath:   filepath.Join(scratch, "svc_tmp.vec.npy"),
	}, nil
}

// Convert runs the full stage sequence for one request. Bundle and
// checkpoint faults surface before any scratch file or stage subprocess is
// created; once the run starts, cleanup is guaranteed whether it completes
// or aborts.
func (p *Pipeline) Convert(ctx context.Context, req Request) (err error) {
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	b, spec, variant, err := p.prepare(ctx, req.Character)
	if err != nil {
		return err
	}

	r, err := newRun(p.layout)
	if err != nil {
		return err
	}
	defer func() {
		err = p.finalize(r, err)
	}()

	start := time.Now()
	env := hardware.Select(p.gpuFor(req.GPUID))

	for _, st := range p.steps(spec, b, r, req, env) {
		if stageErr := st.fn(ctx); stageErr != nil {
			return &StageError{Stage: st.stage, Err: stageErr}
		}
	}

	if err := p.captureOutput(spec, req); err != nil {
		return err
	}

	p.log.Info("conversion complete",
		slog.String("character", req.Character),
		slog.String("variant", variant.String()),
		slog.Int("pitch_shift", req.PitchShift),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return nil
}

// Export runs the one-time checkpoint export for a character ahead of any
// conversion. It reports the cached artifact path and whether the export
// tool actually ran.
func (p *Pipeline) Export(ctx context.Context, character, gpuID string) (string, bool, error) {
	b, spec, _, err := p.prepare(ctx, character)
	if err != nil {
		return "", false, err
	}
	if b.Exported() {
		return b.ExportedPath, false, nil
	}
	env := hardware.Select(p.gpuFor(gpuID))
	if err := p.exportIfNeeded(ctx, spec, b, env); err != nil {
		return "", false, &StageError{Stage: StageExport, Err: err}
	}
	return b.ExportedPath, true, nil
}

// ListCharacters enumerates the characters available to this pipeline.
func (p *Pipeline) ListCharacters() ([]string, error) {
	return bundle.ListCharacters(p.modelsDir, ArchitectureName)
}

// prepare resolves the character's assets and classifies its checkpoint.
func (p *Pipeline) prepare(ctx context.Context, character string) (bundle.Bundle, variantSpec, bundle.Variant, error) {
	dir, err := bundle.CharacterDir(p.modelsDir, ArchitectureName, character)
	if err != nil {
		return bundle.Bundle{}, variantSpec{}, 0, err
	}

	b, err := bundle.Resolve(dir, p.layout.DefaultConfigPath())
	if err != nil {
		return bundle.Bundle{}, variantSpec{}, 0, err
	}

	variant, err := bundle.DetectVariant(ctx, p.tools,
		pythonFor(p.layout, probeVenv), p.layout.Script(probeScriptName), b.CheckpointPath)
	if err != nil {
		return bundle.Bundle{}, variantSpec{}, 0, err
	}

	return b, variantSpecs[variant], variant, nil
}

type step struct {
	stage Stage
	fn    func(context.Context) error
}

// steps binds the variant's ordered stage list to stage implementations.
func (p *Pipeline) steps(spec variantSpec, b bundle.Bundle, r *run, req Request, env []string) []step {
	python := pythonFor(p.layout, spec.venv)
	arch := p.layout.ArchitectureRoot()

	fns := map[Stage]func(context.Context) error{
		StageIngest: func(context.Context) error {
			return p.ingest(req, r)
		},
		StageExport: func(ctx context.Context) error {
			return p.exportIfNeeded(ctx, spec, b, env)
		},
		StageContentVector: func(ctx context.Context) error {
			return p.tools.Run(ctx, runner.Invocation{
				Python: python,
				Script: p.layout.Script(contentVectorScriptName),
				Args:   []string{"--wav", r.inputPath, "--ppg", r.ppgPath},
				Dir:    arch,
				// Module search path required by the V1 toolchain and
				// harmless for V2.
				Env: append([]string{"PYTHONPATH=" + arch}, env...),
			})
		},
		StagePitch: func(ctx context.Context) error {
			return p.tools.Run(ctx, runner.Invocation{
				Python: python,
				Script: p.layout.Script(pitchScriptName),
				Args:   []string{"--wav", r.inputPath, "--pit", r.pitchPath},
				Dir:    arch,
				Env:    env,
			})
		},
		StageHiddenUnits: func(ctx context.Context) error {
			return p.tools.Run(ctx, runner.Invocation{
				Python: python,
				Script: p.layout.Script(hiddenUnitScriptName),
				Args:   []string{"--wav", r.inputPath, "--vec", r.vecPath},
				Dir:    arch,
				Env:    env,
			})
		},
		StageSynthesize: func(ctx context.Context) error {
			args := []string{
				"--config", b.ConfigPath,
				"--model", b.ExportedPath,
				"--spk", b.SpeakerPath,
				"--wave", r.inputPath,
				"--ppg", r.ppgPath,
				"--pit", r.pitchPath,
				"--shift", strconv.Itoa(req.PitchShift),
			}
			if spec.hiddenUnits {
				args = append(args, "--vec", r.vecPath)
			}
			return p.tools.Run(ctx, runner.Invocation{
				Python: python,
				Script: p.layout.Script(spec.inferenceScript),
				Args:   args,
				Dir:    arch,
				Env:    env,
			})
		},
	}

	ordered := spec.stages()
	out := make([]step, 0, len(ordered))
	for _, st := range ordered {
		out = append(out, step{stage: st, fn: fns[st]})
	}
	return out
}

// ingest copies the request's input audio from the cache into the scratch
// directory using the fixed intermediate encoding.
func (p *Pipeline) ingest(req Request, r *run) error {
	samples, rate, err := p.cache.Read(cache.StagePreprocessed, req.SessionID, req.UserAudio)
	if err != nil {
		return fmt.Errorf("fetch input from audio cache: %w", err)
	}
	return audio.WriteWAVFile(r.inputPath, samples, rate)
}

// exportIfNeeded produces the character's synthesis-ready checkpoint once.
// The check is the presence of the cached file itself; two concurrent first
// requests may both export, and the second copy harmlessly overwrites the
// first.
func (p *Pipeline) exportIfNeeded(ctx context.Context, spec variantSpec, b bundle.Bundle, env []string) error {
	if b.Exported() {
		p.log.Debug("export already cached", slog.String("path", b.ExportedPath))
		return nil
	}

	err := p.tools.Run(ctx, runner.Invocation{
		Python: pythonFor(p.layout, spec.venv),
		Script: p.layout.Script(exportScriptName),
		Args:   []string{"--config", b.ConfigPath, "--checkpoint_path", b.CheckpointPath},
		Dir:    p.layout.ArchitectureRoot(),
		Env:    env,
	})
	if err != nil {
		return err
	}

	if err := copyFile(p.layout.ExportDropPath(), b.ExportedPath); err != nil {
		return fmt.Errorf("cache exported checkpoint: %w", err)
	}
	return nil
}

// captureOutput moves the synthesis result from the tool's hardcoded output
// location into the audio cache.
func (p *Pipeline) captureOutput(spec variantSpec, req Request) error {
	samples, rate, err := audio.ReadWAVFile(p.layout.OutputPath(spec.outputFile))
	if err != nil {
		return fmt.Errorf("collect synthesis output: %w", err)
	}
	return p.cache.Write(cache.StageOutput, req.SessionID, req.OutputName, samples, rate)
}

// finalize removes every file the run may have produced. On failure it first
// folds any diagnostic log content into the returned error. It runs exactly
// once per run, on success and failure alike.
func (p *Pipeline) finalize(r *run, runErr error) error {
	outputs := make([]string, 0, 2)
	for _, name := range allOutputFiles() {
		outputs = append(outputs, p.layout.OutputPath(name))
	}
	files := gatherTempFiles(r.scratch, outputs)

	var report string
	if runErr != nil {
		report = BuildErrorReport(p.layout.ArchitectureRoot(), files)
	}

	for _, f := range files {
		if err := os.Remove(f); err != nil {
			p.log.Warn("cleanup failed",
				slog.String("file", f),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := os.RemoveAll(r.scratch); err != nil {
		p.log.Warn("scratch dir removal failed",
			slog.String("dir", r.scratch),
			slog.String("error", err.Error()),
		)
	}

	if runErr != nil && report != "" {
		return fmt.Errorf("%w\n%s", runErr, report)
	}
	return runErr
}

func (p *Pipeline) gpuFor(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultGPU
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
