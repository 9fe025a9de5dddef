package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/example/go-svc-bridge/internal/audio"
	"github.com/example/go-svc-bridge/internal/bundle"
	"github.com/example/go-svc-bridge/internal/cache"
	"github.com/example/go-svc-bridge/internal/config"
)

// testEnv builds a fake architecture root whose tools are shell scripts.
// pythonFor is swapped for /bin/sh so the scripts run without a Python venv.
type testEnv struct {
	p        *Pipeline
	store    *cache.FileCache
	root     string
	arch     string
	charDir  string
	calls    string
	envFile  string
	template string
}

func setupEnv(t *testing.T, probeOutput string) *testEnv {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use /bin/sh as a stand-in interpreter")
	}

	orig := pythonFor
	pythonFor = func(Layout, string) string { return "/bin/sh" }
	t.Cleanup(func() { pythonFor = orig })

	root := t.TempDir()
	side := t.TempDir() // recording files live outside the cleaned tree
	env := &testEnv{
		root:     root,
		arch:     filepath.Join(root, ArchitectureName),
		calls:    filepath.Join(side, "calls.txt"),
		envFile:  filepath.Join(side, "env.txt"),
		template: filepath.Join(side, "template.wav"),
	}

	if err := audio.WriteWAVFile(env.template, []float32{0, 0.1, -0.1, 0.2}, 44100); err != nil {
		t.Fatalf("write template wav: %v", err)
	}

	for _, dir := range []string{"whisper", "pitch", "hubert", "configs", "input"} {
		if err := os.MkdirAll(filepath.Join(env.arch, dir), 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	if err := os.WriteFile(filepath.Join(env.arch, "configs", "base.yaml"), []byte("base: {}\n"), 0o644); err != nil {
		t.Fatalf("write base config: %v", err)
	}

	record := func(name string) string {
		return "echo \"" + name + " $@\" >> " + env.calls + "\n"
	}
	env.writeTool(t, probeScriptName, record("probe")+"printf '"+probeOutput+"'\n")
	env.writeTool(t, exportScriptName, record("export")+"echo pth > "+exportedDropName+"\n")
	env.writeTool(t, contentVectorScriptName,
		record("content-vector")+
			"echo \"$PYTHONPATH|$CUDA_VISIBLE_DEVICES\" > "+env.envFile+"\n"+
			"touch \"$4\"\n")
	env.writeTool(t, pitchScriptName, record("pitch")+"touch \"$4\"\n")
	env.writeTool(t, hiddenUnitScriptName, record("hidden-units")+"touch \"$4\"\n")
	env.writeTool(t, "svc_inference.py", record("synthesize")+"cp '"+env.template+"' svc_out.wav\n")
	env.writeTool(t, "svc_inference_v2.py", record("synthesize")+"cp '"+env.template+"' svc_out_v2.wav\n")

	models := filepath.Join(root, "models")
	env.charDir = filepath.Join(models, ArchitectureName, "alto")
	if err := os.MkdirAll(filepath.Join(env.charDir, bundle.SingerDir), 0o755); err != nil {
		t.Fatalf("mkdir character: %v", err)
	}
	for _, f := range []string{"model.pt", filepath.Join(bundle.SingerDir, "voice.spk.npy")} {
		if err := os.WriteFile(filepath.Join(env.charDir, f), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", f, err)
		}
	}

	cacheDir := filepath.Join(root, "audio_cache")
	store, err := cache.New(cacheDir)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	if err := store.Write(cache.StagePreprocessed, "sess", "clip", []float32{0, 0.5, -0.5}, 44100); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	cfg := config.Config{
		Paths: config.PathsConfig{
			RootDir:   root,
			ModelsDir: models,
			CacheDir:  cacheDir,
		},
		Runtime: config.RuntimeConfig{GPUID: "0"},
	}
	env.p = New(cfg, store, nil)
	env.store = store
	return env
}

func (e *testEnv) writeTool(t *testing.T, rel, body string) {
	t.Helper()
	path := filepath.Join(e.arch, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", rel, err)
	}
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write tool %s: %v", rel, err)
	}
}

// calledStages returns the first token of each recorded tool call, in order.
func (e *testEnv) calledStages(t *testing.T) []string {
	t.Helper()
	data, err := os.ReadFile(e.calls)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		t.Fatalf("read calls: %v", err)
	}
	var names []string
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		names = append(names, strings.Fields(line)[0])
	}
	return names
}

func (e *testEnv) assertScratchEmpty(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(e.arch, "input"))
	if err != nil {
		t.Fatalf("read scratch root: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch root not empty: %v", entries)
	}
}

func (e *testEnv) request() Request {
	return Request{
		UserAudio:  "clip",
		Character:  "alto",
		PitchShift: 0,
		OutputName: "result",
		SessionID:  "sess",
	}
}

func TestConvertV1FullSequence(t *testing.T) {
	env := setupEnv(t, "1")

	if err := env.p.Convert(context.Background(), env.request()); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	want := []string{"probe", "export", "content-vector", "pitch", "synthesize"}
	got := env.calledStages(t)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("stage sequence = %v, want %v", got, want)
	}

	// Exported artifact is cached in the character directory.
	if _, err := os.Stat(filepath.Join(env.charDir, bundle.ExportedFilename)); err != nil {
		t.Errorf("exported checkpoint missing from bundle dir: %v", err)
	}

	// Output landed in the cache; fixed output path and scratch are gone.
	if _, _, err := env.store.Read(cache.StageOutput, "sess", "result"); err != nil {
		t.Errorf("output cache entry missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(env.arch, "svc_out.wav")); !os.IsNotExist(err) {
		t.Errorf("fixed output path still present (err=%v)", err)
	}
	env.assertScratchEmpty(t)
}

func TestConvertV2SkipsExportRunsHiddenUnits(t *testing.T) {
	env := setupEnv(t, "2")

	// A previous request already exported this character.
	if err := os.WriteFile(filepath.Join(env.charDir, bundle.ExportedFilename), []byte("pth"), 0o644); err != nil {
		t.Fatalf("seed exported checkpoint: %v", err)
	}

	if err := env.p.Convert(context.Background(), env.request()); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	want := []string{"probe", "content-vector", "pitch", "hidden-units", "synthesize"}
	got := env.calledStages(t)
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("stage sequence = %v, want %v", got, want)
	}
	env.assertScratchEmpty(t)
}

func TestConvertExportIdempotent(t *testing.T) {
	env := setupEnv(t, "1")

	if err := env.p.Convert(context.Background(), env.request()); err != nil {
		t.Fatalf("first Convert: %v", err)
	}
	if err := env.p.Convert(context.Background(), env.request()); err != nil {
		t.Fatalf("second Convert: %v", err)
	}

	exports := 0
	for _, name := range env.calledStages(t) {
		if name == "export" {
			exports++
		}
	}
	if exports != 1 {
		t.Errorf("export tool ran %d times, want 1", exports)
	}
}

func TestConvertSynthesisArgs(t *testing.T) {
	env := setupEnv(t, "2")
	req := env.request()
	req.PitchShift = -3

	if err := env.p.Convert(context.Background(), req); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	data, err := os.ReadFile(env.calls)
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	var synthLine string
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "synthesize ") {
			synthLine = line
		}
	}
	if synthLine == "" {
		t.Fatal("synthesize call not recorded")
	}
	for _, want := range []string{"--shift -3", "--vec", "--spk", "--model"} {
		if !strings.Contains(synthLine, want) {
			t.Errorf("synthesis args missing %q: %s", want, synthLine)
		}
	}
}

func TestConvertV1SynthesisOmitsHiddenUnits(t *testing.T) {
	env := setupEnv(t, "1")

	if err := env.p.Convert(context.Background(), env.request()); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	data, err := os.ReadFile(env.calls)
	if err != nil {
		t.Fatalf("read calls: %v", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.HasPrefix(line, "synthesize ") && strings.Contains(line, "--vec") {
			t.Errorf("v1 synthesis must not receive --vec: %s", line)
		}
	}
}

func TestConvertPassesEnvToTools(t *testing.T) {
	env := setupEnv(t, "1")

	if err := env.p.Convert(context.Background(), env.request()); err != nil {
		t.Fatalf("Convert: %v", err)
	}

	data, err := os.ReadFile(env.envFile)
	if err != nil {
		t.Fatalf("read env record: %v", err)
	}
	got := strings.TrimSpace(string(data))
	want := env.arch + "|0"
	if got != want {
		t.Errorf("content-vector env = %q, want %q (PYTHONPATH|CUDA_VISIBLE_DEVICES)", got, want)
	}
}

func TestConvertAmbiguousCheckpointFailsBeforeSubprocess(t *testing.T) {
	env := setupEnv(t, "1")
	if err := os.WriteFile(filepath.Join(env.charDir, "second.pt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write second checkpoint: %v", err)
	}

	err := env.p.Convert(context.Background(), env.request())
	if !errors.Is(err, bundle.ErrAmbiguousAsset) {
		t.Fatalf("err = %v, want ErrAmbiguousAsset", err)
	}
	if calls := env.calledStages(t); len(calls) != 0 {
		t.Errorf("no subprocess may run on a malformed bundle, got %v", calls)
	}
	env.assertScratchEmpty(t)
}

func TestConvertCorruptCheckpoint(t *testing.T) {
	env := setupEnv(t, "banana")

	err := env.p.Convert(context.Background(), env.request())
	if !errors.Is(err, bundle.ErrCorruptCheckpoint) {
		t.Fatalf("err = %v, want ErrCorruptCheckpoint", err)
	}
	env.assertScratchEmpty(t)
}

func TestConvertStageFailureCollectsDiagnosticsAndCleansUp(t *testing.T) {
	env := setupEnv(t, "1")

	// The pitch tool writes a log into the scratch dir ($2 is the input
	// path) and exits nonzero.
	env.writeTool(t, pitchScriptName,
		"echo 'RuntimeError: f0 estimation failed' > \"$(dirname \"$2\")/pitch.log\"\nexit 1\n")

	err := env.p.Convert(context.Background(), env.request())
	if err == nil {
		t.Fatal("expected stage failure")
	}

	var stageErr *StageError
	if !errors.As(err, &stageErr) {
		t.Fatalf("expected *StageError, got %T: %v", err, err)
	}
	if stageErr.Stage != StagePitch {
		t.Errorf("failed stage = %s, want %s", stageErr.Stage, StagePitch)
	}
	if !strings.Contains(err.Error(), "RuntimeError: f0 estimation failed") {
		t.Errorf("error report missing diagnostic log content: %v", err)
	}

	// Synthesis never ran, nothing survives cleanup, no cached output.
	for _, name := range env.calledStages(t) {
		if name == "synthesize" {
			t.Error("synthesize must not run after pitch failure")
		}
	}
	env.assertScratchEmpty(t)
	if _, _, err := env.store.Read(cache.StageOutput, "sess", "result"); err == nil {
		t.Error("output cache entry must be absent after failure")
	}
}

func TestConvertMissingSynthesisOutputStillCleansUp(t *testing.T) {
	env := setupEnv(t, "1")
	env.writeTool(t, "svc_inference.py", "exit 0\n") // exits clean, writes nothing

	err := env.p.Convert(context.Background(), env.request())
	if err == nil {
		t.Fatal("expected error when synthesis output is missing")
	}
	env.assertScratchEmpty(t)
}

func TestExportAheadOfTime(t *testing.T) {
	env := setupEnv(t, "1")

	path, ran, err := env.p.Export(context.Background(), "alto", "")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if !ran {
		t.Error("first Export must run the export tool")
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("exported checkpoint missing: %v", err)
	}

	_, ran, err = env.p.Export(context.Background(), "alto", "")
	if err != nil {
		t.Fatalf("second Export: %v", err)
	}
	if ran {
		t.Error("second Export must be a no-op")
	}
}

func TestListCharacters(t *testing.T) {
	env := setupEnv(t, "1")

	names, err := env.p.ListCharacters()
	if err != nil {
		t.Fatalf("ListCharacters: %v", err)
	}
	if len(names) != 1 || names[0] != "alto" {
		t.Errorf("names = %v, want [alto]", names)
	}
}

func TestConvertUnknownCharacter(t *testing.T) {
	env := setupEnv(t, "1")
	req := env.request()
	req.Character = "nobody"

	if err := env.p.Convert(context.Background(), req); err == nil {
		t.Fatal("expected error for unknown character")
	}
	if calls := env.calledStages(t); len(calls) != 0 {
		t.Errorf("no subprocess may run for an unknown character, got %v", calls)
	}
}
