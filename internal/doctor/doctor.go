// Package doctor provides environment preflight checks for svcbridge.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// Config holds the on-disk locations each doctor check inspects.
type Config struct {
	// Interpreters are the virtual-environment python binaries the pipeline
	// invokes.
	Interpreters []string
	// ToolScripts are the stage scripts under the architecture root.
	ToolScripts []string
	// DefaultConfigPath is the toolchain's built-in config file.
	DefaultConfigPath string
	// ModelsDir is the character model root.
	ModelsDir string
	// CacheDir must be writable for conversion output.
	CacheDir string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- interpreters -------------------------------------------------------
	for _, path := range cfg.Interpreters {
		if err := checkExecutable(path); err != nil {
			res.fail(fmt.Sprintf("interpreter %q: %v", path, err))
			fmt.Fprintf(w, "%s interpreter %s: %v\n", FailMark, path, err)
		} else {
			fmt.Fprintf(w, "%s interpreter: %s\n", PassMark, path)
		}
	}

	// ---- tool scripts -------------------------------------------------------
	for _, path := range cfg.ToolScripts {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("tool script %q: %v", path, err))
			fmt.Fprintf(w, "%s tool script %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s tool script: %s\n", PassMark, path)
		}
	}

	// ---- default config -----------------------------------------------------
	if cfg.DefaultConfigPath != "" {
		if _, err := os.Stat(cfg.DefaultConfigPath); err != nil {
			res.fail(fmt.Sprintf("default config %q: %v", cfg.DefaultConfigPath, err))
			fmt.Fprintf(w, "%s default config %s: not found\n", FailMark, cfg.DefaultConfigPath)
		} else {
			fmt.Fprintf(w, "%s default config: %s\n", PassMark, cfg.DefaultConfigPath)
		}
	}

	// ---- models dir -----------------------------------------------------------
	if cfg.ModelsDir != "" {
		if info, err := os.Stat(cfg.ModelsDir); err != nil || !info.IsDir() {
			res.fail(fmt.Sprintf("models dir %q: not a directory", cfg.ModelsDir))
			fmt.Fprintf(w, "%s models dir %s: not a directory\n", FailMark, cfg.ModelsDir)
		} else {
			fmt.Fprintf(w, "%s models dir: %s\n", PassMark, cfg.ModelsDir)
		}
	}

	// ---- cache dir ------------------------------------------------------------
	if cfg.CacheDir != "" {
		if err := checkWritable(cfg.CacheDir); err != nil {
			res.fail(fmt.Sprintf("cache dir %q: %v", cfg.CacheDir, err))
			fmt.Fprintf(w, "%s cache dir %s: not writable (%v)\n", FailMark, cfg.CacheDir, err)
		} else {
			fmt.Fprintf(w, "%s cache dir: %s\n", PassMark, cfg.CacheDir)
		}
	}

	return res
}

// checkExecutable verifies the path exists and carries an execute bit.
func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("is a directory")
	}
	if info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("not executable")
	}
	return nil
}

// checkWritable creates and removes a probe file in dir.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".doctor_probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}
