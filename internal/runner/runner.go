// Package runner invokes the external so-vits-svc tools as subprocesses.
//
// Every tool is a Python script executed by the interpreter of a dedicated
// virtual environment, never the host's default python, so the toolchain's
// dependencies stay isolated from whatever else runs on the machine. Tools
// are treated as opaque: success is exit status zero, and stderr is only
// kept so a failure can be reported with context.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// maxStderrReport caps how much captured stderr is attached to an error.
const maxStderrReport = 4096

// Invocation describes one external tool call.
type Invocation struct {
	// Python is the interpreter of the variant's virtual environment.
	Python string
	// Script is the tool script path, passed as the interpreter's first argument.
	Script string
	// Args are the tool's own arguments, in order.
	Args []string
	// Dir is the working directory for the subprocess.
	Dir string
	// Env holds extra KEY=VALUE pairs appended to the inherited environment.
	// The hardware selector's overrides always travel here.
	Env []string
}

// ExitError reports a tool that terminated abnormally.
type ExitError struct {
	Script string
	Err    error
	Stderr string
}

func (e *ExitError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("%s: %v", e.Script, e.Err)
	}
	return fmt.Sprintf("%s: %v\n%s", e.Script, e.Err, e.Stderr)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Runner executes Invocations synchronously.
type Runner struct {
	log *slog.Logger
}

// New returns a Runner that logs each invocation through log.
func New(log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{log: log}
}

// Run blocks until the tool exits. A nonzero exit status or a failure to
// start is returned as an *ExitError carrying a stderr excerpt.
func (r *Runner) Run(ctx context.Context, inv Invocation) error {
	_, err := r.exec(ctx, inv, nil)
	return err
}

// Output runs the tool and additionally returns everything it wrote to
// stdout. Only the version probe parses tool output; every other stage is
// pass/fail by exit status alone.
func (r *Runner) Output(ctx context.Context, inv Invocation) ([]byte, error) {
	var stdout bytes.Buffer
	if _, err := r.exec(ctx, inv, &stdout); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

func (r *Runner) exec(ctx context.Context, inv Invocation, stdout *bytes.Buffer) (time.Duration, error) {
	if inv.Python == "" {
		return 0, fmt.Errorf("interpreter path is required")
	}
	if inv.Script == "" {
		return 0, fmt.Errorf("script path is required")
	}

	argv := append([]string{inv.Script}, inv.Args...)
	cmd := exec.CommandContext(ctx, inv.Python, argv...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdout != nil {
		cmd.Stdout = stdout
	}

	r.log.Debug("invoking tool",
		slog.String("python", inv.Python),
		slog.String("script", inv.Script),
		slog.Any("args", inv.Args),
	)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		excerpt := stderrExcerpt(stderr.String())
		r.log.Warn("tool failed",
			slog.String("script", inv.Script),
			slog.Int64("duration_ms", elapsed.Milliseconds()),
			slog.String("error", err.Error()),
		)
		return elapsed, &ExitError{Script: inv.Script, Err: err, Stderr: excerpt}
	}

	r.log.Debug("tool finished",
		slog.String("script", inv.Script),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
	)
	return elapsed, nil
}

// stderrExcerpt keeps the tail of stderr, where Python tracebacks end.
func stderrExcerpt(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderrReport {
		s = s[len(s)-maxStderrReport:]
	}
	return s
}
