package bundle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/example/go-svc-bridge/internal/runner"
)

func writeProbe(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests use /bin/sh as a stand-in interpreter")
	}
	path := filepath.Join(t.TempDir(), "version_probe.sh")
	if err := os.WriteFile(path, []byte(body), 0o755); err != nil {
		t.Fatalf("write probe: %v", err)
	}
	return path
}

func TestDetectVariantV1(t *testing.T) {
	probe := writeProbe(t, "printf '1'\n")

	v, err := DetectVariant(context.Background(), runner.New(nil), "/bin/sh", probe, "ckpt.pt")
	if err != nil {
		t.Fatalf("DetectVariant: %v", err)
	}
	if v != V1 {
		t.Errorf("variant = %v, want v1", v)
	}
}

func TestDetectVariantV2(t *testing.T) {
	probe := writeProbe(t, "printf '2'\n")

	v, err := DetectVariant(context.Background(), runner.New(nil), "/bin/sh", probe, "ckpt.pt")
	if err != nil {
		t.Fatalf("DetectVariant: %v", err)
	}
	if v != V2 {
		t.Errorf("variant = %v, want v2", v)
	}
}

func TestDetectVariantProbeFailure(t *testing.T) {
	probe := writeProbe(t, "echo 'KeyError: enc_p.pre.weight' >&2\nexit 1\n")

	_, err := DetectVariant(context.Background(), runner.New(nil), "/bin/sh", probe, "ckpt.pt")
	if !errors.Is(err, ErrCorruptCheckpoint) {
		t.Fatalf("err = %v, want ErrCorruptCheckpoint", err)
	}
}

func TestDetectVariantUnexpectedOutput(t *testing.T) {
	probe := writeProbe(t, "printf 'banana'\n")

	_, err := DetectVariant(context.Background(), runner.New(nil), "/bin/sh", probe, "ckpt.pt")
	if !errors.Is(err, ErrCorruptCheckpoint) {
		t.Fatalf("err = %v, want ErrCorruptCheckpoint", err)
	}
}

func TestVariantString(t *testing.T) {
	if V1.String() != "v1" || V2.String() != "v2" {
		t.Errorf("String() = %q, %q", V1, V2)
	}
}
