package cache

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewCreatesStageDirs(t *testing.T) {
	dir := t.TempDir()
	if _, err := New(dir); err != nil {
		t.Fatalf("New: %v", err)
	}

	for _, stage := range []string{StagePreprocessed, StageOutput} {
		if _, err := os.Stat(filepath.Join(dir, stage)); err != nil {
			t.Errorf("stage dir %s missing: %v", stage, err)
		}
	}
}

func TestNewRejectsEmptyDir(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty cache dir")
	}
}

func TestWriteThenRead(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	samples := []float32{0, 0.5, -0.5, 0.25}
	if err := c.Write(StagePreprocessed, "session-1", "clip", samples, 22050); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got, rate, err := c.Read(StagePreprocessed, "session-1", "clip")
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if rate != 22050 {
		t.Errorf("sample rate = %d, want 22050", rate)
	}
	if len(got) != len(samples) {
		t.Errorf("read %d samples, want %d", len(got), len(samples))
	}
}

func TestReadMissingEntry(t *testing.T) {
	c, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := c.Read(StageOutput, "nope", "missing"); err == nil {
		t.Fatal("expected error for missing cache entry")
	}
}
