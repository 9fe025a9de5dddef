// Package cache implements the file-backed audio cache shared between the
// web layer and the conversion pipeline. Audio is keyed by processing stage,
// session id, and a caller-chosen name, and stored as mono 16-bit PCM WAV.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-svc-bridge/internal/audio"
)

// Cache stages. Preprocessed holds request inputs, Output holds results.
const (
	StagePreprocessed = "preprocessed"
	StageOutput       = "output"
)

// Extension is the fixed intermediate encoding of cached audio.
const Extension = ".wav"

// FileCache stores audio under <dir>/<stage>/<session>/<name>.wav.
type FileCache struct {
	dir string
}

// New creates the cache root and its stage directories if absent.
func New(dir string) (*FileCache, error) {
	if dir == "" {
		return nil, fmt.Errorf("cache directory is required")
	}
	for _, stage := range []string{StagePreprocessed, StageOutput} {
		if err := os.MkdirAll(filepath.Join(dir, stage), 0o755); err != nil {
			return nil, fmt.Errorf("create cache stage dir: %w", err)
		}
	}
	return &FileCache{dir: dir}, nil
}

// Path returns the on-disk location of a cache entry. The file may not exist.
func (c *FileCache) Path(stage, session, name string) string {
	return filepath.Join(c.dir, stage, session, name+Extension)
}

// Read decodes a cached entry and returns its samples and sample rate.
func (c *FileCache) Read(stage, session, name string) ([]float32, int, error) {
	samples, rate, err := audio.ReadWAVFile(c.Path(stage, session, name))
	if err != nil {
		return nil, 0, fmt.Errorf("read cache entry %s/%s/%s: %w", stage, session, name, err)
	}
	return samples, rate, nil
}

// Write encodes samples into the cache, creating the session directory if
// needed. An existing entry with the same key is overwritten.
func (c *FileCache) Write(stage, session, name string, samples []float32, sampleRate int) error {
	path := c.Path(stage, session, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create cache session dir: %w", err)
	}
	if err := audio.WriteWAVFile(path, samples, sampleRate); err != nil {
		return fmt.Errorf("write cache entry %s/%s/%s: %w", stage, session, name, err)
	}
	return nil
}
