// Package bundle resolves a character's on-disk model assets.
//
// A character directory must hold exactly one checkpoint (.pt), at most one
// configuration file (.yaml, falling back to the toolchain's base config),
// and exactly one speaker embedding (.spk.npy) inside a singer/ subdirectory.
// Anything else is a configuration fault of the bundle, reported before any
// subprocess is launched.
package bundle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	CheckpointSuffix = ".pt"
	ConfigSuffix     = ".yaml"
	SpeakerSuffix    = ".spk.npy"

	// SingerDir is the fixed subdirectory holding the speaker embedding.
	SingerDir = "singer"

	// ExportedFilename is the derived, synthesis-ready checkpoint produced by
	// the export tool and cached inside the character directory.
	ExportedFilename = "sovits5.0.pth"
)

var (
	// ErrMissingAsset means a required asset kind matched zero files.
	ErrMissingAsset = errors.New("model asset not found")
	// ErrAmbiguousAsset means a required asset kind matched several files.
	ErrAmbiguousAsset = errors.New("multiple model assets found")
	// ErrAmbiguousConfig means more than one configuration file was found;
	// zero is fine (the built-in default applies), several is not.
	ErrAmbiguousConfig = errors.New("multiple config files found")
)

// Bundle holds the resolved asset paths for one character.
type Bundle struct {
	Dir            string
	CheckpointPath string
	ConfigPath     string
	SpeakerPath    string
	// ExportedPath is where the cached exported checkpoint lives once the
	// export stage has run for this character. The file may not exist yet.
	ExportedPath string
}

// CharacterDir returns the model directory for a character under modelsDir.
func CharacterDir(modelsDir, architecture, character string) (string, error) {
	if strings.ContainsAny(character, `/\`) || character == "" || character == "." || character == ".." {
		return "", fmt.Errorf("invalid character name %q", character)
	}
	dir := filepath.Join(modelsDir, architecture, character)
	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("character %q: %w", character, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("character %q: %s is not a directory", character, dir)
	}
	return dir, nil
}

// ListCharacters enumerates the character directories for an architecture.
func ListCharacters(modelsDir, architecture string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(modelsDir, architecture))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list characters: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Resolve locates the checkpoint, configuration, and speaker embedding of a
// character directory. defaultConfigPath is used when the directory carries
// no configuration file of its own.
func Resolve(dir, defaultConfigPath string) (Bundle, error) {
	checkpoint, err := findExactlyOne(dir, CheckpointSuffix)
	if err != nil {
		return Bundle{}, err
	}

	configPath, err := findConfig(dir, defaultConfigPath)
	if err != nil {
		return Bundle{}, err
	}

	singerDir := filepath.Join(dir, SingerDir)
	speaker, err := findExactlyOne(singerDir, SpeakerSuffix)
	if err != nil {
		return Bundle{}, err
	}

	return Bundle{
		Dir:            dir,
		CheckpointPath: checkpoint,
		ConfigPath:     configPath,
		SpeakerPath:    speaker,
		ExportedPath:   filepath.Join(dir, ExportedFilename),
	}, nil
}

// Exported reports whether the cached exported checkpoint already exists.
func (b Bundle) Exported() bool {
	info, err := os.Stat(b.ExportedPath)
	return err == nil && !info.IsDir()
}

func findConfig(dir, defaultConfigPath string) (string, error) {
	matches, err := matchSuffix(dir, ConfigSuffix)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		// Use the configuration file that ships with the toolchain.
		return defaultConfigPath, nil
	case 1:
		return filepath.Join(dir, matches[0]), nil
	default:
		return "", fmt.Errorf("%w: expected at most one %q file in %s, found %d",
			ErrAmbiguousConfig, ConfigSuffix, dir, len(matches))
	}
}

func findExactlyOne(dir, suffix string) (string, error) {
	matches, err := matchSuffix(dir, suffix)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: expected a %q file in %s", ErrMissingAsset, suffix, dir)
	case 1:
		return filepath.Join(dir, matches[0]), nil
	default:
		return "", fmt.Errorf("%w: expected exactly one %q file in %s, found %d",
			ErrAmbiguousAsset, suffix, dir, len(matches))
	}
}

func matchSuffix(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrMissingAsset, dir, err)
	}

	var matches []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			matches = append(matches, e.Name())
		}
	}
	sort.Strings(matches)
	return matches, nil
}
