package pipeline

import "path/filepath"

// ArchitectureName is the toolchain directory name under the root dir and
// the models dir.
const ArchitectureName = "so_vits_svc_5"

// Tool script paths, relative to the architecture root. The synthesis script
// is variant-specific and lives in the variant table instead.
const (
	exportScriptName        = "svc_export.py"
	contentVectorScriptName = "whisper/inference.py"
	pitchScriptName         = "pitch/inference.py"
	hiddenUnitScriptName    = "hubert/inference.py"
	probeScriptName         = "version_probe.py"
)

// Layout maps the fixed on-disk arrangement of the toolchain: the
// architecture checkout, its virtual environments, the built-in default
// config, and the hardcoded locations the tools write to.
type Layout struct {
	Root string
}

// ArchitectureRoot is the toolchain checkout directory.
func (l Layout) ArchitectureRoot() string {
	return filepath.Join(l.Root, ArchitectureName)
}

// Python returns the interpreter of the named virtual environment.
func (l Layout) Python(venv string) string {
	return filepath.Join(l.Root, ".venvs", venv, "bin", "python")
}

// Script resolves a tool script relative to the architecture root.
func (l Layout) Script(rel string) string {
	return filepath.Join(l.ArchitectureRoot(), filepath.FromSlash(rel))
}

// ScratchRoot holds the per-run scratch directories.
func (l Layout) ScratchRoot() string {
	return filepath.Join(l.ArchitectureRoot(), "input")
}

// DefaultConfigPath is the configuration that ships with the toolchain, used
// when a character bundle carries none of its own.
func (l Layout) DefaultConfigPath() string {
	return filepath.Join(l.ArchitectureRoot(), "configs", "base.yaml")
}

// ExportDropPath is where the export tool writes its result before the
// pipeline copies it into the character directory.
func (l Layout) ExportDropPath() string {
	return filepath.Join(l.ArchitectureRoot(), exportedDropName)
}

// OutputPath resolves a tool's hardcoded output file under the architecture
// root.
func (l Layout) OutputPath(name string) string {
	return filepath.Join(l.ArchitectureRoot(), name)
}

// Interpreters lists the virtual-environment interpreters the pipeline may
// invoke, one per known variant.
func (l Layout) Interpreters() []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range variantOrder {
		venv := variantSpecs[v].venv
		if !seen[venv] {
			seen[venv] = true
			out = append(out, l.Python(venv))
		}
	}
	return out
}

// ToolScripts lists every tool script the pipeline may invoke.
func (l Layout) ToolScripts() []string {
	out := []string{
		l.Script(probeScriptName),
		l.Script(exportScriptName),
		l.Script(contentVectorScriptName),
		l.Script(pitchScriptName),
		l.Script(hiddenUnitScriptName),
	}
	for _, v := range variantOrder {
		out = append(out, l.Script(variantSpecs[v].inferenceScript))
	}
	return out
}
