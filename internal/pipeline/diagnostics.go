package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// diagnosticSuffix marks files whose content is worth quoting in a failure
// report. The tools append tracebacks to *.log files in their working dirs.
const diagnosticSuffix = ".log"

// gatherTempFiles enumerates every file a run may have produced: whatever is
// currently in the scratch directory plus the hardcoded synthesis outputs of
// every known variant. Only files that actually exist are returned.
func gatherTempFiles(scratchDir string, fixedOutputs []string) []string {
	var files []string

	entries, err := os.ReadDir(scratchDir)
	if err == nil {
		for _, e := range entries {
			if !e.IsDir() {
				files = append(files, filepath.Join(scratchDir, e.Name()))
			}
		}
	}

	for _, path := range fixedOutputs {
		info, err := os.Stat(path)
		if err == nil && !info.IsDir() {
			files = append(files, path)
		}
	}

	return files
}

// BuildErrorReport assembles the text attached to a failed run: the files
// left behind, plus the full content of any diagnostic logs among them. It
// must be called before the files are removed.
func BuildErrorReport(root string, tempFiles []string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "pipeline failed under %s\n", root)
	if len(tempFiles) == 0 {
		b.WriteString("no intermediate files were present\n")
		return b.String()
	}

	b.WriteString("intermediate files at time of failure:\n")
	for _, f := range tempFiles {
		fmt.Fprintf(&b, "  %s\n", f)
	}

	for _, f := range tempFiles {
		if !strings.HasSuffix(f, diagnosticSuffix) {
			continue
		}
		content, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(&b, "--- %s (unreadable: %v)\n", f, err)
			continue
		}
		fmt.Fprintf(&b, "--- %s\n%s\n", f, strings.TrimRight(string(content), "\n"))
	}

	return b.String()
}
