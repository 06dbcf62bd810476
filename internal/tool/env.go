package tool

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// DetectVenv looks for a python virtual environment holding the tools.
// Detection order: venvOverride, then <root>/.venv. It returns the venv's
// bin (Scripts on Windows) directory, or "" to use the system PATH.
func DetectVenv(venvOverride, root string) string {
	var candidates []string
	if venvOverride != "" {
		candidates = append(candidates, venvOverride)
	}
	if root != "" {
		candidates = append(candidates, filepath.Join(root, ".venv"))
	}

	for _, venv := range candidates {
		binDir := venvBinDir(venv)
		for _, exe := range pythonExeNames() {
			if _, err := os.Stat(filepath.Join(binDir, exe)); err == nil {
				return binDir
			}
		}
	}
	return ""
}

// venvBinDir returns the bin (or Scripts on Windows) directory for a venv.
func venvBinDir(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts")
	}
	return filepath.Join(venvPath, "bin")
}

func pythonExeNames() []string {
	if runtime.GOOS == "windows" {
		return []string{"python.exe"}
	}
	return []string{"python", "python3"}
}

// buildEnvWithPath creates a copy of the current environment with binDir
// prepended to PATH.
func buildEnvWithPath(binDir string) []string {
	env := os.Environ()
	result := make([]string, 0, len(env)+1)
	pathSet := false

	for _, e := range env {
		if strings.HasPrefix(e, "PATH=") {
			result = append(result, "PATH="+binDir+string(os.PathListSeparator)+e[5:])
			pathSet = true
		} else {
			result = append(result, e)
		}
	}

	if !pathSet {
		result = append(result, "PATH="+binDir)
	}

	return result
}
