package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Version information (set via -ldflags during build)
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the current version string
func GetVersion() string {
	return Version
}

// GetFullVersion returns version with build info
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", Version, Build, GitCommit)
}

// LoadVersionFromFile reads version from a .version file next to the
// executable, falling back to the working directory, then to the
// compiled-in value.
func LoadVersionFromFile() string {
	candidates := []string{".version"}
	if exePath, err := os.Executable(); err == nil {
		candidates = append([]string{filepath.Join(filepath.Dir(exePath), ".version")}, candidates...)
	}

	for _, versionFile := range candidates {
		data, err := os.ReadFile(versionFile)
		if err != nil {
			continue
		}
		if version := strings.TrimSpace(string(data)); version != "" {
			Version = version
			break
		}
	}

	return Version
}
