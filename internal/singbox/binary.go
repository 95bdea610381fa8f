package singbox

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrBinaryNotFound is returned when no engine executable can be
// located.
var ErrBinaryNotFound = errors.New("sing-box binary not found")

// FindBinary locates the engine executable. An explicitly configured
// path wins; otherwise a bundled copy next to our own executable is
// tried, then $PATH.
func FindBinary(configured string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err == nil {
			return configured, nil
		}
		// The configured value may still be a bare name on $PATH.
		if path, err := exec.LookPath(configured); err == nil {
			return path, nil
		}
		return "", ErrBinaryNotFound
	}

	name := "sing-box"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}

	if self, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(self), name)
		if _, err := os.Stat(bundled); err == nil {
			return bundled, nil
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	return "", ErrBinaryNotFound
}
