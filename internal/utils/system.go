package utils

import (
	"fmt"
	"os"
	"path/filepath"
)

// IsTerminal checks if the given file is attached to a terminal.
// Used to decide whether the progress bar and ANSI colors should be enabled.
func IsTerminal(f *os.File) bool {
	fileInfo, err := f.Stat()
	if err != nil {
		return false
	}
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// EnsureFilepathExists creates the directory for a given file path if it does
// not exist yet. The caller is expected to log failures; utils must not
// import the logger to avoid import cycles.
func EnsureFilepathExists(filePath string) error {
	dir := filepath.Dir(filePath)
	if dir == "." || dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
