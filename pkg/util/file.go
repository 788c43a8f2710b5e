// Copyright (c) 2025 Darren Soothill
// Licensed under the MIT License

// Package util holds small helpers shared by the config loaders.
package util

import (
	"fmt"
	"os"
	"path/filepath"
)

// ReadFileSafely resolves path to an absolute, cleaned location and reads it.
// Directories are rejected with a descriptive error rather than the
// platform-specific one os.ReadFile returns.
func ReadFileSafely(path string) ([]byte, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("could not get absolute path for %s: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory, not a config file", absPath)
	}

	return os.ReadFile(absPath) // #nosec G304
}
