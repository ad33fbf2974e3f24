package env

import (
	"os"
	"path/filepath"
)

// HomeEnv overrides the workspace root when set.
const HomeEnv = "XZPKG_HOME"

// Dir returns the workspace root without creating it.
func Dir() (string, error) {
	if dir := os.Getenv(HomeEnv); dir != "" {
		return dir, nil
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".xzpkg"), nil
}

// WorkDir returns the workspace root, creating it when missing.
func WorkDir() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
