//go:build windows

package platform

import (
	"os"
	"path/filepath"
)

func configDir() (string, error) {
	base := os.Getenv("ProgramData")
	if base == "" {
		base = os.Getenv("ALLUSERSPROFILE")
	}
	if base == "" {
		return "", os.ErrNotExist
	}
	return filepath.Join(base, appName), nil
}

func stateDir() (string, error) {
	return configDir()
}
