//go:build !windows

package platform

import (
	"os"
	"os/user"
	"path/filepath"
)

func configDir() (string, error) {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return filepath.Join(v, appName), nil
	}
	if os.Geteuid() == 0 {
		return filepath.Join("/etc", appName), nil
	}
	return fallbackDir("XDG_CONFIG_HOME", ".config")
}

func stateDir() (string, error) {
	if v := os.Getenv("XDG_STATE_HOME"); v != "" {
		return filepath.Join(v, appName), nil
	}
	if os.Geteuid() == 0 {
		return filepath.Join("/var/lib", appName), nil
	}
	return fallbackDir("XDG_STATE_HOME", filepath.Join(".local", "state"))
}

func fallbackDir(_ string, rel string) (string, error) {
	home := os.Getenv("HOME")
	if home == "" {
		if u, err := user.Current(); err == nil {
			home = u.HomeDir
		}
	}
	if home == "" {
		return "", os.ErrNotExist
	}
	return filepath.Join(home, rel, appName), nil
}
