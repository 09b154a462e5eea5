// Package platform resolves the per-OS directories this proxy reads its
// settings from and writes its persisted state to: one shared interface,
// one file per OS behind a build tag.
package platform

const appName = "steamcat"

// ConfigDir returns the directory settings.json lives in.
func ConfigDir() (string, error) {
	return configDir()
}

// StateDir returns the directory state.json is persisted to.
func StateDir() (string, error) {
	return stateDir()
}
