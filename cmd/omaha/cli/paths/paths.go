// Package paths resolves the directories omaha reads and writes.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// ConfigDirName is the config directory relative to the user's home.
	ConfigDirName = ".config/omaha"
	// CacheDirName is the cache directory relative to the user's home.
	CacheDirName = ".cache/omaha"

	// SettingsFileName is the settings file inside the config directory.
	SettingsFileName = "settings.json"
	// LocalSettingsFileName overrides SettingsFileName when present.
	LocalSettingsFileName = "settings.local.json"
	// LogsDirName holds log files inside the cache directory.
	LogsDirName = "logs"
	// SQLiteFileName is the sqlite cache database inside the cache directory.
	SQLiteFileName = "omaha.db"
)

// HomeEnvVar overrides the home directory used to resolve every path.
const HomeEnvVar = "OMAHA_HOME"

// homeDir returns OMAHA_HOME if set, otherwise the user's home directory.
func homeDir() (string, error) {
	if h := os.Getenv(HomeEnvVar); h != "" {
		return h, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return home, nil
}

// ConfigDir returns the expanded path to ~/.config/omaha.
func ConfigDir() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ConfigDirName), nil
}

// CacheDir returns the expanded path to ~/.cache/omaha.
func CacheDir() (string, error) {
	home, err := homeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, CacheDirName), nil
}

// SettingsFiles returns the base and local settings file paths.
func SettingsFiles() (base, local string, err error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", "", err
	}
	return filepath.Join(dir, SettingsFileName), filepath.Join(dir, LocalSettingsFileName), nil
}

// LogsDir returns the directory log files are written to.
func LogsDir() (string, error) {
	dir, err := CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, LogsDirName), nil
}

// EnsureDir creates dir and its parents if they don't exist.
func EnsureDir(dir string) error {
	//nolint:gosec // directories under the user's home, 0o755 is appropriate
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}
