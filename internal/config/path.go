// Package config resolves the filesystem locations lockbox uses: the
// config directory, the sqlite database, and user-supplied path
// overrides.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const appDirName = "lockbox"

// ExpandPath expands a leading ~ and $VAR environment references in a
// user-supplied path. Unknown variables expand to empty, matching
// os.ExpandEnv.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		home, err := os.UserHomeDir()
		if err == nil {
			path = home
		}
	}

	return os.ExpandEnv(path)
}

// ConfigDir returns the directory searched for config.yaml,
// $HOME/.config/lockbox.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appDirName), nil
}

// DefaultDatabasePath is where the sqlite database lives unless
// database.path overrides it.
func DefaultDatabasePath() string {
	return ExpandPath("$HOME/.local/share/" + appDirName + "/" + appDirName + ".db")
}
