package infra

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const appDirName = "attnmon"

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	return expandHomeWith(path, homeDir())
}

func expandHomeWith(path, home string) string {
	if home == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	if path == "~" {
		return home
	}
	return path
}

// ConfigDir returns the per-user configuration directory (~/.config/attnmon on Linux).
func ConfigDir() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate config directory")
	}
	return filepath.Join(dir, appDirName), nil
}

// StateDir returns the per-user directory for the worker registry and logs.
func StateDir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", errors.Wrap(err, "failed to locate cache directory")
	}
	return filepath.Join(dir, appDirName), nil
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}
