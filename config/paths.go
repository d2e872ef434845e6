package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

const appName = "branchchat"

// GetHomeDir returns the user's home directory, or the filesystem root when
// it cannot be determined.
func GetHomeDir() string {
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return home
	}
	if runtime.GOOS == "windows" {
		return "C:\\"
	}
	return "/"
}

// GetConfigDir is ~/.config/branchchat on every platform.
func GetConfigDir() string {
	return filepath.Join(GetHomeDir(), ".config", appName)
}

// GetSettingsFilePath points at the system settings file (data_directory).
func GetSettingsFilePath() string {
	return filepath.Join(GetConfigDir(), "settings.toml")
}

// GetDefaultDataDir is %LOCALAPPDATA%\branchchat on Windows and
// ~/.local/share/branchchat elsewhere.
func GetDefaultDataDir() string {
	if runtime.GOOS == "windows" {
		if local := os.Getenv("LOCALAPPDATA"); local != "" {
			return filepath.Join(local, appName)
		}
		return filepath.Join(GetHomeDir(), "AppData", "Local", appName)
	}
	return filepath.Join(GetHomeDir(), ".local", "share", appName)
}

// ExpandPath resolves a leading ~/ and $VARS, then cleans the result.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}
	if rest, ok := strings.CutPrefix(path, "~/"); ok {
		path = filepath.Join(GetHomeDir(), rest)
	}
	return filepath.Clean(os.ExpandEnv(path))
}

// EnsureDir creates path with user-only permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}

func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// EnsureDataDirPermissions creates dataDir if needed and tightens it to 0700.
// Session files and credentials live here.
func EnsureDataDirPermissions(dataDir string) error {
	info, err := os.Stat(dataDir)
	if os.IsNotExist(err) {
		return EnsureDir(dataDir)
	}
	if err != nil {
		return err
	}
	if info.Mode().Perm() != 0700 {
		return os.Chmod(dataDir, 0700)
	}
	return nil
}
