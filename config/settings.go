package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

func LoadSystemConfig() (*SystemConfig, error) {
	cfg := DefaultSystemConfig()
	settingsPath := GetSettingsFilePath()

	if !FileExists(settingsPath) {
		if err := writeTemplate(GetConfigDir(), settingsPath, GenerateSystemConfigTemplate()); err != nil {
			return nil, fmt.Errorf("failed to create system config: %w", err)
		}
		return cfg, nil
	}

	if _, err := toml.DecodeFile(settingsPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse system config: %w", err)
	}

	return cfg, nil
}

func LoadUserConfig(dataDir string) (*UserConfig, error) {
	cfg := DefaultUserConfig()
	userConfigPath := UserConfigPath(dataDir)

	if !FileExists(userConfigPath) {
		if err := writeTemplate(dataDir, userConfigPath, GenerateUserConfigTemplate()); err != nil {
			return nil, fmt.Errorf("failed to create user config: %w", err)
		}
		return cfg, nil
	}

	// Decode onto an empty struct so a file without [[models]] doesn't
	// silently inherit the defaults.
	cfg = &UserConfig{}
	if _, err := toml.DecodeFile(userConfigPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse user config: %w", err)
	}

	return cfg, nil
}

func SaveSystemConfig(cfg *SystemConfig) error {
	if err := EnsureDir(GetConfigDir()); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := writeTOML(GetSettingsFilePath(), cfg); err != nil {
		return fmt.Errorf("failed to save system config: %w", err)
	}
	return nil
}

func SaveUserConfig(cfg *UserConfig, dataDir string) error {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := writeTOML(UserConfigPath(dataDir), cfg); err != nil {
		return fmt.Errorf("failed to save user config: %w", err)
	}
	return nil
}

// UserConfigPath returns <data_dir>/config.toml.
func UserConfigPath(dataDir string) string {
	return filepath.Join(dataDir, "config.toml")
}

func writeTOML(path string, v any) error {
	// 0600: may contain API keys
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(v); err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}
	return nil
}

func writeTemplate(dir, path, content string) error {
	if err := EnsureDir(dir); err != nil {
		return err
	}
	if FileExists(path) {
		return nil
	}
	return os.WriteFile(path, []byte(content), 0600)
}
