package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName         = "aurora"
	configFile      = "config.yaml"
	credentialsFile = "credentials.yaml"
	credentialsDB   = "credentials.db"
)

// GetConfigDir returns the OS-appropriate configuration directory for the application.
// This follows platform conventions:
//   - Linux: $XDG_CONFIG_HOME/aurora or $HOME/.config/aurora
//   - macOS: $HOME/.config/aurora (following XDG convention on macOS)
//   - Windows: %LOCALAPPDATA%\aurora
func GetConfigDir() (string, error) {
	var baseDir string

	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			userProfile := os.Getenv("USERPROFILE")
			if userProfile == "" {
				return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
			}
			baseDir = filepath.Join(userProfile, "AppData", "Local", appName)
		} else {
			baseDir = filepath.Join(localAppData, appName)
		}

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		baseDir = filepath.Join(homeDir, ".config", appName)

	default:
		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome != "" {
			baseDir = filepath.Join(xdgConfigHome, appName)
		} else {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("cannot determine home directory: %w", err)
			}
			baseDir = filepath.Join(homeDir, ".config", appName)
		}
	}

	return baseDir, nil
}

// GetConfigPath returns the full path to the default configuration file.
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, configFile), nil
}

// defaultCredentialPath returns where a path-based credential backend keeps
// the secret when credential.path is not set.
func defaultCredentialPath(backend string) (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if backend == "sqlite" {
		return filepath.Join(configDir, credentialsDB), nil
	}
	return filepath.Join(configDir, credentialsFile), nil
}
