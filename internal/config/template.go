package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// asMap renders durations as strings so the YAML reads like hand-written config.
func (c *Config) asMap() map[string]any {
	return map[string]any{
		"backend": map[string]any{
			"base_url":     c.Backend.BaseURL,
			"api_prefix":   c.Backend.APIPrefix,
			"timeout":      c.Backend.Timeout.String(),
			"root_ca_file": c.Backend.RootCAFile,
			"discover":     c.Backend.Discover,
		},
		"device": map[string]any{
			"serial": c.Device.Serial,
		},
		"poll": map[string]any{
			"interval": c.Poll.Interval.String(),
			"tick":     c.Poll.Tick.String(),
		},
		"credential": map[string]any{
			"backend":   c.Credential.Backend,
			"path":      c.Credential.Path,
			"namespace": c.Credential.Namespace,
			"key":       c.Credential.Key,
			"watch":     c.Credential.Watch,
		},
		"link": map[string]any{
			"interface": c.Link.Interface,
		},
		"status": map[string]any{
			"listen": c.Status.Listen,
		},
		"log": map[string]any{
			"level": c.Log.Level,
		},
	}
}

// YAML returns the configuration as a YAML document.
func (c *Config) YAML() ([]byte, error) {
	data, err := yaml.Marshal(c.asMap())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return data, nil
}

// WriteDefault writes a starter configuration file to path. An existing file
// is only replaced when overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}

	cfg := Default()
	cfg.Backend.BaseURL = "http://aurora-backend.local:8000"
	cfg.Device.Serial = "CHANGE-ME"

	data, err := cfg.YAML()
	if err != nil {
		return err
	}

	header := []byte(`# aurora-sync configuration
#
# Every key can be overridden by an environment variable named
# AURORA_<SECTION>_<KEY>, e.g. AURORA_DEVICE_SERIAL, or by a command-line flag.
# The device secret is never stored here; see the credential section.
#
# Location: ` + path + `

`)
	data = append(header, data...)

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Write to temporary file first (atomic write)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}
	return nil
}
